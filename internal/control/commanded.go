package control

import "sync"

// Commanded remembers the last action requested per actuator.
// It lives for the process lifetime only; after a restart every actuator
// is commanded again on the first tick.
type Commanded struct {
	mu      sync.RWMutex
	actions map[string]string
}

func NewCommanded() *Commanded {
	return &Commanded{actions: make(map[string]string)}
}

// Get returns the last action for device and whether one was ever recorded
func (c *Commanded) Get(device string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.actions[device]
	return a, ok
}

// Set records action for device and returns what was there before.
func (c *Commanded) Set(device, action string) (prev string, had bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev, had = c.actions[device]
	c.actions[device] = action
	return prev, had
}

// Restore puts back a value previously returned by Set.
func (c *Commanded) Restore(device, prev string, had bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if had {
		c.actions[device] = prev
		return
	}
	delete(c.actions, device)
}

// Snapshot returns a copy of the ledger
func (c *Commanded) Snapshot() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]string, len(c.actions))
	for k, v := range c.actions {
		out[k] = v
	}
	return out
}
