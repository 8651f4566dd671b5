package mqtt

import (
	"sync"

	"github.com/dokzlo13/roomd/internal/history"
)

// FakePublisher records published entries for test assertions.
// Safe for use from event bus workers.
type FakePublisher struct {
	mu sync.Mutex

	// Entries contains all audit entries that were published.
	Entries []history.ControlEntry

	// Payloads contains the JSON payloads that were published.
	Payloads [][]byte

	// PublishError, if set, will be returned by Publish.
	PublishError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// Publish records the audit entry.
func (f *FakePublisher) Publish(entry history.ControlEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.PublishError != nil {
		return f.PublishError
	}

	payload, err := FormatPayload(entry)
	if err != nil {
		return err
	}
	f.Entries = append(f.Entries, entry)
	f.Payloads = append(f.Payloads, payload)

	return nil
}

// Published returns a copy of the recorded entries.
func (f *FakePublisher) Published() []history.ControlEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]history.ControlEntry(nil), f.Entries...)
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}
