package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dokzlo13/roomd/internal/config"
	"github.com/dokzlo13/roomd/internal/db"
	"github.com/dokzlo13/roomd/internal/history"
)

var logsLimit int

var logsCmd = &cobra.Command{
	Use:   "logs <sensor|motion|noise|control>",
	Short: "Print recent history rows as JSON lines",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logType, err := history.ParseLogType(args[0])
		if err != nil {
			return err
		}

		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		database, err := db.Open(cfg.Database.Path)
		if err != nil {
			return err
		}
		defer database.Close()

		return printLogs(cmd.OutOrStdout(), history.New(database.DB), logType, logsLimit)
	},
}

func init() {
	logsCmd.Flags().IntVarP(&logsLimit, "limit", "n", 50, "Number of rows to print, newest first")
}

func printLogs(w io.Writer, store *history.Store, logType history.LogType, limit int) error {
	// control rows are printed typed so timestamps come out as RFC 3339
	if logType == history.LogControl {
		entries, err := store.ControlEntries(limit)
		if err != nil {
			return fmt.Errorf("failed to read %s log: %w", logType, err)
		}
		return encodeLines(w, entries)
	}

	rows, err := store.Recent(logType, limit)
	if err != nil {
		return fmt.Errorf("failed to read %s log: %w", logType, err)
	}
	return encodeLines(w, rows)
}

func encodeLines[T any](w io.Writer, items []T) error {
	enc := json.NewEncoder(w)
	for _, item := range items {
		if err := enc.Encode(item); err != nil {
			return err
		}
	}
	return nil
}

