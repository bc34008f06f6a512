package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/pruett/fleet-sub000/internal/watcher"
)

func buildTailCmd() *cobra.Command {
	var (
		sessionID  string
		filePath   string
		debounceMs int
		maxWaitMs  int
	)

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail a single transcript file and print each parsed message as a JSON line",
		RunE: func(cmd *cobra.Command, args []string) error {
			if sessionID == "" {
				sessionID = uuid.NewString()
			}
			return runTail(sessionID, filePath, debounceMs, maxWaitMs)
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Session id (generated if omitted)")
	cmd.Flags().StringVar(&filePath, "file", "", "Path to the JSONL transcript file to tail")
	cmd.Flags().IntVar(&debounceMs, "debounce-ms", 0, "Trailing debounce window in milliseconds")
	cmd.Flags().IntVar(&maxWaitMs, "max-wait-ms", 0, "Maximum wait before a forced flush, in milliseconds")
	cmd.MarkFlagRequired("file")

	return cmd
}

func runTail(sessionID, filePath string, debounceMs, maxWaitMs int) error {
	reg := watcher.NewRegistry()
	defer reg.StopAll()

	done := make(chan struct{})
	_, err := reg.WatchSession(watcher.Options{
		SessionID: sessionID,
		FilePath:  filePath,
		OnMessages: func(batch watcher.Batch) {
			enc := json.NewEncoder(os.Stdout)
			for _, msg := range batch.Messages {
				if err := enc.Encode(msg); err != nil {
					fmt.Fprintf(os.Stderr, "encode error: %v\n", err)
				}
			}
		},
		OnError: func(e watcher.Error) {
			fmt.Fprintf(os.Stderr, "%v\n", &e)
			if e.Kind == watcher.WatchError {
				close(done)
			}
		},
		DebounceMs: debounceMs,
		MaxWaitMs:  maxWaitMs,
	})
	if err != nil {
		return err
	}

	<-done
	return nil
}
