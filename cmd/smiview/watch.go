package main

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/k-kuroguro/smiview/internal/logging"
	"github.com/k-kuroguro/smiview/internal/monitor"
)

var (
	watchJSON       bool
	watchJSONStream bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print cluster-smi snapshots as JSON",
	Long: `Run cluster-smi without the tree view.

With --json the first complete snapshot is printed and the command exits.
With --json-stream (the default) every update is printed as one line of
JSON until interrupted.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&watchJSON, "json", false, "output the first snapshot as JSON and exit")
	watchCmd.Flags().BoolVar(&watchJSONStream, "json-stream", false, "stream NDJSON updates until interrupted")
	watchCmd.MarkFlagsMutuallyExclusive("json", "json-stream")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.JSON = watchJSON
	cfg.JSONStream = watchJSONStream || !watchJSON

	closeLog, err := logging.Setup(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return withCode(ExitConfigError, "%v", err)
	}
	defer closeLog()

	ctx, cancel := signalContext()
	defer cancel()

	sup, releaseRunner, err := newSupervisor(cfg)
	if err != nil {
		return err
	}
	defer releaseRunner()
	mon, releaseHistory, err := newMonitor(cfg, sup)
	if err != nil {
		return err
	}
	defer releaseHistory()

	streamCtx, stopStream := context.WithCancel(ctx)
	stream := mon.Stream(streamCtx)
	defer func() {
		stopStream()
		for range stream {
		}
	}()

	if cfg.JSON {
		return firstSnapshot(cmd.OutOrStdout(), stream, cfg.Restart.Enabled)
	}
	return streamUpdates(cmd.OutOrStdout(), stream)
}

// firstSnapshot prints the first non-empty snapshot. Without restarts, an
// exit before any snapshot is a data error.
func firstSnapshot(w io.Writer, stream <-chan monitor.Update, restarting bool) error {
	for u := range stream {
		switch u.Kind {
		case monitor.KindSnapshot:
			return outputJSON(w, u.Snapshot)
		case monitor.KindExited:
			if !restarting {
				return withCode(ExitDataError, "cluster-smi exited before printing a snapshot")
			}
		}
	}
	// Interrupted.
	return nil
}

func streamUpdates(w io.Writer, stream <-chan monitor.Update) error {
	for u := range stream {
		if err := outputJSONCompact(w, updateRecord(u)); err != nil {
			return err
		}
	}
	return nil
}
