package main

import (
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/k-kuroguro/smiview/internal/history"
)

var (
	historyLimit int
	historyHuman bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect recorded snapshots",
	Long: `Read the snapshot history recorded while history_path (or --history) is set.
Output is JSON unless --human is given.`,
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded polls, newest first",
	Args:  cobra.NoArgs,
	RunE:  runHistoryList,
}

var historyShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Print one recorded snapshot",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyDeviceCmd = &cobra.Command{
	Use:   "device HOST ID",
	Short: "Print recorded samples of one device, newest first",
	Args:  cobra.ExactArgs(2),
	RunE:  runHistoryDevice,
}

func init() {
	historyCmd.PersistentFlags().BoolVar(&historyHuman, "human", false, "use human-readable output instead of JSON")
	historyListCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum number of entries (0 for all)")
	historyDeviceCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum number of samples (0 for all)")
	historyCmd.AddCommand(historyListCmd, historyShowCmd, historyDeviceCmd)
	rootCmd.AddCommand(historyCmd)
}

func openHistory() (*history.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.HistoryPath == "" {
		return nil, withCode(ExitConfigError, "no history database configured, set history_path or --history")
	}
	store, err := history.Open(cfg.HistoryPath)
	if err != nil {
		return nil, withCode(ExitConfigError, "%v", err)
	}
	return store, nil
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	store, err := openHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.List(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}
	if !historyHuman {
		if entries == nil {
			entries = []history.Entry{}
		}
		return outputJSON(cmd.OutOrStdout(), entries)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTIME\tNODES\tDEVICES\tPROCESSES")
	for _, e := range entries {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%d\n", e.ID, e.Timestamp.Format("2006/01/02 15:04:05"), e.Nodes, e.Devices, e.Processes)
	}
	return tw.Flush()
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return withCode(ExitError, "invalid id %q", args[0])
	}
	store, err := openHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	snap, err := store.Get(cmd.Context(), id)
	if errors.Is(err, history.ErrNotFound) {
		return withCode(ExitDataError, "%v", err)
	}
	if err != nil {
		return err
	}
	return outputJSON(cmd.OutOrStdout(), snap)
}

func runHistoryDevice(cmd *cobra.Command, args []string) error {
	deviceID, err := strconv.Atoi(args[1])
	if err != nil {
		return withCode(ExitError, "invalid device id %q", args[1])
	}
	store, err := openHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	samples, err := store.DeviceSamples(cmd.Context(), args[0], deviceID, historyLimit)
	if err != nil {
		return err
	}
	if !historyHuman {
		if samples == nil {
			samples = []history.DeviceSample{}
		}
		return outputJSON(cmd.OutOrStdout(), samples)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tUTIL\tMEMORY\tTEMP\tPOWER\tPROCESSES")
	for _, s := range samples {
		fmt.Fprintf(tw, "%s\t%d %%\t%d/%d MiB\t%d °C\t%d W\t%d\n", s.Timestamp.Format("2006/01/02 15:04:05"),
			s.Utilization, s.MemoryUsed, s.MemoryTotal, s.Temperature, s.PowerUsage, s.Processes)
	}
	return tw.Flush()
}
