// Package main provides the smiview CLI entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/k-kuroguro/smiview/internal/config"
	"github.com/k-kuroguro/smiview/internal/history"
	"github.com/k-kuroguro/smiview/internal/logging"
	"github.com/k-kuroguro/smiview/internal/monitor"
	"github.com/k-kuroguro/smiview/internal/parser"
	"github.com/k-kuroguro/smiview/internal/supervisor"
	"github.com/k-kuroguro/smiview/internal/ui"
)

// Version is set at build time via ldflags
var Version = "dev"

var (
	configPath string
	flags      *config.Flags
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Print the error since we have SilenceErrors: true
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(exitCode(err))
	}
}

var rootCmd = &cobra.Command{
	Use:   "smiview",
	Short: "Live tree view of cluster-smi output",
	Long: `smiview runs cluster-smi, parses the table it redraws on every poll and
shows the cluster as a tree of nodes, devices and processes.

Configuration is read from $XDG_CONFIG_HOME/smiview/config.yml, a .env file
in the working directory, SMIVIEW_* environment variables and flags, in that
order. Changes to the config file are applied while the view is open.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runTUI,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default $XDG_CONFIG_HOME/smiview/config.yml)")
	flags = config.BindFlags(rootCmd.PersistentFlags())
	rootCmd.Version = Version
}

// loadConfig resolves the configuration from all sources.
func loadConfig() (config.Config, error) {
	config.LoadDotEnv()
	cfg, err := config.Load(resolvedConfigPath())
	if err != nil {
		return config.Config{}, withCode(ExitConfigError, "%v", err)
	}
	flags.Apply(&cfg)
	if err := cfg.Validate(); err != nil {
		return config.Config{}, withCode(ExitConfigError, "%v", err)
	}
	return cfg, nil
}

func resolvedConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.Path()
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newParser(cfg config.Config) *parser.Parser {
	// Validate has already checked the zone.
	loc, _ := cfg.Location()
	opts := []parser.Option{parser.WithLocation(loc)}
	if cfg.LineBuffered {
		opts = append(opts, parser.WithLineBuffering())
	}
	return parser.New(opts...)
}

// newSupervisor builds the supervisor for the configured command. The
// returned func releases the runner.
func newSupervisor(cfg config.Config) (*supervisor.Supervisor, func(), error) {
	var runner supervisor.Runner = supervisor.LocalRunner{}
	release := func() {}
	if cfg.Remote.Enabled() {
		r, err := supervisor.NewSSHRunner(cfg.Remote)
		if err != nil {
			return nil, nil, err
		}
		runner = r
		release = func() { r.Close() }
	}

	var opts []supervisor.Option
	if cfg.Restart.Enabled {
		opts = append(opts, supervisor.WithRestart(cfg.Restart.Interval, cfg.Restart.Burst))
	}
	cmd := supervisor.Command{Name: cfg.Command, Args: cfg.Args}
	return supervisor.New(runner, cmd, opts...), release, nil
}

// newMonitor wires supervisor, parser and history for cfg.
func newMonitor(cfg config.Config, sup *supervisor.Supervisor) (*monitor.Monitor, func(), error) {
	opts := []monitor.Option{monitor.WithStatsInterval(cfg.StatsInterval)}
	release := func() {}
	if cfg.HistoryPath != "" {
		store, err := history.Open(cfg.HistoryPath)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, monitor.WithRecorder(store))
		release = func() { store.Close() }
	}
	return monitor.New(sup, newParser(cfg), opts...), release, nil
}

func runTUI(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	closeLog, err := logging.Setup(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return withCode(ExitConfigError, "%v", err)
	}
	defer closeLog()
	if cfg.LogFile == "" {
		logging.Discard()
	}

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

	reconf := make(chan config.Config, 1)
	go watchConfig(ctx, reconf)

	streamCtx, stopStream := context.WithCancel(ctx)
	stream := mon.Stream(streamCtx)
	err = ui.RunTUI(ctx, cfg, sup, stream, reconf)

	// Stop cluster-smi and wait for the stream to finish before releasing
	// the runner and the history store.
	stopStream()
	for range stream {
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// watchConfig forwards reloaded configuration, with the command line flags
// applied on top, until ctx is done.
func watchConfig(ctx context.Context, out chan<- config.Config) {
	path := resolvedConfigPath()
	if path == "" {
		return
	}
	err := config.Watch(ctx, path, func(cfg config.Config) {
		flags.Apply(&cfg)
		select {
		case out <- cfg:
		case <-ctx.Done():
		}
	}, func(err error) {
		logrus.Warnf("config reload failed: %v", err)
	})
	if err != nil {
		logrus.Warnf("not watching config file: %v", err)
	}
}
