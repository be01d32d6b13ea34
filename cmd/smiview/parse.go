package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/k-kuroguro/smiview/internal/parser"
)

var parseCmd = &cobra.Command{
	Use:   "parse FILE|-",
	Short: "Parse captured cluster-smi output",
	Long: `Feed a file of captured cluster-smi output through the parser and print
the resulting events as a JSON array. Use - to read standard input.

Exits with code 3 when any line failed to parse.`,
	Args: cobra.ExactArgs(1),
	RunE: runParse,
}

func init() {
	rootCmd.AddCommand(parseCmd)
}

func runParse(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var data []byte
	if args[0] == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	p := newParser(cfg)
	events := append(p.Feed(data), p.Flush()...)

	records := make([]eventRecord, 0, len(events))
	failed := 0
	for _, ev := range events {
		if _, ok := ev.(*parser.ParseError); ok {
			failed++
		}
		records = append(records, parserRecord(ev))
	}
	if err := outputJSON(cmd.OutOrStdout(), records); err != nil {
		return err
	}
	if failed > 0 {
		return withCode(ExitDataError, "%d line(s) failed to parse", failed)
	}
	return nil
}
