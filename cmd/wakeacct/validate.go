package main

import (
	"fmt"

	"github.com/artpar/wakeacct/adapters/tracefile"
	"github.com/artpar/wakeacct/config"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [trace.yaml...]",
	Short: "Validate configuration and trace files",
	Long: `Validate the wakeacct configuration file and any trace files given.

Checks:
  - YAML syntax is valid
  - Values are in range and the reporter schedule parses
  - Every trace event has a known type and a client where required

Examples:
  wakeacct validate
  wakeacct validate --config /etc/wakeacct/wakeacct.yaml testdata/*.yaml`,
	RunE: runValidate,
}

const (
	checkMark = "\033[32m✓\033[0m"
	crossMark = "\033[31m✗\033[0m"
)

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Validating %s...\n\n", cfgFile)

	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		fmt.Fprintf(out, "  %s Config valid\n", crossMark)
		return fmt.Errorf("config error: %w", err)
	}
	fmt.Fprintf(out, "  %s Config valid\n", checkMark)
	fmt.Fprintf(out, "      listen:   %s\n", cfg.Server.Addr())
	fmt.Fprintf(out, "      reporter: %s (enabled=%t)\n", cfg.Reporter.Schedule, cfg.Reporter.Enabled)
	fmt.Fprintf(out, "      buckets:  %d, min samples %d\n", cfg.Accounting.HistogramBuckets, cfg.Accounting.HistogramMinSamples)

	var failed int
	for _, path := range args {
		tr, err := tracefile.Load(path)
		if err != nil {
			fmt.Fprintf(out, "  %s %s: %v\n", crossMark, path, err)
			failed++
			continue
		}
		fmt.Fprintf(out, "  %s %s (%d events)\n", checkMark, path, len(tr.Events))
	}
	if failed > 0 {
		return fmt.Errorf("%d trace file(s) invalid", failed)
	}
	return nil
}
