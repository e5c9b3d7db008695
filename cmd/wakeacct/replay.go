package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"

	"github.com/artpar/wakeacct/adapters/clock"
	"github.com/artpar/wakeacct/adapters/idgen"
	"github.com/artpar/wakeacct/adapters/tracefile"
	"github.com/artpar/wakeacct/app"
	"github.com/artpar/wakeacct/bootstrap"
	"github.com/artpar/wakeacct/config"
	"github.com/artpar/wakeacct/domain/wakelock"
	"github.com/spf13/cobra"
)

var (
	replayWorkers  int
	replayJSON     bool
	replayLogLevel string
	replayBuckets  int
	replaySamples  int
)

var replayCmd = &cobra.Command{
	Use:   "replay <trace.yaml>",
	Short: "Replay a recorded dispatcher trace",
	Long: `Replay a recorded dispatcher trace and print the resulting statistics.

The trace is a YAML document with a list of start, stop and stop_all events.
Pending requests are projected to the time of the last event.

Events are always applied in trace order. With --workers greater than 1 each
concurrency change re-prices the active clients in parallel.

Examples:
  wakeacct replay testdata/burst.yaml
  wakeacct replay --json --workers 8 testdata/burst.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)

	replayCmd.Flags().IntVarP(&replayWorkers, "workers", "w", 1, "accountants re-priced in parallel per concurrency change")
	replayCmd.Flags().BoolVar(&replayJSON, "json", false, "print the report as JSON instead of a text dump")
	replayCmd.Flags().StringVar(&replayLogLevel, "log-level", "warn", "log level for accounting diagnostics")
	replayCmd.Flags().IntVar(&replayBuckets, "histogram-buckets", wakelock.DefaultBucketCount, "buckets per kind histogram")
	replayCmd.Flags().IntVar(&replaySamples, "histogram-min-samples", wakelock.DefaultMinSamples, "samples buffered before bucketing")
}

func runReplay(cmd *cobra.Command, args []string) error {
	tr, err := tracefile.Load(args[0])
	if err != nil {
		return err
	}

	logger := bootstrap.NewLogger(config.LoggingConfig{Level: replayLogLevel, Format: "console"}, cmd.ErrOrStderr())

	clk := clock.NewFake(0)
	registry := app.NewRegistry(app.RegistryDeps{
		Clock:  clk,
		IDGen:  idgen.NewSequential("replay-"),
		Logger: logger,
	}, app.RegistryConfig{Histogram: wakelock.HistogramConfig{
		BucketCount: replayBuckets,
		MinSamples:  replaySamples,
	}, FanOut: replayWorkers})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	res, err := app.NewReplayer(registry, logger).Run(ctx, tr.Events)
	if err != nil {
		return fmt.Errorf("replay %s: %w", args[0], err)
	}

	clk.Set(tr.Events[len(tr.Events)-1].AtMs)

	logger.Info().
		Str("trace", tr.Name).
		Int("events", res.Applied).
		Int("clients", res.Clients).
		Int("stop_all", res.Segments).
		Msg("replay finished")

	out := cmd.OutOrStdout()
	if replayJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(registry.Report())
	}
	return registry.Dump(out)
}
