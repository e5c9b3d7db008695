package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/artpar/wakeacct/bootstrap"
	"github.com/spf13/cobra"
)

var (
	hotReload bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the accounting server",
	Long: `Start the wakeacct server.

The server will:
  - Load configuration from wakeacct.yaml (or --config)
  - Or load configuration from WAKEACCT_* environment variables
  - Accept dispatcher events on POST /api/v1/events
  - Serve statistics on /api/v1/stats and Prometheus metrics on /metrics
  - Log a statistics report on the reporter schedule

On SIGINT or SIGTERM every pending request is completed at the current
uptime and a final report is logged.

Environment variables:
  WAKEACCT_SERVER_PORT        - Server port (default: 9464)
  WAKEACCT_LOG_LEVEL          - Log level: debug, info, warn, error
  WAKEACCT_REPORTER_SCHEDULE  - Report schedule (default: @every 1m)

Examples:
  wakeacct serve
  wakeacct serve --config /etc/wakeacct/wakeacct.yaml
  wakeacct serve --hot-reload=false`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&hotReload, "hot-reload", true, "enable hot reload of configuration")
}

func runServe(cmd *cobra.Command, args []string) error {
	app, err := bootstrap.New(bootstrap.Options{
		ConfigPath: cfgFile,
		Version:    version,
		Watch:      hotReload,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return app.Run(ctx)
}
