package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "wakeacct",
	Short: "Fair-share wakelock time attribution per client",
	Long: `wakeacct attributes the time a shared wakelock is held to the clients
whose requests keep it held. While n requests are outstanding, each one is
charged 1/n of the elapsed time.

Commands:
  wakeacct serve     # Accept dispatcher events and serve statistics
  wakeacct replay    # Replay a recorded dispatcher trace offline
  wakeacct validate  # Validate configuration and traces`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "wakeacct.yaml", "config file path")
}
