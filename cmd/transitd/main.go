// Command transitd runs a single mesh node: it loads a YAML config, wires a
// Transit instance to a concrete transporter/broker/registry, and serves
// Prometheus metrics alongside the mesh connection. It also offers ping and
// discover subcommands for poking at a running mesh from the shell.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/relaymesh/transit/pkg/log"
)

// version is set via ldflags at build time.
var version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "transitd",
	Short: "transitd is the transit layer node daemon",
	Long: `transitd runs one node of a transit mesh: it exchanges requests,
responses, events, and liveness pings with peer nodes over a pluggable
transporter (in-process bus or NATS).`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().String("config", "transitd.yaml", "Path to the node's YAML config file")
	rootCmd.PersistentFlags().String("log-level", "", "Override log level from config (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Force JSON log output regardless of config")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(discoverCmd)
}

func initLogging() {
	// An info-level console default. serve's RunE re-initializes logging once
	// the config file is loaded, using the config's log section with
	// --log-level/--log-json layered on top; ping and discover keep this
	// default.
	log.Init(log.Config{Level: log.InfoLevel})
}
