// Command vsmctl wires the five components (C1-C5) into a single process
// and exposes them as a small demo CLI: run a synthetic workload, inspect
// store/detector/bus counters, or replay a snapshot.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set via ldflags during release builds.
var Version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "vsmctl",
	Short:   "Temporal Event Processing Engine control CLI",
	Long:    `vsmctl runs the HLC, event bus, event store, pattern detector, and algedonic integrator as a single demo process.`,
	Version: Version,
}

func init() {
	rootCmd.PersistentFlags().String("node-id", "vsmctl-node", "node id used for HLC and algedonic signal source")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("metrics-sink", "noop", "metrics sink: noop, prometheus, datadog")
	rootCmd.PersistentFlags().String("metrics-addr", "127.0.0.1:9090", "not read: the prometheus sink's registry is not served over HTTP")
	rootCmd.PersistentFlags().String("datadog-addr", "127.0.0.1:8125", "dogstatsd address when --metrics-sink=datadog")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(snapshotCmd)
}
