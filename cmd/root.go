package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/emberdb/ember/cmd/bench"
	"github.com/emberdb/ember/cmd/serve"
)

const (
	Version = "0.3.1"
)

var (
	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "ember",
		Short: "shard-local in-memory datastore engine",
		Long: fmt.Sprintf(`ember (v%s)

A shared-nothing in-memory key-value engine: per-shard segmented hash
tables with live eviction hooks, TTL garbage collection, and an ordered
transaction queue with out-of-order execution.`, Version),
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of ember",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("ember v%s\n", Version)
		},
	}
)

func init() {
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(bench.BenchCmd)
	RootCmd.AddCommand(versionCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
