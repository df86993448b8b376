// Package cmd implements the command-line interface for the ember engine.
// It provides a hierarchical command structure for running a shard set and
// exercising it locally.
//
// The package is organized into several subpackages:
//
//   - serve: start a shard set and export its metrics
//   - bench: load-generation tool against a local shard set
//   - util: shared utilities for command-line processing and configuration (internal use)
//
// See ember -help for a list of all commands.
package cmd
