package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Set at build time via ldflags.
var version = ""

func getVersion() string {
	if version != "" {
		return version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "(devel)"
}

// NewRootCmd creates the root command. Without a subcommand it serves.
func NewRootCmd() *cobra.Command {
	serve := NewServeCmd()

	cmd := &cobra.Command{
		Use:   "hexwatchd",
		Short: "Auction watcher for dyed armor colors",
		Long: `hexwatchd polls the auction house for watched armor pieces, records every
dyed piece in a ledger and ranks its color against a catalog of reference
dyes. Close matches are announced by webhook and web push.

Running hexwatchd without a subcommand is the same as 'hexwatchd serve'.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE:          serve.RunE,
	}

	cmd.PersistentFlags().StringP("config", "c", "", "Path to the YAML config file (default $HEXWATCH_CONFIG)")

	cmd.AddCommand(serve)
	cmd.AddCommand(NewCompareCmd())
	cmd.AddCommand(NewClosestCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
