package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/exp/slog"
)

var (
	// Global flags
	verbose bool
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "gpuallocctl",
		Short: "Drive the gpualloc allocation core on a host-memory device",
		Long: `gpuallocctl runs the heap, descriptor and command allocators of gpualloc against
a simulated device that lives entirely in host memory. It is used to inspect allocator
behavior, statistics and reclamation without a GPU.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log allocator activity to stderr")

	rootCmd.AddCommand(newSimulateCmd())
	rootCmd.AddCommand(newBuddyCmd())
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

func execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newLogger logs debug output to w in verbose mode and only warnings otherwise
func newLogger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}

	return slog.New(slog.HandlerOptions{Level: level}.NewTextHandler(w))
}
