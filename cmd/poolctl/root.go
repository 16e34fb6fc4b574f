package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/joshuapare/superpool/internal/logger"
)

var (
	// Global flags
	verbose  bool
	quiet    bool
	jsonOut  bool
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "poolctl",
	Short: "Inspect and exercise the super-page address pool manager",
	Long: `poolctl reports how the address pool manager is configured and runs
concurrent allocation workloads against pools backed by real address space
reservations, checking that no two live chunks ever overlap.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initLogging(cmd.ErrOrStderr())
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().
		BoolVarP(&quiet, "quiet", "q", false, "Suppress all output except errors")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().
		StringVar(&logLevel, "log-level", "", "Log pool manager events at this level (debug, info, warn, error)")
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initLogging enables the manager's logger when --log-level is given.
func initLogging(w io.Writer) error {
	if logLevel == "" {
		return logger.Init(logger.Options{})
	}
	level, err := logger.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("invalid --log-level %q: %w", logLevel, err)
	}
	return logger.Init(logger.Options{Enabled: true, Output: w, Level: level})
}

// Helper functions for output

// printInfo prints an info message if not in quiet mode
func printInfo(w io.Writer, format string, args ...any) {
	if !quiet {
		fmt.Fprintf(w, format, args...)
	}
}

// printVerbose prints a verbose message if verbose mode is enabled
func printVerbose(w io.Writer, format string, args ...any) {
	if verbose && !quiet {
		fmt.Fprintf(w, format, args...)
	}
}

// printJSON outputs data as JSON
func printJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
