// Package main provides the phantomqa binary entry point.
// phantomqa measures an ACR MRI phantom series and reports each QA metric against its
// action limits.
package main

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "phantomqa"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, errQAFailed) {
			os.Exit(3)
		}
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   appName,
		Short: "ACR MRI phantom quality assurance",
		Long: `phantomqa measures an ACR MRI phantom series and reports each metric
against its action limits.

It measures:
- Signal to noise ratio
- Geometric accuracy
- High contrast spatial resolution (hole arrays and slanted edge MTF)
- Image intensity uniformity and percent signal ghosting
- Slice position and slice thickness`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(runCmd(), initConfigCmd(), versionCmd())
	return cmd
}

func runCmd() *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run <series-dir>",
		Short: "Measure a phantom series",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.seriesDir = args[0]
			opts.changed = func(name string) bool { return cmd.Flags().Changed(name) }
			return runQA(cmd.Context(), opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.configPath, "config", "c", "", "Config file path (YAML)")
	f.StringVar(&opts.pairDir, "pair", "", "Directory with a repeated acquisition for subtraction SNR")
	f.StringVarP(&opts.format, "format", "f", "text", "Report format (text, json)")
	f.StringVar(&opts.logLevel, "log-level", "info", "Log level (debug, info, warn, error, off)")
	f.StringVar(&opts.metricsFile, "metrics-file", "", "Write run metrics in Prometheus text format to this file")
	f.StringVar(&opts.description, "series", "", "Series description to measure when the directory holds several")
	f.IntVarP(&opts.workers, "workers", "w", 0, "Number of concurrent measurement tasks (default from config)")
	f.BoolVar(&opts.strict, "strict", false, "Exit with status 3 when any metric fails its tolerance")
	return cmd
}

func initConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-config [path]",
		Short: "Write the default configuration",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "phantomqa.yaml"
			if len(args) == 1 {
				path = args[0]
			}
			if err := writeDefaultConfig(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Default configuration written to %s\n", path)
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	}
}
