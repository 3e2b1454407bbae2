package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tubular-health/mobius/internal/config"
	"github.com/tubular-health/mobius/internal/metrics"
	"github.com/tubular-health/mobius/internal/telemetry"
)

var exit = os.Exit
var cfgFile string

// procMetrics is the process-wide metric set, constructed once in
// initConfig and shared by every subcommand that records to it.
var procMetrics *metrics.Metrics

var rootCmd = &cobra.Command{
	Use:   "mobius",
	Short: "mobius: parallel sub-task execution core",
	Long: `mobius decomposes a tracked parent issue into a dependency graph of
sub-tasks, admits ready sub-tasks to independent agent processes up to a
configured parallelism cap, and tracks progress through a filesystem
runtime-state channel a read-only dashboard can attach to.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute adds all child commands to the root command and parses flags.
// Called once by main.main.
func Execute() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "\n=== CRITICAL ERROR: Command Execution Panic ===\n")
			fmt.Fprintf(os.Stderr, "Error: %v\n", r)
			exit(2)
		}
	}()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		exit(2)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./config.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().String("backend", "", "issue tracker backend: linear, jira, local (overrides config)")
	rootCmd.PersistentFlags().String("project-dir", ".", "project root containing .mobius/")

	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("tracker.backend", rootCmd.PersistentFlags().Lookup("backend"))
	viper.BindPFlag("project-dir", rootCmd.PersistentFlags().Lookup("project-dir"))
}

// initConfig loads and validates configuration, starts structured
// logging, and starts the Prometheus scrape endpoint in the background
// unless metrics_port is 0.
func initConfig() {
	config.Load(cfgFile)
	config.ValidateAndExit()

	telemetry.InitLogger(viper.GetBool("verbose"), "")

	procMetrics = metrics.New()
	mux := http.NewServeMux()
	mux.Handle("/metrics", procMetrics.Handler())
	port := viper.GetInt("metrics_port")
	if port != 0 {
		go func() {
			addr := fmt.Sprintf(":%d", port)
			if err := http.ListenAndServe(addr, mux); err != nil {
				slog.Warn("metrics server exited", "error", err)
			}
		}()
	}
}
