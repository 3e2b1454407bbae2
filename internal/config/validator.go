package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// ValidateConfig validates configuration values and returns an error if
// any are invalid. Call after Load.
func ValidateConfig() error {
	var errs []string

	if v := viper.GetInt("loop.max_parallel"); v <= 0 {
		errs = append(errs, fmt.Sprintf("loop.max_parallel must be positive, got: %d", v))
	}
	if v := viper.GetInt("loop.poll_interval_seconds"); v <= 0 {
		errs = append(errs, fmt.Sprintf("loop.poll_interval_seconds must be positive, got: %d", v))
	}
	if v := viper.GetInt("execution.retry_backoff_seconds"); v < 0 {
		errs = append(errs, fmt.Sprintf("execution.retry_backoff_seconds must not be negative, got: %d", v))
	}
	if v := viper.GetInt("execution.max_retries"); v < 0 {
		errs = append(errs, fmt.Sprintf("execution.max_retries must not be negative, got: %d", v))
	}
	if v := viper.GetFloat64("verification.coverage_threshold"); v < 0 || v > 1 {
		errs = append(errs, fmt.Sprintf("verification.coverage_threshold must be between 0 and 1, got: %v", v))
	}
	if v := viper.GetInt("verification.max_rework_iterations"); v < 0 {
		errs = append(errs, fmt.Sprintf("verification.max_rework_iterations must not be negative, got: %d", v))
	}
	if backend := viper.GetString("tracker.backend"); backend != "local" && backend != "jira" && backend != "linear" {
		errs = append(errs, fmt.Sprintf("tracker.backend must be one of local, jira, linear, got: %q", backend))
	}
	if port := viper.GetInt("metrics_port"); port < 0 || port > 65535 {
		errs = append(errs, fmt.Sprintf("metrics_port must be between 1 and 65535 (or 0 to disable), got: %d", port))
	}

	if len(errs) > 0 {
		msg := errs[0]
		for i := 1; i < len(errs); i++ {
			msg += "\n  " + errs[i]
		}
		return fmt.Errorf("configuration validation failed:\n  %s", msg)
	}
	return nil
}

// ValidateAndExit validates the configuration and exits non-zero on
// failure, printing the errors to stderr.
func ValidateAndExit() {
	if err := ValidateConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
