package config

import (
	"strings"
	"testing"

	"github.com/spf13/viper"
)

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name      string
		setup     func()
		wantError bool
		errMsg    string
	}{
		{
			name: "Valid Configuration",
			setup: func() {
				viper.Set("loop.max_parallel", 3)
				viper.Set("loop.poll_interval_seconds", 2)
				viper.Set("execution.retry_backoff_seconds", 30)
				viper.Set("execution.max_retries", 2)
				viper.Set("verification.coverage_threshold", 0.8)
				viper.Set("tracker.backend", "local")
				viper.Set("metrics_port", 2112)
			},
			wantError: false,
		},
		{
			name: "Invalid Max Parallel",
			setup: func() {
				viper.Set("loop.max_parallel", 0)
			},
			wantError: true,
			errMsg:    "loop.max_parallel must be positive",
		},
		{
			name: "Invalid Poll Interval",
			setup: func() {
				viper.Set("loop.poll_interval_seconds", 0)
			},
			wantError: true,
			errMsg:    "loop.poll_interval_seconds must be positive",
		},
		{
			name: "Negative Retry Backoff",
			setup: func() {
				viper.Set("execution.retry_backoff_seconds", -1)
			},
			wantError: true,
			errMsg:    "execution.retry_backoff_seconds must not be negative",
		},
		{
			name: "Coverage Threshold Out Of Range",
			setup: func() {
				viper.Set("verification.coverage_threshold", 1.5)
			},
			wantError: true,
			errMsg:    "verification.coverage_threshold must be between 0 and 1",
		},
		{
			name: "Unknown Tracker Backend",
			setup: func() {
				viper.Set("tracker.backend", "github-issues")
			},
			wantError: true,
			errMsg:    "tracker.backend must be one of local, jira, linear",
		},
		{
			name: "Invalid Metrics Port",
			setup: func() {
				viper.Set("metrics_port", 99999)
			},
			wantError: true,
			errMsg:    "metrics_port must be between 1 and 65535",
		},
		{
			name: "Multiple Errors",
			setup: func() {
				viper.Set("loop.max_parallel", -1)
				viper.Set("metrics_port", 80000)
			},
			wantError: true,
			errMsg:    "configuration validation failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viper.Reset()
			if tt.setup != nil {
				tt.setup()
			}

			err := ValidateConfig()
			if tt.wantError {
				if err == nil {
					t.Errorf("ValidateConfig() expected error, got nil")
				} else if tt.errMsg != "" && !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("ValidateConfig() error = %v, want error containing %v", err, tt.errMsg)
				}
			} else if err != nil {
				t.Errorf("ValidateConfig() unexpected error: %v", err)
			}
		})
	}
}
