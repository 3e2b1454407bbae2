// Package config loads mobius's configuration from a YAML file,
// environment variables, and built-in defaults: godotenv for local .env
// files, viper for the file/env merge, MOBIUS_ as the environment prefix.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load initializes configuration from file and environment variables.
// cfgFile overrides the default search path (./config.yaml) when set.
func Load(cfgFile string) {
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("MOBIUS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	} else if cfgFile == "" {
		if _, statErr := os.Stat("config.yaml"); os.IsNotExist(statErr) {
			if writeErr := viper.SafeWriteConfig(); writeErr != nil {
				if writeErr := viper.WriteConfigAs("config.yaml"); writeErr != nil {
					fmt.Fprintf(os.Stderr, "Warning: Failed to create default config file: %v\n", writeErr)
				} else {
					fmt.Println("Created default configuration file: config.yaml")
				}
			} else {
				fmt.Println("Created default configuration file: config.yaml")
			}
		}
	}
}

// setDefaults sets every ExecutionConfig/TuiConfig/VerificationConfig and
// tracker/runtime key to an explicit, documented value.
func setDefaults() {
	// LoopConfig
	viper.SetDefault("loop.max_parallel", 3)
	viper.SetDefault("loop.poll_interval_seconds", 2)
	viper.SetDefault("loop.fresh", false)

	// ExecutionConfig
	viper.SetDefault("execution.runtime", "claude")
	viper.SetDefault("execution.model", "sonnet")
	viper.SetDefault("execution.max_iterations", 20)
	viper.SetDefault("execution.delay_seconds", 2)
	viper.SetDefault("execution.retry_backoff_seconds", 30)
	viper.SetDefault("execution.max_retries", 2)
	viper.SetDefault("execution.sandbox", false)
	viper.SetDefault("execution.docker_image", "mobius-agent:latest")
	viper.SetDefault("execution.base_branch", "main")
	viper.SetDefault("execution.worktree_path", "")

	// Tracker connection (local backend ignores these)
	viper.SetDefault("tracker.base_url", "")
	viper.SetDefault("tracker.username", "")
	viper.SetDefault("tracker.api_token", "")

	// VerificationConfig
	viper.SetDefault("verification.require_all_tests_pass", true)
	viper.SetDefault("verification.coverage_threshold", 0.0)
	viper.SetDefault("verification.max_rework_iterations", 3)

	// TuiConfig
	viper.SetDefault("tui.enabled", true)
	viper.SetDefault("tui.debug_panel", false)
	viper.SetDefault("tui.verbosity", "normal")

	// Tracker
	viper.SetDefault("tracker.backend", "local")

	viper.SetDefault("metrics_port", 2112)
	viper.SetDefault("verbose", false)
	viper.SetDefault("git_user_email", "mobius-agent@example.com")
	viper.SetDefault("git_user_name", "Mobius Agent")

	slackEnabled := os.Getenv("SLACK_BOT_USER_TOKEN") != ""
	viper.SetDefault("notifications.slack.enabled", slackEnabled)
	viper.SetDefault("notifications.slack.channel", "#general")
	viper.SetDefault("notifications.slack.events.on_start", true)
	viper.SetDefault("notifications.slack.events.on_success", true)
	viper.SetDefault("notifications.slack.events.on_failure", true)
	viper.SetDefault("notifications.slack.events.on_user_interaction", true)
	viper.SetDefault("notifications.slack.events.on_project_complete", true)
}
