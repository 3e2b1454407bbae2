package main

import (
	"os"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestInitConfig(t *testing.T) {
	f, err := os.CreateTemp("", "mobius_config_test_*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(f.Name())

	f.WriteString("tracker:\n  backend: local\nmetrics_port: 0\n")
	f.Close()

	oldCfgFile := cfgFile
	oldExit := exit
	defer func() {
		cfgFile = oldCfgFile
		exit = oldExit
		viper.Reset()
	}()

	exitCode := -1
	exit = func(code int) { exitCode = code }

	cfgFile = f.Name()
	viper.Reset()

	initConfig()

	assert.Equal(t, -1, exitCode, "initConfig should not exit on a valid config")
	assert.Equal(t, "local", viper.GetString("tracker.backend"))
	assert.NotNil(t, procMetrics, "initConfig should construct the process metric set")
}

func TestExecute_PanicRecovery(t *testing.T) {
	panicCmd := &cobra.Command{
		Use: "panic-test",
		Run: func(cmd *cobra.Command, args []string) {
			panic("simulated panic")
		},
	}
	rootCmd.AddCommand(panicCmd)
	defer rootCmd.RemoveCommand(panicCmd)

	oldExit := exit
	exitCode := -1
	exit = func(code int) { exitCode = code }
	defer func() { exit = oldExit }()

	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()
	os.Args = []string{"mobius", "panic-test"}

	func() {
		defer func() {
			if r := recover(); r != nil {
				t.Errorf("panic reached test scope: %v", r)
			}
		}()
		Execute()
	}()

	assert.Equal(t, 2, exitCode, "Execute should exit(2) on a command panic")
}

func TestPersistentFlagsBound(t *testing.T) {
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("config"))
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("verbose"))
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("backend"))
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("project-dir"))
}
