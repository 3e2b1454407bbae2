package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusSyncCmdRegistered(t *testing.T) {
	found := false
	for _, c := range rootCmd.Commands() {
		if c.Name() == "status-sync" {
			found = true
		}
	}
	assert.True(t, found, "status-sync should be registered on the root command")
}

func TestStatusSyncCmdArgs(t *testing.T) {
	assert.NoError(t, statusSyncCmd.Args(statusSyncCmd, []string{"ENG-1"}))
	assert.Error(t, statusSyncCmd.Args(statusSyncCmd, []string{}))
	assert.Error(t, statusSyncCmd.Args(statusSyncCmd, []string{"ENG-1", "ENG-2"}))
}
