package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRootCmdRegistersSubcommands(t *testing.T) {
	cmd := newRootCmd()
	want := map[string]bool{"run": false, "token": false, "version": false}
	for _, sub := range cmd.Commands() {
		if _, ok := want[sub.Name()]; ok {
			want[sub.Name()] = true
		}
	}
	for name, found := range want {
		assert.True(t, found, "expected root command to register %q", name)
	}
}

func TestNewLoggerFallsBackOnBadLevel(t *testing.T) {
	flagLogLevel = "not-a-real-level"
	defer func() { flagLogLevel = "info" }()

	logger := newLogger()
	assert.Equal(t, "INFO", logger.Level().String(), "expected fallback to INFO")
}
