package cmd

import (
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"theiacloud/internal/config"
)

func TestOperatorFlagsOnlyOverrideWhenSet(t *testing.T) {
	opts := &operatorOptions{}
	cmd := &cobra.Command{Use: "operator"}
	opts.bindFlags(cmd)
	require.NoError(t, cmd.ParseFlags([]string{
		"--eager-start",
		"--sessions-per-user=3",
		"--sweep-interval=30s",
		"--leader-election=false",
	}))

	cfg := config.GetDefaultConfig()
	cfg.MetricsAddress = ":9999"
	for _, override := range opts.overrides(cmd) {
		override(&cfg)
	}

	assert.True(t, cfg.EagerStart)
	require.NotNil(t, cfg.SessionsPerUser)
	assert.Equal(t, 3, *cfg.SessionsPerUser)
	assert.Equal(t, 30*time.Second, cfg.SweepInterval)
	assert.False(t, cfg.LeaderElection)
	assert.Equal(t, ":9999", cfg.MetricsAddress, "unset flags keep the file value")
	assert.Equal(t, config.DefaultMaxWatchIdleTime, cfg.MaxWatchIdleTime)
}

func TestOperatorCommandRejectsArguments(t *testing.T) {
	cmd := newOperatorCmd()
	assert.Error(t, cmd.Args(cmd, []string{"extra"}))
}
