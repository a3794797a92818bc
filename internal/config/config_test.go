package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsWithoutAConfigFile(t *testing.T) {
	cfg, err := Load("/nonexistent/path/so/only/defaults/apply")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.User)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
	assert.Equal(t, "/ws", cfg.WebSocket.Path)
	assert.Equal(t, 0.001, cfg.Matching.CommissionRate)
	assert.Equal(t, 60*time.Second, cfg.Matching.QCSMDeadline)
	assert.Equal(t, "info", cfg.Monitoring.LogLevel)
}

func TestLoadIsASingletonAcrossCalls(t *testing.T) {
	first, err := Load("")
	require.NoError(t, err)
	second, err := Load("/some/other/path")
	require.NoError(t, err)

	assert.Same(t, first, second, "Load's sync.Once means a second call returns the same instance, ignoring the new path")
}
