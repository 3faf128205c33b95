package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 10, cfg.Database.MaxConns)
	assert.Equal(t, 1, cfg.Database.MinConns)
	assert.False(t, cfg.Database.UsePrivateIP)
	assert.Empty(t, cfg.Database.ProxyConn)
	assert.False(t, cfg.Remote.Enabled)
	assert.Equal(t, 30, cfg.Remote.Timeout)
	assert.False(t, cfg.Observability.Enabled)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("STATUSLOG_DATABASE_HOST", "34.29.136.71")
	t.Setenv("STATUSLOG_DATABASE_PRIVATEIP", "10.20.0.3")
	t.Setenv("STATUSLOG_DATABASE_USEPRIVATEIP", "true")
	t.Setenv("STATUSLOG_DATABASE_PROXYCONN", "project:region:instance")
	t.Setenv("STATUSLOG_DATABASE_MAXCONNS", "25")
	t.Setenv("STATUSLOG_SERVER_PORT", "9090")
	t.Setenv("STATUSLOG_REMOTE_ENABLED", "true")
	t.Setenv("STATUSLOG_REMOTE_URL", "https://statuslog.example.run.app")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "34.29.136.71", cfg.Database.Host)
	assert.Equal(t, "10.20.0.3", cfg.Database.PrivateIP)
	assert.True(t, cfg.Database.UsePrivateIP)
	assert.Equal(t, "project:region:instance", cfg.Database.ProxyConn)
	assert.Equal(t, 25, cfg.Database.MaxConns)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.True(t, cfg.Remote.Enabled)
	assert.Equal(t, "https://statuslog.example.run.app", cfg.Remote.URL)

	// Untouched keys keep their defaults.
	assert.Equal(t, 1, cfg.Database.MinConns)
	assert.Equal(t, "statuslog", cfg.Database.User)
}

func TestLoad_InvalidValuesRejected(t *testing.T) {
	t.Setenv("STATUSLOG_DATABASE_MAXCONNS", "0")

	_, err := Load()
	require.Error(t, err)
}
