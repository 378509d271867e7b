package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultClientConfig(t *testing.T) {
	c := DefaultClientConfig()
	assert.False(t, c.AutoReconnect)
	assert.Equal(t, 5, c.MaxReconnectAttempts)
	assert.Equal(t, 3*time.Second, c.ReconnectDelay)
	assert.True(t, c.EnablePing)
	assert.Equal(t, 30*time.Second, c.PingInterval)
	assert.Equal(t, 10*time.Second, c.ConnectionTimeout)
	assert.Equal(t, 512, c.CompressionThreshold)
}

func TestSetDefaultsDoesNotOverwriteExplicitValues(t *testing.T) {
	cfg := &Config{
		Client: &ClientConfig{
			MaxReconnectAttempts: -1,
			ReconnectDelay:       7 * time.Second,
		},
	}
	setDefaults(cfg)
	assert.Equal(t, -1, cfg.Client.MaxReconnectAttempts)
	assert.Equal(t, 7*time.Second, cfg.Client.ReconnectDelay)
	assert.Equal(t, 30*time.Second, cfg.Client.PingInterval)
}

func TestLoadFromFileRoundTripYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	client := DefaultClientConfig()
	client.URL = "wss://example.test/ws"
	client.PreSharedAPIKey = "topsecret"
	server := DefaultServerConfig()
	server.ListenAddr = ":9090"
	server.PreSharedSecret = "topsecret"

	cfg := &Config{Environment: "test", Client: client, Server: server}
	require.NoError(t, SaveToFile(cfg, path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "test", loaded.Environment)
	assert.Equal(t, "wss://example.test/ws", loaded.Client.URL)
	assert.Equal(t, 512, loaded.Server.CompressionThreshold)
	assert.Equal(t, 5, loaded.Client.MaxReconnectAttempts)
}

func TestLoadFromFileDefaultsAbsentClientFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
client:
  url: wss://example.test/ws
  pre_shared_api_key: topsecret
`), 0o644))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 5, loaded.Client.MaxReconnectAttempts)
	assert.True(t, loaded.Client.EnablePing)
	assert.Equal(t, 512, loaded.Client.CompressionThreshold)
	assert.Equal(t, 30*time.Second, loaded.Client.PingInterval)
}

func TestLoadFromFileHonorsExplicitZeroes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
client:
  url: wss://example.test/ws
  pre_shared_api_key: topsecret
  max_reconnect_attempts: 0
  enable_ping: false
  compression_threshold: 0
`), 0o644))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)

	// Zero is a legal value for all three, not a stand-in for unset.
	assert.Equal(t, 0, loaded.Client.MaxReconnectAttempts)
	assert.False(t, loaded.Client.EnablePing)
	assert.Equal(t, 0, loaded.Client.CompressionThreshold)
}

func TestValidateConfigurationFlagsMissingSecret(t *testing.T) {
	cfg := &Config{
		Server: &ServerConfig{ListenAddr: ":9090"},
	}
	issues := ValidateConfiguration(cfg)
	require.NotEmpty(t, issues)
	assert.Equal(t, "server.pre_shared_secret", issues[0].Field)
	assert.Equal(t, "error", issues[0].Level)
}

func TestValidateConfigurationRejectsBadReconnectBound(t *testing.T) {
	cfg := &Config{
		Client: &ClientConfig{MaxReconnectAttempts: -2, ConnectionTimeout: time.Second},
	}
	issues := ValidateConfiguration(cfg)
	found := false
	for _, i := range issues {
		if i.Field == "client.max_reconnect_attempts" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestSubstituteEnvVars(t *testing.T) {
	require.NoError(t, os.Setenv("SAGEWS_TEST_VAR", "hello"))
	defer os.Unsetenv("SAGEWS_TEST_VAR")

	assert.Equal(t, "hello-world", SubstituteEnvVars("${SAGEWS_TEST_VAR}-world"))
	assert.Equal(t, "fallback", SubstituteEnvVars("${SAGEWS_UNSET_VAR:fallback}"))
}
