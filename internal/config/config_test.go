package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv unsets every variable the loader reads for the duration of the test
func clearEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		name, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(name, EnvPrefix+"_") {
			unsetEnv(t, name)
		}
	}
	for _, name := range append([]string{legacyPortVar, "NATS_URL"}, legacyRedisVars...) {
		unsetEnv(t, name)
	}
}

func unsetEnv(t *testing.T, name string) {
	t.Helper()
	if old, ok := os.LookupEnv(name); ok {
		t.Cleanup(func() { os.Setenv(name, old) })
	}
	os.Unsetenv(name)
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestConfig_DefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 3000, cfg.HTTP.Port)
	assert.Equal(t, "waiting_users", cfg.Matchmaking.WaitingSet)
	assert.Equal(t, "chatting_users", cfg.Matchmaking.ChattingSet)
	assert.Equal(t, "online_users", cfg.Matchmaking.OnlineSet)
	assert.Equal(t, 6, cfg.Matchmaking.MaxPopAttempts)
	assert.Equal(t, 100*time.Millisecond, cfg.Matchmaking.PresenceDelay)
	assert.Empty(t, cfg.Store.RedisURL, "memory store by default")
	assert.Equal(t, "0.0.0.0:3000", cfg.HTTP.Addr())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"bad port", func(c *Config) { c.HTTP.Port = 70000 }, ErrInvalidConfig},
		{"missing section", func(c *Config) { c.Store = nil }, ErrMissingField},
		{"same sets", func(c *Config) { c.Matchmaking.ChattingSet = c.Matchmaking.WaitingSet }, ErrInvalidConfig},
		{"online set collides", func(c *Config) { c.Matchmaking.OnlineSet = "chatting_users" }, ErrInvalidConfig},
		{"zero pop attempts", func(c *Config) { c.Matchmaking.MaxPopAttempts = 0 }, ErrInvalidConfig},
		{"zero presence delay", func(c *Config) { c.Matchmaking.PresenceDelay = 0 }, ErrInvalidConfig},
		{"unknown bus driver", func(c *Config) { c.Bus.Driver = "kafka" }, ErrInvalidConfig},
		{"nats without url", func(c *Config) { c.Bus.Driver = "nats" }, ErrInvalidConfig},
		{"bad redis url", func(c *Config) { c.Store.RedisURL = "not a url" }, ErrInvalidConfig},
		{"ledger without path", func(c *Config) { c.Database.Path = "" }, ErrInvalidConfig},
		{"unknown log level", func(c *Config) { c.Log.Level = "loud" }, ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), tt.wantErr)
		})
	}

	t.Run("disabled ledger needs no path", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Database.Enabled = false
		cfg.Database.Path = ""
		assert.NoError(t, cfg.Validate())
	})
}

func TestConfig_LoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("QUIETLINK_HTTP_PORT", "9090")
	t.Setenv("QUIETLINK_STORE_REDIS_URL", "redis://cache:6379/0")
	t.Setenv("QUIETLINK_MATCHMAKING_MAX_POP_ATTEMPTS", "10")
	t.Setenv("QUIETLINK_MATCHMAKING_PRESENCE_DELAY", "250ms")
	t.Setenv("QUIETLINK_WEBSOCKET_ALLOWED_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("QUIETLINK_BUS_DRIVER", "nats")
	t.Setenv("QUIETLINK_BUS_NATS_URL", "nats://bus:4222")
	t.Setenv("QUIETLINK_LOG_LEVEL", "debug")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, "redis://cache:6379/0", cfg.Store.RedisURL)
	assert.Equal(t, 10, cfg.Matchmaking.MaxPopAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Matchmaking.PresenceDelay)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.WebSocket.AllowedOrigins)
	assert.Equal(t, "nats", cfg.Bus.Driver)
	assert.Equal(t, "nats://bus:4222", cfg.Bus.NATSURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "waiting_users", cfg.Matchmaking.WaitingSet, "unset variables keep defaults")
	require.NoError(t, cfg.Validate())
}

func TestConfig_LegacyVariables(t *testing.T) {
	t.Run("upstash url wins over plain redis url", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("REDIS_URL", "redis://plain:6379")
		t.Setenv("UPSTASH_REDIS_URL", "rediss://upstash:6379")
		t.Setenv("PORT", "4000")

		cfg, err := LoadFromEnv()
		require.NoError(t, err)
		assert.Equal(t, "rediss://upstash:6379", cfg.Store.RedisURL)
		assert.Equal(t, 4000, cfg.HTTP.Port)
	})

	t.Run("connection url fallback", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("UPSTASH_REDIS_CONNECTION_URL", "rediss://conn:6379")

		cfg, err := LoadFromEnv()
		require.NoError(t, err)
		assert.Equal(t, "rediss://conn:6379", cfg.Store.RedisURL)
	})

	t.Run("prefixed variables take precedence", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("UPSTASH_REDIS_URL", "rediss://upstash:6379")
		t.Setenv("QUIETLINK_STORE_REDIS_URL", "redis://primary:6379")
		t.Setenv("PORT", "4000")
		t.Setenv("QUIETLINK_HTTP_PORT", "5000")

		cfg, err := LoadFromEnv()
		require.NoError(t, err)
		assert.Equal(t, "redis://primary:6379", cfg.Store.RedisURL)
		assert.Equal(t, 5000, cfg.HTTP.Port)
	})

	t.Run("invalid port", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("PORT", "eighty")

		_, err := LoadFromEnv()
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestConfig_LoadFromFile(t *testing.T) {
	path := writeFile(t, `{
		"http": {"port": 8181, "read_timeout": "45s"},
		"matchmaking": {"max_pop_attempts": 8, "presence_delay": "200ms"},
		"database": {"enabled": false},
		"log": {"level": "warn", "color": false},
		"websocket": {"events_per_minute": 0}
	}`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 8181, cfg.HTTP.Port)
	assert.Equal(t, 45*time.Second, cfg.HTTP.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.HTTP.WriteTimeout)
	assert.Equal(t, 8, cfg.Matchmaking.MaxPopAttempts)
	assert.Equal(t, 200*time.Millisecond, cfg.Matchmaking.PresenceDelay)
	assert.False(t, cfg.Database.Enabled)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.False(t, cfg.Log.Color)
	assert.Zero(t, cfg.WebSocket.EventsPerMinute, "explicit zero disables rate limiting")
}

func TestConfig_LoadFromFileErrors(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	_, err = LoadFromFile(writeFile(t, `{"http":`))
	assert.Error(t, err)

	_, err = LoadFromFile(writeFile(t, `{"http": {"read_timeout": "soon"}}`))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = LoadFromFile(writeFile(t, `{"bus": {"driver": "kafka"}}`))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestConfig_Precedence(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, `{"http": {"port": 8181, "host": "127.0.0.1"}, "log": {"level": "warn"}}`)
	t.Setenv("QUIETLINK_HTTP_PORT", "9191")

	cfg, err := LoadConfigWithPrecedence(path)
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.HTTP.Port, "environment overrides the file")
	assert.Equal(t, "127.0.0.1", cfg.HTTP.Host, "file overrides defaults")
	assert.Equal(t, "warn", cfg.Log.Level)

	_, err = LoadConfigWithPrecedence(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err, "an explicit file must exist")

	noFile, err := LoadConfigWithPrecedence("")
	require.NoError(t, err)
	assert.Equal(t, 9191, noFile.HTTP.Port)
}
