package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		bind:           "0.0.0.0",
		port:           8080,
		sessionTimeout: time.Hour,
		tick:           time.Second,
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"tls pair", func(c *Config) { c.tlsCert, c.tlsKey = "cert.pem", "key.pem" }, false},
		{"cert without key", func(c *Config) { c.tlsCert = "cert.pem" }, true},
		{"key without cert", func(c *Config) { c.tlsKey = "key.pem" }, true},
		{"port zero", func(c *Config) { c.port = 0 }, true},
		{"port too large", func(c *Config) { c.port = 65536 }, true},
		{"zero tick", func(c *Config) { c.tick = 0 }, true},
		{"negative player timeout", func(c *Config) { c.playerTimeout = -time.Second }, true},
		{"negative session timeout", func(c *Config) { c.sessionTimeout = -time.Second }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfigScheme(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, "http", cfg.scheme())

	cfg.tlsCert, cfg.tlsKey = "cert.pem", "key.pem"
	assert.Equal(t, "https", cfg.scheme())
}

func TestNewCmdEnvironment(t *testing.T) {
	t.Setenv("SEEKINGSYSTEMS_PORT", "9090")
	t.Setenv("SEEKINGSYSTEMS_TICK", "250ms")
	t.Setenv("SEEKINGSYSTEMS_PLAYER_TIMEOUT", "30s")

	cfg := &Config{}
	cmd := newCmd(cfg)
	require.NotNil(t, cmd)

	assert.Equal(t, 9090, cfg.port)
	assert.Equal(t, 250*time.Millisecond, cfg.tick)
	assert.Equal(t, 30*time.Second, cfg.playerTimeout)
	assert.Equal(t, "0.0.0.0", cfg.bind)
	assert.NoError(t, cfg.validate())
}
