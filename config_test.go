package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "sqlite", cfg.Storage)
	assert.Equal(t, "./ecohop.db", cfg.DatabasePath)
	assert.Equal(t, 3, cfg.MaxWriteAttempts)
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("STORAGE", "memory")
	t.Setenv("PORT", "9000")
	t.Setenv("MAX_WRITE_ATTEMPTS", "5")
	t.Setenv("SESSION_TTL", "30m")

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Storage)
	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, 5, cfg.MaxWriteAttempts)
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL)

	store, err := openStore(cfg)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing secret", env: map[string]string{"JWT_SECRET": ""}},
		{name: "unknown storage", env: map[string]string{"JWT_SECRET": "x", "STORAGE": "postgres"}},
		{name: "zero attempts", env: map[string]string{"JWT_SECRET": "x", "MAX_WRITE_ATTEMPTS": "0"}},
		{name: "bad duration", env: map[string]string{"JWT_SECRET": "x", "SESSION_TTL": "soon"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := loadConfig()
			require.Error(t, err)
		})
	}
}
