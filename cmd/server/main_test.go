package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/chronicle/internal/config"
)

func TestParseFlags(t *testing.T) {
	fs, f, err := parseFlags([]string{"--port", "9090", "--store=json", "--env-file", "prod.env"})
	require.NoError(t, err)
	assert.True(t, fs.Changed("port"))
	assert.False(t, fs.Changed("db"))
	assert.Equal(t, 9090, f.port)
	assert.Equal(t, "json", f.store)
	assert.Equal(t, "prod.env", f.envFile)

	_, _, err = parseFlags([]string{"serve"})
	assert.ErrorContains(t, err, "unexpected argument")

	_, _, err = parseFlags([]string{"--nope"})
	assert.Error(t, err)
}

func TestApplyFlags(t *testing.T) {
	t.Setenv("CHRONICLE_DB_PATH", "")

	base := func() *config.Config {
		return &config.Config{
			Port: 8080, StoreDriver: config.StoreSQLite, DBPath: config.DefaultSQLitePath,
			SessionStore: config.SessionsDB, SessionCleanupInterval: 1, AITimeout: 1,
			RateLimitGeneral: 1, RateLimitAI: 1,
		}
	}

	tests := []struct {
		name      string
		args      []string
		wantPort  int
		wantStore string
		wantPath  string
		wantErr   bool
	}{
		{"no flags", nil, 8080, config.StoreSQLite, config.DefaultSQLitePath, false},
		{"port", []string{"-p", "3000"}, 3000, config.StoreSQLite, config.DefaultSQLitePath, false},
		{"store switches default path", []string{"--store", "json"}, 8080, config.StoreJSON, config.DefaultJSONPath, false},
		{"explicit db wins", []string{"--store", "json", "--db", "/tmp/j.json"}, 8080, config.StoreJSON, "/tmp/j.json", false},
		{"bad store", []string{"--store", "mongo"}, 0, "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs, f, err := parseFlags(tt.args)
			require.NoError(t, err)

			cfg := base()
			err = applyFlags(cfg, fs, f)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantPort, cfg.Port)
			assert.Equal(t, tt.wantStore, cfg.StoreDriver)
			assert.Equal(t, tt.wantPath, cfg.DBPath)
		})
	}
}
