package main

import (
	"flag"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/drinktrack/drinktrack/pkg/logging"
)

func parseArgs(t *testing.T, args ...string) (*config, error) {
	fs := flag.NewFlagSet("drinkd", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	c := new(config)
	return c, c.parse(fs, args)
}

func TestConfigDefaults(t *testing.T) {
	c, err := parseArgs(t)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", c.apiAddr)
	assert.Equal(t, slog.LevelInfo, c.lp.Level)
	assert.Equal(t, logging.LoggerPretty, c.lp.Type)

	opts := c.apiRunOptions()
	require.NotNil(t, opts.RateLimiterOpts)
	assert.Equal(t, 10, opts.RateLimiterOpts.MaxRequestsPerSecond)
	assert.False(t, opts.UseRealIPMiddleware)
}

func TestConfigFlags(t *testing.T) {
	c, err := parseArgs(t,
		"-db-path", "/tmp/db", "-rate-limit-rps", "0", "-real-ip", "-open-timeout", "2s",
		"-log-level", "debug", "-log-type", "json",
	)
	require.NoError(t, err)
	assert.Nil(t, c.apiRunOptions().RateLimiterOpts)
	assert.True(t, c.apiRunOptions().UseRealIPMiddleware)
	assert.Equal(t, 2*time.Second, c.storageParams().OpenTimeout)
	assert.Equal(t, "/tmp/db", c.storageParams().Path)
	assert.Equal(t, logging.LoggerJSON, c.lp.Type)
	assert.Contains(t, c.String(), "db-path: /tmp/db")
}

func TestConfigRejectsBadValues(t *testing.T) {
	_, err := parseArgs(t, "-rate-limit-burst", "-1")
	assert.Error(t, err)
	_, err = parseArgs(t, "-log-level", "loud")
	assert.Error(t, err)
	_, err = parseArgs(t, "-db-path", "")
	assert.Error(t, err)
}

func TestZapLevel(t *testing.T) {
	assert.Equal(t, zap.DebugLevel, zapLevel(slog.LevelDebug))
	assert.Equal(t, zap.InfoLevel, zapLevel(slog.LevelInfo))
	assert.Equal(t, zap.WarnLevel, zapLevel(slog.LevelWarn))
	assert.Equal(t, zap.ErrorLevel, zapLevel(slog.LevelError))
}

func TestLoadCatalog(t *testing.T) {
	fs := afero.NewMemMapFs()
	c, err := loadCatalog(fs, "")
	require.NoError(t, err)
	assert.Len(t, c.Drinks(), 5)

	require.NoError(t, afero.WriteFile(fs, "/etc/drinks.json", []byte(`[{"kind": "sake", "volume_ml": 180, "abv": 15}]`), 0o644))
	c, err = loadCatalog(fs, "/etc/drinks.json")
	require.NoError(t, err)
	_, ok := c.Lookup("sake")
	assert.True(t, ok)

	_, err = loadCatalog(fs, "/missing.json")
	assert.Error(t, err)
}
