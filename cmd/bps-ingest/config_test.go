// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IlhamRichie/bps-ingest/internal/pipeline"
	"github.com/IlhamRichie/bps-ingest/internal/secrets"
	"github.com/IlhamRichie/bps-ingest/internal/store"
	"github.com/IlhamRichie/bps-ingest/pkg/types"
)

const sampleConfig = `
fetch:
  timeout: 45s
  max_attempts: 5
store:
  driver: sqlite
  dsn: data/bps.db
target:
  table_id: TE9UUDFUV3Bpa3ovMHJJVGtuUHZVdz09
  year: "2024"
targets:
  - table_id: TE9UUDFUV3Bpa3ovMHJJVGtuUHZVdz09
    year: "2023"
  - table_id: other
    year: "2024"
    region: "3200000"
variables:
  iihviv2ocw: Pencari Kerja Terdaftar - Laki-Laki
  2ikzujodce: Penempatan Tenaga Kerja - Laki-Laki
log:
  format: json
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bps-ingest.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func withSecrets(t *testing.T, s map[string]string) {
	t.Helper()
	prev := loadedSecrets
	loadedSecrets = s
	t.Cleanup(func() { loadedSecrets = prev })
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{"BPS_API_KEY", "MONGO_URI", "MONGO_DATABASE_NAME", "MONGO_COLLECTION_NAME"} {
		t.Setenv(name, "")
		os.Unsetenv(name)
	}
	for _, kv := range os.Environ() {
		if name, _, _ := strings.Cut(kv, "="); strings.HasPrefix(name, envPrefix+"_") {
			t.Setenv(name, "")
			os.Unsetenv(name)
		}
	}
}

func TestLoadConfig_File(t *testing.T) {
	clearEnv(t)
	withSecrets(t, nil)
	var stderr bytes.Buffer

	cfg, err := loadConfig(writeConfig(t, sampleConfig), &stderr)
	require.NoError(t, err)

	assert.Contains(t, stderr.String(), "Using config file:")
	assert.Equal(t, 45*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, 5, cfg.Fetch.MaxAttempts)
	assert.Equal(t, 5*time.Second, cfg.Fetch.RetryDelay)
	assert.Equal(t, types.DefaultBaseURL, cfg.Fetch.BaseURL)
	assert.Equal(t, types.DriverSQLite, cfg.Store.Driver)
	assert.Equal(t, "data/bps.db", cfg.Store.DSN)
	assert.Equal(t, types.DefaultDatabase, cfg.Store.Database)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "Penempatan Tenaga Kerja - Laki-Laki", cfg.Variables["2ikzujodce"])

	targets := cfg.AllTargets()
	require.Len(t, targets, 2)
	assert.Equal(t, "2023", targets[0].Year)
	assert.Equal(t, types.DefaultSourceID, targets[0].SourceID)
	assert.Equal(t, "3200000", targets[1].Region)
}

func TestLoadConfig_EnvAndSecrets(t *testing.T) {
	clearEnv(t)
	t.Setenv("BPS_INGEST_FETCH_MAX_ATTEMPTS", "7")
	t.Setenv("BPS_INGEST_STORE_RETRY_DELAY", "250ms")
	t.Setenv("BPS_API_KEY", "legacy-key")
	t.Setenv("MONGO_DATABASE_NAME", "legacy_db")
	withSecrets(t, map[string]string{
		secrets.APIKey:   "secret-key",
		secrets.StoreDSN: "mongodb://ingest:pw@localhost:27017",
	})

	cfg, err := loadConfig(writeConfig(t, "target:\n  table_id: x\n  year: \"2024\"\n"), &bytes.Buffer{})
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Fetch.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Store.RetryDelay)
	assert.Equal(t, "legacy-key", cfg.APIKey, "environment wins over .secrets")
	assert.Equal(t, "legacy_db", cfg.Store.Database)
	assert.Equal(t, "mongodb://ingest:pw@localhost:27017", cfg.Store.DSN)
	assert.Equal(t, types.DriverMongo, cfg.Store.Driver)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_PrefixedEnvBeatsLegacy(t *testing.T) {
	clearEnv(t)
	withSecrets(t, nil)
	t.Setenv("BPS_INGEST_API_KEY", "new-key")
	t.Setenv("BPS_API_KEY", "old-key")

	cfg, err := loadConfig(writeConfig(t, ""), &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, "new-key", cfg.APIKey)
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	clearEnv(t)
	_, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml"), &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config")
}

func TestApplyTargetFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	addTargetFlags(cmd)
	require.NoError(t, cmd.ParseFlags([]string{"--table-id", "abc", "--year", "2022"}))

	cfg := types.DefaultConfig()
	cfg.Targets = []types.Target{{TableID: "listed", Year: "2020"}}
	applyTargetFlags(cmd, &cfg)

	targets := cfg.AllTargets()
	require.Len(t, targets, 1)
	assert.Equal(t, "abc", targets[0].TableID)
	assert.Equal(t, "2022", targets[0].Year)
	assert.Equal(t, types.DefaultRegion, targets[0].Region)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(types.LogConfig{Level: "warn", Format: "json"}, &buf)
	require.NoError(t, err)
	logger.Info("hidden")
	logger.Warn("shown", "table_id", "x")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"table_id":"x"`)

	_, err = newLogger(types.LogConfig{Level: "loud"}, &buf)
	assert.Error(t, err)
	_, err = newLogger(types.LogConfig{Format: "xml"}, &buf)
	assert.Error(t, err)
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	printSummary(&buf, &pipeline.Result{
		RunID:         "run-1",
		Identity:      types.Identity{TableID: "t", RequestedYear: "2024"},
		State:         pipeline.Done,
		StoreResult:   store.Replaced,
		FetchAttempts: 2,
		StoreAttempts: 1,
		Document:      &types.IngestedDocument{Records: make([]types.EntityRecord, 3)},
		Diagnostics: &types.Diagnostics{
			Values:            8,
			SkippedAggregates: 1,
			MissingKeys:       map[string]*types.KeyMiss{"d": {MissCount: 2, Absent: 2}},
		},
	})
	out := buf.String()
	assert.Contains(t, out, "t/2024 (run run-1)")
	assert.Contains(t, out, "Store:        replaced")
	assert.Contains(t, out, "fetch 2, store 1")
	assert.Contains(t, out, "2 of 8 value(s) degraded to 0 (25.0%): d=2")
}
