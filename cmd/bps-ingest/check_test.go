// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.yaml.in/yaml/v3"

	"github.com/IlhamRichie/bps-ingest/internal/validate"
	"github.com/IlhamRichie/bps-ingest/pkg/types"
)

var fixturePath = filepath.Join("..", "..", "internal", "validate", "testdata", "simdasi.json")

func TestCheckPayload(t *testing.T) {
	data, err := os.ReadFile(fixturePath)
	require.NoError(t, err)

	cfg := types.DefaultConfig()
	cfg.Target = types.Target{TableID: "TE9UUDFUV3Bpa3ovMHJJVGtuUHZVdz09", Year: "2024"}
	cfg.Variables = map[string]string{
		"iihviv2ocw": "Pencari Kerja Terdaftar - Laki-Laki",
		"kgpd8jp9bs": "Lowongan Kerja Terdaftar - Laki-Laki",
	}
	now := time.Date(2024, 11, 3, 8, 30, 0, 0, time.UTC)

	doc, diag, err := checkPayload(data, cfg, now)
	require.NoError(t, err)

	assert.Equal(t, cfg.Target.Identity(), doc.Identity)
	assert.Len(t, doc.Records, 2)
	assert.Equal(t, 1, diag.SkippedAggregates)
	require.Contains(t, diag.MissingKeys, "kgpd8jp9bs")
	assert.Equal(t, 2, diag.MissingKeys["kgpd8jp9bs"].Absent)
	assert.Equal(t, []string{"kgpd8jp9bs"}, diag.UndefinedKeys)
	assert.ElementsMatch(t, []string{"ijuxru3lvl", "b1xjkdn0vw"}, diag.UnmappedKeys)
}

func TestCheckPayload_Invalid(t *testing.T) {
	_, _, err := checkPayload([]byte(`{"data": [{}, {"judul_tabel": "x"}]}`), types.DefaultConfig(), time.Now())
	assert.ErrorIs(t, err, &validate.Error{Kind: validate.MissingEntityList})

	_, _, err = checkPayload([]byte(`{"data": `), types.DefaultConfig(), time.Now())
	assert.ErrorContains(t, err, "payload is not JSON")
}

func TestCheckCommand(t *testing.T) {
	clearEnv(t)
	withSecrets(t, nil)
	cfgPath := writeConfig(t, "target:\n  table_id: T\n  year: \"2024\"\nvariables:\n  iihviv2ocw: L\n")

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs([]string{"check", "--config", cfgPath, fixturePath})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())

	var diag types.Diagnostics
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &diag))
	assert.Equal(t, 2, diag.Records)
	assert.Equal(t, 2, diag.Values)
	assert.Equal(t, 1, diag.SkippedAggregates)
	assert.True(t, diag.Empty())
}
