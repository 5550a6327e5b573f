// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package secrets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T) string
		want  map[string]string
	}{
		{
			name: "reads key files and trims whitespace",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, APIKey, "  7f3c9e2a1b  \n")
				writeFile(t, dir, StoreDSN, "mongodb://ingest:pw@db:27017\n")
				return dir
			},
			want: map[string]string{
				APIKey:   "7f3c9e2a1b",
				StoreDSN: "mongodb://ingest:pw@db:27017",
			},
		},
		{
			name: "missing directory is empty",
			setup: func(t *testing.T) string {
				return filepath.Join(t.TempDir(), DefaultDir)
			},
			want: map[string]string{},
		},
		{
			name: "skips empty files, dotfiles and subdirectories",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, APIKey, "k_real")
				writeFile(t, dir, StoreDSN, "   \n\t")
				writeFile(t, dir, ".gitkeep", "")
				writeFile(t, dir, ".old-key", "stale")
				require.NoError(t, os.Mkdir(filepath.Join(dir, "archive"), 0o755))
				return dir
			},
			want: map[string]string{
				APIKey: "k_real",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Load(tt.setup(t))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoad_UnreadableFileSkipped(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root can read files without permission bits")
	}
	dir := t.TempDir()
	writeFile(t, dir, APIKey, "k_123")
	bad := filepath.Join(dir, StoreDSN)
	require.NoError(t, os.WriteFile(bad, []byte("postgres://x"), 0o000))
	t.Cleanup(func() { os.Chmod(bad, 0o644) })

	got, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{APIKey: "k_123"}, got)
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}
