// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the bps-ingest CLI.
package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/IlhamRichie/bps-ingest/internal/secrets"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds credentials loaded from .secrets/ at startup.
var loadedSecrets map[string]string

// secretDefault returns fallback if it is set, or the secret value for key.
func secretDefault(key, fallback string) string {
	if fallback != "" {
		return fallback
	}
	if v, ok := loadedSecrets[key]; ok {
		return v
	}
	return ""
}

// rootCmd is the base command for the bps-ingest CLI.
var rootCmd = &cobra.Command{
	Use:   "bps-ingest",
	Short: "Ingest BPS simdasi statistics tables into a document store",
	Long: `bps-ingest fetches statistics tables from the BPS web API, validates the
payload shape, normalizes Indonesian-formatted numbers, and upserts one
document per (table id, year) into MongoDB, PostgreSQL or SQLite.

Use run for a one-shot ingestion, schedule for periodic runs, show to inspect
the stored document, and check to test the normalizer on a saved payload.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := secrets.Load(secrets.DefaultDir)
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Fprintf(os.Stderr, "Loaded secrets: %v\n", keys)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file (default: ./bps-ingest.yaml or ~/.config/bps-ingest/bps-ingest.yaml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
