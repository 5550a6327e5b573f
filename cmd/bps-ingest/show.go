// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/IlhamRichie/bps-ingest/internal/store"
	"github.com/IlhamRichie/bps-ingest/pkg/types"
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the stored document for a target",
	Long: `Show reads the live document for the target's (table id, year) from the
store and prints it as YAML or JSON, followed by the share of values that
degraded to 0 during normalization. Consumers should treat a non-zero share
as upstream variable-id drift.`,
	RunE: runShow,
}

func init() {
	addTargetFlags(showCmd)
	showCmd.Flags().String("format", "yaml", "output format: yaml or json")
	rootCmd.AddCommand(showCmd)
}

func runShow(cmd *cobra.Command, args []string) error {
	cfg, err := commandConfig(cmd)
	if err != nil {
		return err
	}
	format, _ := cmd.Flags().GetString("format")
	if format != "yaml" && format != "json" {
		return fmt.Errorf("unknown --format %q (want yaml or json)", format)
	}
	target := cfg.AllTargets()[0]
	if target.TableID == "" || target.Year == "" {
		return errors.New("table id and year are required (--table-id, --year or target.* config)")
	}

	ctx := cmd.Context()
	st, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer st.Close(context.Background())

	doc, err := st.Get(ctx, target.Identity())
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("no document stored for %s", target.Identity().Key())
	}
	if err != nil {
		return err
	}
	if err := writeDocument(cmd.OutOrStdout(), doc, format); err != nil {
		return err
	}
	d := doc.Diagnostics
	fmt.Fprintf(cmd.ErrOrStderr(), "Degraded values: %d of %d (%.1f%%), schema version %s, scraped %s\n",
		d.Misses(), valueCount(d), 100*d.DegradedFraction(), doc.SchemaVersion, doc.ScrapedAtUTC.Format("2006-01-02 15:04:05Z07:00"))
	return nil
}

func writeDocument(w io.Writer, v any, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	default:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
}

func valueCount(d *types.Diagnostics) int {
	if d == nil {
		return 0
	}
	return d.Values
}
