// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/IlhamRichie/bps-ingest/internal/normalize"
	"github.com/IlhamRichie/bps-ingest/internal/validate"
	"github.com/IlhamRichie/bps-ingest/pkg/types"
)

var checkCmd = &cobra.Command{
	Use:   "check <payload.json>",
	Short: "Validate and normalize a saved API payload offline",
	Long: `Check runs the validator and normalizer on a payload saved from the API
(use "-" for stdin) with the configured variables and aggregate label, and
prints the diagnostics report as YAML. Nothing is fetched or stored.

Use it to confirm configured variable ids against a fresh payload before a
scheduled run degrades values to 0. Exits non-zero on a validation failure.`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func init() {
	addTargetFlags(checkCmd)
	checkCmd.Flags().Bool("document", false, "print the full normalized document instead of the diagnostics")
	checkCmd.Flags().String("format", "yaml", "output format: yaml or json")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := commandConfig(cmd)
	if err != nil {
		return err
	}
	format, _ := cmd.Flags().GetString("format")
	if format != "yaml" && format != "json" {
		return fmt.Errorf("unknown --format %q (want yaml or json)", format)
	}
	showDoc, _ := cmd.Flags().GetBool("document")

	data, err := readPayload(args[0], cmd.InOrStdin())
	if err != nil {
		return err
	}
	doc, diag, err := checkPayload(data, cfg, time.Now())
	if err != nil {
		return err
	}
	if showDoc {
		return writeDocument(cmd.OutOrStdout(), doc, format)
	}
	return writeDocument(cmd.OutOrStdout(), diag, format)
}

func readPayload(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading payload: %w", err)
	}
	return data, nil
}

// checkPayload decodes, validates and normalizes a saved payload for the
// first configured target.
func checkPayload(data []byte, cfg types.Config, now time.Time) (*types.IngestedDocument, *types.Diagnostics, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, fmt.Errorf("payload is not JSON: %w", err)
	}
	v, err := validate.Payload(raw)
	if err != nil {
		return nil, nil, err
	}
	target := cfg.AllTargets()[0]
	doc, diag := normalize.New(cfg.Variables, cfg.AggregateLabel).Normalize(v, normalize.Run{
		Identity:  target.Identity(),
		ScrapedAt: now,
	})
	return doc, diag, nil
}
