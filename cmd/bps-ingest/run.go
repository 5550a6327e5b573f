// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/IlhamRichie/bps-ingest/internal/fetch"
	"github.com/IlhamRichie/bps-ingest/internal/pipeline"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Ingest the configured targets once",
	Long: `Run fetches, validates, normalizes and stores each configured target once,
printing a summary per target. Fetch timeouts, transport errors, 429 and 5xx
responses are retried; other failures stop the run for that target and leave
the stored document untouched.

Exits non-zero if any target fails.`,
	RunE: runRun,
}

func init() {
	addTargetFlags(runCmd)
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := commandConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration:\n%w", err)
	}
	logger, err := newLogger(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer st.Close(context.Background())

	p := pipeline.New(cfg, fetch.New(cfg.Fetch), st, logger)
	targets := cfg.AllTargets()
	failed := 0
	for _, t := range targets {
		res, err := p.Run(ctx, t)
		printSummary(cmd.OutOrStdout(), res)
		if err != nil {
			failed++
		}
		if ctx.Err() != nil {
			break
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d run(s) failed", failed, len(targets))
	}
	return nil
}

// printSummary writes a human-readable run report to w.
func printSummary(w io.Writer, res *pipeline.Result) {
	fmt.Fprintf(w, "\n%s (run %s)\n", res.Identity.Key(), res.RunID)
	fmt.Fprintf(w, "  State:        %s\n", res.State)
	if res.State == pipeline.Failed {
		fmt.Fprintf(w, "  Failed in:    %s\n", res.FailedStage)
		if res.Err != nil {
			var cause error = res.Err
			if se, ok := res.Err.(*pipeline.StageError); ok {
				cause = se.Err
			}
			fmt.Fprintf(w, "  Cause:        %v\n", cause)
		}
	} else {
		fmt.Fprintf(w, "  Store:        %s\n", res.StoreResult)
	}
	fmt.Fprintf(w, "  Attempts:     fetch %d, store %d\n", res.FetchAttempts, res.StoreAttempts)
	if res.Document != nil {
		fmt.Fprintf(w, "  Records:      %d\n", len(res.Document.Records))
	}
	if d := res.Diagnostics; d != nil {
		fmt.Fprintf(w, "  Aggregates:   %d skipped\n", d.SkippedAggregates)
		if d.Empty() {
			fmt.Fprintf(w, "  Diagnostics:  clean\n")
		} else {
			misses := make([]string, 0, len(d.MissingKeys))
			for _, id := range d.MissedIDs() {
				misses = append(misses, fmt.Sprintf("%s=%d", id, d.MissingKeys[id].MissCount))
			}
			fmt.Fprintf(w, "  Diagnostics:  %d of %d value(s) degraded to 0 (%.1f%%): %s\n",
				d.Misses(), d.Values, 100*d.DegradedFraction(), strings.Join(misses, ", "))
		}
		if len(d.UnmappedKeys) > 0 {
			fmt.Fprintf(w, "  Unmapped ids: %s\n", strings.Join(d.UnmappedKeys, ", "))
		}
		if len(d.UndefinedKeys) > 0 {
			fmt.Fprintf(w, "  Undefined ids: %s\n", strings.Join(d.UndefinedKeys, ", "))
		}
	}
}
