// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline drives one ingestion run through fetch, validate,
// normalize and store, and schedules runs over configured targets.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/IlhamRichie/bps-ingest/internal/fetch"
	"github.com/IlhamRichie/bps-ingest/internal/normalize"
	"github.com/IlhamRichie/bps-ingest/internal/retry"
	"github.com/IlhamRichie/bps-ingest/internal/store"
	"github.com/IlhamRichie/bps-ingest/internal/validate"
	"github.com/IlhamRichie/bps-ingest/pkg/types"
)

// State is a pipeline state.
type State int

const (
	Idle State = iota
	Fetching
	Validating
	Normalizing
	Storing
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Fetching:
		return "fetching"
	case Validating:
		return "validating"
	case Normalizing:
		return "normalizing"
	case Storing:
		return "storing"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrExhaustedRetries is the cause of a stage that failed every allowed
// attempt with a retryable error.
var ErrExhaustedRetries = retry.ErrExhausted

// StageError reports the stage a run failed in and why.
type StageError struct {
	Stage State
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Fetcher retrieves the raw payload for a URL within timeout.
type Fetcher interface {
	Fetch(ctx context.Context, url string, timeout time.Duration) (types.RawPayload, error)
}

// Result is the outcome of one run. It is returned for failed runs too.
type Result struct {
	RunID    string
	Identity types.Identity

	// State is Done or Failed once Run returns.
	State State

	// FailedStage and Err are set when State is Failed.
	FailedStage State
	Err         error

	FetchAttempts int
	StoreAttempts int

	StoreResult store.Result
	Diagnostics *types.Diagnostics
	Document    *types.IngestedDocument

	// Trace lists every state entered, a retried stage once per attempt.
	Trace []State
}

// Pipeline runs ingestions against one fetcher and one store.
type Pipeline struct {
	fetcher    Fetcher
	store      store.Store
	normalizer *normalize.Normalizer
	fetchCfg   types.HTTPConfig
	storeCfg   types.StoreConfig
	apiKey     string
	logger     *slog.Logger

	// Now stamps documents. Tests replace it.
	Now func() time.Time
}

// New returns a Pipeline configured from cfg. A nil logger discards output.
func New(cfg types.Config, f Fetcher, s store.Store, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Pipeline{
		fetcher:    f,
		store:      s,
		normalizer: normalize.New(cfg.Variables, cfg.AggregateLabel),
		fetchCfg:   cfg.Fetch,
		storeCfg:   cfg.Store,
		apiKey:     cfg.APIKey,
		logger:     logger,
		Now:        time.Now,
	}
}

// Run ingests target once. On failure it returns the Result together with a
// *StageError; the store is not written unless the run reaches Storing.
func (p *Pipeline) Run(ctx context.Context, target types.Target) (*Result, error) {
	target = target.WithDefaults()
	res := &Result{
		RunID:    uuid.NewString(),
		Identity: target.Identity(),
		State:    Idle,
		Trace:    []State{Idle},
	}
	log := p.logger.With(
		"run_id", res.RunID,
		"table_id", target.TableID,
		"year", target.Year,
	)

	rawURL := fetch.BuildURL(p.fetchCfg.BaseURL, target, p.apiKey)
	sourceURL := fetch.RedactURL(rawURL)
	log.Info("run started", "url", sourceURL)
	start := time.Now()

	// Fetching
	if err := p.enter(ctx, res, Fetching); err != nil {
		return p.fail(log, res, Fetching, err)
	}
	var raw types.RawPayload
	attempts, err := retry.Do(ctx,
		retry.Policy{MaxAttempts: p.fetchCfg.MaxAttempts, Delay: p.fetchCfg.RetryDelay},
		fetchRetryable,
		func(ctx context.Context, attempt int) error {
			if attempt > 1 {
				res.Trace = append(res.Trace, Fetching)
			}
			payload, err := p.fetcher.Fetch(ctx, rawURL, p.fetchCfg.Timeout)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Warn("fetch attempt failed", "stage", Fetching.String(), "attempt", attempt, "error", err)
				return err
			}
			raw = payload
			return nil
		})
	res.FetchAttempts = attempts
	if err != nil {
		return p.fail(log, res, Fetching, err)
	}

	// Validating
	if err := p.enter(ctx, res, Validating); err != nil {
		return p.fail(log, res, Validating, err)
	}
	validated, err := validate.Payload(raw)
	if err != nil {
		return p.fail(log, res, Validating, err)
	}

	// Normalizing
	if err := p.enter(ctx, res, Normalizing); err != nil {
		return p.fail(log, res, Normalizing, err)
	}
	doc, diag := p.normalizer.Normalize(validated, normalize.Run{
		Identity:  res.Identity,
		SourceURL: sourceURL,
		ScrapedAt: p.Now(),
	})
	res.Document = doc
	res.Diagnostics = diag

	// Storing
	if err := p.enter(ctx, res, Storing); err != nil {
		return p.fail(log, res, Storing, err)
	}
	attempts, err = retry.Do(ctx,
		retry.Policy{MaxAttempts: p.storeCfg.MaxAttempts, Delay: p.storeCfg.RetryDelay},
		store.IsConnectionLost,
		func(ctx context.Context, attempt int) error {
			if attempt > 1 {
				res.Trace = append(res.Trace, Storing)
			}
			sr, err := p.upsert(ctx, doc)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Warn("store attempt failed", "stage", Storing.String(), "attempt", attempt, "error", err)
				return err
			}
			res.StoreResult = sr
			return nil
		})
	res.StoreAttempts = attempts
	if err != nil {
		return p.fail(log, res, Storing, err)
	}

	res.State = Done
	res.Trace = append(res.Trace, Done)
	log.Info("run done",
		"result", res.StoreResult.String(),
		"records", len(doc.Records),
		"fetch_attempts", res.FetchAttempts,
		"store_attempts", res.StoreAttempts,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	if !diag.Empty() {
		log.Warn("values degraded to 0; upstream variable ids may have drifted",
			"degraded_fraction", diag.DegradedFraction(),
			slog.Group("missing_keys", missAttrs(diag)...),
			"unmapped_keys", diag.UnmappedKeys,
			"undefined_keys", diag.UndefinedKeys,
		)
	}
	return res, nil
}

// upsert bounds one store call by the configured timeout.
func (p *Pipeline) upsert(ctx context.Context, doc *types.IngestedDocument) (store.Result, error) {
	if p.storeCfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.storeCfg.Timeout)
		defer cancel()
	}
	return p.store.Upsert(ctx, doc.Identity, doc)
}

// enter moves res into next after checking for cancellation.
func (p *Pipeline) enter(ctx context.Context, res *Result, next State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	res.State = next
	res.Trace = append(res.Trace, next)
	return nil
}

func (p *Pipeline) fail(log *slog.Logger, res *Result, stage State, err error) (*Result, error) {
	serr := &StageError{Stage: stage, Err: err}
	res.State = Failed
	res.FailedStage = stage
	res.Err = serr
	res.Trace = append(res.Trace, Failed)
	log.Error("run failed", "stage", stage.String(), "error", err)
	return res, serr
}

func fetchRetryable(err error) bool {
	var fe *fetch.Error
	return errors.As(err, &fe) && fe.Retryable()
}

func missAttrs(d *types.Diagnostics) []any {
	ids := d.MissedIDs()
	attrs := make([]any, 0, len(ids))
	for _, id := range ids {
		attrs = append(attrs, slog.Int(id, d.MissingKeys[id].MissCount))
	}
	return attrs
}
