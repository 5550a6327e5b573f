// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/IlhamRichie/bps-ingest/pkg/types"
)

// ErrRunInProgress is returned by RunOnce when the target's identity is
// already being ingested.
var ErrRunInProgress = errors.New("run already in progress for identity")

// Runner executes one ingestion run. *Pipeline implements it.
type Runner interface {
	Run(ctx context.Context, target types.Target) (*Result, error)
}

// Scheduler runs targets on cron schedules, at most one run per identity at
// a time.
type Scheduler struct {
	cron    *cron.Cron
	runner  Runner
	guard   RunGuard
	logger  *slog.Logger
	mu      sync.Mutex
	entries map[string]cron.EntryID // identity key → cron entry
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewScheduler creates a scheduler over runner. A nil logger discards output.
func NewScheduler(runner Runner, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Scheduler{
		cron:    cron.New(),
		runner:  runner,
		logger:  logger,
		entries: make(map[string]cron.EntryID),
		ctx:     context.Background(),
		cancel:  func() {},
	}
}

// Add schedules target on spec, replacing any earlier schedule for the same
// identity. spec accepts five-field cron expressions and descriptors such as
// "@every 6h".
func (s *Scheduler) Add(spec string, target types.Target) error {
	target = target.WithDefaults()
	key := target.Identity().Key()

	s.mu.Lock()
	defer s.mu.Unlock()

	entryID, err := s.cron.AddFunc(spec, func() {
		s.mu.Lock()
		ctx := s.ctx
		s.mu.Unlock()
		if _, err := s.RunOnce(ctx, target); err != nil {
			if errors.Is(err, ErrRunInProgress) {
				s.logger.Info("scheduled run skipped", "identity", key, "reason", err)
				return
			}
			s.logger.Warn("scheduled run failed", "identity", key, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q for %s: %w", spec, key, err)
	}
	if prev, ok := s.entries[key]; ok {
		s.cron.Remove(prev)
	}
	s.entries[key] = entryID
	s.logger.Info("scheduled target", "identity", key, "schedule", spec)
	return nil
}

// Len returns the number of scheduled identities.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// RunOnce runs target now unless a run for its identity is in progress.
func (s *Scheduler) RunOnce(ctx context.Context, target types.Target) (*Result, error) {
	key := target.WithDefaults().Identity().Key()
	if !s.guard.TryLock(key) {
		return nil, fmt.Errorf("%w: %s", ErrRunInProgress, key)
	}
	defer s.guard.Unlock(key)
	return s.runner.Run(ctx, target)
}

// Start begins firing scheduled runs. Runs receive a context derived from
// ctx, so cancelling ctx cancels in-flight runs.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()
	s.cron.Start()
	s.logger.Info("scheduler started", "targets", s.Len())
}

// Stop stops firing new runs and waits for in-flight runs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	_ = s.guard.Wait(context.Background())
	s.mu.Lock()
	s.cancel()
	s.mu.Unlock()
	s.logger.Info("scheduler stopped")
}
