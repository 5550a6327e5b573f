// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IlhamRichie/bps-ingest/pkg/types"
)

// blockingRunner blocks each run until release is closed.
type blockingRunner struct {
	started chan types.Target
	release chan struct{}
	runs    atomic.Int32
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{started: make(chan types.Target, 4), release: make(chan struct{})}
}

func (r *blockingRunner) Run(ctx context.Context, target types.Target) (*Result, error) {
	r.runs.Add(1)
	r.started <- target
	select {
	case <-r.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &Result{Identity: target.Identity(), State: Done}, nil
}

func TestRunGuard(t *testing.T) {
	var g RunGuard

	require.True(t, g.TryLock("t/2024"))
	assert.False(t, g.TryLock("t/2024"))
	assert.True(t, g.TryLock("t/2023"))
	assert.True(t, g.Running("t/2024"))

	g.Unlock("t/2024")
	assert.False(t, g.Running("t/2024"))
	assert.True(t, g.TryLock("t/2024"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, g.Wait(ctx), context.DeadlineExceeded)

	g.Unlock("t/2024")
	g.Unlock("t/2023")
	g.Unlock("never-locked")
	assert.NoError(t, g.Wait(context.Background()))
}

func TestScheduler_RunOnceRejectsOverlap(t *testing.T) {
	r := newBlockingRunner()
	s := NewScheduler(r, nil)

	done := make(chan error, 1)
	go func() {
		_, err := s.RunOnce(context.Background(), testTarget)
		done <- err
	}()
	<-r.started

	_, err := s.RunOnce(context.Background(), testTarget)
	assert.ErrorIs(t, err, ErrRunInProgress)

	other := types.Target{TableID: testTarget.TableID, Year: "2023"}
	go s.RunOnce(context.Background(), other)
	<-r.started

	close(r.release)
	require.NoError(t, <-done)

	res, err := s.RunOnce(context.Background(), testTarget)
	require.NoError(t, err)
	assert.Equal(t, Done, res.State)
	assert.Equal(t, int32(3), r.runs.Load())
}

func TestScheduler_Add(t *testing.T) {
	s := NewScheduler(newBlockingRunner(), nil)

	require.NoError(t, s.Add("@every 6h", testTarget))
	require.NoError(t, s.Add("0 3 * * *", testTarget))
	assert.Equal(t, 1, s.Len())

	require.NoError(t, s.Add("@daily", types.Target{TableID: "other", Year: "2024"}))
	assert.Equal(t, 2, s.Len())

	err := s.Add("every so often", testTarget)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid schedule")
	assert.Equal(t, 2, s.Len())
}

func TestScheduler_StartStop(t *testing.T) {
	r := newBlockingRunner()
	close(r.release)
	s := NewScheduler(r, nil)
	require.NoError(t, s.Add("@every 1s", testTarget))

	s.Start(context.Background())
	select {
	case got := <-r.started:
		assert.Equal(t, testTarget.Identity(), got.Identity())
	case <-time.After(5 * time.Second):
		t.Fatal("scheduled run did not fire")
	}
	s.Stop()
	assert.GreaterOrEqual(t, r.runs.Load(), int32(1))
}
