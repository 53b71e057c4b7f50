package infra

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tradeguard/internal/domain"
	"tradeguard/internal/utils"
)

type fakeEvaluator struct {
	calls atomic.Int32
	err   error
}

func (f *fakeEvaluator) EvaluateOnce(ctx context.Context) (*domain.PassSummary, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return &domain.PassSummary{RunID: uuid.New(), Loaded: 2, Closed: 1}, nil
}

func newTestScheduler(t *testing.T, eval Evaluator, now time.Time) *Scheduler {
	t.Helper()
	loc, err := utils.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	window, err := utils.NewTradingWindow("05:14:00", "15:30:00", loc)
	require.NoError(t, err)

	s := NewScheduler(eval, window, time.Hour, zap.NewNop())
	s.SetClock(func() time.Time { return now.In(loc) })
	return s
}

func ist(t *testing.T, day, hour, min int) time.Time {
	loc, err := utils.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	return time.Date(2026, time.October, day, hour, min, 0, 0, loc)
}

func TestScheduler_Tick_Gate(t *testing.T) {
	tests := []struct {
		name    string
		now     func(t *testing.T) time.Time
		wantRun bool
	}{
		{"weekday in hours", func(t *testing.T) time.Time { return ist(t, 14, 10, 0) }, true},
		{"weekday at end bound", func(t *testing.T) time.Time { return ist(t, 14, 15, 30) }, true},
		{"weekday after close", func(t *testing.T) time.Time { return ist(t, 14, 15, 31) }, false},
		{"weekday before open", func(t *testing.T) time.Time { return ist(t, 14, 5, 0) }, false},
		{"saturday in hours", func(t *testing.T) time.Time { return ist(t, 17, 10, 0) }, false},
		{"sunday in hours", func(t *testing.T) time.Time { return ist(t, 18, 10, 0) }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eval := &fakeEvaluator{}
			s := newTestScheduler(t, eval, tt.now(t))

			summary, err := s.Tick(context.Background())
			if tt.wantRun {
				require.NoError(t, err)
				require.NotNil(t, summary)
				assert.Equal(t, int32(1), eval.calls.Load())
				assert.Equal(t, summary, s.LastPass().Summary)
				return
			}
			assert.ErrorIs(t, err, ErrOutsideWindow)
			assert.Zero(t, eval.calls.Load())
			assert.Nil(t, s.LastPass().Summary)
		})
	}
}

func TestScheduler_Tick_RecordsFailure(t *testing.T) {
	boom := errors.New("database down")
	eval := &fakeEvaluator{err: boom}
	now := ist(t, 14, 10, 0)
	s := newTestScheduler(t, eval, now)

	_, err := s.Tick(context.Background())
	assert.ErrorIs(t, err, boom)

	last := s.LastPass()
	assert.ErrorIs(t, last.Err, boom)
	assert.True(t, last.RanAt.Equal(now))
}

func TestScheduler_Tick_LockHeldIsNotRecorded(t *testing.T) {
	eval := &fakeEvaluator{err: domain.ErrLockHeld}
	s := newTestScheduler(t, eval, ist(t, 14, 10, 0))

	_, err := s.Tick(context.Background())
	assert.ErrorIs(t, err, domain.ErrLockHeld)
	assert.True(t, s.LastPass().RanAt.IsZero())
}

func TestScheduler_StartRunsImmediately(t *testing.T) {
	eval := &fakeEvaluator{}
	s := newTestScheduler(t, eval, ist(t, 14, 10, 0))

	s.Start(context.Background())
	require.Eventually(t, func() bool { return eval.calls.Load() == 1 }, time.Second, 10*time.Millisecond)
	s.Stop()

	assert.Equal(t, int32(1), eval.calls.Load())
}

type blockingEvaluator struct {
	started chan struct{}
	release chan struct{}
	ctxErr  error
}

func (b *blockingEvaluator) EvaluateOnce(ctx context.Context) (*domain.PassSummary, error) {
	close(b.started)
	<-b.release
	b.ctxErr = ctx.Err()
	return &domain.PassSummary{RunID: uuid.New()}, nil
}

func TestScheduler_ShutdownLetsRunningPassFinish(t *testing.T) {
	eval := &blockingEvaluator{started: make(chan struct{}), release: make(chan struct{})}
	s := newTestScheduler(t, eval, ist(t, 14, 10, 0))

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	<-eval.started

	// signal arrives mid-pass
	cancel()
	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a pass was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(eval.release)
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return after the pass finished")
	}
	assert.NoError(t, eval.ctxErr)
	assert.False(t, s.LastPass().RanAt.IsZero())
}
