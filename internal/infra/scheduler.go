package infra

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"tradeguard/internal/domain"
	"tradeguard/internal/utils"
)

// ErrOutsideWindow is returned by Tick when the clock is outside the trading window.
var ErrOutsideWindow = errors.New("outside trading window")

// Evaluator runs one evaluation pass.
type Evaluator interface {
	EvaluateOnce(ctx context.Context) (*domain.PassSummary, error)
}

// Scheduler fires an evaluation pass every interval while the trading window
// is open. Passes never overlap.
type Scheduler struct {
	cron      *cron.Cron
	evaluator Evaluator
	window    utils.TradingWindow
	interval  time.Duration
	logger    *zap.Logger
	cronLog   cron.Logger
	now       func() time.Time

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu   sync.RWMutex
	last LastPass
}

// LastPass records the outcome of the most recent pass that ran.
type LastPass struct {
	Summary *domain.PassSummary
	Err     error
	RanAt   time.Time
}

// NewScheduler creates a new scheduler
func NewScheduler(evaluator Evaluator, window utils.TradingWindow, interval time.Duration, logger *zap.Logger) *Scheduler {
	cronLog := cron.PrintfLogger(zap.NewStdLog(logger.Named("cron")))
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(window.Location),
			cron.WithLogger(cronLog),
		),
		evaluator: evaluator,
		window:    window,
		interval:  interval,
		logger:    logger,
		cronLog:   cronLog,
		now:       time.Now,
	}
}

// SetClock replaces the wall clock used by the window gate.
func (s *Scheduler) SetClock(now func() time.Time) {
	s.now = now
}

// Start schedules the pass every interval and runs one immediately.
// Passes keep ctx's values but not its cancellation; a started pass always
// runs to completion and Stop waits for it.
func (s *Scheduler) Start(ctx context.Context) {
	s.baseCtx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))

	job := cron.NewChain(
		cron.Recover(s.cronLog),
		cron.SkipIfStillRunning(s.cronLog),
	).Then(cron.FuncJob(s.runJob))

	s.cron.Schedule(cron.Every(s.interval), job)
	s.cron.Start()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		job.Run()
	}()

	s.logger.Info("[OK] Scheduler started",
		zap.Duration("interval", s.interval),
		zap.String("window", s.window.String()),
	)
}

// Stop stops scheduling, waits for a running pass to finish, then releases
// the pass context.
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping scheduler...")
	<-s.cron.Stop().Done()
	s.wg.Wait()
	if s.cancel != nil {
		s.cancel()
	}
	s.logger.Info("[OK] Scheduler stopped")
}

func (s *Scheduler) runJob() {
	ctx := s.baseCtx
	if ctx == nil {
		ctx = context.Background()
	}

	summary, err := s.Tick(ctx)
	switch {
	case errors.Is(err, ErrOutsideWindow):
		s.logger.Info("[SKIP] Outside trading window", zap.String("window", s.window.String()))
	case errors.Is(err, domain.ErrLockHeld):
		s.logger.Info("[SKIP] Pass lock held elsewhere")
	case err != nil:
		s.logger.Error("Scheduled pass failed", zap.Error(err))
	default:
		s.logger.Info("[OK] Pass complete",
			zap.String("run_id", summary.RunID.String()),
			zap.Int("loaded", summary.Loaded),
			zap.Int("closed", summary.Closed),
			zap.Int("failed", summary.Failed),
			zap.Duration("took", summary.Duration),
		)
	}
}

// Tick runs one pass if the trading window is open. It is used by the cron
// job and by the manual trigger of the HTTP API.
func (s *Scheduler) Tick(ctx context.Context) (*domain.PassSummary, error) {
	now := s.now()
	if !s.window.Contains(now) {
		return nil, ErrOutsideWindow
	}

	summary, err := s.evaluator.EvaluateOnce(ctx)
	if errors.Is(err, domain.ErrLockHeld) {
		return nil, err
	}

	s.mu.Lock()
	s.last = LastPass{Summary: summary, Err: err, RanAt: now}
	s.mu.Unlock()

	return summary, err
}

// LastPass returns the outcome of the most recent pass; zero before the first.
func (s *Scheduler) LastPass() LastPass {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// Window returns the configured trading window.
func (s *Scheduler) Window() utils.TradingWindow {
	return s.window
}
