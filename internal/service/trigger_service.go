package service

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tradeguard/internal/domain"
	"tradeguard/internal/utils"
)

// PassLockKey is the lock key shared by every monitor replica.
const PassLockKey = "tradeguard:pass"

// TriggerConfig holds the trigger engine settings.
type TriggerConfig struct {
	ExchangeSegment   string
	LookbackDays      int
	Location          *time.Location
	ClosingGuard      bool
	StuckClosingAfter time.Duration
	LockTTL           time.Duration
}

// TriggerService evaluates open positions against live prices and closes the
// ones whose stop-loss or target has been reached.
type TriggerService struct {
	positions domain.PositionRepository
	prices    domain.PriceOracle
	gateway   domain.ExecutionGateway
	notifier  domain.NotificationService
	locker    domain.PassLocker
	cfg       TriggerConfig
	logger    *zap.Logger
	now       func() time.Time
}

// NewTriggerService creates a new TriggerService. notifier and locker may be nil.
func NewTriggerService(
	positions domain.PositionRepository,
	prices domain.PriceOracle,
	gateway domain.ExecutionGateway,
	notifier domain.NotificationService,
	locker domain.PassLocker,
	cfg TriggerConfig,
	logger *zap.Logger,
) *TriggerService {
	if cfg.ExchangeSegment == "" {
		cfg.ExchangeSegment = domain.ExchangeSegmentNSEFNO
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &TriggerService{
		positions: positions,
		prices:    prices,
		gateway:   gateway,
		notifier:  notifier,
		locker:    locker,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// SetClock replaces the clock used for the lookback window and timestamps.
func (s *TriggerService) SetClock(now func() time.Time) {
	s.now = now
}

// EvaluateOnce runs one evaluation pass over every eligible position.
// It returns an error only when the pass as a whole could not run; failures
// on individual positions are logged and counted in the summary. Once the
// positions are loaded the pass visits all of them; order submission and
// finalization never observe ctx cancellation.
func (s *TriggerService) EvaluateOnce(ctx context.Context) (summary *domain.PassSummary, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Pass panicked",
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			summary = nil
			err = fmt.Errorf("pass panicked: %v", r)
		}
	}()

	if s.locker != nil {
		unlock, err := s.locker.Acquire(ctx, PassLockKey, s.cfg.LockTTL)
		if err != nil {
			return nil, err
		}
		defer unlock()
	}

	start := s.now()
	summary = &domain.PassSummary{RunID: uuid.New(), StartedAt: start}
	logger := s.logger.With(zap.String("run_id", summary.RunID.String()))

	session, err := s.positions.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open store session: %w", err)
	}
	defer session.Release()

	summary.WindowFrom, summary.WindowTo = utils.LookbackRange(start, s.cfg.LookbackDays, s.cfg.Location)
	positions, err := session.ListEligible(ctx, summary.WindowFrom, summary.WindowTo)
	if err != nil {
		return nil, fmt.Errorf("failed to load positions: %w", err)
	}
	summary.Loaded = len(positions)

	if len(positions) == 0 {
		logger.Info("No open trades found in window",
			zap.Time("from", summary.WindowFrom),
			zap.Time("to", summary.WindowTo),
		)
	} else {
		logger.Info("Evaluating open trades", zap.Int("count", len(positions)))
	}

	for _, p := range positions {
		s.evaluatePosition(ctx, logger, session, p, summary)
	}

	if s.cfg.ClosingGuard && s.cfg.StuckClosingAfter > 0 {
		s.reportStuck(ctx, logger, session, summary)
	}

	summary.Duration = s.now().Sub(start)
	return summary, nil
}

func (s *TriggerService) evaluatePosition(ctx context.Context, logger *zap.Logger, session domain.PositionSession, p *domain.Position, summary *domain.PassSummary) {
	logger = logger.With(
		zap.Int64("trade_id", p.ID),
		zap.String("symbol", p.Symbol),
		zap.String("security_id", p.SecurityID),
	)
	logger.Info("Processing trade",
		zap.Float64p("quantity", p.Quantity),
		zap.Float64p("stop_loss", p.StopLoss),
		zap.Float64p("target", p.Target),
		zap.String("trade_type", p.TradeType),
	)

	trade, err := p.Normalize()
	if err != nil {
		summary.Invalid++
		logger.Error("[SKIP] Invalid trade", zap.Error(err))
		return
	}

	price, err := s.prices.GetPrice(ctx, p.SecurityID)
	if err != nil {
		summary.Unpriced++
		logger.Warn("[SKIP] No price this tick", zap.Error(err))
		return
	}

	trigger := trade.Evaluate(price)
	if trigger == domain.TriggerNone {
		summary.Held++
		logger.Info("Holding", zap.Float64("price", price))
		return
	}

	summary.Triggered++
	logger.Info("[CLOSE] Trigger hit",
		zap.String("trigger", trigger.String()),
		zap.Float64("price", price),
		zap.String("direction", trade.Direction.String()),
	)

	if s.closeTrade(ctx, logger, session, trade, trigger, price) {
		summary.Closed++
	} else {
		summary.Failed++
	}
}

// closeTrade claims, submits and finalizes one triggered trade. It reports
// whether the trade ended up closed.
func (s *TriggerService) closeTrade(ctx context.Context, logger *zap.Logger, session domain.PositionSession, trade *domain.Trade, trigger domain.Trigger, price float64) bool {
	id := trade.Position.ID

	if s.cfg.ClosingGuard {
		if err := session.MarkClosing(ctx, id, s.now()); err != nil {
			if errors.Is(err, domain.ErrNotClaimed) {
				logger.Warn("[SKIP] Trade already claimed or closed")
			} else {
				logger.Error("Failed to claim trade", zap.Error(err))
			}
			return false
		}
	}

	order := trade.ClosingOrder(s.cfg.ExchangeSegment)
	order.CorrelationID = correlationID(id)

	// A submission that has started is never cut short by the caller; the
	// gateway's own timeout bounds it.
	submitCtx := context.WithoutCancel(ctx)
	ack, err := s.gateway.PlaceOrder(submitCtx, order)
	if err != nil {
		logger.Error("Closing order failed",
			zap.String("gateway", s.gateway.Name()),
			zap.String("side", string(order.Side)),
			zap.Int64("quantity", order.Quantity),
			zap.String("correlation_id", order.CorrelationID),
			zap.Error(err),
		)
		if !s.cfg.ClosingGuard {
			return false
		}
		if !errors.Is(err, domain.ErrOrderRejected) {
			// The broker may have the order; leave the claim for reconciliation.
			logger.Error("[STUCK] Order outcome unknown; trade left in closing")
			return false
		}
		if err := session.ReleaseClosing(submitCtx, id); err != nil {
			logger.Error("Failed to release claim", zap.Error(err))
		}
		return false
	}

	logger.Info("[OK] Closing order placed",
		zap.String("gateway", s.gateway.Name()),
		zap.String("order_id", ack.OrderID),
		zap.String("order_status", ack.Status),
		zap.String("side", string(order.Side)),
		zap.Int64("quantity", order.Quantity),
	)

	rec, err := s.closePosition(submitCtx, logger, session, trade, price)
	if err != nil {
		logger.Error("Order placed but trade not finalized; reconcile manually",
			zap.String("order_id", ack.OrderID),
			zap.Error(err),
		)
		return false
	}

	logger.Info("[OK] Trade closed",
		zap.Float64("exit_price", rec.ExitPrice),
		zap.Float64p("realized_profit", rec.RealizedProfit),
	)

	if s.notifier != nil {
		event := domain.ClosedEvent{
			TradeID:        id,
			Symbol:         trade.Position.Symbol,
			SecurityID:     trade.Position.SecurityID,
			Direction:      trade.Direction,
			Trigger:        trigger,
			Quantity:       trade.Quantity,
			EntryPrice:     trade.Position.EntryPrice,
			ExitPrice:      rec.ExitPrice,
			RealizedProfit: rec.RealizedProfit,
			OrderID:        ack.OrderID,
			ClosedAt:       rec.ExitTime,
		}
		if err := s.notifier.SendClosed(submitCtx, event); err != nil {
			logger.Warn("Failed to send close notification", zap.Error(err))
		}
	}
	return true
}

// closePosition computes realized profit and writes the close in a single
// update. A profit that cannot be computed is stored as NULL.
func (s *TriggerService) closePosition(ctx context.Context, logger *zap.Logger, session domain.PositionSession, trade *domain.Trade, exitPrice float64) (domain.CloseRecord, error) {
	p := trade.Position
	rec := domain.CloseRecord{
		ID:        p.ID,
		ExitPrice: exitPrice,
		ExitTime:  s.now(),
	}

	profit, err := domain.RealizedProfit(p.EntryPrice, &exitPrice, p.Quantity, p.TradeType)
	if err != nil {
		logger.Error("Realized profit unavailable", zap.Error(err))
	} else {
		rec.RealizedProfit = &profit
	}

	if err := session.Finalize(ctx, rec); err != nil {
		return rec, err
	}
	return rec, nil
}

func (s *TriggerService) reportStuck(ctx context.Context, logger *zap.Logger, session domain.PositionSession, summary *domain.PassSummary) {
	cutoff := s.now().Add(-s.cfg.StuckClosingAfter)
	stuck, err := session.ListClosing(ctx, cutoff)
	if err != nil {
		logger.Error("Failed to list closing trades", zap.Error(err))
		return
	}

	summary.StuckClosing = len(stuck)
	for _, p := range stuck {
		logger.Error("[STUCK] Trade left in closing; check the broker order book",
			zap.Int64("trade_id", p.ID),
			zap.String("symbol", p.Symbol),
			zap.String("security_id", p.SecurityID),
			zap.Timep("closing_at", p.ClosingAt),
		)
	}
}

// OpenPositions returns the positions the next pass would evaluate.
func (s *TriggerService) OpenPositions(ctx context.Context) ([]*domain.Position, error) {
	session, err := s.positions.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open store session: %w", err)
	}
	defer session.Release()

	from, to := utils.LookbackRange(s.now(), s.cfg.LookbackDays, s.cfg.Location)
	return session.ListEligible(ctx, from, to)
}

// StuckPositions returns positions claimed for closing longer than the
// configured threshold.
func (s *TriggerService) StuckPositions(ctx context.Context) ([]*domain.Position, error) {
	session, err := s.positions.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open store session: %w", err)
	}
	defer session.Release()

	return session.ListClosing(ctx, s.now().Add(-s.cfg.StuckClosingAfter))
}

// ReleaseClaim moves a position stuck in closing back to open, after an
// operator has confirmed no closing order reached the broker.
func (s *TriggerService) ReleaseClaim(ctx context.Context, id int64) error {
	session, err := s.positions.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to open store session: %w", err)
	}
	defer session.Release()

	if err := session.ReleaseClosing(ctx, id); err != nil {
		if errors.Is(err, domain.ErrNotClaimed) {
			if _, getErr := session.GetByID(ctx, id); errors.Is(getErr, domain.ErrPositionNotFound) {
				return getErr
			}
		}
		return err
	}

	s.logger.Info("[OK] Claim released by operator", zap.Int64("trade_id", id))
	return nil
}

func correlationID(tradeID int64) string {
	return fmt.Sprintf("tg%d-%s", tradeID, uuid.New().String()[:8])
}
