package http

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"tradeguard/internal/delivery/http/dto"
	"tradeguard/internal/domain"
	"tradeguard/internal/infra"
	"tradeguard/internal/middleware"
	"tradeguard/internal/utils"
)

// PositionMonitor exposes the trigger engine's read and repair operations.
type PositionMonitor interface {
	OpenPositions(ctx context.Context) ([]*domain.Position, error)
	StuckPositions(ctx context.Context) ([]*domain.Position, error)
	ReleaseClaim(ctx context.Context, id int64) error
}

// PassRunner runs and reports evaluation passes.
type PassRunner interface {
	Tick(ctx context.Context) (*domain.PassSummary, error)
	LastPass() infra.LastPass
	Window() utils.TradingWindow
}

// AdminHandler handles operator requests
type AdminHandler struct {
	monitor     PositionMonitor
	runner      PassRunner
	storeHealth func(ctx context.Context) error
	gatewayName string
	logger      *zap.Logger
	now         func() time.Time
}

// NewAdminHandler creates a new admin handler. storeHealth may be nil.
func NewAdminHandler(monitor PositionMonitor, runner PassRunner, storeHealth func(ctx context.Context) error, gatewayName string, logger *zap.Logger) *AdminHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminHandler{
		monitor:     monitor,
		runner:      runner,
		storeHealth: storeHealth,
		gatewayName: gatewayName,
		logger:      logger,
		now:         time.Now,
	}
}

// operator returns the authenticated username for audit logs.
func operator(c echo.Context) string {
	username, err := middleware.GetUsername(c)
	if err != nil {
		return "unknown"
	}
	return username
}

// GetSystemHealth returns store and scheduler status
// GET /api/admin/system/health
func (h *AdminHandler) GetSystemHealth(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	dbStatus := "online"
	if h.storeHealth != nil {
		if err := h.storeHealth(ctx); err != nil {
			dbStatus = "degraded"
		}
	}

	window := h.runner.Window()
	last := h.runner.LastPass()
	lastPass := ""
	if !last.RanAt.IsZero() {
		lastPass = last.RanAt.Format(time.RFC3339)
	}

	return SuccessResponse(c, map[string]interface{}{
		"status":         "healthy",
		"timestamp":      h.now().Format(time.RFC3339),
		"db_status":      dbStatus,
		"gateway":        h.gatewayName,
		"window":         window.String(),
		"window_open":    window.Contains(h.now()),
		"last_pass_at":   lastPass,
		"last_pass_fail": last.Err != nil,
	})
}

// GetOpenPositions lists the positions the next pass will evaluate
// GET /api/admin/positions/open
func (h *AdminHandler) GetOpenPositions(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	positions, err := h.monitor.OpenPositions(ctx)
	if err != nil {
		return InternalServerErrorResponse(c, "Failed to load positions", err)
	}
	return SuccessResponse(c, dto.ToPositionResponses(positions))
}

// GetStuckPositions lists positions left in closing
// GET /api/admin/positions/stuck
func (h *AdminHandler) GetStuckPositions(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	positions, err := h.monitor.StuckPositions(ctx)
	if err != nil {
		return InternalServerErrorResponse(c, "Failed to load positions", err)
	}
	return SuccessResponse(c, dto.ToPositionResponses(positions))
}

// ReleaseClaim returns a stuck position to open
// POST /api/admin/positions/:id/release
func (h *AdminHandler) ReleaseClaim(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return BadRequestResponse(c, "Invalid position id")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	h.logger.Info("Release requested", zap.String("operator", operator(c)), zap.Int64("trade_id", id))
	err = h.monitor.ReleaseClaim(ctx, id)
	switch {
	case errors.Is(err, domain.ErrPositionNotFound):
		return NotFoundResponse(c, "Position not found")
	case errors.Is(err, domain.ErrNotClaimed):
		return ConflictResponse(c, "Position is not in closing state")
	case err != nil:
		return InternalServerErrorResponse(c, "Failed to release position", err)
	}

	return SuccessMessageResponse(c, "Position released", map[string]interface{}{"id": id})
}

// GetLastPass returns the most recent pass summary
// GET /api/admin/passes/last
func (h *AdminHandler) GetLastPass(c echo.Context) error {
	last := h.runner.LastPass()
	if last.RanAt.IsZero() {
		return NotFoundResponse(c, "No pass has run yet")
	}

	resp := dto.PassResponse{RanAt: &last.RanAt, Summary: last.Summary}
	if last.Err != nil {
		resp.Error = last.Err.Error()
	}
	return SuccessResponse(c, resp)
}

// TriggerPass runs an evaluation pass now
// POST /api/admin/passes/run
func (h *AdminHandler) TriggerPass(c echo.Context) error {
	// The pass outlives the request.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request().Context()), 5*time.Minute)
	defer cancel()

	h.logger.Info("Manual pass requested", zap.String("operator", operator(c)))
	summary, err := h.runner.Tick(ctx)
	switch {
	case errors.Is(err, infra.ErrOutsideWindow):
		return ConflictResponse(c, "Outside trading window")
	case errors.Is(err, domain.ErrLockHeld):
		return ConflictResponse(c, "A pass is already running")
	case err != nil:
		return InternalServerErrorResponse(c, "Pass failed", err)
	}

	return SuccessMessageResponse(c, "Pass complete", summary)
}
