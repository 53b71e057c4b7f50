package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tradeguard/internal/domain"
)

const positionColumns = `
		id, COALESCE(symbol, ''), COALESCE(security_id::text, ''), quantity,
		entry_price, stop_loss, target, COALESCE(trade_type, ''),
		COALESCE(product_type, ''), order_status, exit_price, exit_time,
		realized_profit, closing_at, created_at`

// PositionRepositoryImpl implements domain.PositionRepository on PostgreSQL.
type PositionRepositoryImpl struct {
	db *pgxpool.Pool
}

// NewPositionRepository creates a new PositionRepository
func NewPositionRepository(db *pgxpool.Pool) *PositionRepositoryImpl {
	return &PositionRepositoryImpl{db: db}
}

// Acquire reserves one pooled connection for a pass.
func (r *PositionRepositoryImpl) Acquire(ctx context.Context) (domain.PositionSession, error) {
	conn, err := r.db.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire database connection: %w", err)
	}
	return &pgSession{conn: conn}, nil
}

type pgSession struct {
	conn *pgxpool.Conn
}

func (s *pgSession) Release() {
	s.conn.Release()
}

// ListEligible retrieves success/open positions created in [from, to)
func (s *pgSession) ListEligible(ctx context.Context, from, to time.Time) ([]*domain.Position, error) {
	query := `SELECT` + positionColumns + `
		FROM trades
		WHERE order_status = ANY($3)
		  AND created_at >= $1 AND created_at < $2
		ORDER BY id DESC
	`

	rows, err := s.conn.Query(ctx, query, from, to, eligibleStatuses())
	if err != nil {
		return nil, fmt.Errorf("failed to query eligible positions: %w", err)
	}
	return collectPositions(rows)
}

// ListClosing retrieves positions claimed for closing before claimedBefore
func (s *pgSession) ListClosing(ctx context.Context, claimedBefore time.Time) ([]*domain.Position, error) {
	query := `SELECT` + positionColumns + `
		FROM trades
		WHERE order_status = 'closing' AND closing_at < $1
		ORDER BY closing_at ASC
	`

	rows, err := s.conn.Query(ctx, query, claimedBefore)
	if err != nil {
		return nil, fmt.Errorf("failed to query closing positions: %w", err)
	}
	return collectPositions(rows)
}

// GetByID retrieves a position by ID
func (s *pgSession) GetByID(ctx context.Context, id int64) (*domain.Position, error) {
	query := `SELECT` + positionColumns + `
		FROM trades
		WHERE id = $1
	`

	p, err := scanPosition(s.conn.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %d", domain.ErrPositionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get position: %w", err)
	}
	return p, nil
}

// MarkClosing claims an eligible position before its closing order is sent
func (s *pgSession) MarkClosing(ctx context.Context, id int64, at time.Time) error {
	query := `
		UPDATE trades
		SET order_status = 'closing', closing_at = $2
		WHERE id = $1 AND order_status = ANY($3)
	`

	tag, err := s.conn.Exec(ctx, query, id, at, eligibleStatuses())
	if err != nil {
		return fmt.Errorf("failed to mark position closing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", domain.ErrNotClaimed, id)
	}
	return nil
}

// ReleaseClosing returns a claimed position to open
func (s *pgSession) ReleaseClosing(ctx context.Context, id int64) error {
	query := `
		UPDATE trades
		SET order_status = 'open', closing_at = NULL
		WHERE id = $1 AND order_status = 'closing'
	`

	tag, err := s.conn.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to release closing position: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", domain.ErrNotClaimed, id)
	}
	return nil
}

// Finalize writes status, exit price, exit time and profit in one statement
func (s *pgSession) Finalize(ctx context.Context, rec domain.CloseRecord) error {
	query := `
		UPDATE trades
		SET order_status = 'closed', exit_price = $2, exit_time = $3,
		    realized_profit = $4, closing_at = NULL
		WHERE id = $1 AND order_status <> 'closed'
	`

	tag, err := s.conn.Exec(ctx, query, rec.ID, rec.ExitPrice, rec.ExitTime, rec.RealizedProfit)
	if err != nil {
		return fmt.Errorf("failed to finalize position: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", domain.ErrAlreadyClosed, rec.ID)
	}
	return nil
}

// eligibleStatuses returns domain.EligibleStatuses as query parameters.
func eligibleStatuses() []string {
	out := make([]string, len(domain.EligibleStatuses))
	for i, st := range domain.EligibleStatuses {
		out[i] = string(st)
	}
	return out
}

func collectPositions(rows pgx.Rows) ([]*domain.Position, error) {
	defer rows.Close()

	var positions []*domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating positions: %w", err)
	}

	return positions, nil
}

func scanPosition(row pgx.Row) (*domain.Position, error) {
	p := &domain.Position{}
	var status string
	err := row.Scan(
		&p.ID,
		&p.Symbol,
		&p.SecurityID,
		&p.Quantity,
		&p.EntryPrice,
		&p.StopLoss,
		&p.Target,
		&p.TradeType,
		&p.ProductType,
		&status,
		&p.ExitPrice,
		&p.ExitTime,
		&p.RealizedProfit,
		&p.ClosingAt,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Status = domain.Status(status)
	return p, nil
}
