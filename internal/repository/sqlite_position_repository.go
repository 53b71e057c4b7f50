package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure-Go driver, registers "sqlite"

	"tradeguard/internal/domain"
)

// sqliteTimeLayout is how timestamps are stored; always UTC.
const sqliteTimeLayout = "2006-01-02 15:04:05"

var _ domain.PositionRepository = (*SQLitePositionRepository)(nil)

// SQLitePositionRepository implements domain.PositionRepository on a local
// SQLite file. It backs single-host deployments and the store tests.
type SQLitePositionRepository struct {
	db *sql.DB
}

// NewSQLitePositionRepository opens (or creates) the database at path and
// makes sure the trades table exists.
func NewSQLitePositionRepository(path string) (*SQLitePositionRepository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	r := &SQLitePositionRepository{db: db}
	if err := r.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

func (r *SQLitePositionRepository) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS trades (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol TEXT NOT NULL DEFAULT '',
			security_id TEXT NOT NULL DEFAULT '',
			quantity REAL,
			entry_price REAL,
			stop_loss REAL,
			target REAL,
			trade_type TEXT NOT NULL DEFAULT '',
			product_type TEXT NOT NULL DEFAULT '',
			order_status TEXT NOT NULL DEFAULT 'open',
			exit_price REAL,
			exit_time TEXT,
			realized_profit REAL,
			closing_at TEXT,
			created_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_trades_status_created ON trades(order_status, created_at);`,
	}

	for _, q := range queries {
		if _, err := r.db.Exec(q); err != nil {
			return fmt.Errorf("failed to exec query %s: %w", q, err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (r *SQLitePositionRepository) Close() error {
	return r.db.Close()
}

// Ping checks the database is reachable.
func (r *SQLitePositionRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Insert stores a new position and returns its id. CreatedAt defaults to now.
func (r *SQLitePositionRepository) Insert(ctx context.Context, p *domain.Position) (int64, error) {
	created := p.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	status := p.Status
	if status == "" {
		status = domain.StatusOpen
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO trades (symbol, security_id, quantity, entry_price, stop_loss, target,
			trade_type, product_type, order_status, exit_price, exit_time, realized_profit, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Symbol, p.SecurityID, p.Quantity, p.EntryPrice, p.StopLoss, p.Target,
		p.TradeType, p.ProductType, string(status), p.ExitPrice, formatTimePtr(p.ExitTime),
		p.RealizedProfit, formatTime(created),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert position: %w", err)
	}
	return res.LastInsertId()
}

// Acquire pins one connection for the pass.
func (r *SQLitePositionRepository) Acquire(ctx context.Context) (domain.PositionSession, error) {
	conn, err := r.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire database connection: %w", err)
	}
	return &sqliteSession{conn: conn}, nil
}

type sqliteSession struct {
	conn *sql.Conn
}

func (s *sqliteSession) Release() {
	_ = s.conn.Close()
}

// eligiblePlaceholders is "(?, ?)" sized to domain.EligibleStatuses.
var eligiblePlaceholders = "(" + strings.TrimSuffix(strings.Repeat("?, ", len(domain.EligibleStatuses)), ", ") + ")"

func eligibleArgs() []any {
	args := make([]any, 0, len(domain.EligibleStatuses))
	for _, st := range domain.EligibleStatuses {
		args = append(args, string(st))
	}
	return args
}

const sqlitePositionColumns = `id, symbol, security_id, quantity, entry_price, stop_loss, target,
	trade_type, product_type, order_status, exit_price, exit_time, realized_profit,
	closing_at, created_at`

func (s *sqliteSession) ListEligible(ctx context.Context, from, to time.Time) ([]*domain.Position, error) {
	args := append(eligibleArgs(), formatTime(from), formatTime(to))
	rows, err := s.conn.QueryContext(ctx, `SELECT `+sqlitePositionColumns+`
		FROM trades
		WHERE order_status IN `+eligiblePlaceholders+` AND created_at >= ? AND created_at < ?
		ORDER BY id DESC`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query eligible positions: %w", err)
	}
	return collectSQLitePositions(rows)
}

func (s *sqliteSession) ListClosing(ctx context.Context, claimedBefore time.Time) ([]*domain.Position, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT `+sqlitePositionColumns+`
		FROM trades
		WHERE order_status = 'closing' AND closing_at < ?
		ORDER BY closing_at ASC`,
		formatTime(claimedBefore),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query closing positions: %w", err)
	}
	return collectSQLitePositions(rows)
}

func (s *sqliteSession) GetByID(ctx context.Context, id int64) (*domain.Position, error) {
	row := s.conn.QueryRowContext(ctx, `SELECT `+sqlitePositionColumns+` FROM trades WHERE id = ?`, id)
	p, err := scanSQLitePosition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %d", domain.ErrPositionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get position: %w", err)
	}
	return p, nil
}

func (s *sqliteSession) MarkClosing(ctx context.Context, id int64, at time.Time) error {
	args := append([]any{formatTime(at), id}, eligibleArgs()...)
	res, err := s.conn.ExecContext(ctx, `
		UPDATE trades SET order_status = 'closing', closing_at = ?
		WHERE id = ? AND order_status IN `+eligiblePlaceholders,
		args...,
	)
	if err != nil {
		return fmt.Errorf("failed to mark position closing: %w", err)
	}
	return expectOneRow(res, domain.ErrNotClaimed, id)
}

func (s *sqliteSession) ReleaseClosing(ctx context.Context, id int64) error {
	res, err := s.conn.ExecContext(ctx, `
		UPDATE trades SET order_status = 'open', closing_at = NULL
		WHERE id = ? AND order_status = 'closing'`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to release closing position: %w", err)
	}
	return expectOneRow(res, domain.ErrNotClaimed, id)
}

func (s *sqliteSession) Finalize(ctx context.Context, rec domain.CloseRecord) error {
	res, err := s.conn.ExecContext(ctx, `
		UPDATE trades
		SET order_status = 'closed', exit_price = ?, exit_time = ?, realized_profit = ?, closing_at = NULL
		WHERE id = ? AND order_status <> 'closed'`,
		rec.ExitPrice, formatTime(rec.ExitTime), rec.RealizedProfit, rec.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to finalize position: %w", err)
	}
	return expectOneRow(res, domain.ErrAlreadyClosed, rec.ID)
}

func expectOneRow(res sql.Result, sentinel error, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: id %d", sentinel, id)
	}
	return nil
}

func collectSQLitePositions(rows *sql.Rows) ([]*domain.Position, error) {
	defer rows.Close()

	var positions []*domain.Position
	for rows.Next() {
		p, err := scanSQLitePosition(rows)
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLitePosition(row rowScanner) (*domain.Position, error) {
	p := &domain.Position{}
	var (
		status              string
		exitTime, closingAt sql.NullString
		createdAt           string
	)
	err := row.Scan(
		&p.ID, &p.Symbol, &p.SecurityID, &p.Quantity, &p.EntryPrice, &p.StopLoss, &p.Target,
		&p.TradeType, &p.ProductType, &status, &p.ExitPrice, &exitTime, &p.RealizedProfit,
		&closingAt, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	p.Status = domain.Status(status)
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if p.ExitTime, err = parseNullTime(exitTime); err != nil {
		return nil, err
	}
	if p.ClosingAt, err = parseNullTime(closingAt); err != nil {
		return nil, err
	}
	return p, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.ParseInLocation(sqliteTimeLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp %q: %w", s, err)
	}
	return t, nil
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
