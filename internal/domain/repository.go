package domain

import (
	"context"
	"time"
)

// PositionRepository hands out store sessions. A session holds one
// connection; the trigger engine opens one per pass.
type PositionRepository interface {
	// Acquire reserves a connection for the duration of a pass.
	Acquire(ctx context.Context) (PositionSession, error)
}

// PositionSession is the set of operations available on one store connection.
// Release must be called on every exit path.
type PositionSession interface {
	// ListEligible returns positions with status success or open created in
	// [from, to), ordered by id descending.
	ListEligible(ctx context.Context, from, to time.Time) ([]*Position, error)

	// ListClosing returns positions claimed for closing before the given time.
	ListClosing(ctx context.Context, claimedBefore time.Time) ([]*Position, error)

	// GetByID retrieves a single position.
	GetByID(ctx context.Context, id int64) (*Position, error)

	// MarkClosing moves an eligible position to closing. It returns
	// ErrNotClaimed if the position is no longer success or open.
	MarkClosing(ctx context.Context, id int64, at time.Time) error

	// ReleaseClosing moves a closing position back to open.
	ReleaseClosing(ctx context.Context, id int64) error

	// Finalize closes the position in a single statement. It returns
	// ErrAlreadyClosed if the row is already closed.
	Finalize(ctx context.Context, rec CloseRecord) error

	// Release returns the connection to its pool.
	Release()
}

// CloseRecord carries the fields written together when a position closes.
type CloseRecord struct {
	ID             int64
	ExitPrice      float64
	ExitTime       time.Time
	RealizedProfit *float64
}
