package domain

import (
	"context"
	"time"
)

// ExecutionGateway submits orders to the brokerage. Submissions are
// side-effecting and not idempotent; a nil error means the order was
// acknowledged.
type ExecutionGateway interface {
	// Name identifies the gateway in logs ("dhan", "paper").
	Name() string

	// PlaceOrder submits the order and returns the brokerage acknowledgement.
	PlaceOrder(ctx context.Context, req OrderRequest) (*OrderAck, error)
}

// NotificationService is told about every finalized close.
type NotificationService interface {
	SendClosed(ctx context.Context, event ClosedEvent) error
}

// ClosedEvent describes a position the trigger engine just closed.
type ClosedEvent struct {
	TradeID        int64
	Symbol         string
	SecurityID     string
	Direction      Direction
	Trigger        Trigger
	Quantity       int64
	EntryPrice     *float64
	ExitPrice      float64
	RealizedProfit *float64
	OrderID        string
	ClosedAt       time.Time
}

// PassLocker guards a pass against running on more than one process at once.
// Acquire returns ErrLockHeld when another holder owns the key.
type PassLocker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}
