package domain

import "errors"

// Sentinel errors shared across the monitor. Wrap them with fmt.Errorf("%w")
// and test with errors.Is.
var (
	// ErrInvalidInput marks a position whose fields cannot be evaluated.
	ErrInvalidInput = errors.New("invalid position input")

	// ErrPriceUnavailable means no feed produced a usable price this tick.
	ErrPriceUnavailable = errors.New("price unavailable")

	// ErrProfitUnavailable means realized profit could not be computed.
	ErrProfitUnavailable = errors.New("realized profit unavailable")

	// ErrOrderRejected means the brokerage did not acknowledge the order.
	ErrOrderRejected = errors.New("order rejected")

	// ErrNotClaimed means the conditional open -> closing update matched no row.
	ErrNotClaimed = errors.New("position not claimable")

	// ErrAlreadyClosed means the finalize update matched no row.
	ErrAlreadyClosed = errors.New("position already closed")

	// ErrPositionNotFound is returned by single-row lookups.
	ErrPositionNotFound = errors.New("position not found")

	// ErrLockHeld means another process holds the pass lock.
	ErrLockHeld = errors.New("lock held")
)
