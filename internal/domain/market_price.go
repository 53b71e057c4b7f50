package domain

import "context"

// PriceOracle returns a best-effort current price for a security.
// It returns ErrPriceUnavailable (possibly wrapped) instead of a stale value.
type PriceOracle interface {
	GetPrice(ctx context.Context, securityID string) (float64, error)
}
