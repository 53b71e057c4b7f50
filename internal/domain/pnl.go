package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// RealizedProfit computes the profit of a closed position:
//
//   - long:  (exit - entry) * qty
//   - short: (entry - exit) * qty
//
// A missing or non-finite input, or an unknown direction, yields
// ErrProfitUnavailable. Callers record the profit as absent in that case,
// never as zero.
func RealizedProfit(entryPrice, exitPrice, quantity *float64, direction string) (float64, error) {
	d, err := ParseDirection(direction)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrProfitUnavailable, err)
	}

	entry, ok := finite(entryPrice)
	if !ok {
		return 0, fmt.Errorf("%w: entry price %s", ErrProfitUnavailable, formatOptional(entryPrice))
	}
	exit, ok := finite(exitPrice)
	if !ok {
		return 0, fmt.Errorf("%w: exit price %s", ErrProfitUnavailable, formatOptional(exitPrice))
	}
	qty, ok := finite(quantity)
	if !ok {
		return 0, fmt.Errorf("%w: quantity %s", ErrProfitUnavailable, formatOptional(quantity))
	}

	profit := d.Profit(
		decimal.NewFromFloat(entry),
		decimal.NewFromFloat(exit),
		decimal.NewFromFloat(qty),
	)
	f, _ := profit.Float64()
	return f, nil
}
