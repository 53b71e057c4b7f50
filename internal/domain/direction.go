package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Direction is the side a position was opened on. The zero value is invalid;
// use ParseDirection to obtain one.
type Direction int

// Direction constants
const (
	DirectionLong Direction = iota + 1
	DirectionShort
)

// ParseDirection accepts "long" or "short" in any case.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "long":
		return DirectionLong, nil
	case "short":
		return DirectionShort, nil
	}
	return 0, fmt.Errorf("%w: direction %q", ErrInvalidInput, s)
}

func (d Direction) String() string {
	switch d {
	case DirectionLong:
		return "long"
	case DirectionShort:
		return "short"
	}
	return "invalid"
}

// StopLossHit reports whether price has crossed the stop against the position.
func (d Direction) StopLossHit(price, stop float64) bool {
	if d == DirectionShort {
		return price >= stop
	}
	return price <= stop
}

// TargetHit reports whether price has reached the target in favour of the position.
func (d Direction) TargetHit(price, target float64) bool {
	if d == DirectionShort {
		return price <= target
	}
	return price >= target
}

// CloseSide is the transaction side that offsets the position.
func (d Direction) CloseSide() OrderSide {
	if d == DirectionShort {
		return OrderSideBuy
	}
	return OrderSideSell
}

// Profit returns the realized profit for a round trip in this direction.
func (d Direction) Profit(entry, exit, qty decimal.Decimal) decimal.Decimal {
	if d == DirectionShort {
		return entry.Sub(exit).Mul(qty)
	}
	return exit.Sub(entry).Mul(qty)
}
