package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Position represents one trade record as stored in the trades table.
// Numeric columns are nullable upstream, so they are kept as pointers until
// the position is normalized into a Trade.
type Position struct {
	ID             int64      `json:"id"`
	Symbol         string     `json:"symbol"`
	SecurityID     string     `json:"security_id"`
	Quantity       *float64   `json:"quantity"`
	EntryPrice     *float64   `json:"entry_price"`
	StopLoss       *float64   `json:"stop_loss"`
	Target         *float64   `json:"target"`
	TradeType      string     `json:"trade_type"`   // raw direction: long | short
	ProductType    string     `json:"product_type"` // raw product: MARGIN | INTRADAY
	Status         Status     `json:"order_status"`
	ExitPrice      *float64   `json:"exit_price,omitempty"`
	ExitTime       *time.Time `json:"exit_time,omitempty"`
	RealizedProfit *float64   `json:"realized_profit,omitempty"`
	ClosingAt      *time.Time `json:"closing_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Status is the lifecycle state of a position.
type Status string

// PositionStatus constants
const (
	StatusSuccess Status = "success"
	StatusOpen    Status = "open"
	StatusClosing Status = "closing" // closing order submitted or about to be
	StatusClosed  Status = "closed"
)

// EligibleStatuses are the statuses the trigger engine re-examines every pass
// and the only ones a closing claim may start from.
var EligibleStatuses = []Status{StatusSuccess, StatusOpen}

// ProductType is the brokerage product a position was opened under.
type ProductType string

// ProductType constants
const (
	ProductMargin   ProductType = "MARGIN"
	ProductIntraday ProductType = "INTRADAY"
)

// ParseProductType normalizes s to upper case and checks it is a known product.
func ParseProductType(s string) (ProductType, error) {
	p := ProductType(strings.ToUpper(strings.TrimSpace(s)))
	switch p {
	case ProductMargin, ProductIntraday:
		return p, nil
	}
	return "", fmt.Errorf("%w: product type %q", ErrInvalidInput, s)
}

// Trade is a Position whose direction, product and thresholds have been
// validated. It is built once per pass and drives every trigger comparison.
type Trade struct {
	Position  *Position
	Direction Direction
	Product   ProductType
	Quantity  int64
	StopLoss  float64
	Target    float64
}

// Normalize validates the raw position fields and returns a Trade. Any
// failure wraps ErrInvalidInput; the position must then be skipped untouched.
func (p *Position) Normalize() (*Trade, error) {
	product, err := ParseProductType(p.ProductType)
	if err != nil {
		return nil, err
	}

	direction, err := ParseDirection(p.TradeType)
	if err != nil {
		return nil, err
	}

	if p.SecurityID == "" {
		return nil, fmt.Errorf("%w: missing security id", ErrInvalidInput)
	}

	qty, ok := finite(p.Quantity)
	if !ok || qty <= 0 || qty != math.Trunc(qty) {
		return nil, fmt.Errorf("%w: quantity %s", ErrInvalidInput, formatOptional(p.Quantity))
	}

	stop, ok := finite(p.StopLoss)
	if !ok {
		return nil, fmt.Errorf("%w: stop loss %s", ErrInvalidInput, formatOptional(p.StopLoss))
	}

	target, ok := finite(p.Target)
	if !ok {
		return nil, fmt.Errorf("%w: target %s", ErrInvalidInput, formatOptional(p.Target))
	}

	return &Trade{
		Position:  p,
		Direction: direction,
		Product:   product,
		Quantity:  int64(qty),
		StopLoss:  stop,
		Target:    target,
	}, nil
}

// Trigger is the reason a trade must be closed.
type Trigger int

// Trigger constants
const (
	TriggerNone Trigger = iota
	TriggerStopLoss
	TriggerTarget
)

func (t Trigger) String() string {
	switch t {
	case TriggerStopLoss:
		return "STOP_LOSS"
	case TriggerTarget:
		return "TARGET"
	}
	return "NONE"
}

// Evaluate applies the direction's trigger rules at the given price.
// Stop-loss is checked before target, so it wins when both hold.
func (t *Trade) Evaluate(price float64) Trigger {
	if t.Direction.StopLossHit(price, t.StopLoss) {
		return TriggerStopLoss
	}
	if t.Direction.TargetHit(price, t.Target) {
		return TriggerTarget
	}
	return TriggerNone
}

// ClosingOrder builds the offsetting market order for the full quantity.
func (t *Trade) ClosingOrder(exchangeSegment string) OrderRequest {
	return OrderRequest{
		SecurityID:      t.Position.SecurityID,
		ExchangeSegment: exchangeSegment,
		Side:            t.Direction.CloseSide(),
		Quantity:        t.Quantity,
		OrderType:       OrderTypeMarket,
		ProductType:     t.Product,
		Price:           0,
	}
}

func finite(v *float64) (float64, bool) {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return 0, false
	}
	return *v, true
}

func formatOptional(v *float64) string {
	if v == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%v", *v)
}
