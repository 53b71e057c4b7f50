package domain

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f(v float64) *float64 { return &v }

func newPosition(tradeType string, stop, target float64) *Position {
	return &Position{
		ID:          7,
		Symbol:      "NIFTY24OCTFUT",
		SecurityID:  "35001",
		Quantity:    f(10),
		EntryPrice:  f(100),
		StopLoss:    f(stop),
		Target:      f(target),
		TradeType:   tradeType,
		ProductType: "margin",
		Status:      StatusOpen,
	}
}

func TestTrade_Evaluate_Long(t *testing.T) {
	trade, err := newPosition("long", 90, 110).Normalize()
	require.NoError(t, err)

	assert.Equal(t, TriggerStopLoss, trade.Evaluate(89))
	assert.Equal(t, TriggerStopLoss, trade.Evaluate(90))
	assert.Equal(t, TriggerTarget, trade.Evaluate(111))
	assert.Equal(t, TriggerTarget, trade.Evaluate(110))
	assert.Equal(t, TriggerNone, trade.Evaluate(100))
	assert.Equal(t, OrderSideSell, trade.Direction.CloseSide())
}

func TestTrade_Evaluate_Short(t *testing.T) {
	trade, err := newPosition("SHORT", 110, 90).Normalize()
	require.NoError(t, err)

	assert.Equal(t, TriggerStopLoss, trade.Evaluate(111))
	assert.Equal(t, TriggerTarget, trade.Evaluate(89))
	assert.Equal(t, TriggerNone, trade.Evaluate(100))
	assert.Equal(t, OrderSideBuy, trade.Direction.CloseSide())
}

func TestTrade_Evaluate_StopLossWinsWhenBothHold(t *testing.T) {
	// stop above target on a long: any price satisfies one or both
	trade, err := newPosition("long", 120, 110).Normalize()
	require.NoError(t, err)
	assert.Equal(t, TriggerStopLoss, trade.Evaluate(115))

	trade, err = newPosition("short", 80, 90).Normalize()
	require.NoError(t, err)
	assert.Equal(t, TriggerStopLoss, trade.Evaluate(85))
}

func TestNormalize_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *Position)
	}{
		{"cash product", func(p *Position) { p.ProductType = "CASH" }},
		{"empty product", func(p *Position) { p.ProductType = "" }},
		{"sideways direction", func(p *Position) { p.TradeType = "sideways" }},
		{"missing security", func(p *Position) { p.SecurityID = "" }},
		{"nil quantity", func(p *Position) { p.Quantity = nil }},
		{"zero quantity", func(p *Position) { p.Quantity = f(0) }},
		{"fractional quantity", func(p *Position) { p.Quantity = f(1.5) }},
		{"nil stop", func(p *Position) { p.StopLoss = nil }},
		{"nan target", func(p *Position) { p.Target = f(math.NaN()) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPosition("long", 90, 110)
			tt.mutate(p)
			_, err := p.Normalize()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidInput))
		})
	}
}

func TestNormalize_ProductTypeUppercased(t *testing.T) {
	p := newPosition("Long", 90, 110)
	p.ProductType = " intraday "
	trade, err := p.Normalize()
	require.NoError(t, err)
	assert.Equal(t, ProductIntraday, trade.Product)
	assert.Equal(t, DirectionLong, trade.Direction)
	assert.Equal(t, int64(10), trade.Quantity)
}

func TestTrade_ClosingOrder(t *testing.T) {
	trade, err := newPosition("short", 110, 90).Normalize()
	require.NoError(t, err)

	order := trade.ClosingOrder(ExchangeSegmentNSEFNO)
	assert.Equal(t, OrderRequest{
		SecurityID:      "35001",
		ExchangeSegment: "NSE_FNO",
		Side:            OrderSideBuy,
		Quantity:        10,
		OrderType:       OrderTypeMarket,
		ProductType:     ProductMargin,
		Price:           0,
	}, order)
}
