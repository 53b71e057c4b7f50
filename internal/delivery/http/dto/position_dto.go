package dto

import (
	"time"

	"tradeguard/internal/domain"
)

// PositionResponse represents a trade in API responses
type PositionResponse struct {
	ID            int64      `json:"id"`
	Symbol        string     `json:"symbol"`
	SecurityID    string     `json:"security_id"`
	TradeType     string     `json:"trade_type"`
	ProductType   string     `json:"product_type"`
	Quantity      *float64   `json:"quantity"`
	EntryPrice    *float64   `json:"entry_price"`
	StopLoss      *float64   `json:"stop_loss"`
	Target        *float64   `json:"target"`
	Status        string     `json:"order_status"`
	ClosingAt     *time.Time `json:"closing_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	Valid         bool       `json:"valid"`
	InvalidReason string     `json:"invalid_reason,omitempty"`
}

// ToPositionResponse converts a domain position. Positions that the trigger
// engine would skip are flagged with the reason.
func ToPositionResponse(p *domain.Position) PositionResponse {
	out := PositionResponse{
		ID:          p.ID,
		Symbol:      p.Symbol,
		SecurityID:  p.SecurityID,
		TradeType:   p.TradeType,
		ProductType: p.ProductType,
		Quantity:    p.Quantity,
		EntryPrice:  p.EntryPrice,
		StopLoss:    p.StopLoss,
		Target:      p.Target,
		Status:      string(p.Status),
		ClosingAt:   p.ClosingAt,
		CreatedAt:   p.CreatedAt,
		Valid:       true,
	}
	if _, err := p.Normalize(); err != nil {
		out.Valid = false
		out.InvalidReason = err.Error()
	}
	return out
}

// ToPositionResponses converts a slice, never returning nil.
func ToPositionResponses(positions []*domain.Position) []PositionResponse {
	out := make([]PositionResponse, 0, len(positions))
	for _, p := range positions {
		out = append(out, ToPositionResponse(p))
	}
	return out
}

// PassResponse represents the last evaluation pass
type PassResponse struct {
	RanAt   *time.Time          `json:"ran_at,omitempty"`
	Summary *domain.PassSummary `json:"summary,omitempty"`
	Error   string              `json:"error,omitempty"`
}
