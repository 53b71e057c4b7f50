package paper

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tradeguard/internal/domain"
)

var _ domain.ExecutionGateway = (*Broker)(nil)

// Broker is the dry-run execution gateway. It validates and records orders
// in memory and acknowledges them as traded without contacting a brokerage.
type Broker struct {
	mu     sync.Mutex
	orders []Fill
	logger *zap.Logger
}

// Fill is one order the paper broker accepted.
type Fill struct {
	OrderID string
	Request domain.OrderRequest
}

// NewBroker creates a paper broker.
func NewBroker(logger *zap.Logger) *Broker {
	return &Broker{logger: logger}
}

// Name returns "paper".
func (b *Broker) Name() string { return "paper" }

// PlaceOrder records the order and acknowledges it.
func (b *Broker) PlaceOrder(_ context.Context, req domain.OrderRequest) (*domain.OrderAck, error) {
	if req.SecurityID == "" || req.Quantity <= 0 {
		return nil, fmt.Errorf("%w: security %q quantity %d", domain.ErrOrderRejected, req.SecurityID, req.Quantity)
	}
	if req.Side != domain.OrderSideBuy && req.Side != domain.OrderSideSell {
		return nil, fmt.Errorf("%w: side %q", domain.ErrOrderRejected, req.Side)
	}

	id := "PAPER-" + uuid.New().String()

	b.mu.Lock()
	b.orders = append(b.orders, Fill{OrderID: id, Request: req})
	b.mu.Unlock()

	b.logger.Info("[PAPER] Order filled",
		zap.String("order_id", id),
		zap.String("security_id", req.SecurityID),
		zap.String("side", string(req.Side)),
		zap.Int64("quantity", req.Quantity),
	)
	return &domain.OrderAck{OrderID: id, Status: "TRADED"}, nil
}

// Fills returns a copy of every accepted order, oldest first.
func (b *Broker) Fills() []Fill {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Fill, len(b.orders))
	copy(out, b.orders)
	return out
}
