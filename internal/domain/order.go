package domain

// OrderSide is the brokerage transaction type.
type OrderSide string

// OrderSide constants
const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderType constants
const (
	OrderTypeMarket = "MARKET"
)

// Default exchange segment for the positions this monitor closes.
const ExchangeSegmentNSEFNO = "NSE_FNO"

// OrderRequest is a closing order handed to an ExecutionGateway.
type OrderRequest struct {
	SecurityID      string      `json:"security_id"`
	ExchangeSegment string      `json:"exchange_segment"`
	Side            OrderSide   `json:"side"`
	Quantity        int64       `json:"quantity"`
	OrderType       string      `json:"order_type"`
	ProductType     ProductType `json:"product_type"`
	Price           float64     `json:"price"` // ignored for market orders
	CorrelationID   string      `json:"correlation_id,omitempty"`
}

// OrderAck is the brokerage acknowledgement of a submitted order.
type OrderAck struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}
