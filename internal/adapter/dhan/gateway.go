package dhan

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"tradeguard/internal/domain"
)

// DefaultBaseURL is the Dhan HQ REST endpoint.
const DefaultBaseURL = "https://api.dhan.co"

// Gateway implements domain.ExecutionGateway against the Dhan HQ v2 API.
type Gateway struct {
	baseURL     string
	clientID    string
	accessToken string
	httpClient  *http.Client
}

// NewGateway creates a new Dhan gateway
func NewGateway(baseURL, clientID, accessToken string, timeout time.Duration) *Gateway {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Gateway{
		baseURL:     strings.TrimRight(baseURL, "/"),
		clientID:    clientID,
		accessToken: accessToken,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Name identifies the gateway in logs.
func (g *Gateway) Name() string { return "dhan" }

// orderRequest is the POST /v2/orders body.
type orderRequest struct {
	DhanClientID    string  `json:"dhanClientId"`
	CorrelationID   string  `json:"correlationId,omitempty"`
	TransactionType string  `json:"transactionType"`
	ExchangeSegment string  `json:"exchangeSegment"`
	ProductType     string  `json:"productType"`
	OrderType       string  `json:"orderType"`
	Validity        string  `json:"validity"`
	SecurityID      string  `json:"securityId"`
	Quantity        int64   `json:"quantity"`
	Price           float64 `json:"price"`
}

type orderResponse struct {
	OrderID     string `json:"orderId"`
	OrderStatus string `json:"orderStatus"`
}

// APIError is the error body Dhan returns on non-2xx responses.
type APIError struct {
	StatusCode int    `json:"-"`
	Type       string `json:"errorType"`
	Code       string `json:"errorCode"`
	Message    string `json:"errorMessage"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("dhan API error: status=%d type=%s code=%s message=%s", e.StatusCode, e.Type, e.Code, e.Message)
}

// PlaceOrder submits a market order. Any non-2xx status or a REJECTED
// acknowledgement is returned as an error wrapping domain.ErrOrderRejected.
func (g *Gateway) PlaceOrder(ctx context.Context, req domain.OrderRequest) (*domain.OrderAck, error) {
	body := orderRequest{
		DhanClientID:    g.clientID,
		CorrelationID:   req.CorrelationID,
		TransactionType: string(req.Side),
		ExchangeSegment: req.ExchangeSegment,
		ProductType:     string(req.ProductType),
		OrderType:       req.OrderType,
		Validity:        "DAY",
		SecurityID:      req.SecurityID,
		Quantity:        req.Quantity,
		Price:           req.Price,
	}

	// Errors before the request is sent are definite rejections.
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to marshal order: %w", domain.ErrOrderRejected, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v2/orders", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %w", domain.ErrOrderRejected, err)
	}
	g.setHeaders(httpReq)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to call dhan: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read dhan response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %w", domain.ErrOrderRejected, decodeAPIError(resp.StatusCode, respBody))
	}

	var out orderResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("failed to decode dhan response: %w", err)
	}
	if strings.EqualFold(out.OrderStatus, "REJECTED") {
		return nil, fmt.Errorf("%w: order %s rejected", domain.ErrOrderRejected, out.OrderID)
	}

	return &domain.OrderAck{OrderID: out.OrderID, Status: out.OrderStatus}, nil
}

// CheckCredentials calls the fund limit endpoint to verify the token.
func (g *Gateway) CheckCredentials(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/v2/fundlimit", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	g.setHeaders(req)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call dhan: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return decodeAPIError(resp.StatusCode, body)
	}
	return nil
}

func (g *Gateway) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("access-token", g.accessToken)
	req.Header.Set("client-id", g.clientID)
}

func decodeAPIError(status int, body []byte) error {
	apiErr := &APIError{StatusCode: status}
	if err := json.Unmarshal(body, apiErr); err != nil || (apiErr.Code == "" && apiErr.Message == "") {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}

var _ domain.ExecutionGateway = (*Gateway)(nil)
