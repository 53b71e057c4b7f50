package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"tradeguard/internal/domain"
)

// Feed failure kinds, logged with every failed endpoint query.
const (
	FeedNon200        = "non-200 status"
	FeedTransport     = "transport error"
	FeedDecode        = "decode error"
	FeedMissingKey    = "missing key"
	FeedNoPriceField  = "no price field"
	maxFeedBodyLength = 8 << 20
)

// FeedError describes why one endpoint produced no price.
type FeedError struct {
	Endpoint string
	Kind     string
	Err      error
}

func (e *FeedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Endpoint, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Endpoint, e.Kind)
}

func (e *FeedError) Unwrap() error { return e.Err }

// MarketPriceService queries the primary price endpoint and falls back to
// the secondary one. Each endpoint returns a JSON object keyed by security
// id whose values are either {"latest_price": p} or [{"price": p}, ...].
type MarketPriceService struct {
	httpClient *http.Client
	endpoints  []string
	logger     *zap.Logger
}

// NewMarketPriceService creates a new MarketPriceService
func NewMarketPriceService(primaryURL, secondaryURL string, timeout time.Duration, logger *zap.Logger) *MarketPriceService {
	endpoints := []string{primaryURL}
	if secondaryURL != "" {
		endpoints = append(endpoints, secondaryURL)
	}
	return &MarketPriceService{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		endpoints: endpoints,
		logger:    logger,
	}
}

// GetPrice returns the first usable price from the endpoints in order. It
// never retries an endpoint within a call.
func (s *MarketPriceService) GetPrice(ctx context.Context, securityID string) (float64, error) {
	for _, endpoint := range s.endpoints {
		price, err := s.fetch(ctx, endpoint, securityID)
		if err == nil {
			return price, nil
		}

		fields := []zap.Field{
			zap.String("endpoint", endpoint),
			zap.String("security_id", securityID),
		}
		var fe *FeedError
		if errors.As(err, &fe) {
			fields = append(fields, zap.String("kind", fe.Kind))
			if fe.Err != nil {
				fields = append(fields, zap.Error(fe.Err))
			}
		} else {
			fields = append(fields, zap.Error(err))
		}
		s.logger.Error("Price feed query failed", fields...)

		if ctx.Err() != nil {
			break
		}
	}

	return 0, fmt.Errorf("%w: security id %s", domain.ErrPriceUnavailable, securityID)
}

func (s *MarketPriceService) fetch(ctx context.Context, endpoint, securityID string) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, &FeedError{Endpoint: endpoint, Kind: FeedTransport, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, &FeedError{Endpoint: endpoint, Kind: FeedTransport, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return 0, &FeedError{Endpoint: endpoint, Kind: FeedNon200, Err: fmt.Errorf("status=%d", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBodyLength))
	if err != nil {
		return 0, &FeedError{Endpoint: endpoint, Kind: FeedTransport, Err: err}
	}

	var prices map[string]json.RawMessage
	if err := json.Unmarshal(body, &prices); err != nil {
		return 0, &FeedError{Endpoint: endpoint, Kind: FeedDecode, Err: err}
	}

	raw, ok := prices[securityID]
	if !ok {
		return 0, &FeedError{Endpoint: endpoint, Kind: FeedMissingKey}
	}

	price, err := extractPrice(raw)
	if err != nil {
		return 0, &FeedError{Endpoint: endpoint, Kind: FeedNoPriceField, Err: err}
	}
	return price, nil
}

// extractPrice reads {"latest_price": p} or a non-empty [{"price": p}].
func extractPrice(raw json.RawMessage) (float64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0, fmt.Errorf("empty entry")
	}

	var p *flexPrice
	switch raw[0] {
	case '{':
		var entry struct {
			LatestPrice *flexPrice `json:"latest_price"`
		}
		if err := json.Unmarshal(raw, &entry); err != nil {
			return 0, err
		}
		p = entry.LatestPrice
	case '[':
		var entries []struct {
			Price *flexPrice `json:"price"`
		}
		if err := json.Unmarshal(raw, &entries); err != nil {
			return 0, err
		}
		if len(entries) == 0 {
			return 0, fmt.Errorf("empty price list")
		}
		p = entries[0].Price
	default:
		return 0, fmt.Errorf("unexpected entry %s", truncate(string(raw), 64))
	}

	if p == nil {
		return 0, fmt.Errorf("price field absent")
	}
	v := float64(*p)
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("unusable price %v", v)
	}
	return v, nil
}

// flexPrice accepts a JSON number or a numeric string.
type flexPrice float64

func (f *flexPrice) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		return fmt.Errorf("empty price")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid price %q", s)
	}
	*f = flexPrice(v)
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
