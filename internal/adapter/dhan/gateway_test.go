package dhan

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeguard/internal/domain"
)

func sellOrder() domain.OrderRequest {
	return domain.OrderRequest{
		SecurityID:      "35001",
		ExchangeSegment: domain.ExchangeSegmentNSEFNO,
		Side:            domain.OrderSideSell,
		Quantity:        50,
		OrderType:       domain.OrderTypeMarket,
		ProductType:     domain.ProductMargin,
		CorrelationID:   "tg7-abc",
	}
}

func TestPlaceOrder_Success(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v2/orders", r.URL.Path)
		assert.Equal(t, "secret-token", r.Header.Get("access-token"))
		assert.Equal(t, "1000000001", r.Header.Get("client-id"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"orderId":"112111182198","orderStatus":"PENDING"}`))
	}))
	defer srv.Close()

	g := NewGateway(srv.URL+"/", "1000000001", "secret-token", time.Second)
	ack, err := g.PlaceOrder(context.Background(), sellOrder())
	require.NoError(t, err)

	assert.Equal(t, "112111182198", ack.OrderID)
	assert.Equal(t, "PENDING", ack.Status)

	assert.Equal(t, "1000000001", got["dhanClientId"])
	assert.Equal(t, "tg7-abc", got["correlationId"])
	assert.Equal(t, "SELL", got["transactionType"])
	assert.Equal(t, "NSE_FNO", got["exchangeSegment"])
	assert.Equal(t, "MARGIN", got["productType"])
	assert.Equal(t, "MARKET", got["orderType"])
	assert.Equal(t, "DAY", got["validity"])
	assert.Equal(t, "35001", got["securityId"])
	assert.Equal(t, float64(50), got["quantity"])
	assert.Equal(t, float64(0), got["price"])
}

func TestPlaceOrder_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errorType":"Order_Error","errorCode":"DH-906","errorMessage":"Incorrect order request"}`))
	}))
	defer srv.Close()

	g := NewGateway(srv.URL, "1000000001", "secret-token", time.Second)
	_, err := g.PlaceOrder(context.Background(), sellOrder())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrOrderRejected)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "DH-906", apiErr.Code)
	assert.Equal(t, "Incorrect order request", apiErr.Message)
}

func TestPlaceOrder_RejectedAck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"orderId":"1","orderStatus":"REJECTED"}`))
	}))
	defer srv.Close()

	g := NewGateway(srv.URL, "1000000001", "secret-token", time.Second)
	_, err := g.PlaceOrder(context.Background(), sellOrder())
	assert.ErrorIs(t, err, domain.ErrOrderRejected)
}

func TestPlaceOrder_NonJSONError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	g := NewGateway(srv.URL, "1000000001", "secret-token", time.Second)
	_, err := g.PlaceOrder(context.Background(), sellOrder())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrOrderRejected)
	assert.Contains(t, err.Error(), "bad gateway")
}

func TestCheckCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("access-token") != "good" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"errorType":"Invalid_Authentication","errorCode":"DH-901","errorMessage":"Client ID or user generated access token is invalid or expired."}`))
			return
		}
		assert.Equal(t, "/v2/fundlimit", r.URL.Path)
		_, _ = w.Write([]byte(`{"availabelBalance":1000}`))
	}))
	defer srv.Close()

	assert.NoError(t, NewGateway(srv.URL, "1", "good", time.Second).CheckCredentials(context.Background()))

	err := NewGateway(srv.URL, "1", "bad", time.Second).CheckCredentials(context.Background())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "DH-901", apiErr.Code)
}
