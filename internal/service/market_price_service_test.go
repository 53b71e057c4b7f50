package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"tradeguard/internal/domain"
)

type feedStub struct {
	status int
	body   string
	hits   atomic.Int32
}

func (f *feedStub) server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.hits.Add(1)
		w.WriteHeader(f.status)
		_, _ = w.Write([]byte(f.body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newObservedLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.ErrorLevel)
	return zap.New(core), logs
}

func TestGetPrice_PrimaryObjectForm(t *testing.T) {
	primary := &feedStub{status: http.StatusOK, body: `{"35001": {"latest_price": 101.5}}`}
	secondary := &feedStub{status: http.StatusOK, body: `{"35001": {"latest_price": 999}}`}
	p, s := primary.server(t), secondary.server(t)

	svc := NewMarketPriceService(p.URL, s.URL, time.Second, zap.NewNop())
	price, err := svc.GetPrice(context.Background(), "35001")

	require.NoError(t, err)
	assert.Equal(t, 101.5, price)
	assert.Equal(t, int32(0), secondary.hits.Load())
}

func TestGetPrice_PrimaryNon200FallsBackToSecondary(t *testing.T) {
	primary := &feedStub{status: http.StatusInternalServerError, body: `oops`}
	secondary := &feedStub{status: http.StatusOK, body: `{"35001": [{"price": "88.25"}, {"price": 80}]}`}
	p, s := primary.server(t), secondary.server(t)

	logger, logs := newObservedLogger()
	svc := NewMarketPriceService(p.URL, s.URL, time.Second, logger)
	price, err := svc.GetPrice(context.Background(), "35001")

	require.NoError(t, err)
	assert.Equal(t, 88.25, price)
	assert.Equal(t, int32(1), primary.hits.Load(), "primary is not retried")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, FeedNon200, logs.All()[0].ContextMap()["kind"])
}

func TestGetPrice_MissingKeyFallsBack(t *testing.T) {
	primary := &feedStub{status: http.StatusOK, body: `{"99999": {"latest_price": 1}}`}
	secondary := &feedStub{status: http.StatusOK, body: `{"35001": {"latest_price": 77}}`}
	p, s := primary.server(t), secondary.server(t)

	logger, logs := newObservedLogger()
	svc := NewMarketPriceService(p.URL, s.URL, time.Second, logger)
	price, err := svc.GetPrice(context.Background(), "35001")

	require.NoError(t, err)
	assert.Equal(t, 77.0, price)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, FeedMissingKey, logs.All()[0].ContextMap()["kind"])
}

func TestGetPrice_Unavailable(t *testing.T) {
	tests := []struct {
		name     string
		primary  *feedStub
		second   *feedStub
		wantKind []string
	}{
		{
			name:     "both non-200",
			primary:  &feedStub{status: http.StatusBadGateway},
			second:   &feedStub{status: http.StatusServiceUnavailable},
			wantKind: []string{FeedNon200, FeedNon200},
		},
		{
			name:     "bad json then empty list",
			primary:  &feedStub{status: http.StatusOK, body: `not json`},
			second:   &feedStub{status: http.StatusOK, body: `{"35001": []}`},
			wantKind: []string{FeedDecode, FeedNoPriceField},
		},
		{
			name:     "no price field then zero price",
			primary:  &feedStub{status: http.StatusOK, body: `{"35001": {"ltp": 5}}`},
			second:   &feedStub{status: http.StatusOK, body: `{"35001": {"latest_price": 0}}`},
			wantKind: []string{FeedNoPriceField, FeedNoPriceField},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, s := tt.primary.server(t), tt.second.server(t)
			logger, logs := newObservedLogger()
			svc := NewMarketPriceService(p.URL, s.URL, time.Second, logger)

			_, err := svc.GetPrice(context.Background(), "35001")
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrPriceUnavailable)

			var kinds []string
			for _, entry := range logs.All() {
				kinds = append(kinds, entry.ContextMap()["kind"].(string))
			}
			assert.Equal(t, tt.wantKind, kinds)
		})
	}
}

func TestGetPrice_TransportError(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	logger, logs := newObservedLogger()
	svc := NewMarketPriceService(deadURL, "", time.Second, logger)

	_, err := svc.GetPrice(context.Background(), "35001")
	assert.ErrorIs(t, err, domain.ErrPriceUnavailable)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, FeedTransport, logs.All()[0].ContextMap()["kind"])
}
