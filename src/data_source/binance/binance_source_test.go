package binance

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"market-relay/src/helpers"
	"market-relay/src/logger"
	"market-relay/src/models"
	"market-relay/src/network"
	"market-relay/src/timeframe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	klinesBody = `[
		[1700000000000, "20.1000", "20.5000", "19.9000", "20.4000", "1000.0", 1700000059999, "0", 10, "0", "0", "0"],
		[1700000060000, "20.4000", "20.6000", "20.3000", "20.55", "800.0", 1700000119999, "0", 8, "0", "0", "0"]
	]`
	depthBody = `{
		"lastUpdateId": 1,
		"bids": [["20.54000000", "12.300"], ["20.53000000", "1.000"]],
		"asks": [["20.56000000", "4.500"]]
	}`
)

func newSource(t *testing.T, handler http.Handler) *BinanceSource {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := &models.MConfig{Upstream: models.MUpstreamConfig{
		BaseURL:        server.URL + "/",
		Symbol:         "SOLUSDT",
		CandleLimit:    100,
		DepthLimit:     20,
		TimeoutSeconds: 2,
	}}
	log := logger.NewLoggerWithWriter(io.Discard, "ERROR", "test")
	return NewBinanceSource(cfg, network.NewAsyncNetworkManager(cfg, log), log)
}

func upstream(klines, depth string, klinesStatus int) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/klines", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(klinesStatus)
		_, _ = w.Write([]byte(klines))
	})
	mux.HandleFunc("/depth", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(depth))
	})
	return mux
}

func TestName(t *testing.T) {
	cfg := &models.MConfig{Upstream: models.MUpstreamConfig{
		BaseURL: "https://api1.binance.com/api/v3/",
		Symbol:  "SOLUSDT",
	}}
	src := NewBinanceSource(cfg, nil, nil)
	assert.Equal(t, "binance-solusdt@api1.binance.com", src.Name())
}

func TestFetchCandles_RequestShape(t *testing.T) {
	t.Parallel()

	src := newSource(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/klines", r.URL.Path)
		assert.Equal(t, "SOLUSDT", r.URL.Query().Get("symbol"))
		assert.Equal(t, "1d", r.URL.Query().Get("interval"))
		assert.Equal(t, "100", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(klinesBody))
	}))

	candles, err := src.FetchCandles(context.Background(), timeframe.OneDay)
	require.NoError(t, err)
	require.Len(t, candles, 2)

	assert.Equal(t, models.MCandle{
		Time: 1700000000000, Open: "20.1000", High: "20.5000", Low: "19.9000", Close: "20.4000",
	}, candles[0])
	// precision is carried through untouched
	assert.Equal(t, "20.55", candles[1].Close)
}

func TestFetchDepth_RequestShape(t *testing.T) {
	t.Parallel()

	src := newSource(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/depth", r.URL.Path)
		assert.Equal(t, "20", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(depthBody))
	}))

	book, err := src.FetchDepth(context.Background())
	require.NoError(t, err)
	require.Len(t, book.Bids, 2)
	require.Len(t, book.Asks, 1)
	assert.Equal(t, models.MOrderBookEntry{Price: "20.54000000", Amount: "12.300"}, book.Bids[0])
	assert.Equal(t, "20.56000000", book.Asks[0].Price)
}

func TestFetchSnapshot_CombinesBoth(t *testing.T) {
	t.Parallel()

	src := newSource(t, upstream(klinesBody, depthBody, http.StatusOK))

	snap, err := src.FetchSnapshot(context.Background(), timeframe.OneHour)
	require.NoError(t, err)
	assert.Len(t, snap.Candlestick, 2)
	assert.Len(t, snap.OrderBook.Bids, 2)
}

func TestFetchSnapshot_DecimalsPassThroughVerbatim(t *testing.T) {
	t.Parallel()

	// values a decimal round trip would rewrite
	klines := `[[1700000000000, "0.00000001", "150.10000000", "0.0", "1e-8", "0", 1700000059999, "0", 1, "0", "0", "0"]]`
	depth := `{"bids": [["150.10000000", "0.00000001"]], "asks": [["0150.1", "100"]]}`
	src := newSource(t, upstream(klines, depth, http.StatusOK))

	snap, err := src.FetchSnapshot(context.Background(), timeframe.OneMinute)
	require.NoError(t, err)
	require.Len(t, snap.Candlestick, 1)

	c := snap.Candlestick[0]
	assert.Equal(t, "0.00000001", c.Open)
	assert.Equal(t, "150.10000000", c.High)
	assert.Equal(t, "0.0", c.Low)
	assert.Equal(t, "1e-8", c.Close)
	assert.Equal(t, models.MOrderBookEntry{Price: "150.10000000", Amount: "0.00000001"}, snap.OrderBook.Bids[0])
	assert.Equal(t, models.MOrderBookEntry{Price: "0150.1", Amount: "100"}, snap.OrderBook.Asks[0])

	// and the wire form sent to viewers keeps them as the same strings
	raw, err := json.Marshal(snap)
	require.NoError(t, err)
	for _, v := range []string{`"0.00000001"`, `"150.10000000"`, `"0.0"`, `"1e-8"`, `"0150.1"`} {
		assert.Contains(t, string(raw), v)
	}
}

func TestFetchSnapshot_EitherFailureFailsWhole(t *testing.T) {
	t.Parallel()

	src := newSource(t, upstream(`{"code":-1121,"msg":"Invalid symbol."}`, depthBody, http.StatusBadRequest))

	snap, err := src.FetchSnapshot(context.Background(), timeframe.OneHour)
	require.Error(t, err)
	assert.Nil(t, snap)

	var upErr *helpers.UpstreamError
	require.True(t, errors.As(err, &upErr))
	assert.Contains(t, err.Error(), "Invalid symbol.")
}

func TestFetchSnapshot_CancelsSlowSibling(t *testing.T) {
	t.Parallel()

	var depthCancelled atomic.Bool
	mux := http.NewServeMux()
	mux.HandleFunc("/klines", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("/depth", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
			depthCancelled.Store(true)
		case <-time.After(5 * time.Second):
		}
	})
	src := newSource(t, mux)

	start := time.Now()
	_, err := src.FetchSnapshot(context.Background(), timeframe.OneMinute)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Eventually(t, depthCancelled.Load, time.Second, 10*time.Millisecond)
}

func TestParseKlines_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{"not json", `<html>`},
		{"object", `{"a":1}`},
		{"null", `null`},
		{"row not array", `[1]`},
		{"short row", `[[1700000000000, "1", "2", "3"]]`},
		{"string time", `[["1700000000000", "1", "2", "3", "4"]]`},
		{"fractional time", `[[1.5, "1", "2", "3", "4"]]`},
		{"numeric price", `[[1700000000000, 1, "2", "3", "4"]]`},
		{"bad decimal", `[[1700000000000, "1", "abc", "3", "4"]]`},
		{"descending", `[[2, "1", "2", "3", "4"], [1, "1", "2", "3", "4"]]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseKlines([]byte(tt.body))
			require.Error(t, err)
			var vErr *helpers.ValidationError
			assert.True(t, errors.As(err, &vErr))
		})
	}
}

func TestParseKlines_EmptyWindow(t *testing.T) {
	t.Parallel()

	candles, err := parseKlines([]byte(`[]`))
	require.NoError(t, err)
	assert.Empty(t, candles)
}

func TestParseDepth_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{"not json", `oops`},
		{"missing asks", `{"bids": []}`},
		{"missing bids", `{"asks": []}`},
		{"three fields", `{"bids": [["1", "2", "3"]], "asks": []}`},
		{"numeric amount", `{"bids": [["1", 2]], "asks": []}`},
		{"bad price", `{"bids": [], "asks": [["x", "1"]]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseDepth([]byte(tt.body))
			require.Error(t, err)
			var vErr *helpers.ValidationError
			assert.True(t, errors.As(err, &vErr))
		})
	}
}

func TestFetchCandles_MalformedBodyIsUpstreamError(t *testing.T) {
	t.Parallel()

	src := newSource(t, upstream(`[[1, "1"]]`, depthBody, http.StatusOK))

	candles, err := src.FetchCandles(context.Background(), timeframe.OneMinute)
	assert.Nil(t, candles)

	var upErr *helpers.UpstreamError
	require.True(t, errors.As(err, &upErr))
	var vErr *helpers.ValidationError
	assert.True(t, errors.As(err, &vErr))
}
