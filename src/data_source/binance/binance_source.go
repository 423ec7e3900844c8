package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"market-relay/src/helpers"
	"market-relay/src/interfaces"
	"market-relay/src/logger"
	"market-relay/src/models"
	"market-relay/src/network"
	"market-relay/src/timeframe"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// BinanceSource reads klines and depth for a single symbol from a
// Binance-compatible REST API.
type BinanceSource struct {
	Config  *models.MConfig
	Network interfaces.INetworkManager
	Logger  *logger.Logger

	baseURL     string
	symbol      string
	candleLimit int
	depthLimit  int
}

var _ interfaces.IMarketSource = (*BinanceSource)(nil)

// -----------------------------------------------------------------------------

func NewBinanceSource(cfg *models.MConfig, netMgr interfaces.INetworkManager, log *logger.Logger) *BinanceSource {
	return &BinanceSource{
		Config:      cfg,
		Network:     netMgr,
		Logger:      log,
		baseURL:     strings.TrimRight(cfg.Upstream.BaseURL, "/"),
		symbol:      cfg.Upstream.Symbol,
		candleLimit: cfg.Upstream.CandleLimit,
		depthLimit:  cfg.Upstream.DepthLimit,
	}
}

// -----------------------------------------------------------------------------

// Name identifies the source by symbol and upstream host, e.g.
// "binance-solusdt@api.binance.com".
func (s *BinanceSource) Name() string {
	host := s.baseURL
	if u, err := url.Parse(s.baseURL); err == nil && u.Host != "" {
		host = u.Host
	}
	return "binance-" + strings.ToLower(s.symbol) + "@" + host
}

// -----------------------------------------------------------------------------

// FetchCandles fetches the latest candle window for tf.
func (s *BinanceSource) FetchCandles(ctx context.Context, tf timeframe.Timeframe) ([]models.MCandle, error) {
	params := map[string]string{
		"symbol":   s.symbol,
		"interval": tf.Interval(),
		"limit":    strconv.Itoa(s.candleLimit),
	}

	body, err := s.Network.Get(ctx, s.baseURL+"/klines", params)
	if err != nil {
		return nil, helpers.NewUpstreamError(describeStatus(err), "fetch klines %s %s", s.symbol, tf.Interval())
	}

	candles, err := parseKlines(body)
	if err != nil {
		return nil, helpers.NewUpstreamError(err, "parse klines %s %s", s.symbol, tf.Interval())
	}
	return candles, nil
}

// -----------------------------------------------------------------------------

// FetchDepth fetches the current order book.
func (s *BinanceSource) FetchDepth(ctx context.Context) (models.MOrderBook, error) {
	params := map[string]string{
		"symbol": s.symbol,
		"limit":  strconv.Itoa(s.depthLimit),
	}

	body, err := s.Network.Get(ctx, s.baseURL+"/depth", params)
	if err != nil {
		return models.MOrderBook{}, helpers.NewUpstreamError(describeStatus(err), "fetch depth %s", s.symbol)
	}

	book, err := parseDepth(body)
	if err != nil {
		return models.MOrderBook{}, helpers.NewUpstreamError(err, "parse depth %s", s.symbol)
	}
	return book, nil
}

// -----------------------------------------------------------------------------

// FetchSnapshot issues both fetches concurrently. The first failure cancels
// the other request and no partial snapshot is returned.
func (s *BinanceSource) FetchSnapshot(ctx context.Context, tf timeframe.Timeframe) (*models.MMarketSnapshot, error) {
	var (
		candles []models.MCandle
		book    models.MOrderBook
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		candles, err = s.FetchCandles(gCtx, tf)
		return err
	})
	g.Go(func() error {
		var err error
		book, err = s.FetchDepth(gCtx)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &models.MMarketSnapshot{
		Candlestick: candles,
		OrderBook:   book,
	}, nil
}

// -----------------------------------------------------------------------------
// Response parsing
// -----------------------------------------------------------------------------

type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// describeStatus folds a Binance {code,msg} error body into the error chain.
func describeStatus(err error) error {
	var statusErr *network.StatusError
	if !errors.As(err, &statusErr) {
		return err
	}
	var body apiError
	if json.Unmarshal(statusErr.Body, &body) != nil || body.Msg == "" {
		return err
	}
	return fmt.Errorf("%w (code %d: %s)", err, body.Code, body.Msg)
}

// -----------------------------------------------------------------------------

// parseKlines validates [[openTime, open, high, low, close, ...], ...].
// Only the first five fields are used. Rows must be in ascending open time.
func parseKlines(data []byte) ([]models.MCandle, error) {
	var rows []json.RawMessage
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, helpers.NewValidationError("klines: expected array: %v", err)
	}
	if rows == nil {
		return nil, helpers.NewValidationError("klines: null body")
	}

	candles := make([]models.MCandle, 0, len(rows))
	var prevTime int64
	for i, raw := range rows {
		var fields []json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, helpers.NewValidationError("klines row %d: expected array", i)
		}
		if len(fields) < 5 {
			return nil, helpers.NewValidationError("klines row %d: expected at least 5 fields, got %d", i, len(fields))
		}

		var openTime int64
		if err := json.Unmarshal(fields[0], &openTime); err != nil {
			return nil, helpers.NewValidationError("klines row %d: open time %s is not an integer", i, fields[0])
		}
		if i > 0 && openTime <= prevTime {
			return nil, helpers.NewValidationError("klines row %d: open time %d not after %d", i, openTime, prevTime)
		}
		prevTime = openTime

		var prices [4]string
		for j := range prices {
			p, err := decimalString(fields[j+1])
			if err != nil {
				return nil, helpers.NewValidationError("klines row %d field %d: %v", i, j+1, err)
			}
			prices[j] = p
		}

		candles = append(candles, models.MCandle{
			Time:  openTime,
			Open:  prices[0],
			High:  prices[1],
			Low:   prices[2],
			Close: prices[3],
		})
	}
	return candles, nil
}

// -----------------------------------------------------------------------------

type depthResponse struct {
	Bids *[][]json.RawMessage `json:"bids"`
	Asks *[][]json.RawMessage `json:"asks"`
}

// parseDepth validates {bids: [[price, amount], ...], asks: [...]}.
func parseDepth(data []byte) (models.MOrderBook, error) {
	var resp depthResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return models.MOrderBook{}, helpers.NewValidationError("depth: malformed body: %v", err)
	}
	if resp.Bids == nil || resp.Asks == nil {
		return models.MOrderBook{}, helpers.NewValidationError("depth: missing bids or asks")
	}

	bids, err := parseLevels("bids", *resp.Bids)
	if err != nil {
		return models.MOrderBook{}, err
	}
	asks, err := parseLevels("asks", *resp.Asks)
	if err != nil {
		return models.MOrderBook{}, err
	}

	return models.MOrderBook{Bids: bids, Asks: asks}, nil
}

// -----------------------------------------------------------------------------

func parseLevels(side string, levels [][]json.RawMessage) ([]models.MOrderBookEntry, error) {
	entries := make([]models.MOrderBookEntry, 0, len(levels))
	for i, level := range levels {
		if len(level) != 2 {
			return nil, helpers.NewValidationError("depth %s level %d: expected [price, amount], got %d fields", side, i, len(level))
		}
		price, err := decimalString(level[0])
		if err != nil {
			return nil, helpers.NewValidationError("depth %s level %d price: %v", side, i, err)
		}
		amount, err := decimalString(level[1])
		if err != nil {
			return nil, helpers.NewValidationError("depth %s level %d amount: %v", side, i, err)
		}
		entries = append(entries, models.MOrderBookEntry{Price: price, Amount: amount})
	}
	return entries, nil
}

// -----------------------------------------------------------------------------

// decimalString accepts a JSON string holding a decimal and returns it untouched.
func decimalString(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("expected decimal string, got %s", raw)
	}
	if _, err := decimal.NewFromString(s); err != nil {
		return "", fmt.Errorf("invalid decimal %q", s)
	}
	return s, nil
}
