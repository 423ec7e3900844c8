package interfaces

import (
	"context"

	"market-relay/src/models"
	"market-relay/src/timeframe"
)

// -----------------------------------------------------------------------------
// IMarketSource fetches the relay's two upstream views for one trading pair.
// -----------------------------------------------------------------------------

type IMarketSource interface {

	// Name returns the unique identifier of the source
	Name() string

	// -----------------------------------------------------------------------------

	// FetchCandles returns the full candle window for tf, oldest first.
	// It never returns a partial window.
	FetchCandles(ctx context.Context, tf timeframe.Timeframe) ([]models.MCandle, error)

	// -----------------------------------------------------------------------------

	// FetchDepth returns the current order book snapshot.
	FetchDepth(ctx context.Context) (models.MOrderBook, error)

	// -----------------------------------------------------------------------------

	// FetchSnapshot fetches candles and depth concurrently and combines them.
	// It fails if either fetch fails.
	FetchSnapshot(ctx context.Context, tf timeframe.Timeframe) (*models.MMarketSnapshot, error)
}
