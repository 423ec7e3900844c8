package datasource

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"market-relay/src/interfaces"
	"market-relay/src/logger"
	"market-relay/src/models"
	"market-relay/src/timeframe"
)

// MultiSourceManager serves IMarketSource from an ordered list of equivalent
// upstreams (e.g. API mirrors). Each call starts at the last source that
// answered and fails over to the next one on error.
type MultiSourceManager struct {
	Sources []interfaces.IMarketSource
	Logger  *logger.Logger

	preferred atomic.Int32
}

var _ interfaces.IMarketSource = (*MultiSourceManager)(nil)

// -----------------------------------------------------------------------------

func NewMultiSourceManager(sources []interfaces.IMarketSource, log *logger.Logger) (*MultiSourceManager, error) {
	if len(sources) == 0 {
		return nil, errors.New("no market sources configured")
	}

	seen := make(map[string]struct{}, len(sources))
	for _, s := range sources {
		if _, dup := seen[s.Name()]; dup {
			return nil, fmt.Errorf("source %s already exists", s.Name())
		}
		seen[s.Name()] = struct{}{}
	}

	return &MultiSourceManager{Sources: sources, Logger: log}, nil
}

// -----------------------------------------------------------------------------

func (m *MultiSourceManager) Name() string {
	names := make([]string, 0, len(m.Sources))
	for _, s := range m.Sources {
		names = append(names, s.Name())
	}
	return "multi(" + strings.Join(names, ",") + ")"
}

// -----------------------------------------------------------------------------

// GetSource retrieves a source by name
func (m *MultiSourceManager) GetSource(name string) (interfaces.IMarketSource, error) {
	for _, s := range m.Sources {
		if s.Name() == name {
			return s, nil
		}
	}
	return nil, fmt.Errorf("source %s not found", name)
}

// -----------------------------------------------------------------------------

// Preferred returns the source the next call will try first.
func (m *MultiSourceManager) Preferred() interfaces.IMarketSource {
	return m.Sources[int(m.preferred.Load())%len(m.Sources)]
}

// -----------------------------------------------------------------------------

func (m *MultiSourceManager) FetchCandles(ctx context.Context, tf timeframe.Timeframe) ([]models.MCandle, error) {
	return failover(ctx, m, func(s interfaces.IMarketSource) ([]models.MCandle, error) {
		return s.FetchCandles(ctx, tf)
	})
}

// -----------------------------------------------------------------------------

func (m *MultiSourceManager) FetchDepth(ctx context.Context) (models.MOrderBook, error) {
	return failover(ctx, m, func(s interfaces.IMarketSource) (models.MOrderBook, error) {
		return s.FetchDepth(ctx)
	})
}

// -----------------------------------------------------------------------------

// FetchSnapshot takes both views from the same source so a snapshot never
// mixes candles and depth from different upstreams.
func (m *MultiSourceManager) FetchSnapshot(ctx context.Context, tf timeframe.Timeframe) (*models.MMarketSnapshot, error) {
	return failover(ctx, m, func(s interfaces.IMarketSource) (*models.MMarketSnapshot, error) {
		return s.FetchSnapshot(ctx, tf)
	})
}

// -----------------------------------------------------------------------------

func failover[T any](ctx context.Context, m *MultiSourceManager, fetch func(interfaces.IMarketSource) (T, error)) (T, error) {
	var zero T
	n := len(m.Sources)
	start := int(m.preferred.Load())

	var errs []error
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		src := m.Sources[idx]

		v, err := fetch(src)
		if err == nil {
			if idx != start && m.preferred.CompareAndSwap(int32(start), int32(idx)) {
				m.Logger.Warning("Failing over to source %s", src.Name())
			}
			return v, nil
		}

		errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))
		if ctx.Err() != nil {
			break
		}
	}
	return zero, errors.Join(errs...)
}
