package main

import (
	"context"
	"time"

	"market-relay/src/interfaces"
	"market-relay/src/logger"

	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// -----------------------------------------------------------------------------

// runServers serves until ctx is cancelled or the server fails, then shuts
// the server down gracefully.
func runServers(ctx context.Context, srv interfaces.IDataExchanger, appLogger *logger.Logger) error {
	g, gCtx := errgroup.WithContext(ctx)

	// 1. Relay server
	g.Go(func() error {
		return srv.Start()
	})

	// 2. Shutdown watcher
	g.Go(func() error {
		<-gCtx.Done()
		appLogger.Info("Shutting down (%d open viewer channels)...", srv.Connections())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
