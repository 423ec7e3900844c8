package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"market-relay/src/config"
	"market-relay/src/logger"
	"market-relay/src/models"
	"market-relay/src/viewer"
)

// -----------------------------------------------------------------------------

func main() {

	// 1. Parse command line flags
	configPath := flag.String("config", "config/default.yaml", "path to config file")
	url := flag.String("url", "", "relay WebSocket URL (overrides viewer.url)")
	tf := flag.String("timeframe", "", "timeframe to request: 1m, 15m, 1h, 1d or 1w (overrides viewer.timeframe)")
	flag.Parse()

	// 2. Load config
	conf, err := config.NewConfig(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *url != "" {
		conf.Viewer.URL = *url
	}
	if *tf != "" {
		conf.Viewer.Timeframe = *tf
	}

	// 3. Setup Logger
	appLogger := logger.NewLogger(conf.LogLevel, "Viewer")

	v := viewer.New(viewer.Options{
		URL:            conf.Viewer.URL,
		Timeframe:      conf.Viewer.Timeframe,
		ReconnectDelay: conf.ReconnectDelay(),
		Logger:         appLogger,
		OnSnapshot: func(s *models.MMarketSnapshot) {
			printSnapshot(appLogger, s)
		},
		OnStatus: func(s viewer.Status) {
			if text := s.Text(); text != "" {
				appLogger.Warning("%s", text)
			}
		},
	})

	// 4. Run until SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appLogger.Info("Connecting to %s (timeframe %s)", conf.Viewer.URL, conf.Viewer.Timeframe)
	if err := v.Run(ctx); err != nil {
		appLogger.Error("Viewer stopped: %v", err)
		os.Exit(1)
	}
}

// -----------------------------------------------------------------------------

// printSnapshot logs the last close and the top of book.
func printSnapshot(log *logger.Logger, s *models.MMarketSnapshot) {
	lastClose := "-"
	if n := len(s.Candlestick); n > 0 {
		lastClose = s.Candlestick[n-1].Close
	}
	bestBid, bestAsk := "-", "-"
	if len(s.OrderBook.Bids) > 0 {
		bestBid = s.OrderBook.Bids[0].Price
	}
	if len(s.OrderBook.Asks) > 0 {
		bestAsk = s.OrderBook.Asks[0].Price
	}
	log.Info("candles=%d close=%s bid=%s ask=%s", len(s.Candlestick), lastClose, bestBid, bestAsk)
}
