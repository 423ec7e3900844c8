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
)

// -----------------------------------------------------------------------------

func main() {

	// 1. Parse command line flags
	configPath := flag.String("config", "config/default.yaml", "path to config file")
	writeConfig := flag.String("write-config", "", "write the effective config to this path and exit")
	flag.Parse()

	// 2. Load config (defaults, YAML, .env, environment)
	conf, err := config.NewConfig(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	if *writeConfig != "" {
		if err := conf.Save(*writeConfig); err != nil {
			fmt.Printf("Error writing config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Config written to %s\n", *writeConfig)
		return
	}

	// 3. Setup Logger
	appLogger := logger.NewLogger(conf.LogLevel, conf.Name)

	// 4. Setup Components
	relayMetrics := setupMetrics()
	networkManager := setupNetwork(conf.MConfig)
	source, err := setupSource(conf, networkManager, appLogger)
	if err != nil {
		appLogger.Critical("Failed to init data sources: %v", err)
	}
	srv := setupServer(conf.MConfig, source, relayMetrics)

	appLogger.Info("Relaying %s from %s (source %s, refresh %s, default timeframe %s)",
		conf.Upstream.Symbol, conf.Upstream.BaseURL, source.Name(),
		conf.RefreshInterval(), conf.Session.DefaultTimeframe)

	// 5. Lifecycle: run until SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := runServers(ctx, srv, appLogger); err != nil {
		appLogger.Error("Relay stopped with error: %v", err)
		os.Exit(1)
	}
	appLogger.Info("Shutdown complete.")
}
