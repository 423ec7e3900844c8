package main

import (
	"market-relay/src/config"
	datasource "market-relay/src/data_source"
	"market-relay/src/data_source/binance"
	"market-relay/src/interfaces"
	"market-relay/src/logger"
	"market-relay/src/metrics"
	"market-relay/src/models"
	"market-relay/src/network"
	"market-relay/src/server"
)

// -----------------------------------------------------------------------------

// setupMetrics creates the relay's Prometheus collectors
func setupMetrics() *metrics.Metrics {
	return metrics.New()
}

// -----------------------------------------------------------------------------

// setupNetwork initializes the network manager
func setupNetwork(config *models.MConfig) interfaces.INetworkManager {
	networkLogger := logger.NewLogger(config.LogLevel, "NetworkManager")
	return network.NewAsyncNetworkManager(config, networkLogger)
}

// -----------------------------------------------------------------------------

// setupSource initializes one Binance source per configured base URL and
// wraps them in a failover manager when fallbacks are configured
func setupSource(conf *config.Config, networkManager interfaces.INetworkManager, appLogger *logger.Logger) (interfaces.IMarketSource, error) {
	sourceLogger := logger.NewLogger(conf.LogLevel, "BinanceSource")

	var sources []interfaces.IMarketSource
	for _, baseURL := range conf.BaseURLs() {
		mirrorConfig := *conf.MConfig
		mirrorConfig.Upstream.BaseURL = baseURL
		s := binance.NewBinanceSource(&mirrorConfig, networkManager, sourceLogger)
		sources = append(sources, s)
		appLogger.Info("Added source: %s", s.Name())
	}

	if len(sources) == 1 {
		return sources[0], nil
	}

	appLogger.Info("Initializing MultiSourceManager for %d sources.", len(sources))
	return datasource.NewMultiSourceManager(sources, logger.NewLogger(conf.LogLevel, "MultiSourceManager"))
}

// -----------------------------------------------------------------------------

// setupServer initializes the viewer-facing relay server
func setupServer(config *models.MConfig, source interfaces.IMarketSource, m *metrics.Metrics) *server.RelayServer {
	serverLogger := logger.NewLogger(config.LogLevel, "RelayServer")
	return server.NewRelayServer(config, source, m, serverLogger)
}
