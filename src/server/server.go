package server

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"market-relay/src/interfaces"
	"market-relay/src/logger"
	"market-relay/src/metrics"
	"market-relay/src/models"
	"market-relay/src/timeframe"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// -----------------------------------------------------------------------------
// RelayServer
// -----------------------------------------------------------------------------

// RelayServer accepts viewer channels and gives each one its own session.
// Sessions share nothing; the server only counts open connections.
type RelayServer struct {
	Config  *models.MConfig
	Logger  *logger.Logger
	Source  interfaces.IMarketSource
	Metrics *metrics.Metrics

	engine     *gin.Engine
	httpServer *http.Server

	connections atomic.Int64

	// cancelled on Shutdown so that hijacked websocket connections close too
	ctx    context.Context
	cancel context.CancelFunc
}

var _ interfaces.IDataExchanger = (*RelayServer)(nil)

// -----------------------------------------------------------------------------
// Constructor
// -----------------------------------------------------------------------------

func NewRelayServer(cfg *models.MConfig, source interfaces.IMarketSource, m *metrics.Metrics, log *logger.Logger) *RelayServer {
	// Set Gin mode
	if cfg.LogLevel != "DEBUG" {
		gin.SetMode(gin.ReleaseMode)
	}
	if m == nil {
		m = metrics.New()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &RelayServer{
		Config:  cfg,
		Logger:  log,
		Source:  source,
		Metrics: m,
		engine:  gin.Default(),
		ctx:     ctx,
		cancel:  cancel,
	}

	s.engine.Use(cors.Default())

	// setup web routes
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
		MaxHeaderBytes:    16 * 1024,
	}
	return s
}

// -----------------------------------------------------------------------------
// Route Setup
// -----------------------------------------------------------------------------

func (s *RelayServer) setupRoutes() {
	// REST API endpoints
	s.engine.GET("/api/health", s.getHealth)
	s.engine.GET("/api/config", s.getConfig)
	s.engine.GET("/metrics", gin.WrapH(s.Metrics.Handler()))

	// WebSocket endpoint; "/" keeps plain ws://host:port viewers working
	s.engine.GET("/ws", s.handleWebSocket)
	s.engine.GET("/", s.handleWebSocket)
}

// -----------------------------------------------------------------------------
// Server Lifecycle
// -----------------------------------------------------------------------------

// Handler exposes the gin engine, e.g. for httptest servers.
func (s *RelayServer) Handler() http.Handler {
	return s.engine
}

// -----------------------------------------------------------------------------

func (s *RelayServer) Start() error {
	s.Logger.Info("Starting relay on %s (symbol %s)", s.httpServer.Addr, s.Config.Upstream.Symbol)

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// -----------------------------------------------------------------------------

func (s *RelayServer) Shutdown(ctx context.Context) error {
	s.cancel()
	return s.httpServer.Shutdown(ctx)
}

// -----------------------------------------------------------------------------

func (s *RelayServer) Connections() int64 {
	return s.connections.Load()
}

// -----------------------------------------------------------------------------
// Route Handlers
// -----------------------------------------------------------------------------

func (s *RelayServer) getHealth(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"connections": s.Connections(),
	})
}

// -----------------------------------------------------------------------------

func (s *RelayServer) getConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"symbol":                   s.Config.Upstream.Symbol,
		"timeframes":               timeframe.Supported(),
		"default_timeframe":        s.Config.Session.DefaultTimeframe,
		"refresh_interval_seconds": s.Config.Session.RefreshIntervalSeconds,
	})
}
