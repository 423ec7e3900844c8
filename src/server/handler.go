package server

import (
	"net/http"

	"market-relay/src/models"
	"market-relay/src/session"
	"market-relay/src/timeframe"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------
// WebSocket Handlers
// -----------------------------------------------------------------------------

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// -----------------------------------------------------------------------------

// handleWebSocket upgrades the request and starts a fresh session for it.
// Nothing is carried over from earlier channels, even from the same viewer.
func (s *RelayServer) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.Logger.Info("Failed to upgrade websocket: %v", err)
		return
	}

	client := &Client{
		server: s,
		conn:   conn,
		send:   make(chan *models.MMarketSnapshot, s.sendBuffer()),
		done:   make(chan struct{}),
	}
	client.session = session.New(s.Source, client.enqueue, session.Options{
		Period:           s.Config.RefreshInterval(),
		DefaultTimeframe: timeframe.Parse(s.Config.Session.DefaultTimeframe),
		Logger:           s.Logger,
		Metrics:          s.Metrics,
	})
	client.logger = s.Logger.With("session", client.session.ID)

	s.connections.Add(1)
	client.logger.Info("Viewer connected from %s", c.ClientIP())

	go client.writePump(s.ctx)

	if err := client.session.Start(); err != nil {
		client.logger.Error("Failed to start session: %v", err)
	}

	go client.readPump()
}

// -----------------------------------------------------------------------------

func (s *RelayServer) sendBuffer() int {
	if s.Config.Session.SendBuffer > 0 {
		return s.Config.Session.SendBuffer
	}
	return 16
}
