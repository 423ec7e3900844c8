package server

import (
	"context"
	"errors"
	"time"

	"market-relay/src/logger"
	"market-relay/src/models"
	"market-relay/src/session"

	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------
// Constants
// -----------------------------------------------------------------------------

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024 // control frames are tiny
)

var (
	errClientGone = errors.New("viewer channel closed")
	errClientSlow = errors.New("viewer send buffer full")
)

// -----------------------------------------------------------------------------
// Client Structure
// -----------------------------------------------------------------------------

// Client is one viewer channel. It owns exactly one session; the session
// pushes into send and writePump is the only writer on conn.
type Client struct {
	server  *RelayServer
	conn    *websocket.Conn
	send    chan *models.MMarketSnapshot
	done    chan struct{}
	session *session.Session
	logger  *logger.Logger
}

// -----------------------------------------------------------------------------

// enqueue is the session's push function. It never blocks: a viewer that
// cannot keep up loses the snapshot and gets the next one.
func (c *Client) enqueue(snapshot *models.MMarketSnapshot) error {
	select {
	case <-c.done:
		return errClientGone
	default:
	}

	select {
	case c.send <- snapshot:
		return nil
	default:
		return errClientSlow
	}
}

// -----------------------------------------------------------------------------
// readPump - handles incoming control messages
// Act as a Watchdog for the connection
// -----------------------------------------------------------------------------

func (c *Client) readPump() {
	defer func() {
		close(c.done)
		c.session.Close()
		c.conn.Close()
		c.server.connections.Add(-1)
		c.logger.Info("Viewer disconnected")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info("WebSocket error: %v", err)
			}
			return
		}
		c.session.HandleMessage(message)
	}
}

// -----------------------------------------------------------------------------
// writePump - sends snapshots to the viewer
// -----------------------------------------------------------------------------

func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case snapshot := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(snapshot); err != nil {
				c.logger.Info("Write error: %v", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-ctx.Done():
			// server shutting down
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"))
			return

		case <-c.done:
			return
		}
	}
}
