package viewer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"market-relay/src/logger"
	"market-relay/src/models"
	"market-relay/src/timeframe"

	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------
// Status
// -----------------------------------------------------------------------------

type Status int32

// Connecting is the state before the first open; it is never reported.
const (
	Connecting Status = iota
	Connected
	Error
	Disconnected
)

const (
	ErrorText        = "WebSocket error occurred. Please check if the server is running."
	DisconnectedText = "WebSocket disconnected. Attempting to reconnect..."
)

func (s Status) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Error:
		return "error"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Text is the user-visible message for s; empty when there is nothing to show.
func (s Status) Text() string {
	switch s {
	case Error:
		return ErrorText
	case Disconnected:
		return DisconnectedText
	default:
		return ""
	}
}

// -----------------------------------------------------------------------------
// Viewer
// -----------------------------------------------------------------------------

type Options struct {
	URL            string
	Timeframe      string
	ReconnectDelay time.Duration
	Logger         *logger.Logger

	// OnSnapshot receives every snapshot pushed by the relay.
	OnSnapshot func(*models.MMarketSnapshot)
	// OnStatus is called on each status transition.
	OnStatus func(Status)
}

// Viewer keeps one channel to the relay open, reconnecting after a fixed
// delay whenever it drops. The current timeframe selection is sent on every
// open, so a reconnect resumes whatever the user picked last.
type Viewer struct {
	url        string
	delay      time.Duration
	logger     *logger.Logger
	dialer     *websocket.Dialer
	onSnapshot func(*models.MMarketSnapshot)
	onStatus   func(Status)

	// mu guards the selection and the live connection, and serialises writes
	mu        sync.Mutex
	timeframe string
	conn      *websocket.Conn

	status atomic.Int32
	dials  atomic.Int64
}

// -----------------------------------------------------------------------------

func New(opts Options) *Viewer {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 5 * time.Second
	}
	if opts.Timeframe == "" {
		opts.Timeframe = string(timeframe.Default)
	}
	log := opts.Logger
	if log == nil {
		log = logger.NewLogger("INFO", "Viewer")
	}

	return &Viewer{
		url:        opts.URL,
		delay:      opts.ReconnectDelay,
		logger:     log,
		dialer:     &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		onSnapshot: opts.OnSnapshot,
		onStatus:   opts.OnStatus,
		timeframe:  opts.Timeframe,
	}
}

// -----------------------------------------------------------------------------

// Run connects and keeps reconnecting until ctx is done. Only this loop ever
// dials, so at most one reconnect is pending at any time.
func (v *Viewer) Run(ctx context.Context) error {
	for {
		err := v.connect(ctx)
		if ctx.Err() != nil {
			return nil
		}

		if err != nil {
			v.logger.Error("WebSocket error: %v", err)
			v.setStatus(Error)
		}
		v.logger.Info("WebSocket disconnected. Attempting to reconnect...")
		v.setStatus(Disconnected)

		timer := time.NewTimer(v.delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// -----------------------------------------------------------------------------

// SetTimeframe records the selection and, when connected, sends it at once.
// While disconnected the selection is sent on the next open.
func (v *Viewer) SetTimeframe(token string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.timeframe = token
	if v.conn == nil {
		return nil
	}
	return v.sendLocked(v.conn)
}

// -----------------------------------------------------------------------------

func (v *Viewer) Timeframe() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.timeframe
}

func (v *Viewer) Status() Status {
	return Status(v.status.Load())
}

// Dials returns how many connection attempts have been made.
func (v *Viewer) Dials() int64 {
	return v.dials.Load()
}

// -----------------------------------------------------------------------------
// Connection
// -----------------------------------------------------------------------------

// connect runs one connection from dial to drop. It returns nil when the
// relay closed the channel cleanly.
func (v *Viewer) connect(ctx context.Context) error {
	v.dials.Add(1)

	conn, resp, err := v.dialer.DialContext(ctx, v.url, nil)
	if err != nil {
		if resp != nil {
			v.logger.Debug("Dial rejected with status %d", resp.StatusCode)
		}
		return err
	}
	defer conn.Close()

	v.mu.Lock()
	v.conn = conn
	err = v.sendLocked(conn)
	v.mu.Unlock()

	defer func() {
		v.mu.Lock()
		v.conn = nil
		v.mu.Unlock()
	}()

	if err != nil {
		return err
	}
	v.logger.Info("WebSocket connected")
	v.setStatus(Connected)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "viewer shutdown"),
				time.Now().Add(time.Second))
			_ = conn.Close()
		case <-stop:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}

		var snapshot models.MMarketSnapshot
		if err := json.Unmarshal(raw, &snapshot); err != nil {
			v.logger.Warning("Ignoring malformed snapshot: %v", err)
			continue
		}
		if v.onSnapshot != nil {
			v.onSnapshot(&snapshot)
		}
	}
}

// -----------------------------------------------------------------------------

var errNotConnected = errors.New("viewer not connected")

func (v *Viewer) sendLocked(conn *websocket.Conn) error {
	if conn == nil {
		return errNotConnected
	}
	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteJSON(models.MControlMessage{
		Type:      models.ControlSetTimeframe,
		Timeframe: v.timeframe,
	})
}

// -----------------------------------------------------------------------------

func (v *Viewer) setStatus(s Status) {
	v.status.Store(int32(s))
	if v.onStatus != nil {
		v.onStatus(s)
	}
}
