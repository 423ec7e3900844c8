package viewer

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"market-relay/src/logger"
	"market-relay/src/models"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRelay accepts viewer channels and hands each one to handle.
type fakeRelay struct {
	server   *httptest.Server
	upgrader websocket.Upgrader

	mu       sync.Mutex
	received []string
	opened   []time.Time
}

func newFakeRelay(t *testing.T, handle func(conn *websocket.Conn, n int)) *fakeRelay {
	t.Helper()
	r := &fakeRelay{}
	r.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		conn, err := r.upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		r.mu.Lock()
		r.opened = append(r.opened, time.Now())
		n := len(r.opened)
		r.mu.Unlock()

		go func() {
			for {
				var msg models.MControlMessage
				if err := conn.ReadJSON(&msg); err != nil {
					return
				}
				r.mu.Lock()
				r.received = append(r.received, msg.Timeframe)
				r.mu.Unlock()
			}
		}()
		handle(conn, n)
	}))
	t.Cleanup(r.server.Close)
	return r
}

func (r *fakeRelay) url() string {
	return "ws" + strings.TrimPrefix(r.server.URL, "http")
}

func (r *fakeRelay) timeframes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.received...)
}

func (r *fakeRelay) opens() []time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Time(nil), r.opened...)
}

type statusLog struct {
	mu  sync.Mutex
	all []Status
}

func (l *statusLog) record(s Status) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.all = append(l.all, s)
}

func (l *statusLog) snapshot() []Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Status(nil), l.all...)
}

func quietLogger() *logger.Logger {
	return logger.NewLoggerWithWriter(io.Discard, "ERROR", "test")
}

func runViewer(t *testing.T, v *Viewer) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, v.Run(ctx))
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(3 * time.Second):
			t.Error("viewer did not stop")
		}
	})
}

func TestStatusTexts(t *testing.T) {
	assert.Equal(t, "WebSocket error occurred. Please check if the server is running.", Error.Text())
	assert.Equal(t, "WebSocket disconnected. Attempting to reconnect...", Disconnected.Text())
	assert.Empty(t, Connected.Text())
	assert.Equal(t, "disconnected", Disconnected.String())
}

func TestViewer_SendsTimeframeOnOpenAndDeliversSnapshots(t *testing.T) {
	relay := newFakeRelay(t, func(conn *websocket.Conn, _ int) {
		_ = conn.WriteJSON(models.MMarketSnapshot{
			Candlestick: []models.MCandle{{Time: 1, Open: "1", High: "2", Low: "0.5", Close: "1.5"}},
			OrderBook:   models.MOrderBook{Bids: []models.MOrderBookEntry{{Price: "1.4", Amount: "3"}}},
		})
	})

	got := make(chan *models.MMarketSnapshot, 1)
	v := New(Options{
		URL:        relay.url(),
		Timeframe:  "1h",
		Logger:     quietLogger(),
		OnSnapshot: func(s *models.MMarketSnapshot) { got <- s },
	})
	runViewer(t, v)

	select {
	case snap := <-got:
		require.Len(t, snap.Candlestick, 1)
		assert.Equal(t, "1.5", snap.Candlestick[0].Close)
		assert.Equal(t, "1.4", snap.OrderBook.Bids[0].Price)
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot delivered")
	}

	assert.Eventually(t, func() bool {
		return len(relay.timeframes()) == 1 && relay.timeframes()[0] == "1h"
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, Connected, v.Status())
}

func TestViewer_SetTimeframeWhileConnected(t *testing.T) {
	relay := newFakeRelay(t, func(*websocket.Conn, int) {})
	v := New(Options{URL: relay.url(), Timeframe: "1h", Logger: quietLogger()})
	runViewer(t, v)

	require.Eventually(t, func() bool { return v.Status() == Connected }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, v.SetTimeframe("1d"))

	assert.Eventually(t, func() bool {
		tfs := relay.timeframes()
		return len(tfs) == 2 && tfs[0] == "1h" && tfs[1] == "1d"
	}, time.Second, 10*time.Millisecond)
}

func TestViewer_ReconnectsAfterDelayAndResendsCurrentSelection(t *testing.T) {
	const delay = 300 * time.Millisecond

	drop := make(chan struct{})
	relay := newFakeRelay(t, func(conn *websocket.Conn, n int) {
		if n == 1 {
			<-drop
			// abrupt close, no close frame
			_ = conn.UnderlyingConn().Close()
		}
	})

	statuses := &statusLog{}
	v := New(Options{
		URL:            relay.url(),
		Timeframe:      "1h",
		ReconnectDelay: delay,
		Logger:         quietLogger(),
		OnStatus:       statuses.record,
	})
	runViewer(t, v)

	require.Eventually(t, func() bool { return v.Status() == Connected }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, v.SetTimeframe("15m"))
	require.Eventually(t, func() bool { return len(relay.timeframes()) == 2 }, time.Second, 10*time.Millisecond)

	close(drop)

	require.Eventually(t, func() bool { return len(relay.opens()) == 2 }, 3*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return len(relay.timeframes()) == 3 }, time.Second, 10*time.Millisecond)

	// the reopened channel carries the latest selection, not the initial one
	assert.Equal(t, []string{"1h", "15m", "15m"}, relay.timeframes())

	opens := relay.opens()
	assert.GreaterOrEqual(t, opens[1].Sub(opens[0]), delay)

	require.Eventually(t, func() bool { return v.Status() == Connected }, time.Second, 10*time.Millisecond)
	assert.Equal(t, []Status{Connected, Error, Disconnected, Connected}, statuses.snapshot())
	assert.EqualValues(t, 2, v.Dials())
}

func TestViewer_CleanCloseReportsOnlyDisconnected(t *testing.T) {
	relay := newFakeRelay(t, func(conn *websocket.Conn, n int) {
		if n == 1 {
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"))
		}
	})

	statuses := &statusLog{}
	v := New(Options{
		URL:            relay.url(),
		ReconnectDelay: 100 * time.Millisecond,
		Logger:         quietLogger(),
		OnStatus:       statuses.record,
	})
	runViewer(t, v)

	require.Eventually(t, func() bool { return len(relay.opens()) == 2 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return len(statuses.snapshot()) >= 3 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, []Status{Connected, Disconnected, Connected}, statuses.snapshot()[:3])
}

func TestViewer_DialFailureRetriesAtFixedDelay(t *testing.T) {
	// a listener that is already gone refuses every dial
	dead := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(dead.URL, "http")
	dead.Close()

	const delay = 200 * time.Millisecond
	statuses := &statusLog{}
	v := New(Options{
		URL:            url,
		ReconnectDelay: delay,
		Logger:         quietLogger(),
		OnStatus:       statuses.record,
	})

	start := time.Now()
	runViewer(t, v)

	require.Eventually(t, func() bool { return v.Dials() >= 3 }, 2*time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, time.Since(start), 2*delay)

	got := statuses.snapshot()
	require.GreaterOrEqual(t, len(got), 4)
	assert.Equal(t, []Status{Error, Disconnected, Error, Disconnected}, got[:4])
}

func TestViewer_SetTimeframeWhileDisconnectedIsKept(t *testing.T) {
	v := New(Options{URL: "ws://127.0.0.1:1", Logger: quietLogger()})

	assert.Equal(t, "1m", v.Timeframe())
	require.NoError(t, v.SetTimeframe("1w"))
	assert.Equal(t, "1w", v.Timeframe())
}

func TestViewer_RunStopsOnCancel(t *testing.T) {
	relay := newFakeRelay(t, func(*websocket.Conn, int) {})
	v := New(Options{URL: relay.url(), Logger: quietLogger()})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- v.Run(ctx) }()

	require.Eventually(t, func() bool { return v.Status() == Connected }, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
