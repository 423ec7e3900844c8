package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"market-relay/src/interfaces"
	"market-relay/src/logger"
	"market-relay/src/metrics"
	"market-relay/src/models"
	"market-relay/src/timeframe"

	"github.com/google/uuid"
)

// -----------------------------------------------------------------------------
// States
// -----------------------------------------------------------------------------

type State int32

const (
	Idle State = iota
	Active
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Active:
		return "active"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

var (
	ErrNotIdle   = errors.New("session already started")
	ErrNotActive = errors.New("session is not active")
)

// PushFunc delivers one snapshot to the viewer channel. It is called with the
// session lock held, so it must not block or call back into the session.
type PushFunc func(*models.MMarketSnapshot) error

// -----------------------------------------------------------------------------

type Options struct {
	Period           time.Duration
	DefaultTimeframe timeframe.Timeframe
	Logger           *logger.Logger
	Metrics          *metrics.Metrics
}

// refreshLoop is one armed refresh timer. generation tags every snapshot it
// fetches so results from a superseded loop can be recognised and dropped.
type refreshLoop struct {
	generation uint64
	tf         timeframe.Timeframe
	cancel     context.CancelFunc
}

// Session is the per-viewer relay state: the selected timeframe and the
// single refresh loop that is armed for it.
type Session struct {
	ID string

	source    interfaces.IMarketSource
	push      PushFunc
	period    time.Duration
	defaultTF timeframe.Timeframe
	logger    *logger.Logger
	metrics   *metrics.Metrics

	mu         sync.Mutex
	state      State
	timeframe  timeframe.Timeframe
	generation uint64
	loop       *refreshLoop

	wg sync.WaitGroup

	arms    atomic.Int64
	disarms atomic.Int64
}

// -----------------------------------------------------------------------------

func New(source interfaces.IMarketSource, push PushFunc, opts Options) *Session {
	id := uuid.NewString()
	if opts.DefaultTimeframe == "" {
		opts.DefaultTimeframe = timeframe.Default
	}
	if opts.Period <= 0 {
		opts.Period = 5 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = logger.NewLogger("INFO", "Session")
	}

	return &Session{
		ID:        id,
		source:    source,
		push:      push,
		period:    opts.Period,
		defaultTF: timeframe.Parse(string(opts.DefaultTimeframe)),
		logger:    log.With("session", id),
		metrics:   opts.Metrics,
		state:     Idle,
	}
}

// -----------------------------------------------------------------------------
// Transitions
// -----------------------------------------------------------------------------

// Start moves the session from Idle to Active with the default timeframe and
// arms the refresh loop, which pushes immediately and then every period.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Idle {
		return ErrNotIdle
	}

	s.state = Active
	s.timeframe = s.defaultTF
	s.armLocked()

	if s.metrics != nil {
		s.metrics.SessionsActive.Inc()
	}
	s.logger.Info("Session started (timeframe %s)", s.timeframe)
	return nil
}

// -----------------------------------------------------------------------------

// SetTimeframe disarms the current loop, selects the mapped timeframe and
// arms a fresh loop whose first action is an immediate push. It does not
// wait for that push.
func (s *Session) SetTimeframe(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Active {
		return ErrNotActive
	}

	s.disarmLocked()
	s.timeframe = timeframe.Parse(token)
	s.armLocked()

	if s.metrics != nil {
		s.metrics.TimeframeChanges.WithLabelValues(s.timeframe.String()).Inc()
	}
	s.logger.Debug("Timeframe set to %s (requested %q)", s.timeframe, token)
	return nil
}

// -----------------------------------------------------------------------------

// Close is terminal. It disarms the loop and returns once every refresh
// goroutine of this session has exited, so nothing is pushed afterwards.
// Calling Close more than once is harmless.
func (s *Session) Close() {
	s.mu.Lock()
	if s.state == Closed {
		s.mu.Unlock()
		return
	}
	wasActive := s.state == Active
	s.state = Closed
	s.disarmLocked()
	s.mu.Unlock()

	s.wg.Wait()

	if wasActive && s.metrics != nil {
		s.metrics.SessionsActive.Dec()
	}
	arms, disarms := s.TimerStats()
	s.logger.Info("Session closed (timer arms=%d disarms=%d)", arms, disarms)
}

// -----------------------------------------------------------------------------
// Control protocol
// -----------------------------------------------------------------------------

// HandleMessage applies one inbound control frame. Frames that do not parse
// or carry an unknown type are ignored.
func (s *Session) HandleMessage(raw []byte) {
	var msg models.MControlMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.logger.Debug("Ignoring malformed control message: %v", err)
		return
	}

	switch msg.Type {
	case models.ControlSetTimeframe:
		if err := s.SetTimeframe(msg.Timeframe); err != nil {
			s.logger.Debug("Ignoring setTimeframe: %v", err)
		}
	default:
		s.logger.Debug("Ignoring control message of type %q", msg.Type)
	}
}

// -----------------------------------------------------------------------------
// Accessors
// -----------------------------------------------------------------------------

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Timeframe() timeframe.Timeframe {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeframe
}

// TimerStats returns how many times a refresh loop was armed and disarmed.
// arms never exceeds disarms+1.
func (s *Session) TimerStats() (arms, disarms int64) {
	return s.arms.Load(), s.disarms.Load()
}

// -----------------------------------------------------------------------------
// Refresh loop
// -----------------------------------------------------------------------------

func (s *Session) armLocked() {
	s.generation++
	ctx, cancel := context.WithCancel(context.Background())
	loop := &refreshLoop{
		generation: s.generation,
		tf:         s.timeframe,
		cancel:     cancel,
	}
	s.loop = loop
	s.arms.Add(1)

	s.wg.Add(1)
	go s.run(ctx, loop)
}

// -----------------------------------------------------------------------------

func (s *Session) disarmLocked() {
	if s.loop == nil {
		return
	}
	s.loop.cancel()
	s.loop = nil
	s.disarms.Add(1)
}

// -----------------------------------------------------------------------------

func (s *Session) run(ctx context.Context, loop *refreshLoop) {
	defer s.wg.Done()

	s.refresh(ctx, loop)

	// the period is measured from the end of the immediate push
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refresh(ctx, loop)
		}
	}
}

// -----------------------------------------------------------------------------

// refresh fetches one snapshot and emits it. Upstream failures are logged and
// counted; the loop keeps its cadence and the next tick retries.
func (s *Session) refresh(ctx context.Context, loop *refreshLoop) {
	start := time.Now()
	snapshot, err := s.source.FetchSnapshot(ctx, loop.tf)
	if s.metrics != nil {
		s.metrics.RefreshDuration.Observe(time.Since(start).Seconds())
	}

	if err != nil {
		if ctx.Err() != nil {
			s.dropped("cancelled")
			return
		}
		if s.metrics != nil {
			s.metrics.UpstreamFailures.Inc()
		}
		s.logger.Warning("Refresh failed for %s: %v", loop.tf, err)
		return
	}

	s.emit(loop, snapshot)
}

// -----------------------------------------------------------------------------

func (s *Session) emit(loop *refreshLoop, snapshot *models.MMarketSnapshot) {
	// held across push so a selection change cannot slip in between the
	// generation check and the emission
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Active || s.generation != loop.generation {
		s.dropped("stale")
		return
	}

	if err := s.push(snapshot); err != nil {
		s.dropped("push_failed")
		s.logger.Warning("Push failed: %v", err)
		return
	}

	if s.metrics != nil {
		s.metrics.Pushes.Inc()
	}
}

// -----------------------------------------------------------------------------

func (s *Session) dropped(reason string) {
	if s.metrics != nil {
		s.metrics.DroppedPushes.WithLabelValues(reason).Inc()
	}
	s.logger.Debug("Dropped refresh (%s)", reason)
}
