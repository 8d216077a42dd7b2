// Package voice owns the lifecycle of the external voice transport. The
// supervisor hands out live handles, detects failure, and re-establishes the
// connection with capped exponential backoff and jitter. Reconnection is
// serialized: no matter how many callers block in Acquire, at most one dial
// loop is in flight.
package voice

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/hudhaifi/murattal/pkg/logging"
)

// State is the supervisor connection state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateDegraded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDegraded:
		return "degraded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

var (
	// ErrConnectTimeout is returned when Acquire waits past its deadline.
	ErrConnectTimeout = errors.New("voice: connect timeout")

	// ErrMaxAttemptsExceeded is the terminal error after the reconnect
	// attempt budget is spent. The supervisor does not retry past it.
	ErrMaxAttemptsExceeded = errors.New("voice: max reconnect attempts exceeded")

	errSupervisorClosed = errors.New("voice: supervisor closed")
)

// Config controls supervisor behavior.
type Config struct {
	ConnectTimeout     time.Duration
	BackoffBase        time.Duration
	BackoffCap         time.Duration
	JitterFraction     float64 // e.g. 0.25 for ±25%
	MaxAttempts        int     // 0 means retry forever
	StabilityThreshold time.Duration
}

// Validate checks supervisor configuration.
func (c Config) Validate() error {
	if c.ConnectTimeout <= 0 {
		return errors.New("voice: connect timeout must be > 0")
	}
	if c.BackoffBase <= 0 {
		return errors.New("voice: backoff base must be > 0")
	}
	if c.BackoffCap < c.BackoffBase {
		return errors.New("voice: backoff cap must be >= base")
	}
	if c.JitterFraction < 0 || c.JitterFraction > 1 {
		return errors.New("voice: jitter fraction must be within [0, 1]")
	}
	if c.MaxAttempts < 0 {
		return errors.New("voice: max attempts must be >= 0")
	}
	return nil
}

// Supervisor manages a single Transport, reconnecting on failure.
type Supervisor struct {
	cfg    Config
	dialer Dialer
	logger logging.Logger

	mu           sync.Mutex
	state        State
	transport    Transport
	ready        chan struct{} // closed while Connected
	attempt      int
	connectedAt  time.Time
	lastErr      error
	reconnecting bool
	everFailed   bool
	callbacks    []func(error)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// sleep is replaced in tests to observe backoff delays.
	sleep func(d time.Duration) bool
	rng   *rand.Rand
}

// NewSupervisor creates a supervisor. It does not dial until Acquire is
// called or a failure is reported.
func NewSupervisor(cfg Config, dialer Dialer, logger logging.Logger) (*Supervisor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if dialer == nil {
		return nil, errors.New("voice: dialer cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Supervisor{
		cfg:    cfg,
		dialer: dialer,
		logger: logger.With(logging.String("component", "voice_supervisor")),
		state:  StateDisconnected,
		ready:  make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	s.sleep = s.interruptibleSleep
	return s, nil
}

// Acquire blocks until a Connected handle is available or the configured
// maximum wait elapses, in which case it fails with ErrConnectTimeout. A
// terminal Failed supervisor fails immediately.
func (s *Supervisor) Acquire(ctx context.Context) (Transport, error) {
	deadline := time.NewTimer(s.cfg.ConnectTimeout)
	defer deadline.Stop()

	for {
		s.mu.Lock()
		switch s.state {
		case StateFailed:
			err := s.lastErr
			s.mu.Unlock()
			if err == nil {
				err = ErrMaxAttemptsExceeded
			}
			return nil, err
		case StateConnected:
			if s.transport != nil && s.transport.Ready() {
				tr := s.transport
				s.mu.Unlock()
				return tr, nil
			}
			// Handle is alive by our accounting but cannot take frames.
			s.state = StateDegraded
			s.beginReconnectLocked(errors.New("voice: transport not ready"))
		default:
			s.kickReconnectLocked()
		}
		ready := s.ready
		s.mu.Unlock()

		select {
		case <-ready:
		case <-deadline.C:
			return nil, ErrConnectTimeout
		case <-ctx.Done():
			return nil, errors.Wrap(ErrConnectTimeout, ctx.Err().Error())
		case <-s.ctx.Done():
			return nil, errSupervisorClosed
		}
	}
}

// OnFailure registers a callback invoked on every failure transition,
// including the terminal ErrMaxAttemptsExceeded.
func (s *Supervisor) OnFailure(cb func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callbacks = append(s.callbacks, cb)
}

// NotifyFailure reports that the live handle has died. The supervisor
// transitions to Disconnected, emits the failure event, and begins
// reconnecting. Reports while not Connected are ignored; the reconnect loop
// already owns the situation.
func (s *Supervisor) NotifyFailure(err error) {
	s.mu.Lock()
	if s.state != StateConnected && s.state != StateDegraded {
		s.mu.Unlock()
		return
	}
	s.beginReconnectLocked(err)
	s.mu.Unlock()
}

// State returns the current connection state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastError returns the most recent failure, if any.
func (s *Supervisor) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Release cancels the reconnect loop before closing the transport, so a dial
// attempt cannot race against teardown. The supervisor is unusable after.
func (s *Supervisor) Release() {
	s.cancel()
	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.transport != nil {
		if err := s.transport.Close(); err != nil {
			s.logger.Warn("Error closing transport", logging.Error(err))
		}
		s.transport = nil
	}
	s.state = StateDisconnected
}

// beginReconnectLocked records the failure, applies the stability reset, and
// starts the reconnect loop. Caller holds the lock.
func (s *Supervisor) beginReconnectLocked(err error) {
	if !s.connectedAt.IsZero() && time.Since(s.connectedAt) >= s.cfg.StabilityThreshold {
		// A long healthy run should not be punished for a one-off drop.
		s.attempt = 0
	}

	if s.transport != nil {
		s.transport.Close()
		s.transport = nil
	}
	s.state = StateDisconnected
	s.lastErr = err
	s.everFailed = true
	s.ready = make(chan struct{})

	s.logger.Warn("Transport failure detected",
		logging.Error(err),
		logging.Int("attempt", s.attempt),
	)

	s.emitLocked(err)
	s.kickReconnectLocked()
}

// kickReconnectLocked starts the reconnect loop unless one is already in
// flight. Caller holds the lock.
func (s *Supervisor) kickReconnectLocked() {
	if s.reconnecting || s.state == StateFailed || s.state == StateConnected {
		return
	}
	if s.ctx.Err() != nil {
		return
	}
	s.reconnecting = true
	s.state = StateConnecting
	s.wg.Add(1)
	go s.reconnectLoop()
}

func (s *Supervisor) reconnectLoop() {
	defer s.wg.Done()

	for {
		s.mu.Lock()
		attempt := s.attempt
		delayed := s.everFailed
		s.mu.Unlock()

		if s.cfg.MaxAttempts > 0 && attempt >= s.cfg.MaxAttempts {
			s.failTerminally()
			return
		}

		// The very first dial goes out immediately; only reconnects back off.
		if delayed {
			delay := s.backoffDelay(attempt)
			s.logger.Info("Reconnecting after backoff",
				logging.Int("attempt", attempt+1),
				logging.Duration("delay", delay),
			)
			if !s.sleep(delay) {
				return
			}
		}

		// The counter tracks reconnection attempts, not failed dials: a
		// transport that connects fine but keeps dropping must still back
		// off. Stability is what resets it.
		s.mu.Lock()
		if delayed {
			s.attempt++
		}
		s.mu.Unlock()

		dialCtx, cancel := context.WithTimeout(s.ctx, s.cfg.ConnectTimeout)
		tr, err := s.dialer.Dial(dialCtx)
		cancel()

		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.mu.Lock()
			s.lastErr = err
			s.everFailed = true
			s.mu.Unlock()
			s.logger.Warn("Dial failed",
				logging.Error(err),
				logging.Int("attempt", attempt+1),
			)
			continue
		}

		s.mu.Lock()
		s.transport = tr
		s.state = StateConnected
		s.connectedAt = time.Now()
		s.reconnecting = false
		close(s.ready)
		s.mu.Unlock()

		s.logger.Info("Transport connected", logging.Int("attempts_used", attempt+1))
		return
	}
}

func (s *Supervisor) failTerminally() {
	s.mu.Lock()
	s.state = StateFailed
	s.reconnecting = false
	err := errors.Wrapf(ErrMaxAttemptsExceeded, "after %d attempts, last error: %v", s.attempt, s.lastErr)
	s.lastErr = err
	s.emitLocked(err)
	// Wake blocked acquirers so they observe the terminal state instead of
	// waiting out their timeout.
	close(s.ready)
	s.mu.Unlock()

	s.logger.Error("Reconnect budget exhausted, supervisor is terminal", logging.Error(err))
}

// emitLocked dispatches callbacks without holding the lock across them.
func (s *Supervisor) emitLocked(err error) {
	cbs := make([]func(error), len(s.callbacks))
	copy(cbs, s.callbacks)
	go func() {
		for _, cb := range cbs {
			cb(err)
		}
	}()
}

// backoffDelay computes min(base*2^attempt, cap) ± jitter.
func (s *Supervisor) backoffDelay(attempt int) time.Duration {
	delay := s.cfg.BackoffBase
	for i := 0; i < attempt && delay < s.cfg.BackoffCap; i++ {
		delay *= 2
	}
	if delay > s.cfg.BackoffCap {
		delay = s.cfg.BackoffCap
	}

	if s.cfg.JitterFraction > 0 {
		s.mu.Lock()
		f := (s.rng.Float64()*2 - 1) * s.cfg.JitterFraction
		s.mu.Unlock()
		delay += time.Duration(float64(delay) * f)
	}

	if delay < 0 {
		delay = 0
	}
	return delay
}

// interruptibleSleep waits for d or supervisor shutdown. Returns false when
// interrupted.
func (s *Supervisor) interruptibleSleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-s.ctx.Done():
		return false
	}
}
