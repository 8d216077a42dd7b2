package voice

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hudhaifi/murattal/pkg/logging"
)

type fakeTransport struct {
	mu     sync.Mutex
	ready  bool
	closed bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{ready: true}
}

func (t *fakeTransport) WriteOpus([]byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.ready {
		return errors.New("not ready")
	}
	return nil
}

func (t *fakeTransport) Ready() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ready
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.ready = false
	return nil
}

// fakeDialer fails a configurable number of dials before succeeding.
type fakeDialer struct {
	mu       sync.Mutex
	failures int
	dials    int
}

func (d *fakeDialer) Dial(context.Context) (Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.dials <= d.failures {
		return nil, errors.New("dial refused")
	}
	return newFakeTransport(), nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func testConfig() Config {
	return Config{
		ConnectTimeout:     2 * time.Second,
		BackoffBase:        100 * time.Millisecond,
		BackoffCap:         2 * time.Second,
		JitterFraction:     0.25,
		MaxAttempts:        10,
		StabilityThreshold: 50 * time.Millisecond,
	}
}

// newTestSupervisor replaces the sleep function so backoff delays are
// observed instead of waited out.
func newTestSupervisor(t *testing.T, cfg Config, d Dialer) (*Supervisor, *[]time.Duration) {
	t.Helper()
	s, err := NewSupervisor(cfg, d, logging.Null())
	require.NoError(t, err)
	t.Cleanup(s.Release)

	var mu sync.Mutex
	delays := []time.Duration{}
	s.sleep = func(d time.Duration) bool {
		mu.Lock()
		delays = append(delays, d)
		mu.Unlock()
		return true
	}
	return s, &delays
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "zero connect timeout", mutate: func(c *Config) { c.ConnectTimeout = 0 }},
		{name: "zero backoff base", mutate: func(c *Config) { c.BackoffBase = 0 }},
		{name: "cap below base", mutate: func(c *Config) { c.BackoffCap = c.BackoffBase / 2 }},
		{name: "jitter above one", mutate: func(c *Config) { c.JitterFraction = 1.5 }},
		{name: "negative max attempts", mutate: func(c *Config) { c.MaxAttempts = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestAcquire_ConnectsOnFirstCall(t *testing.T) {
	d := &fakeDialer{}
	s, delays := newTestSupervisor(t, testConfig(), d)

	tr, err := s.Acquire(context.Background())
	require.NoError(t, err)
	require.NotNil(t, tr)
	assert.Equal(t, StateConnected, s.State())

	// The initial dial goes out immediately, without backoff.
	assert.Empty(t, *delays)
}

func TestAcquire_ReturnsSameHandleWhileConnected(t *testing.T) {
	d := &fakeDialer{}
	s, _ := newTestSupervisor(t, testConfig(), d)

	a, err := s.Acquire(context.Background())
	require.NoError(t, err)
	b, err := s.Acquire(context.Background())
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.Equal(t, 1, d.dialCount())
}

func TestAcquire_Timeout(t *testing.T) {
	cfg := testConfig()
	cfg.ConnectTimeout = 50 * time.Millisecond
	cfg.MaxAttempts = 0 // keep retrying so the timeout is what fires

	neverDialer := DialerFunc(func(ctx context.Context) (Transport, error) {
		return nil, errors.New("refused")
	})
	s, _ := newTestSupervisor(t, cfg, neverDialer)

	_, err := s.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrConnectTimeout)
}

func TestBackoff_DelaysGrowWithinJitterBounds(t *testing.T) {
	cfg := testConfig()
	d := &fakeDialer{failures: 2}
	s, delays := newTestSupervisor(t, cfg, d)

	// First dial fails immediately, then two backoff retries connect.
	tr, err := s.Acquire(context.Background())
	require.NoError(t, err)
	require.NotNil(t, tr)

	require.Len(t, *delays, 2)
	assertWithinJitter(t, 100*time.Millisecond, (*delays)[0], cfg.JitterFraction)
	assertWithinJitter(t, 200*time.Millisecond, (*delays)[1], cfg.JitterFraction)
}

func TestBackoff_CappedAtMax(t *testing.T) {
	cfg := testConfig()
	cfg.JitterFraction = 0
	s, err := NewSupervisor(cfg, &fakeDialer{}, logging.Null())
	require.NoError(t, err)
	defer s.Release()

	assert.Equal(t, 100*time.Millisecond, s.backoffDelay(0))
	assert.Equal(t, 200*time.Millisecond, s.backoffDelay(1))
	assert.Equal(t, 1600*time.Millisecond, s.backoffDelay(4))
	assert.Equal(t, 2*time.Second, s.backoffDelay(5))
	assert.Equal(t, 2*time.Second, s.backoffDelay(20))
}

func TestStabilityThreshold_ResetsAttemptCounter(t *testing.T) {
	cfg := testConfig()
	d := &fakeDialer{}
	s, delays := newTestSupervisor(t, cfg, d)

	_, err := s.Acquire(context.Background())
	require.NoError(t, err)

	// Two quick drops: delays climb 100ms then 200ms.
	s.NotifyFailure(errors.New("drop 1"))
	_, err = s.Acquire(context.Background())
	require.NoError(t, err)
	s.NotifyFailure(errors.New("drop 2"))
	_, err = s.Acquire(context.Background())
	require.NoError(t, err)

	require.Len(t, *delays, 2)
	assertWithinJitter(t, 100*time.Millisecond, (*delays)[0], cfg.JitterFraction)
	assertWithinJitter(t, 200*time.Millisecond, (*delays)[1], cfg.JitterFraction)

	// A sustained connected period resets the counter, so the next drop
	// starts over at the base delay instead of continuing to climb.
	time.Sleep(cfg.StabilityThreshold + 20*time.Millisecond)
	s.NotifyFailure(errors.New("drop after stability"))
	_, err = s.Acquire(context.Background())
	require.NoError(t, err)

	require.Len(t, *delays, 3)
	assertWithinJitter(t, 100*time.Millisecond, (*delays)[2], cfg.JitterFraction)
}

func TestMaxAttempts_TerminalFailure(t *testing.T) {
	cfg := testConfig()
	cfg.MaxAttempts = 2
	cfg.StabilityThreshold = time.Hour // never reset

	failing := DialerFunc(func(ctx context.Context) (Transport, error) {
		return nil, errors.New("refused")
	})
	s, _ := newTestSupervisor(t, cfg, failing)

	var fatal atomic.Value
	done := make(chan struct{})
	s.OnFailure(func(err error) {
		if errors.Is(err, ErrMaxAttemptsExceeded) {
			fatal.Store(err)
			close(done)
		}
	})

	_, err := s.Acquire(context.Background())
	assert.Error(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("fatal event was not emitted")
	}

	assert.Equal(t, StateFailed, s.State())
	require.NotNil(t, fatal.Load())

	// A terminal supervisor fails fast instead of silently retrying.
	_, err = s.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrMaxAttemptsExceeded)
}

func TestNotifyFailure_EmitsCallbacks(t *testing.T) {
	d := &fakeDialer{}
	s, _ := newTestSupervisor(t, testConfig(), d)

	got := make(chan error, 1)
	s.OnFailure(func(err error) { got <- err })

	_, err := s.Acquire(context.Background())
	require.NoError(t, err)

	cause := errors.New("heartbeat lost")
	s.NotifyFailure(cause)

	select {
	case err := <-got:
		assert.Contains(t, err.Error(), "heartbeat lost")
	case <-time.After(time.Second):
		t.Fatal("failure callback was not invoked")
	}
}

func TestNotifyFailure_IgnoredWhileDisconnected(t *testing.T) {
	d := &fakeDialer{}
	s, _ := newTestSupervisor(t, testConfig(), d)

	called := make(chan struct{}, 1)
	s.OnFailure(func(error) { called <- struct{}{} })

	s.NotifyFailure(errors.New("spurious"))

	select {
	case <-called:
		t.Fatal("callback fired for a failure report while disconnected")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestConcurrentAcquire_SingleDial(t *testing.T) {
	d := &fakeDialer{}
	s, _ := newTestSupervisor(t, testConfig(), d)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr, err := s.Acquire(context.Background())
			assert.NoError(t, err)
			assert.NotNil(t, tr)
		}()
	}
	wg.Wait()

	// Serialized reconnection: concurrent acquires share one dial.
	assert.Equal(t, 1, d.dialCount())
}

func assertWithinJitter(t *testing.T, want, got time.Duration, jitter float64) {
	t.Helper()
	lo := time.Duration(float64(want) * (1 - jitter - 0.01))
	hi := time.Duration(float64(want) * (1 + jitter + 0.01))
	assert.GreaterOrEqual(t, got, lo, "delay %v below jitter bound of %v", got, want)
	assert.LessOrEqual(t, got, hi, "delay %v above jitter bound of %v", got, want)
}
