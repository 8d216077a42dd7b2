package playback

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/hudhaifi/murattal/pkg/cache"
	"github.com/hudhaifi/murattal/pkg/catalog"
	"github.com/hudhaifi/murattal/pkg/logging"
	"github.com/hudhaifi/murattal/pkg/metrics"
	"github.com/hudhaifi/murattal/pkg/position"
	"github.com/hudhaifi/murattal/pkg/queue"
	"github.com/hudhaifi/murattal/pkg/voice"
)

// trackResolver resolves a catalog track to a playable location.
type trackResolver interface {
	Resolve(ctx context.Context, t catalog.Track) (*catalog.StreamSource, error)
}

// historyRecorder persists playback sessions off the audio path. All methods
// are called from short-lived goroutines.
type historyRecorder interface {
	StartSession(ctx context.Context, reciter, trackID string) (int64, error)
	EndSession(ctx context.Context, id, framesSent int64, reason string) error
	RecordRecovery(ctx context.Context, sessionID int64, attempt int, delay time.Duration, cause string) error
}

// Deps are the collaborators the engine drives. History and Metrics may be
// nil; everything else is required.
type Deps struct {
	Queue      *queue.Queue
	Supervisor *voice.Supervisor
	Positions  *position.Store
	Resolver   trackResolver
	Provider   catalog.Provider
	History    historyRecorder
	Metrics    *metrics.Collector
	CacheStats func() cache.Stats
	Logger     logging.Logger
}

type cmdKind int

const (
	cmdStart cmdKind = iota
	cmdPause
	cmdResume
	cmdSkip
	cmdSetMode
	cmdSetReciter
	cmdShutdown
)

type command struct {
	kind    cmdKind
	resume  bool
	mode    queue.Mode
	reciter string
	reply   chan error
}

// playSession is one active decode-and-deliver run for a single track.
type playSession struct {
	source    pcmSource
	encoder   frameEncoder
	transport voice.Transport
	stop      chan struct{}
	done      sync.WaitGroup
}

type sessionResult struct {
	sess      *playSession
	err       error
	transport bool
}

type recoveryResult struct {
	transport voice.Transport
	err       error
}

// Engine is the playback state machine. A single goroutine owns every state
// transition; control methods post commands to it and wait for an ack.
type Engine struct {
	cfg Config

	queue      *queue.Queue
	sup        *voice.Supervisor
	positions  *position.Store
	resolver   trackResolver
	provider   catalog.Provider
	history    historyRecorder
	metrics    *metrics.Collector
	cacheStats func() cache.Stats
	logger     logging.Logger

	newSource  sourceFactory
	newEncoder encoderFactory

	cmdCh       chan command
	failureCh   chan error
	doneCh      chan sessionResult
	recoveredCh chan recoveryResult

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool

	// loop-owned, never touched outside run()
	session       *playSession
	reciter       string
	startOffset   time.Duration
	pendingSkip   bool
	pendingPause  bool
	recoveryStart time.Time
	recoveryCount int
	histSess      *historySession

	frames atomic.Int64

	mu      sync.Mutex
	state   State
	track   *catalog.Track
	lastErr error
}

// New creates the engine and starts its command loop.
func New(cfg Config, deps Deps) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Queue == nil || deps.Supervisor == nil || deps.Positions == nil || deps.Resolver == nil {
		return nil, errors.New("playback: queue, supervisor, positions and resolver are required")
	}
	if deps.Logger == nil {
		deps.Logger = logging.Null()
	}
	if deps.CacheStats == nil {
		deps.CacheStats = func() cache.Stats { return cache.Stats{} }
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		cfg:         cfg,
		queue:       deps.Queue,
		sup:         deps.Supervisor,
		positions:   deps.Positions,
		resolver:    deps.Resolver,
		provider:    deps.Provider,
		history:     deps.History,
		metrics:     deps.Metrics,
		cacheStats:  deps.CacheStats,
		logger:      deps.Logger.With(logging.String("component", "playback")),
		newSource:   newSource,
		newEncoder:  newGopusEncoder,
		cmdCh:       make(chan command),
		failureCh:   make(chan error, 1),
		doneCh:      make(chan sessionResult, 1),
		recoveredCh: make(chan recoveryResult, 1),
		ctx:         ctx,
		cancel:      cancel,
		reciter:     cfg.Reciter,
		state:       StateIdle,
	}

	// Transport drops surface here regardless of which side noticed first.
	e.sup.OnFailure(func(err error) {
		select {
		case e.failureCh <- err:
		default:
		}
	})

	e.wg.Add(1)
	go e.run()
	return e, nil
}

// Begin starts playback, optionally resuming from the persisted position.
func (e *Engine) Begin(ctx context.Context, resume bool) error {
	return e.send(ctx, command{kind: cmdStart, resume: resume})
}

// Pause halts frame delivery but keeps the current track and offset.
func (e *Engine) Pause(ctx context.Context) error {
	return e.send(ctx, command{kind: cmdPause})
}

// Resume continues a paused track from its recorded offset.
func (e *Engine) Resume(ctx context.Context) error {
	return e.send(ctx, command{kind: cmdResume})
}

// Skip advances to the next track. Outside Playing and Paused it is a no-op;
// during Recovering it is queued and applied after the connection returns.
func (e *Engine) Skip(ctx context.Context) error {
	return e.send(ctx, command{kind: cmdSkip})
}

// SetQueueMode changes the traversal mode without interrupting playback.
func (e *Engine) SetQueueMode(ctx context.Context, mode queue.Mode) error {
	return e.send(ctx, command{kind: cmdSetMode, mode: mode})
}

// SetReciter swaps the catalog and restarts playback from its first track.
func (e *Engine) SetReciter(ctx context.Context, reciter string) error {
	return e.send(ctx, command{kind: cmdSetReciter, reciter: reciter})
}

// Status returns a snapshot without blocking on playback progress.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{
		State:         e.state,
		Track:         e.track,
		OffsetSeconds: e.offsetLocked().Seconds(),
		ConnState:     e.sup.State(),
		LastError:     e.lastErr,
		Cache:         e.cacheStats(),
	}
}

// Close shuts the engine down, persisting the position first.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := e.send(context.Background(), command{kind: cmdShutdown})
	e.wg.Wait()
	if errors.Is(err, ErrEngineClosed) {
		return nil
	}
	return err
}

func (e *Engine) send(ctx context.Context, cmd command) error {
	cmd.reply = make(chan error, 1)
	select {
	case e.cmdCh <- cmd:
	case <-e.ctx.Done():
		return ErrEngineClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) run() {
	defer e.wg.Done()

	saveTicker := time.NewTicker(e.cfg.SaveInterval)
	defer saveTicker.Stop()

	for {
		select {
		case cmd := <-e.cmdCh:
			if cmd.kind == cmdShutdown {
				e.shutdown()
				cmd.reply <- nil
				return
			}
			cmd.reply <- e.handleCommand(cmd)

		case err := <-e.failureCh:
			e.handleTransportFailure(err)

		case res := <-e.doneCh:
			e.handleSessionEnd(res)

		case res := <-e.recoveredCh:
			e.handleRecovered(res)

		case <-saveTicker.C:
			if e.currentState() == StatePlaying {
				e.savePosition()
			}

		case <-e.ctx.Done():
			e.shutdown()
			return
		}
	}
}

func (e *Engine) handleCommand(cmd command) error {
	switch cmd.kind {
	case cmdStart:
		return e.handleStart(cmd.resume)

	case cmdPause:
		switch e.currentState() {
		case StatePlaying:
			e.stopSession("paused")
			e.savePosition()
			e.setState(StatePaused)
		case StateRecovering:
			e.pendingPause = true
		}
		return nil

	case cmdResume:
		switch e.currentState() {
		case StatePaused:
			return e.playCurrent(e.resumeOffset())
		case StateRecovering:
			e.pendingPause = false
		}
		return nil

	case cmdSkip:
		switch e.currentState() {
		case StatePlaying:
			e.stopSession("skipped")
			e.advanceAndPlay()
		case StatePaused:
			next := e.queue.Advance()
			e.setTrack(next, 0)
			if next == nil {
				e.setState(StateIdle)
			}
			e.savePosition()
		case StateRecovering:
			e.pendingSkip = true
		}
		return nil

	case cmdSetMode:
		e.queue.SetMode(cmd.mode)
		if e.currentState() == StatePlaying || e.currentState() == StatePaused {
			e.savePosition()
		}
		return nil

	case cmdSetReciter:
		return e.handleSetReciter(cmd.reciter)
	}
	return nil
}

func (e *Engine) handleStart(resume bool) error {
	switch e.currentState() {
	case StateIdle, StateStopped:
	default:
		return nil
	}

	if resume {
		if offset, ok := e.restorePosition(); ok {
			return e.playCurrent(offset)
		}
	}
	return e.startFresh()
}

// startFresh begins a new traversal at the head of the queue.
func (e *Engine) startFresh() error {
	if e.queue.Advance() == nil {
		e.setTrack(nil, 0)
		e.setState(StateIdle)
		return nil
	}
	return e.playCurrent(0)
}

// restorePosition reconciles the persisted position with the loaded catalog
// and reports whether the queue was positioned on the saved track. Any
// discrepancy falls back to a fresh start from the queue head.
func (e *Engine) restorePosition() (time.Duration, bool) {
	rec, err := e.positions.Load()
	if err != nil {
		e.logger.Warn("position artifact unreadable, starting fresh", logging.Error(err))
		if clearErr := e.positions.Clear(); clearErr != nil {
			e.logger.Warn("failed to clear position artifact", logging.Error(clearErr))
		}
		return 0, false
	}
	if rec == nil {
		return 0, false
	}

	if rec.Reciter != e.reciter {
		e.logger.Warn("saved position belongs to another reciter, starting fresh",
			logging.String("saved_reciter", rec.Reciter),
			logging.String("reciter", e.reciter))
		return 0, false
	}

	// Restore the saved shuffle seed before the mode so a shuffled order is
	// rebuilt from the seed the traversal was saved under.
	e.queue.SetSeed(rec.ShuffleSeed)
	if mode, err := queue.ParseMode(rec.QueueMode); err == nil {
		e.queue.SetMode(mode)
	}

	if !e.queue.SeekTo(rec.TrackID) {
		e.logger.Warn("saved track missing from catalog, starting fresh",
			logging.String("track_id", rec.TrackID))
		return 0, false
	}

	e.logger.Info("resuming playback",
		logging.String("track_id", rec.TrackID),
		logging.Float64("offset_seconds", rec.OffsetSeconds))
	return time.Duration(rec.OffsetSeconds * float64(time.Second)), true
}

func (e *Engine) handleSetReciter(reciter string) error {
	if e.provider == nil {
		return errors.New("playback: no catalog provider configured")
	}

	tracks, err := e.provider.Catalog(e.ctx, reciter)
	if err != nil {
		return errors.Wrapf(err, "loading catalog for %q", reciter)
	}

	wasPlaying := e.currentState() == StatePlaying
	e.stopSession("reciter changed")

	e.reciter = reciter
	e.queue.LoadCatalog(tracks)
	if err := e.positions.Clear(); err != nil {
		e.logger.Warn("failed to clear position artifact", logging.Error(err))
	}
	e.logger.Info("reciter changed",
		logging.String("reciter", reciter),
		logging.Int("tracks", len(tracks)))

	if wasPlaying {
		return e.startFresh()
	}
	e.setTrack(e.queue.Current(), 0)
	return nil
}

// playCurrent resolves the queue's current track and starts delivering it at
// the given offset. Tracks that cannot be resolved or started are skipped; a
// full failed pass over the queue stops the engine.
func (e *Engine) playCurrent(offset time.Duration) error {
	track := e.queue.Current()
	if track == nil {
		e.setTrack(nil, 0)
		e.setState(StateIdle)
		return nil
	}

	failures := 0
	bound := e.queue.Len()
	for {
		src, err := e.resolveWithRetry(*track)
		if err != nil {
			e.logger.Warn("track resolution failed, advancing",
				logging.String("track_id", track.ID()),
				logging.Error(err))
			if e.metrics != nil {
				e.metrics.IncrCounter("playback.resolution_failures", 1)
			}
		} else {
			e.setState(StateConnecting)
			transport, acqErr := e.sup.Acquire(e.ctx)
			if acqErr != nil {
				e.setState(StateStopped)
				e.setErr(e.classifyAcquireErr(acqErr))
				return acqErr
			}

			err = e.startSession(track, src, offset, transport)
			if err == nil {
				return nil
			}
			// An unopenable or unencodable source is a per-track failure,
			// same as a resolution miss.
			e.logger.Warn("track failed to start, advancing",
				logging.String("track_id", track.ID()),
				logging.Error(err))
			if e.metrics != nil {
				e.metrics.IncrCounter("playback.start_failures", 1)
			}
		}

		failures++
		offset = 0
		if failures >= bound {
			e.setState(StateStopped)
			e.setErr(errors.Wrap(ErrAllTracksFailed, err.Error()))
			return ErrAllTracksFailed
		}
		track = e.queue.Advance()
		if track == nil {
			e.setTrack(nil, 0)
			e.setState(StateIdle)
			return nil
		}
	}
}

func (e *Engine) resolveWithRetry(track catalog.Track) (*catalog.StreamSource, error) {
	var lastErr error
	for attempt := 0; attempt <= e.cfg.ResolutionRetries; attempt++ {
		src, err := e.resolver.Resolve(e.ctx, track)
		if err == nil {
			return src, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func (e *Engine) startSession(track *catalog.Track, src *catalog.StreamSource, offset time.Duration, transport voice.Transport) error {
	source, err := e.newSource(e.cfg, src, offset)
	if err != nil {
		return errors.Wrapf(err, "opening source for %s", track.ID())
	}
	encoder, err := e.newEncoder(e.cfg.Bitrate)
	if err != nil {
		source.Close()
		return err
	}

	sess := &playSession{
		source:    source,
		encoder:   encoder,
		transport: transport,
		stop:      make(chan struct{}),
	}
	e.session = sess
	e.setTrack(track, offset)
	e.setState(StatePlaying)
	e.setErr(nil)

	e.recordSessionStart(track)
	e.logger.Info("playing track",
		logging.String("track_id", track.ID()),
		logging.Duration("offset", offset))

	sess.done.Add(1)
	go e.deliver(sess)
	return nil
}

// deliver pumps frames from the source through the encoder into the
// transport. Pacing comes from the transport itself, which blocks at the
// voice send rate.
func (e *Engine) deliver(sess *playSession) {
	defer sess.done.Done()

	pcm := make([]int16, framePCMLen)
	for {
		select {
		case <-sess.stop:
			return
		default:
		}

		if err := sess.source.ReadFrame(pcm); err != nil {
			if errors.Is(err, io.EOF) {
				e.reportDone(sess, nil, false)
			} else {
				e.reportDone(sess, err, false)
			}
			return
		}

		frame, err := sess.encoder.Encode(pcm)
		if err != nil {
			e.reportDone(sess, errors.Wrap(err, "encoding frame"), false)
			return
		}

		if err := sess.transport.WriteOpus(frame); err != nil {
			e.reportDone(sess, err, true)
			return
		}
		e.frames.Add(1)
	}
}

func (e *Engine) reportDone(sess *playSession, err error, transport bool) {
	select {
	case e.doneCh <- sessionResult{sess: sess, err: err, transport: transport}:
	case <-sess.stop: // session torn down, report is moot
	case <-e.ctx.Done():
	}
}

func (e *Engine) handleSessionEnd(res sessionResult) {
	if res.sess != e.session {
		return // stale report from an already-stopped session
	}

	if res.transport {
		e.sup.NotifyFailure(res.err)
		e.enterRecovering(res.err)
		return
	}

	if res.err == nil {
		e.finishSession("completed")
		if e.metrics != nil {
			e.metrics.IncrCounter("playback.tracks_completed", 1)
		}
		e.advanceAndPlay()
		return
	}

	// Decode failures are per-track: log, advance, keep going.
	e.logger.Error("track playback failed", logging.Error(res.err))
	e.finishSession("error")
	e.advanceAndPlay()
}

func (e *Engine) advanceAndPlay() {
	next := e.queue.Advance()
	if next == nil {
		e.setTrack(nil, 0)
		e.setState(StateIdle)
		if err := e.positions.Clear(); err != nil {
			e.logger.Warn("failed to clear position artifact", logging.Error(err))
		}
		e.logger.Info("queue exhausted")
		return
	}
	if err := e.playCurrent(0); err != nil {
		e.logger.Error("failed to start next track", logging.Error(err))
		return
	}
	// Persist the new track immediately so a crash cannot resurrect the
	// previous one mid-stream.
	e.savePosition()
}

func (e *Engine) handleTransportFailure(err error) {
	switch e.currentState() {
	case StatePlaying, StatePaused:
		e.enterRecovering(err)
	case StateRecovering:
		// already recovering, the supervisor keeps retrying
	}
}

func (e *Engine) enterRecovering(cause error) {
	e.stopSession("")
	e.savePosition()
	e.pendingPause = e.currentState() == StatePaused
	e.pendingSkip = false
	e.setState(StateRecovering)
	e.recoveryStart = time.Now()
	e.recoveryCount++
	if e.metrics != nil {
		e.metrics.IncrCounter("playback.recoveries", 1)
	}
	e.logger.Warn("transport failed, recovering", logging.Error(cause))

	e.recordRecovery(cause)
	e.awaitTransport()
}

// awaitTransport asks the supervisor for a connection off the command loop
// and posts the result to recoveredCh.
func (e *Engine) awaitTransport() {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		transport, err := e.sup.Acquire(e.ctx)
		select {
		case e.recoveredCh <- recoveryResult{transport: transport, err: err}:
		case <-e.ctx.Done():
		}
	}()
}

func (e *Engine) handleRecovered(res recoveryResult) {
	if e.currentState() != StateRecovering {
		return
	}

	if res.err != nil {
		// Only the supervisor giving up for good ends recovery. A timed-out
		// acquire just means the outage outlasted one wait, so keep waiting
		// while the supervisor reconnects behind us.
		if errors.Is(res.err, voice.ErrMaxAttemptsExceeded) {
			e.setState(StateStopped)
			e.setErr(errors.Wrap(ErrMaxRecoveryAttempts, res.err.Error()))
			e.logger.Error("recovery abandoned", logging.Error(res.err))
			return
		}
		if e.ctx.Err() != nil {
			return
		}
		e.logger.Warn("transport still down, waiting", logging.Error(res.err))
		e.awaitTransport()
		return
	}

	if e.metrics != nil {
		e.metrics.ObserveTiming("playback.recovery_duration", time.Since(e.recoveryStart))
	}
	e.logger.Info("transport recovered",
		logging.Duration("outage", time.Since(e.recoveryStart)))

	if e.pendingSkip {
		e.pendingSkip = false
		next := e.queue.Advance()
		e.setTrack(next, 0)
		if next == nil {
			e.setState(StateIdle)
			return
		}
	}

	if e.pendingPause {
		e.pendingPause = false
		e.setState(StatePaused)
		return
	}

	if err := e.playCurrent(e.resumeOffset()); err != nil {
		e.logger.Error("failed to resume after recovery", logging.Error(err))
	}
}

// stopSession tears down the active delivery, folding delivered frames into
// the resume offset so a later restart continues where delivery stopped.
func (e *Engine) stopSession(reason string) {
	if e.session == nil {
		return
	}
	sess := e.session
	close(sess.stop)
	sess.source.Close()
	sess.done.Wait()
	e.session = nil

	e.mu.Lock()
	e.startOffset = e.offsetLocked()
	e.mu.Unlock()
	delivered := e.frames.Swap(0)

	if reason != "" {
		e.recordSessionEnd(delivered, reason)
	} else {
		e.recordSessionEnd(delivered, "interrupted")
	}
}

// finishSession is stopSession for a track that ended on its own.
func (e *Engine) finishSession(reason string) {
	if e.session == nil {
		return
	}
	sess := e.session
	close(sess.stop)
	sess.source.Close()
	e.session = nil

	delivered := e.frames.Swap(0)
	e.mu.Lock()
	e.startOffset = 0
	e.mu.Unlock()

	e.recordSessionEnd(delivered, reason)
}

func (e *Engine) shutdown() {
	wasActive := false
	switch e.currentState() {
	case StatePlaying, StatePaused, StateRecovering:
		wasActive = true
	}
	e.stopSession("shutdown")
	if wasActive {
		e.savePosition()
	}
	e.setState(StateStopped)
	e.cancel()
	e.logger.Info("playback engine stopped")
}

func (e *Engine) savePosition() {
	e.mu.Lock()
	track := e.track
	offset := e.offsetLocked()
	e.mu.Unlock()
	if track == nil {
		return
	}

	rec := &position.Record{
		Reciter:       e.reciter,
		TrackID:       track.ID(),
		OffsetSeconds: offset.Seconds(),
		QueueMode:     e.queue.Mode().String(),
		ShuffleSeed:   e.queue.Seed(),
		SavedAt:       time.Now().Unix(),
	}
	if err := e.positions.Save(rec); err != nil {
		e.logger.Error("failed to save position", logging.Error(err))
		return
	}
	if e.metrics != nil {
		e.metrics.SetGauge("playback.offset_seconds", rec.OffsetSeconds)
	}
}

func (e *Engine) resumeOffset() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.offsetLocked()
}

// offsetLocked estimates the in-track position from delivered frames,
// clamped to the track duration when known. Callers hold e.mu.
func (e *Engine) offsetLocked() time.Duration {
	offset := e.startOffset + time.Duration(e.frames.Load())*e.cfg.FrameDuration
	if e.track != nil && e.track.Duration > 0 && offset > e.track.Duration {
		offset = e.track.Duration
	}
	return offset
}

func (e *Engine) classifyAcquireErr(err error) error {
	if errors.Is(err, voice.ErrMaxAttemptsExceeded) {
		return errors.Wrap(ErrMaxRecoveryAttempts, err.Error())
	}
	return err
}

func (e *Engine) currentState() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

func (e *Engine) setTrack(t *catalog.Track, offset time.Duration) {
	e.mu.Lock()
	e.track = t
	e.startOffset = offset
	e.mu.Unlock()
	e.frames.Store(0)
}

func (e *Engine) setErr(err error) {
	e.mu.Lock()
	e.lastErr = err
	e.mu.Unlock()
}

// historySession carries a history row id from the insert goroutine to the
// goroutines that record against it. ready is closed once id is settled; an
// id of zero after that means the insert failed and dependents drop out.
type historySession struct {
	id    int64
	ready chan struct{}
}

func (e *Engine) recordSessionStart(track *catalog.Track) {
	if e.history == nil {
		return
	}
	hs := &historySession{ready: make(chan struct{})}
	e.histSess = hs
	reciter, trackID := e.reciter, track.ID()
	go func() {
		defer close(hs.ready)
		id, err := e.history.StartSession(context.Background(), reciter, trackID)
		if err != nil {
			e.logger.Debug("failed to record session start", logging.Error(err))
			return
		}
		hs.id = id
	}()
}

func (e *Engine) recordSessionEnd(frames int64, reason string) {
	if e.history == nil || e.histSess == nil {
		return
	}
	hs := e.histSess
	go func() {
		<-hs.ready
		if hs.id == 0 {
			return
		}
		if err := e.history.EndSession(context.Background(), hs.id, frames, reason); err != nil {
			e.logger.Debug("failed to record session end", logging.Error(err))
		}
	}()
}

func (e *Engine) recordRecovery(cause error) {
	if e.history == nil || cause == nil || e.histSess == nil {
		return
	}
	hs := e.histSess
	attempt := e.recoveryCount
	msg := cause.Error()
	go func() {
		<-hs.ready
		if hs.id == 0 {
			return
		}
		if err := e.history.RecordRecovery(context.Background(), hs.id, attempt, 0, msg); err != nil {
			e.logger.Debug("failed to record recovery event", logging.Error(err))
		}
	}()
}
