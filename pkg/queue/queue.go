// Package queue orders recitation tracks for playback. Advancement is
// deterministic per mode: shuffled order is a seeded permutation so two
// queues built from the same seed and catalog walk the same sequence, which
// resume-after-restart depends on.
package queue

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"

	"github.com/hudhaifi/murattal/pkg/catalog"
)

// Mode controls what Advance returns.
type Mode int

const (
	ModeSequential Mode = iota
	ModeShuffled
	ModeLoopTrack
	ModeLoopQueue
)

func (m Mode) String() string {
	switch m {
	case ModeSequential:
		return "sequential"
	case ModeShuffled:
		return "shuffled"
	case ModeLoopTrack:
		return "loop_track"
	case ModeLoopQueue:
		return "loop_queue"
	default:
		return "unknown"
	}
}

// ParseMode converts a stored mode string back to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "sequential":
		return ModeSequential, nil
	case "shuffled":
		return ModeShuffled, nil
	case "loop_track":
		return ModeLoopTrack, nil
	case "loop_queue":
		return ModeLoopQueue, nil
	default:
		return ModeSequential, fmt.Errorf("queue: unknown mode %q", s)
	}
}

// Config controls queue policies.
type Config struct {
	// WrapSequential makes sequential advancement wrap to the start instead
	// of exhausting. The 24/7 bot wires this true.
	WrapSequential bool

	// ReshuffleOnModeChange reshuffles the unplayed remainder when switching
	// into shuffled mode mid-queue. When false (default) the full seeded
	// permutation is adopted and only future selections change.
	ReshuffleOnModeChange bool

	// ShuffleSeed seeds the shuffle permutation.
	ShuffleSeed int64
}

// Queue is a mode-aware track sequence. Safe for concurrent use.
type Queue struct {
	mu        sync.RWMutex
	cfg       Config
	tracks    []catalog.Track
	order     []int // permutation of track indices
	pos       int
	mode      Mode
	started   bool
	exhausted bool
}

// New creates an empty queue.
func New(cfg Config) *Queue {
	return &Queue{cfg: cfg, mode: ModeSequential}
}

// LoadCatalog replaces the track list and resets position to the start.
// Switching catalogs does not touch any persisted playback offset; that is
// owned by the playback engine.
func (q *Queue) LoadCatalog(tracks []catalog.Track) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.tracks = make([]catalog.Track, len(tracks))
	copy(q.tracks, tracks)
	q.pos = 0
	q.started = false
	q.exhausted = false
	q.rebuildOrderLocked()
}

// Current returns the track at the current position, or nil when the queue
// is empty or exhausted.
func (q *Queue) Current() *catalog.Track {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.currentLocked()
}

// Advance moves to the next track per the active mode and returns it.
// Advancing an empty or exhausted queue returns nil; it never errors.
func (q *Queue) Advance() *catalog.Track {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tracks) == 0 || q.exhausted {
		return nil
	}

	// The first advance on a fresh queue yields the first track.
	if !q.started {
		q.started = true
		return q.currentLocked()
	}

	switch q.mode {
	case ModeLoopTrack:
		return q.currentLocked()
	case ModeLoopQueue:
		q.pos = (q.pos + 1) % len(q.order)
	default: // sequential and shuffled share wrap semantics
		q.pos++
		if q.pos >= len(q.order) {
			if q.cfg.WrapSequential {
				q.pos = 0
			} else {
				q.exhausted = true
				return nil
			}
		}
	}

	return q.currentLocked()
}

// SetMode changes the advancement mode. The currently playing track is not
// interrupted; only what Advance returns changes.
func (q *Queue) SetMode(m Mode) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if m == q.mode {
		return
	}

	prev := q.mode
	q.mode = m
	q.exhausted = false

	if m != ModeShuffled && prev != ModeShuffled {
		return
	}

	current := -1
	if q.pos < len(q.order) {
		current = q.order[q.pos]
	}

	if m == ModeShuffled && q.cfg.ReshuffleOnModeChange {
		q.shuffleRemainderLocked()
		return
	}

	q.rebuildOrderLocked()

	// Keep the current track current across the order change.
	if current >= 0 {
		for i, idx := range q.order {
			if idx == current {
				q.pos = i
				break
			}
		}
	}
}

// Mode returns the active mode.
func (q *Queue) Mode() Mode {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.mode
}

// Seed returns the configured shuffle seed.
func (q *Queue) Seed() int64 {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.cfg.ShuffleSeed
}

// SetSeed replaces the shuffle seed. In shuffled mode the order is rebuilt
// from the new seed; on a queue that has already started playing, the
// current track stays current.
func (q *Queue) SetSeed(seed int64) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if seed == q.cfg.ShuffleSeed {
		return
	}
	q.cfg.ShuffleSeed = seed
	if q.mode != ModeShuffled {
		return
	}

	current := -1
	if q.started && q.pos < len(q.order) {
		current = q.order[q.pos]
	}

	q.rebuildOrderLocked()

	if current >= 0 {
		for i, idx := range q.order {
			if idx == current {
				q.pos = i
				break
			}
		}
	} else {
		q.pos = 0
	}
}

// SeekTo positions the queue at the track with the given ID. Returns false
// when the track is not in the catalog (e.g. the catalog changed since the
// position was saved).
func (q *Queue) SeekTo(trackID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, idx := range q.order {
		if q.tracks[idx].ID() == trackID {
			q.pos = i
			q.started = true
			q.exhausted = false
			return true
		}
	}
	return false
}

// Len returns the catalog size.
func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.tracks)
}

func (q *Queue) currentLocked() *catalog.Track {
	if len(q.tracks) == 0 || q.exhausted || q.pos >= len(q.order) {
		return nil
	}
	t := q.tracks[q.order[q.pos]]
	return &t
}

func (q *Queue) rebuildOrderLocked() {
	n := len(q.tracks)
	if q.mode == ModeShuffled {
		q.order = rand.New(rand.NewSource(q.cfg.ShuffleSeed)).Perm(n)
		return
	}
	q.order = make([]int, n)
	for i := range q.order {
		q.order[i] = i
	}
}

// shuffleRemainderLocked reshuffles only the unplayed tail, keeping the
// played prefix and current track in place.
func (q *Queue) shuffleRemainderLocked() {
	if q.pos+1 >= len(q.order) {
		return // nothing unplayed, e.g. the queue ran to exhaustion
	}
	tail := q.order[q.pos+1:]
	rng := rand.New(rand.NewSource(q.cfg.ShuffleSeed))
	rng.Shuffle(len(tail), func(i, j int) {
		tail[i], tail[j] = tail[j], tail[i]
	})
}
