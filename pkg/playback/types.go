package playback

import (
	"errors"
	"time"

	"github.com/hudhaifi/murattal/pkg/cache"
	"github.com/hudhaifi/murattal/pkg/catalog"
	"github.com/hudhaifi/murattal/pkg/voice"
)

// State represents the current state of the playback engine.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StatePlaying
	StatePaused
	StateRecovering
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateRecovering:
		return "recovering"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

var (
	// ErrMaxRecoveryAttempts means the connection supervisor gave up and
	// playback cannot continue.
	ErrMaxRecoveryAttempts = errors.New("playback: max recovery attempts exceeded")

	// ErrAllTracksFailed means a full pass over the queue produced no
	// resolvable track.
	ErrAllTracksFailed = errors.New("playback: no track in the queue could be resolved")

	// ErrEngineClosed is returned by control methods after Close.
	ErrEngineClosed = errors.New("playback: engine closed")
)

// Status is a point-in-time snapshot of the engine. Reading it never blocks
// on playback progress.
type Status struct {
	State         State
	Track         *catalog.Track
	OffsetSeconds float64
	ConnState     voice.State
	LastError     error
	Cache         cache.Stats
}

// Config tunes the audio path and persistence cadence.
type Config struct {
	Reciter           string
	FFmpegPath        string
	Bitrate           int
	FrameDuration     time.Duration
	SendTimeout       time.Duration
	ResolutionRetries int
	SaveInterval      time.Duration
}

// DefaultConfig returns playback defaults matching Discord's voice framing.
func DefaultConfig() Config {
	return Config{
		FFmpegPath:        "ffmpeg",
		Bitrate:           128000,
		FrameDuration:     20 * time.Millisecond,
		SendTimeout:       time.Second,
		ResolutionRetries: 3,
		SaveInterval:      10 * time.Second,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Reciter == "" {
		return errors.New("playback: reciter must be set")
	}
	if c.Bitrate <= 0 {
		return errors.New("playback: bitrate must be > 0")
	}
	if c.FrameDuration <= 0 {
		return errors.New("playback: frame duration must be > 0")
	}
	if c.SaveInterval <= 0 {
		return errors.New("playback: save interval must be > 0")
	}
	if c.ResolutionRetries < 0 {
		return errors.New("playback: resolution retries must be >= 0")
	}
	return nil
}
