package catalog

import (
	"context"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/kkdai/youtube/v2"
	"github.com/pkg/errors"

	"github.com/hudhaifi/murattal/pkg/logging"
)

// ErrResolutionFailure indicates a track source could not be resolved to a
// playable stream. Callers advance to the next track rather than halting.
var ErrResolutionFailure = errors.New("catalog: track resolution failed")

// StreamSource is a resolved, playable location for a track.
type StreamSource struct {
	URL       string
	Local     bool
	Duration  time.Duration // zero when unknown
	ExpiresAt time.Time     // zero when the location does not expire
}

// ResolveStrategy resolves a track source string to a stream location.
// Strategies are consulted in registration order; the first that can handle
// the source wins.
type ResolveStrategy interface {
	CanHandle(source string) bool
	Resolve(ctx context.Context, source string) (*StreamSource, error)
}

// Resolver chains resolution strategies.
type Resolver struct {
	strategies []ResolveStrategy
	logger     logging.Logger
}

// NewResolver creates a resolver with the default strategy chain: YouTube
// URLs, local files, then direct URLs.
func NewResolver(logger logging.Logger) *Resolver {
	if logger == nil {
		logger = logging.Default()
	}
	return &Resolver{
		strategies: []ResolveStrategy{
			&YouTubeStrategy{client: youtube.Client{}},
			&LocalFileStrategy{},
			&DirectURLStrategy{},
		},
		logger: logger,
	}
}

// Resolve returns the stream source for the track.
func (r *Resolver) Resolve(ctx context.Context, t Track) (*StreamSource, error) {
	for _, s := range r.strategies {
		if !s.CanHandle(t.Source) {
			continue
		}
		src, err := s.Resolve(ctx, t.Source)
		if err != nil {
			return nil, errors.Wrapf(ErrResolutionFailure, "%s: %v", t.ID(), err)
		}
		if src.Duration == 0 {
			src.Duration = t.Duration
		}
		return src, nil
	}
	return nil, errors.Wrapf(ErrResolutionFailure, "%s: no strategy for source %q", t.ID(), t.Source)
}

// DirectURLStrategy handles plain http(s) sources, passing them through
// after validation. The streaming layer handles transport-level retries.
type DirectURLStrategy struct{}

func (s *DirectURLStrategy) CanHandle(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

func (s *DirectURLStrategy) Resolve(_ context.Context, source string) (*StreamSource, error) {
	u, err := url.Parse(source)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid URL %q", source)
	}
	if u.Host == "" {
		return nil, errors.Errorf("URL %q has no host", source)
	}
	return &StreamSource{URL: source}, nil
}

// LocalFileStrategy handles sources that are paths to existing local files.
type LocalFileStrategy struct{}

func (s *LocalFileStrategy) CanHandle(source string) bool {
	if strings.Contains(source, "://") {
		return false
	}
	info, err := os.Stat(source)
	return err == nil && !info.IsDir()
}

func (s *LocalFileStrategy) Resolve(_ context.Context, source string) (*StreamSource, error) {
	info, err := os.Stat(source)
	if err != nil {
		return nil, errors.Wrapf(err, "stat %q", source)
	}
	if info.IsDir() {
		return nil, errors.Errorf("%q is a directory", source)
	}
	return &StreamSource{URL: source, Local: true}, nil
}

// YouTubeStrategy resolves YouTube links to their best audio stream URL.
// Resolved URLs expire, so the expiry is surfaced for re-resolution.
type YouTubeStrategy struct {
	client youtube.Client
}

func (s *YouTubeStrategy) CanHandle(source string) bool {
	return strings.Contains(source, "youtube.com") || strings.Contains(source, "youtu.be")
}

func (s *YouTubeStrategy) Resolve(ctx context.Context, source string) (*StreamSource, error) {
	video, err := s.client.GetVideoContext(ctx, source)
	if err != nil {
		return nil, errors.Wrapf(err, "fetch video metadata for %q", source)
	}

	formats := video.Formats.WithAudioChannels()
	if len(formats) == 0 {
		return nil, errors.Errorf("no audio formats for %q", source)
	}
	sort.Slice(formats, func(i, j int) bool {
		return formats[i].Bitrate > formats[j].Bitrate
	})

	streamURL, err := s.client.GetStreamURLContext(ctx, video, &formats[0])
	if err != nil {
		return nil, errors.Wrapf(err, "get stream URL for %q", source)
	}

	return &StreamSource{
		URL:      streamURL,
		Duration: video.Duration,
		// Googlevideo URLs are short-lived; 5 hours is the documented window.
		ExpiresAt: time.Now().Add(5 * time.Hour),
	}, nil
}
