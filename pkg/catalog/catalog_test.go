package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hudhaifi/murattal/pkg/cache"
	"github.com/hudhaifi/murattal/pkg/logging"
)

func TestTrackID(t *testing.T) {
	tr := Track{Reciter: "alafasy", Surah: 2}
	assert.Equal(t, "alafasy/002", tr.ID())

	tr = Track{Reciter: "husary", Surah: 114}
	assert.Equal(t, "husary/114", tr.ID())
}

func TestCDNProvider_Catalog(t *testing.T) {
	p, err := NewCDNProvider("https://cdn.example.com/quran/", logging.Null())
	require.NoError(t, err)

	tracks, err := p.Catalog(context.Background(), "Alafasy_128kbps")
	require.NoError(t, err)
	require.Len(t, tracks, SurahCount)

	assert.Equal(t, "https://cdn.example.com/quran/Alafasy_128kbps/001.mp3", tracks[0].Source)
	assert.Equal(t, "https://cdn.example.com/quran/Alafasy_128kbps/114.mp3", tracks[113].Source)
	assert.Equal(t, 1, tracks[0].Surah)
	assert.Equal(t, 114, tracks[113].Surah)
}

func TestCDNProvider_EmptyReciter(t *testing.T) {
	p, err := NewCDNProvider("https://cdn.example.com", logging.Null())
	require.NoError(t, err)

	_, err = p.Catalog(context.Background(), "")
	assert.Error(t, err)
}

func TestNewCDNProvider_EmptyBaseURL(t *testing.T) {
	p, err := NewCDNProvider("", logging.Null())
	assert.Error(t, err)
	assert.Nil(t, p)
}

type countingProvider struct {
	calls int
}

func (p *countingProvider) Catalog(_ context.Context, reciterID string) ([]Track, error) {
	p.calls++
	return []Track{{Reciter: reciterID, Surah: 1, Source: "https://example.com/001.mp3"}}, nil
}

func TestCachedProvider_CachesLookups(t *testing.T) {
	c, err := cache.New[[]Track](cache.Config{Capacity: 8, DefaultTTL: time.Minute})
	require.NoError(t, err)
	defer c.Close()

	inner := &countingProvider{}
	p := NewCachedProvider(inner, c, time.Minute)

	ctx := context.Background()
	first, err := p.Catalog(ctx, "alafasy")
	require.NoError(t, err)
	second, err := p.Catalog(ctx, "alafasy")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.calls)

	// A different reciter is a separate cache entry.
	_, err = p.Catalog(ctx, "husary")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestCachedProvider_Refresh(t *testing.T) {
	c, err := cache.New[[]Track](cache.Config{Capacity: 8, DefaultTTL: time.Minute})
	require.NoError(t, err)
	defer c.Close()

	inner := &countingProvider{}
	p := NewCachedProvider(inner, c, time.Minute)

	ctx := context.Background()
	_, err = p.Catalog(ctx, "alafasy")
	require.NoError(t, err)

	require.NoError(t, p.Refresh(ctx, "alafasy"))
	assert.Equal(t, 2, inner.calls)

	// Refresh replaced the entry, so the next lookup hits the cache.
	_, err = p.Catalog(ctx, "alafasy")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestDirectURLStrategy(t *testing.T) {
	s := &DirectURLStrategy{}

	assert.True(t, s.CanHandle("https://cdn.example.com/001.mp3"))
	assert.True(t, s.CanHandle("http://cdn.example.com/001.mp3"))
	assert.False(t, s.CanHandle("/var/lib/quran/001.mp3"))

	src, err := s.Resolve(context.Background(), "https://cdn.example.com/001.mp3")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/001.mp3", src.URL)
	assert.False(t, src.Local)

	_, err = s.Resolve(context.Background(), "https://")
	assert.Error(t, err)
}

func TestLocalFileStrategy(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "001.mp3")
	require.NoError(t, os.WriteFile(path, []byte("audio"), 0o644))

	s := &LocalFileStrategy{}
	assert.True(t, s.CanHandle(path))
	assert.False(t, s.CanHandle(filepath.Join(dir, "missing.mp3")))
	assert.False(t, s.CanHandle("https://example.com/001.mp3"))
	assert.False(t, s.CanHandle(dir))

	src, err := s.Resolve(context.Background(), path)
	require.NoError(t, err)
	assert.True(t, src.Local)
	assert.Equal(t, path, src.URL)
}

func TestYouTubeStrategy_CanHandle(t *testing.T) {
	s := &YouTubeStrategy{}
	assert.True(t, s.CanHandle("https://www.youtube.com/watch?v=dQw4w9WgXcQ"))
	assert.True(t, s.CanHandle("https://youtu.be/dQw4w9WgXcQ"))
	assert.False(t, s.CanHandle("https://cdn.example.com/001.mp3"))
}

func TestResolver_NoStrategy(t *testing.T) {
	r := NewResolver(logging.Null())

	_, err := r.Resolve(context.Background(), Track{
		Reciter: "alafasy",
		Surah:   1,
		Source:  "ftp://example.com/001.mp3",
	})
	assert.ErrorIs(t, err, ErrResolutionFailure)
}

func TestResolver_DirectURL(t *testing.T) {
	r := NewResolver(logging.Null())

	src, err := r.Resolve(context.Background(), Track{
		Reciter:  "alafasy",
		Surah:    1,
		Duration: 90 * time.Second,
		Source:   "https://cdn.example.com/001.mp3",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/001.mp3", src.URL)
	// Track duration carries through when the strategy has none.
	assert.Equal(t, 90*time.Second, src.Duration)
}
