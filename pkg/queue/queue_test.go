package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hudhaifi/murattal/pkg/catalog"
)

func makeTracks(n int) []catalog.Track {
	tracks := make([]catalog.Track, n)
	for i := range tracks {
		tracks[i] = catalog.Track{
			Reciter: "alafasy",
			Surah:   i + 1,
			Source:  "https://cdn.example.com/alafasy",
		}
	}
	return tracks
}

func TestSequential_NoWrapExhausts(t *testing.T) {
	q := New(Config{})
	q.LoadCatalog(makeTracks(3))

	require.NotNil(t, q.Current())
	assert.Equal(t, 1, q.Current().Surah)

	got := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		tr := q.Advance()
		if tr == nil {
			got = append(got, 0)
			continue
		}
		got = append(got, tr.Surah)
	}

	// advance() x4 on a 3-track queue: track1, track2, track3, none.
	assert.Equal(t, []int{1, 2, 3, 0}, got)
	assert.Nil(t, q.Current())
}

func TestSequential_Wrap(t *testing.T) {
	q := New(Config{WrapSequential: true})
	q.LoadCatalog(makeTracks(3))

	surahs := make([]int, 0, 6)
	for i := 0; i < 6; i++ {
		tr := q.Advance()
		require.NotNil(t, tr)
		surahs = append(surahs, tr.Surah)
	}
	assert.Equal(t, []int{1, 2, 3, 1, 2, 3}, surahs)
}

func TestLoopTrack(t *testing.T) {
	q := New(Config{})
	q.LoadCatalog(makeTracks(3))
	q.SetMode(ModeLoopTrack)

	for i := 0; i < 5; i++ {
		tr := q.Advance()
		require.NotNil(t, tr)
		assert.Equal(t, 1, tr.Surah)
	}
}

func TestLoopQueue_Wraps(t *testing.T) {
	q := New(Config{})
	q.LoadCatalog(makeTracks(3))
	q.SetMode(ModeLoopQueue)

	surahs := make([]int, 0, 7)
	for i := 0; i < 7; i++ {
		tr := q.Advance()
		require.NotNil(t, tr)
		surahs = append(surahs, tr.Surah)
	}
	assert.Equal(t, []int{1, 2, 3, 1, 2, 3, 1}, surahs)
}

func TestShuffled_DeterministicAcrossInstances(t *testing.T) {
	build := func() *Queue {
		q := New(Config{ShuffleSeed: 42, WrapSequential: true})
		q.SetMode(ModeShuffled)
		q.LoadCatalog(makeTracks(20))
		return q
	}

	a, b := build(), build()

	require.Equal(t, a.Current().ID(), b.Current().ID())
	for i := 0; i < 40; i++ {
		ta, tb := a.Advance(), b.Advance()
		require.NotNil(t, ta)
		require.NotNil(t, tb)
		assert.Equal(t, ta.ID(), tb.ID(), "sequence diverged at step %d", i)
	}
}

func TestShuffled_DifferentSeedsDiffer(t *testing.T) {
	walk := func(seed int64) []string {
		q := New(Config{ShuffleSeed: seed, WrapSequential: true})
		q.SetMode(ModeShuffled)
		q.LoadCatalog(makeTracks(20))
		ids := []string{q.Current().ID()}
		for i := 0; i < 19; i++ {
			ids = append(ids, q.Advance().ID())
		}
		return ids
	}

	assert.NotEqual(t, walk(1), walk(2))
}

func TestShuffled_CoversWholeCatalog(t *testing.T) {
	q := New(Config{ShuffleSeed: 7})
	q.SetMode(ModeShuffled)
	q.LoadCatalog(makeTracks(10))

	seen := map[string]bool{q.Current().ID(): true}
	for {
		tr := q.Advance()
		if tr == nil {
			break
		}
		seen[tr.ID()] = true
	}
	assert.Len(t, seen, 10)
}

func TestSetMode_KeepsCurrentTrack(t *testing.T) {
	q := New(Config{ShuffleSeed: 42, WrapSequential: true})
	q.LoadCatalog(makeTracks(10))

	q.Advance()
	q.Advance()
	current := q.Current().ID()

	q.SetMode(ModeShuffled)
	assert.Equal(t, current, q.Current().ID())

	q.SetMode(ModeSequential)
	assert.Equal(t, current, q.Current().ID())
}

func TestSetMode_ShuffleAfterExhaustion(t *testing.T) {
	q := New(Config{ShuffleSeed: 42, ReshuffleOnModeChange: true})
	q.LoadCatalog(makeTracks(2))

	q.Advance()
	q.Advance()
	require.Nil(t, q.Advance())
	require.Nil(t, q.Current())

	// Switching modes on a fully played queue must not blow up on the
	// empty remainder.
	assert.NotPanics(t, func() { q.SetMode(ModeShuffled) })
	assert.Nil(t, q.Advance())
}

func TestSetSeed_RebuildsShuffledOrder(t *testing.T) {
	reference := New(Config{ShuffleSeed: 42, WrapSequential: true})
	reference.SetMode(ModeShuffled)
	reference.LoadCatalog(makeTracks(20))

	q := New(Config{ShuffleSeed: 7, WrapSequential: true})
	q.SetMode(ModeShuffled)
	q.LoadCatalog(makeTracks(20))
	q.SetSeed(42)

	require.Equal(t, int64(42), q.Seed())
	require.Equal(t, reference.Current().ID(), q.Current().ID())
	for i := 0; i < 40; i++ {
		ta, tb := reference.Advance(), q.Advance()
		require.NotNil(t, ta)
		require.NotNil(t, tb)
		assert.Equal(t, ta.ID(), tb.ID(), "sequence diverged at step %d", i)
	}
}

func TestSetSeed_KeepsCurrentTrackOnceStarted(t *testing.T) {
	q := New(Config{ShuffleSeed: 7, WrapSequential: true})
	q.SetMode(ModeShuffled)
	q.LoadCatalog(makeTracks(10))

	q.Advance()
	q.Advance()
	current := q.Current().ID()

	q.SetSeed(99)
	assert.Equal(t, current, q.Current().ID())
}

func TestSetSeed_SequentialModeUnaffected(t *testing.T) {
	q := New(Config{})
	q.LoadCatalog(makeTracks(5))
	q.Advance()

	q.SetSeed(123)
	assert.Equal(t, int64(123), q.Seed())
	assert.Equal(t, 1, q.Current().Surah)
	assert.Equal(t, 2, q.Advance().Surah)
}

func TestAdvance_EmptyCatalog(t *testing.T) {
	q := New(Config{})
	assert.Nil(t, q.Current())
	assert.Nil(t, q.Advance())
}

func TestSeekTo(t *testing.T) {
	q := New(Config{})
	q.LoadCatalog(makeTracks(5))

	ok := q.SeekTo("alafasy/004")
	require.True(t, ok)
	assert.Equal(t, 4, q.Current().Surah)

	tr := q.Advance()
	require.NotNil(t, tr)
	assert.Equal(t, 5, tr.Surah)
}

func TestSeekTo_UnknownTrack(t *testing.T) {
	q := New(Config{})
	q.LoadCatalog(makeTracks(5))

	assert.False(t, q.SeekTo("husary/001"))
	assert.Equal(t, 1, q.Current().Surah)
}

func TestLoadCatalog_ResetsPosition(t *testing.T) {
	q := New(Config{})
	q.LoadCatalog(makeTracks(3))
	q.Advance()
	q.Advance()

	q.LoadCatalog(makeTracks(3))
	assert.Equal(t, 1, q.Current().Surah)
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{in: "sequential", want: ModeSequential},
		{in: "shuffled", want: ModeShuffled},
		{in: "loop_track", want: ModeLoopTrack},
		{in: "loop_queue", want: ModeLoopQueue},
		{in: "LOOP_QUEUE", want: ModeLoopQueue},
		{in: "bogus", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
