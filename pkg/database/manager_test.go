package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hudhaifi/murattal/pkg/logging"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Path = filepath.Join(t.TempDir(), "test.db")

	m, err := NewManager(cfg, logging.Null())
	require.NoError(t, err)
	require.NoError(t, m.Connect())
	t.Cleanup(func() { m.Close() })
	return m
}

func TestNewManager(t *testing.T) {
	tests := []struct {
		name        string
		cfg         Config
		expectError bool
	}{
		{name: "valid config", cfg: DefaultConfig(), expectError: false},
		{name: "empty path", cfg: Config{MaxConnections: 4, ConnectionTimeout: time.Second}, expectError: true},
		{name: "zero max connections", cfg: Config{Path: "x.db", ConnectionTimeout: time.Second}, expectError: true},
		{name: "zero timeout", cfg: Config{Path: "x.db", MaxConnections: 4}, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewManager(tt.cfg, logging.Null())
			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, m)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, m)
			}
		})
	}
}

func TestConnectAndClose(t *testing.T) {
	m := newTestManager(t)

	assert.NoError(t, m.Ping(context.Background()))

	// Connect is idempotent.
	assert.NoError(t, m.Connect())

	require.NoError(t, m.Close())
	assert.ErrorIs(t, m.Ping(context.Background()), ErrNotConnected)

	// Close is idempotent.
	assert.NoError(t, m.Close())
}

func TestHistory_SessionLifecycle(t *testing.T) {
	m := newTestManager(t)
	repo := m.History()
	require.NotNil(t, repo)

	ctx := context.Background()

	id, err := repo.StartSession(ctx, "alafasy", "alafasy/001")
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))

	require.NoError(t, repo.EndSession(ctx, id, 4500, "completed"))

	sessions, err := repo.RecentSessions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, sessions, 1)

	s := sessions[0]
	assert.Equal(t, "alafasy", s.Reciter)
	assert.Equal(t, "alafasy/001", s.TrackID)
	assert.Equal(t, int64(4500), s.FramesSent)
	assert.Equal(t, "completed", s.EndReason)
	require.NotNil(t, s.EndedAt)
}

func TestHistory_RecentSessionsOrder(t *testing.T) {
	m := newTestManager(t)
	repo := m.History()
	ctx := context.Background()

	for _, track := range []string{"alafasy/001", "alafasy/002", "alafasy/003"} {
		_, err := repo.StartSession(ctx, "alafasy", track)
		require.NoError(t, err)
	}

	sessions, err := repo.RecentSessions(ctx, 2)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "alafasy/003", sessions[0].TrackID)
	assert.Equal(t, "alafasy/002", sessions[1].TrackID)
}

func TestHistory_RecoveryEvents(t *testing.T) {
	m := newTestManager(t)
	repo := m.History()
	ctx := context.Background()

	id, err := repo.StartSession(ctx, "husary", "husary/018")
	require.NoError(t, err)

	require.NoError(t, repo.RecordRecovery(ctx, id, 1, 100*time.Millisecond, "heartbeat lost"))
	require.NoError(t, repo.RecordRecovery(ctx, id, 2, 200*time.Millisecond, "heartbeat lost"))

	events, err := repo.RecoveryEvents(ctx, id)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, 1, events[0].Attempt)
	assert.Equal(t, 100*time.Millisecond, events[0].Delay)
	assert.Equal(t, 2, events[1].Attempt)
}

func TestMigrate_Reentrant(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Path = filepath.Join(t.TempDir(), "test.db")

	m, err := NewManager(cfg, logging.Null())
	require.NoError(t, err)
	require.NoError(t, m.Connect())
	require.NoError(t, m.Close())

	// Reconnecting against an existing schema must not fail.
	m2, err := NewManager(cfg, logging.Null())
	require.NoError(t, err)
	require.NoError(t, m2.Connect())
	defer m2.Close()

	_, err = m2.History().StartSession(context.Background(), "alafasy", "alafasy/001")
	assert.NoError(t, err)
}
