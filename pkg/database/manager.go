// Package database persists playback history to sqlite: one row per
// streamed track plus a log of recovery events. Writes happen off the audio
// path; the data feeds operational review, not playback decisions.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/hudhaifi/murattal/pkg/logging"
)

// ErrNotConnected is returned by operations before Connect or after Close.
var ErrNotConnected = errors.New("database: not connected")

// Config controls database construction.
type Config struct {
	Path              string
	MaxConnections    int
	ConnectionTimeout time.Duration
}

// DefaultConfig returns sensible defaults for the bot's sqlite file.
func DefaultConfig() Config {
	return Config{
		Path:              "murattal.db",
		MaxConnections:    4,
		ConnectionTimeout: 5 * time.Second,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Path == "" {
		return errors.New("database: path cannot be empty")
	}
	if c.MaxConnections <= 0 {
		return errors.New("database: max connections must be > 0")
	}
	if c.ConnectionTimeout <= 0 {
		return errors.New("database: connection timeout must be > 0")
	}
	return nil
}

// Manager owns the sqlite connection and the history repository.
type Manager struct {
	cfg    Config
	logger logging.Logger

	mu        sync.RWMutex
	db        *sql.DB
	history   *HistoryRepository
	connected bool
}

// NewManager creates a manager. No connection is made until Connect.
func NewManager(cfg Config, logger logging.Logger) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Manager{cfg: cfg, logger: logger}, nil
}

// Connect opens the database, verifies it, and applies migrations.
func (m *Manager) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connected {
		return nil
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", m.cfg.Path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return errors.Wrap(err, "database: open")
	}

	db.SetMaxOpenConns(m.cfg.MaxConnections)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.ConnectionTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return errors.Wrap(err, "database: ping")
	}

	if err := migrate(db); err != nil {
		db.Close()
		return errors.Wrap(err, "database: migrate")
	}

	m.db = db
	m.history = &HistoryRepository{db: db}
	m.connected = true

	m.logger.Info("Database connected", logging.String("path", m.cfg.Path))
	return nil
}

// Close closes the connection. Safe to call more than once.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return nil
	}
	m.connected = false

	if err := m.db.Close(); err != nil {
		return errors.Wrap(err, "database: close")
	}
	return nil
}

// Ping verifies connectivity.
func (m *Manager) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.connected {
		return ErrNotConnected
	}
	return m.db.PingContext(ctx)
}

// History returns the history repository, or nil before Connect.
func (m *Manager) History() *HistoryRepository {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.history
}

// schemaVersion is the current migration level.
const schemaVersion = 1

func migrate(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER NOT NULL
	)`); err != nil {
		return err
	}

	var version int
	err := db.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&version)
	switch {
	case err == sql.ErrNoRows:
		if _, err := db.Exec(`INSERT INTO schema_version (version) VALUES (0)`); err != nil {
			return err
		}
	case err != nil:
		return err
	}

	if version < 1 {
		if _, err := db.Exec(`
			CREATE TABLE IF NOT EXISTS playback_sessions (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				reciter TEXT NOT NULL,
				track_id TEXT NOT NULL,
				started_at INTEGER NOT NULL,
				ended_at INTEGER,
				frames_sent INTEGER NOT NULL DEFAULT 0,
				end_reason TEXT
			);
			CREATE TABLE IF NOT EXISTS recovery_events (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				session_id INTEGER REFERENCES playback_sessions(id),
				attempt INTEGER NOT NULL,
				delay_ms INTEGER NOT NULL,
				cause TEXT NOT NULL,
				occurred_at INTEGER NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_sessions_started ON playback_sessions(started_at);
		`); err != nil {
			return err
		}
	}

	_, err = db.Exec(`UPDATE schema_version SET version = ?`, schemaVersion)
	return err
}
