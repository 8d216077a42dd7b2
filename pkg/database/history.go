package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
)

// Session is one streamed track.
type Session struct {
	ID         int64
	Reciter    string
	TrackID    string
	StartedAt  time.Time
	EndedAt    *time.Time
	FramesSent int64
	EndReason  string
}

// RecoveryEvent is one reconnection attempt observed during a session.
type RecoveryEvent struct {
	ID         int64
	SessionID  int64
	Attempt    int
	Delay      time.Duration
	Cause      string
	OccurredAt time.Time
}

// HistoryRepository reads and writes playback history.
type HistoryRepository struct {
	db *sql.DB
}

// StartSession records the beginning of a track and returns the session id.
func (r *HistoryRepository) StartSession(ctx context.Context, reciter, trackID string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO playback_sessions (reciter, track_id, started_at) VALUES (?, ?, ?)`,
		reciter, trackID, time.Now().Unix(),
	)
	if err != nil {
		return 0, errors.Wrap(err, "database: start session")
	}
	return res.LastInsertId()
}

// EndSession closes a session with its frame count and end reason
// ("completed", "skipped", "failed", "shutdown").
func (r *HistoryRepository) EndSession(ctx context.Context, id, framesSent int64, reason string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE playback_sessions SET ended_at = ?, frames_sent = ?, end_reason = ? WHERE id = ?`,
		time.Now().Unix(), framesSent, reason, id,
	)
	return errors.Wrap(err, "database: end session")
}

// RecordRecovery logs one reconnection attempt against a session.
func (r *HistoryRepository) RecordRecovery(ctx context.Context, sessionID int64, attempt int, delay time.Duration, cause string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO recovery_events (session_id, attempt, delay_ms, cause, occurred_at) VALUES (?, ?, ?, ?, ?)`,
		sessionID, attempt, delay.Milliseconds(), cause, time.Now().Unix(),
	)
	return errors.Wrap(err, "database: record recovery")
}

// RecentSessions returns the newest sessions, most recent first.
func (r *HistoryRepository) RecentSessions(ctx context.Context, limit int) ([]Session, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, reciter, track_id, started_at, ended_at, frames_sent, COALESCE(end_reason, '')
		 FROM playback_sessions ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "database: recent sessions")
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var s Session
		var started int64
		var ended sql.NullInt64
		if err := rows.Scan(&s.ID, &s.Reciter, &s.TrackID, &started, &ended, &s.FramesSent, &s.EndReason); err != nil {
			return nil, errors.Wrap(err, "database: scan session")
		}
		s.StartedAt = time.Unix(started, 0)
		if ended.Valid {
			t := time.Unix(ended.Int64, 0)
			s.EndedAt = &t
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// RecoveryEvents returns all recovery events for a session in order.
func (r *HistoryRepository) RecoveryEvents(ctx context.Context, sessionID int64) ([]RecoveryEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, session_id, attempt, delay_ms, cause, occurred_at
		 FROM recovery_events WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, errors.Wrap(err, "database: recovery events")
	}
	defer rows.Close()

	var events []RecoveryEvent
	for rows.Next() {
		var e RecoveryEvent
		var delayMs, occurred int64
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Attempt, &delayMs, &e.Cause, &occurred); err != nil {
			return nil, errors.Wrap(err, "database: scan recovery event")
		}
		e.Delay = time.Duration(delayMs) * time.Millisecond
		e.OccurredAt = time.Unix(occurred, 0)
		events = append(events, e)
	}
	return events, rows.Err()
}
