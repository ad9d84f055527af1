package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrDisabled is returned by reads when no database is configured.
var ErrDisabled = errors.New("store: persistence disabled")

// Store persists sessions and their finalized transcript entries.
//
// Tables:
//
//	sessions(id text primary key, subject text, sample_rate int, channels int,
//	         started_at timestamptz, ended_at timestamptz, end_reason text, finals int)
//	transcript_entries(session_id text, seq int, text text, language text,
//	         translation text, created_at timestamptz default now(),
//	         primary key (session_id, seq))
type Store struct {
	db *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Enabled reports whether a database is attached.
func (s *Store) Enabled() bool {
	return s != nil && s.db != nil
}

type Session struct {
	ID         string     `json:"id"`
	Subject    string     `json:"subject,omitempty"`
	SampleRate int        `json:"sample_rate"`
	Channels   int        `json:"channels"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	EndReason  *string    `json:"end_reason,omitempty"`
	Finals     int        `json:"finals"`
}

// Entry is one finalized transcript line.
type Entry struct {
	SessionID   string    `json:"session_id"`
	Seq         int       `json:"seq"`
	Text        string    `json:"text"`
	Language    string    `json:"language,omitempty"`
	Translation string    `json:"translation,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func (s *Store) CreateSession(ctx context.Context, sess Session) error {
	if !s.Enabled() {
		return nil
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO sessions (id, subject, sample_rate, channels, started_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`, sess.ID, sess.Subject, sess.SampleRate, sess.Channels, sess.StartedAt)
	return err
}

func (s *Store) EndSession(ctx context.Context, id, reason string, finals int, at time.Time) error {
	if !s.Enabled() {
		return nil
	}
	_, err := s.db.Exec(ctx, `
		UPDATE sessions
		SET ended_at = $2, end_reason = $3, finals = $4
		WHERE id = $1
	`, id, at, reason, finals)
	return err
}

func (s *Store) InsertEntry(ctx context.Context, e Entry) error {
	if !s.Enabled() {
		return nil
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO transcript_entries (session_id, seq, text, language, translation)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id, seq) DO UPDATE SET
			text = EXCLUDED.text,
			language = EXCLUDED.language,
			translation = EXCLUDED.translation
	`, e.SessionID, e.Seq, e.Text, e.Language, e.Translation)
	return err
}

// InsertEntryAsync persists e without blocking the caller.
func (s *Store) InsertEntryAsync(e Entry, onErr func(error)) {
	if !s.Enabled() {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.InsertEntry(ctx, e); err != nil && onErr != nil {
			onErr(err)
		}
	}()
}

func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	if !s.Enabled() {
		return nil, ErrDisabled
	}
	var sess Session
	err := s.db.QueryRow(ctx, `
		SELECT id, COALESCE(subject, ''), sample_rate, channels, started_at, ended_at, end_reason, finals
		FROM sessions WHERE id = $1
	`, id).Scan(&sess.ID, &sess.Subject, &sess.SampleRate, &sess.Channels, &sess.StartedAt, &sess.EndedAt, &sess.EndReason, &sess.Finals)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// ListEntries returns a session's transcript in order.
func (s *Store) ListEntries(ctx context.Context, sessionID string) ([]Entry, error) {
	if !s.Enabled() {
		return nil, ErrDisabled
	}
	rows, err := s.db.Query(ctx, `
		SELECT session_id, seq, text, COALESCE(language, ''), COALESCE(translation, ''), created_at
		FROM transcript_entries
		WHERE session_id = $1
		ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.SessionID, &e.Seq, &e.Text, &e.Language, &e.Translation, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteSessionsBefore removes ended sessions older than cutoff together
// with their transcript entries and events. It returns the number of
// sessions removed.
func (s *Store) DeleteSessionsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if !s.Enabled() {
		return 0, ErrDisabled
	}
	var removed int64
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		const expired = `SELECT id FROM sessions WHERE ended_at IS NOT NULL AND ended_at < $1`
		if _, err := tx.Exec(ctx, `DELETE FROM transcript_entries WHERE session_id IN (`+expired+`)`, cutoff); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM session_events WHERE session_id IN (`+expired+`)`, cutoff); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM sessions WHERE ended_at IS NOT NULL AND ended_at < $1`, cutoff)
		if err != nil {
			return err
		}
		removed = tag.RowsAffected()
		return nil
	})
	return removed, err
}
