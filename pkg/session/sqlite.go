package session

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// SQLiteStore persists turns in SQLite so chat history survives restarts.
type SQLiteStore struct {
	db *sql.DB
	// appendMu orders Append calls as submitted; the AUTOINCREMENT seq then
	// matches submission order exactly.
	appendMu sync.Mutex
}

var _ Store = &SQLiteStore{}

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("sqlite session store: empty dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			created_at_ms INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS turns (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL,
			text TEXT NOT NULL,
			audio_ref TEXT NOT NULL DEFAULT '',
			degraded INTEGER NOT NULL DEFAULT 0,
			created_at_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS turns_by_session ON turns(session_id, seq);`,
	}
	for _, st := range stmts {
		if _, err := s.db.Exec(st); err != nil {
			return errors.Wrap(err, "sqlite session store: migrate")
		}
	}
	return nil
}

func (s *SQLiteStore) Append(ctx context.Context, turn Turn) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite session store: db is nil")
	}
	id := strings.TrimSpace(turn.SessionID)
	if id == "" {
		return errors.New("sqlite session store: session id is empty")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now()
	}
	degraded := 0
	if turn.Degraded {
		degraded = 1
	}

	s.appendMu.Lock()
	defer s.appendMu.Unlock()

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions(session_id, created_at_ms) VALUES(?, ?)
		ON CONFLICT(session_id) DO NOTHING
	`, id, time.Now().UnixMilli()); err != nil {
		return errors.Wrap(err, "sqlite session store: ensure session")
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO turns(session_id, role, text, audio_ref, degraded, created_at_ms)
		VALUES(?, ?, ?, ?, ?, ?)
	`, id, string(turn.Role), turn.Text, turn.AudioRef, degraded, turn.CreatedAt.UnixMilli()); err != nil {
		return errors.Wrap(err, "sqlite session store: insert turn")
	}
	return nil
}

func (s *SQLiteStore) History(ctx context.Context, sessionID string) ([]Turn, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("sqlite session store: db is nil")
	}
	id := strings.TrimSpace(sessionID)
	if id == "" {
		return nil, errors.New("sqlite session store: session id is empty")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if _, err := s.Describe(ctx, id); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT role, text, audio_ref, degraded, created_at_ms
		FROM turns
		WHERE session_id = ?
		ORDER BY seq ASC
	`, id)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite session store: query turns")
	}
	defer func() { _ = rows.Close() }()

	turns := []Turn{}
	for rows.Next() {
		var (
			role      string
			text      string
			audioRef  string
			degraded  int
			createdMs int64
		)
		if err := rows.Scan(&role, &text, &audioRef, &degraded, &createdMs); err != nil {
			return nil, err
		}
		turns = append(turns, Turn{
			SessionID: id,
			Role:      Role(role),
			Text:      text,
			AudioRef:  audioRef,
			Degraded:  degraded != 0,
			CreatedAt: time.UnixMilli(createdMs),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return turns, nil
}

func (s *SQLiteStore) Describe(ctx context.Context, sessionID string) (Info, error) {
	if s == nil || s.db == nil {
		return Info{}, errors.New("sqlite session store: db is nil")
	}
	id := strings.TrimSpace(sessionID)
	if ctx == nil {
		ctx = context.Background()
	}
	var createdMs int64
	err := s.db.QueryRowContext(ctx,
		`SELECT created_at_ms FROM sessions WHERE session_id = ?`, id).Scan(&createdMs)
	if err == sql.ErrNoRows {
		return Info{}, ErrNotFound
	}
	if err != nil {
		return Info{}, errors.Wrap(err, "sqlite session store: query session")
	}
	var count int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM turns WHERE session_id = ?`, id).Scan(&count); err != nil {
		return Info{}, errors.Wrap(err, "sqlite session store: count turns")
	}
	return Info{SessionID: id, TurnCount: count, CreatedAt: time.UnixMilli(createdMs)}, nil
}

func (s *SQLiteStore) Clear(ctx context.Context, sessionID string) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite session store: db is nil")
	}
	id := strings.TrimSpace(sessionID)
	if ctx == nil {
		ctx = context.Background()
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM turns WHERE session_id = ?`, id); err != nil {
		return errors.Wrap(err, "sqlite session store: delete turns")
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, id); err != nil {
		return errors.Wrap(err, "sqlite session store: delete session")
	}
	return nil
}

// SQLiteDSNForFile derives a DSN with WAL and a busy timeout, matching how we
// open every other SQLite file.
func SQLiteDSNForFile(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("sqlite session store: empty path")
	}
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path), nil
}
