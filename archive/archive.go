// Package archive keeps finished sessions in a local SQLite database so
// transcripts and tables of contents can be read back later.
package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"earshot/toc"
)

var ErrNotFound = errors.New("archive: session not found")

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id          TEXT PRIMARY KEY,
	locale      TEXT NOT NULL,
	format      TEXT NOT NULL DEFAULT '',
	startedAt   REAL NOT NULL,
	endedAt     REAL,
	status      TEXT NOT NULL DEFAULT 'active',
	audioPath   TEXT NOT NULL DEFAULT '',
	audioBytes  INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS utterances (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	sessionId TEXT NOT NULL REFERENCES sessions(id),
	text      TEXT NOT NULL,
	at        REAL NOT NULL
);
CREATE TABLE IF NOT EXISTS toc_entries (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	sessionId TEXT NOT NULL REFERENCES sessions(id),
	offsetMs  INTEGER NOT NULL,
	kind      TEXT NOT NULL,
	content   TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS reports (
	id        TEXT PRIMARY KEY,
	sessionId TEXT NOT NULL REFERENCES sessions(id),
	model     TEXT NOT NULL,
	html      TEXT NOT NULL,
	createdAt REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_utterances_session ON utterances(sessionId);
CREATE INDEX IF NOT EXISTS idx_toc_session ON toc_entries(sessionId);
`

type Session struct {
	ID         string
	Locale     string
	Format     string
	StartedAt  time.Time
	EndedAt    *time.Time
	Status     string
	AudioPath  string
	AudioBytes int
	Utterances int
	Topics     int
}

type Utterance struct {
	Text string
	At   time.Time
}

type Report struct {
	ID        string
	SessionID string
	Model     string
	HTML      string
	CreatedAt time.Time
}

type Store struct {
	db *sql.DB
}

func DefaultPath(dataDir string) string {
	return filepath.Join(dataDir, "earshot.sqlite")
}

// Open opens or creates the archive at path. ":memory:" gives a private
// in-memory archive.
func Open(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create archive dir: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection keeps ":memory:" a single database and serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) BeginSession(ctx context.Context, start time.Time, locale, format string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, locale, format, startedAt) VALUES (?, ?, ?, ?)`,
		id, locale, format, unixFromTime(start))
	if err != nil {
		return "", fmt.Errorf("insert session: %w", err)
	}
	return id, nil
}

func (s *Store) AddUtterance(ctx context.Context, sessionID, text string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO utterances (sessionId, text, at) VALUES (?, ?, ?)`,
		sessionID, text, unixFromTime(at))
	if err != nil {
		return fmt.Errorf("insert utterance: %w", err)
	}
	return nil
}

func (s *Store) AddTOCEntry(ctx context.Context, sessionID string, e toc.Entry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO toc_entries (sessionId, offsetMs, kind, content) VALUES (?, ?, ?, ?)`,
		sessionID, e.Offset.Milliseconds(), e.Kind.String(), e.Content)
	if err != nil {
		return fmt.Errorf("insert toc entry: %w", err)
	}
	return nil
}

func (s *Store) EndSession(ctx context.Context, sessionID string, end time.Time, status, audioPath string, audioBytes int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET endedAt = ?, status = ?, audioPath = ?, audioBytes = ? WHERE id = ?`,
		unixFromTime(end), status, audioPath, audioBytes, sessionID)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) SaveReport(ctx context.Context, sessionID, model, html string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reports (id, sessionId, model, html, createdAt) VALUES (?, ?, ?, ?, ?)`,
		id, sessionID, model, html, unixFromTime(time.Now()))
	if err != nil {
		return "", fmt.Errorf("insert report: %w", err)
	}
	return id, nil
}

const sessionColumns = `
	s.id, s.locale, s.format, s.startedAt, s.endedAt, s.status, s.audioPath, s.audioBytes,
	(SELECT COUNT(*) FROM utterances u WHERE u.sessionId = s.id),
	(SELECT COUNT(*) FROM toc_entries t WHERE t.sessionId = s.id AND t.kind = 'topic')`

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (Session, error) {
	var sess Session
	var startedAt float64
	var endedAt sql.NullFloat64
	if err := row.Scan(&sess.ID, &sess.Locale, &sess.Format, &startedAt, &endedAt,
		&sess.Status, &sess.AudioPath, &sess.AudioBytes, &sess.Utterances, &sess.Topics); err != nil {
		return Session{}, err
	}
	sess.StartedAt = timeFromUnix(startedAt)
	if endedAt.Valid {
		t := timeFromUnix(endedAt.Float64)
		sess.EndedAt = &t
	}
	return sess, nil
}

// Sessions lists the most recent sessions first.
func (s *Store) Sessions(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions s ORDER BY s.startedAt DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// Session finds a session by id or unambiguous id prefix.
func (s *Store) Session(ctx context.Context, idOrPrefix string) (Session, error) {
	idOrPrefix = strings.TrimSpace(idOrPrefix)
	if idOrPrefix == "" {
		return Session{}, ErrNotFound
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions s WHERE s.id = ? OR s.id LIKE ? ORDER BY s.startedAt DESC LIMIT 2`,
		idOrPrefix, idOrPrefix+"%")
	if err != nil {
		return Session{}, fmt.Errorf("query session: %w", err)
	}
	defer rows.Close()

	var found []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return Session{}, fmt.Errorf("scan session: %w", err)
		}
		if sess.ID == idOrPrefix {
			return sess, nil
		}
		found = append(found, sess)
	}
	if err := rows.Err(); err != nil {
		return Session{}, err
	}
	switch len(found) {
	case 0:
		return Session{}, ErrNotFound
	case 1:
		return found[0], nil
	default:
		return Session{}, fmt.Errorf("archive: id prefix %q is ambiguous", idOrPrefix)
	}
}

func (s *Store) Utterances(ctx context.Context, sessionID string) ([]Utterance, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT text, at FROM utterances WHERE sessionId = ? ORDER BY id ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query utterances: %w", err)
	}
	defer rows.Close()

	var out []Utterance
	for rows.Next() {
		var u Utterance
		var at float64
		if err := rows.Scan(&u.Text, &at); err != nil {
			return nil, fmt.Errorf("scan utterance: %w", err)
		}
		u.At = timeFromUnix(at)
		out = append(out, u)
	}
	return out, rows.Err()
}

// TOC rebuilds the session's table of contents.
func (s *Store) TOC(ctx context.Context, sessionID string) (toc.Snapshot, error) {
	sess, err := s.Session(ctx, sessionID)
	if err != nil {
		return toc.Snapshot{}, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT offsetMs, kind, content FROM toc_entries WHERE sessionId = ? ORDER BY id ASC`, sess.ID)
	if err != nil {
		return toc.Snapshot{}, fmt.Errorf("query toc: %w", err)
	}
	defer rows.Close()

	snap := toc.Snapshot{Start: sess.StartedAt}
	for rows.Next() {
		var ms int64
		var kind, content string
		if err := rows.Scan(&ms, &kind, &content); err != nil {
			return toc.Snapshot{}, fmt.Errorf("scan toc entry: %w", err)
		}
		k, err := toc.ParseKind(kind)
		if err != nil {
			return toc.Snapshot{}, err
		}
		snap.Entries = append(snap.Entries, toc.Entry{
			Offset:  time.Duration(ms) * time.Millisecond,
			Kind:    k,
			Content: content,
		})
	}
	return snap, rows.Err()
}

// LatestReport returns the newest report for a session, or nil.
func (s *Store) LatestReport(ctx context.Context, sessionID string) (*Report, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, sessionId, model, html, createdAt FROM reports WHERE sessionId = ? ORDER BY createdAt DESC LIMIT 1`,
		sessionID)
	var r Report
	var createdAt float64
	if err := row.Scan(&r.ID, &r.SessionID, &r.Model, &r.HTML, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan report: %w", err)
	}
	r.CreatedAt = timeFromUnix(createdAt)
	return &r, nil
}

func unixFromTime(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func timeFromUnix(f float64) time.Time {
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(math.Round(frac*1e6))*1e3)
}
