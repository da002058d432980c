package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"notebot/internal/notes"
	logx "notebot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Info("note store ready", logx.String("path", path))
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) SaveUser(ctx context.Context, u notes.User) error {
	now := time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users(user_id, username, first_name, last_name, created_at, updated_at)
		 VALUES(?,?,?,?,?,?)
		 ON CONFLICT(user_id) DO UPDATE SET
		   username=excluded.username,
		   first_name=excluded.first_name,
		   last_name=excluded.last_name,
		   updated_at=excluded.updated_at`,
		u.ID, nullStr(u.Username), nullStr(u.FirstName), nullStr(u.LastName),
		now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) SaveNote(ctx context.Context, n notes.Note) error {
	content := n.Content
	if n.Kind == notes.KindText {
		content = strings.TrimSpace(content)
	}
	at := n.CreatedAt
	if at.IsZero() {
		at = time.Now()
	}
	attrs, err := marshalAttrs(n.Attributes)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO notes(user_id, content, kind, attributes, created_at) VALUES(?,?,?,?,?)`,
		n.UserID, content, string(n.Kind), attrs, at.Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) Notes(ctx context.Context, userID string) ([]notes.Note, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, content, kind, attributes, created_at
		 FROM notes WHERE user_id = ?
		 ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []notes.Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *sqliteStore) CountNotes(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notes WHERE user_id = ?`, userID).Scan(&n)
	return n, err
}

func (s *sqliteStore) DeleteNoteByIndex(ctx context.Context, userID string, index int) (notes.Note, error) {
	if index < 0 {
		return notes.Note{}, ErrNotFound
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, content, kind, attributes, created_at
		 FROM notes WHERE user_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT 1 OFFSET ?`, userID, index)
	n, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return notes.Note{}, ErrNotFound
	}
	if err != nil {
		return notes.Note{}, err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, n.ID); err != nil {
		return notes.Note{}, err
	}
	return n, nil
}

func (s *sqliteStore) ClearNotes(ctx context.Context, userID string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM notes WHERE user_id = ?`, userID)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *sqliteStore) ListUsersWithNotes(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT user_id FROM notes`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *sqliteStore) TotalUsers(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

func (s *sqliteStore) TotalNotes(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notes`).Scan(&n)
	return n, err
}

func (s *sqliteStore) AttachmentPaths(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT attributes FROM notes WHERE attributes IS NOT NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var raw sql.NullString
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		if !raw.Valid {
			continue
		}
		var attrs map[string]any
		if err := json.Unmarshal([]byte(raw.String), &attrs); err != nil {
			continue // tolerate legacy rows
		}
		if p, _ := attrs[notes.AttrFilePath].(string); p != "" {
			out = append(out, p)
		}
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNote(r rowScanner) (notes.Note, error) {
	var (
		n     notes.Note
		kind  string
		attrs sql.NullString
		at    string
	)
	if err := r.Scan(&n.ID, &n.UserID, &n.Content, &kind, &attrs, &at); err != nil {
		return notes.Note{}, err
	}
	n.Kind = notes.Kind(kind)
	if attrs.Valid && attrs.String != "" {
		var m map[string]any
		if err := json.Unmarshal([]byte(attrs.String), &m); err == nil {
			n.Attributes = m
		}
	}
	if t, err := time.Parse(time.RFC3339Nano, at); err == nil {
		n.CreatedAt = t
	}
	return n, nil
}

func marshalAttrs(m map[string]any) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
