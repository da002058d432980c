package storage

import (
	"context"
	"errors"
	"time"

	"notebot/internal/notes"
	logx "notebot/pkg/logx"
)

var (
	// ErrNotFound is returned when a lookup targets a row that doesn't exist
	// (including out-of-range note indexes).
	ErrNotFound = errors.New("storage: not found")
)

// Config configures the SQLite note store.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// Store is the persistence API consumed by the bot and the reminder engine.
//
// Ordering contract: Notes returns newest first (by creation time), and
// DeleteNoteByIndex indexes into that same ordering. The reminder engine
// relies on ListUsersWithNotes returning only owners with at least one note.
type Store interface {
	SaveUser(ctx context.Context, u notes.User) error
	SaveNote(ctx context.Context, n notes.Note) error

	Notes(ctx context.Context, userID string) ([]notes.Note, error)
	CountNotes(ctx context.Context, userID string) (int, error)
	DeleteNoteByIndex(ctx context.Context, userID string, index int) (notes.Note, error)
	ClearNotes(ctx context.Context, userID string) (int, error)

	ListUsersWithNotes(ctx context.Context) ([]string, error)
	TotalUsers(ctx context.Context) (int, error)
	TotalNotes(ctx context.Context) (int, error)

	// AttachmentPaths lists every file_path referenced by any note.
	// Used by the media prune job.
	AttachmentPaths(ctx context.Context) ([]string, error)

	Close() error
}

// Open initializes the SQLite store at cfg.Path.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	return openSQLite(cfg, log)
}
