package maintenance

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	logx "notebot/pkg/logx"
)

type staticLister struct {
	paths []string
	err   error
}

func (s *staticLister) AttachmentPaths(context.Context) ([]string, error) {
	return s.paths, s.err
}

func writeAged(t *testing.T, dir, name string, age time.Duration) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	mtime := time.Now().Add(-age)
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestPruneOnceRemovesOnlyOldOrphans(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	referenced := writeAged(t, dir, "images/u1_a.jpg", 48*time.Hour)
	orphanOld := writeAged(t, dir, "images/u2_b.jpg", 48*time.Hour)
	orphanFresh := writeAged(t, dir, "voice/u3_c.ogg", time.Hour)

	svc, err := New("", dir, &staticLister{paths: []string{referenced}}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	removed, err := svc.PruneOnce(context.Background())
	if err != nil {
		t.Fatalf("PruneOnce: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if _, err := os.Stat(referenced); err != nil {
		t.Fatal("referenced file was removed")
	}
	if _, err := os.Stat(orphanFresh); err != nil {
		t.Fatal("fresh file was removed despite the age guard")
	}
	if _, err := os.Stat(orphanOld); !os.IsNotExist(err) {
		t.Fatal("old orphan survived the prune")
	}
}

func TestPruneOnceMissingDir(t *testing.T) {
	t.Parallel()
	svc, err := New("", filepath.Join(t.TempDir(), "never-created"), &staticLister{}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if removed, err := svc.PruneOnce(context.Background()); err != nil || removed != 0 {
		t.Fatalf("PruneOnce = %d, %v, want 0, nil", removed, err)
	}
}

func TestPruneOnceEmptyMediaDirConfig(t *testing.T) {
	t.Parallel()
	svc, err := New("", "", &staticLister{}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if removed, err := svc.PruneOnce(context.Background()); err != nil || removed != 0 {
		t.Fatalf("PruneOnce = %d, %v, want no-op", removed, err)
	}
}

func TestNewRejectsBadSchedule(t *testing.T) {
	t.Parallel()
	if _, err := New("not a cron spec", t.TempDir(), &staticLister{}, logx.Nop()); err == nil {
		t.Fatal("expected error for invalid cron schedule")
	}
}
