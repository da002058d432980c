// Package maintenance runs background housekeeping jobs on a cron schedule.
// Currently that is a single job: pruning media files no longer referenced
// by any note (left behind by /clear, /clearall and note deletion).
package maintenance

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"

	logx "notebot/pkg/logx"
)

// minAge protects freshly downloaded files whose note row may not be
// committed yet when the prune job runs.
const minAge = 24 * time.Hour

// AttachmentLister is the slice of the note store the pruner needs.
type AttachmentLister interface {
	AttachmentPaths(ctx context.Context) ([]string, error)
}

type Service struct {
	c        *cron.Cron
	store    AttachmentLister
	mediaDir string
	log      logx.Logger
}

func New(schedule, mediaDir string, store AttachmentLister, log logx.Logger) (*Service, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		c:        cron.New(),
		store:    store,
		mediaDir: mediaDir,
		log:      log,
	}
	if schedule == "" {
		schedule = "30 4 * * *"
	}
	_, err := s.c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		removed, err := s.PruneOnce(ctx)
		if err != nil {
			s.log.Error("media prune failed", logx.Err(err))
			return
		}
		if removed > 0 {
			s.log.Info("orphaned media pruned", logx.Int("removed", removed))
		}
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Service) Start() { s.c.Start() }

func (s *Service) Stop(ctx context.Context) {
	done := s.c.Stop().Done()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// PruneOnce removes files under the media dir that no note references and
// that are older than minAge. Returns the number of files removed.
func (s *Service) PruneOnce(ctx context.Context) (int, error) {
	if s.mediaDir == "" {
		return 0, nil
	}
	paths, err := s.store.AttachmentPaths(ctx)
	if err != nil {
		return 0, err
	}
	referenced := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		if abs, err := filepath.Abs(p); err == nil {
			referenced[abs] = struct{}{}
		}
	}

	cutoff := time.Now().Add(-minAge)
	removed := 0
	err = filepath.WalkDir(s.mediaDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil
		}
		if _, ok := referenced[abs]; ok {
			return nil
		}
		info, err := d.Info()
		if err != nil || info.ModTime().After(cutoff) {
			return nil
		}
		if err := os.Remove(path); err != nil {
			s.log.Warn("failed to remove orphaned file", logx.String("path", path), logx.Err(err))
			return nil
		}
		s.log.Debug("orphaned file removed", logx.String("path", path))
		removed++
		return nil
	})
	if os.IsNotExist(err) {
		return removed, nil
	}
	return removed, err
}
