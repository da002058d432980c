package reminder

import (
	"context"
	"math/rand"
	"os"
	"time"

	"notebot/internal/notes"
	logx "notebot/pkg/logx"
)

// reminderHeader prefixes every delivered reminder.
const reminderHeader = "📚 Reminder:\n"

// dispatch owns one reminder occurrence for one user: it sleeps until fireAt,
// then delivers one note chosen uniformly at random from the snapshot taken
// at scheduling time. Notes created or deleted after scheduling are not
// visible to this occurrence. Cancellation before fireAt is a clean abort,
// not a failure. Delivery failures are logged and not retried; the user
// simply misses this cycle.
func (s *Scheduler) dispatch(ctx context.Context, userID string, fireAt time.Time, snapshot []notes.Note) {
	if wait := fireAt.Sub(s.now()); wait > 0 {
		if !sleepUnless(ctx, wait) {
			s.table.remove(userID)
			s.log.Debug("dispatch aborted by shutdown", logx.String("user", userID))
			return
		}
	}
	defer s.table.remove(userID)

	if err := s.deliver(ctx, userID, snapshot); err != nil {
		s.log.Error("failed to send reminder", logx.String("user", userID), logx.Err(err))
	}
}

// deliver picks one note uniformly at random and sends it with the capability
// matching its kind. Non-text deliveries degrade to plain text when the media
// reference is unresolvable or the typed send fails; unrecognized kinds are
// sent as text as well.
func (s *Scheduler) deliver(ctx context.Context, userID string, candidates []notes.Note) error {
	n := candidates[rand.Intn(len(candidates))]
	message := reminderHeader + n.Content

	switch n.Kind {
	case notes.KindText, "":
		if err := s.sender.SendText(ctx, userID, message, nil); err != nil {
			return err
		}
	case notes.KindImage, notes.KindVoice, notes.KindDocument, notes.KindVideo, notes.KindAudio:
		if err := s.deliverMedia(ctx, userID, n, message); err != nil {
			return err
		}
	default:
		s.log.Warn("unrecognized note kind, sending as text", logx.String("user", userID), logx.String("kind", string(n.Kind)))
		if err := s.sender.SendText(ctx, userID, message, nil); err != nil {
			return err
		}
	}

	s.log.Info("reminder sent",
		logx.String("user", userID),
		logx.String("kind", string(n.Kind)),
		logx.String("preview", preview(n.Content, 50)))
	return nil
}

func (s *Scheduler) deliverMedia(ctx context.Context, userID string, n notes.Note, message string) error {
	path := n.FilePath()
	if path == "" || !fileExists(path) {
		s.log.Warn("media reference unresolvable, falling back to text",
			logx.String("user", userID), logx.String("kind", string(n.Kind)), logx.String("path", path))
		return s.sender.SendText(ctx, userID, message, nil)
	}

	var err error
	switch n.Kind {
	case notes.KindImage:
		err = s.sender.SendImage(ctx, userID, path, message)
	case notes.KindVoice:
		err = s.sender.SendVoice(ctx, userID, path, message)
	case notes.KindDocument:
		err = s.sender.SendDocument(ctx, userID, path, message)
	case notes.KindVideo:
		err = s.sender.SendVideo(ctx, userID, path, message)
	case notes.KindAudio:
		err = s.sender.SendAudio(ctx, userID, path, message)
	}
	if err != nil {
		s.log.Warn("typed delivery failed, falling back to text",
			logx.String("user", userID), logx.String("kind", string(n.Kind)), logx.Err(err))
		return s.sender.SendText(ctx, userID, message, nil)
	}
	return nil
}

// SendNow delivers a reminder immediately, bypassing the schedule. Used by
// the /test command. Returns ErrNoNotes when the user has nothing stored.
func (s *Scheduler) SendNow(ctx context.Context, userID string) error {
	candidates, err := s.store.Notes(ctx, userID)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		return ErrNoNotes
	}
	return s.deliver(ctx, userID, candidates)
}

func fileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}

func preview(s string, maxN int) string {
	r := []rune(s)
	if len(r) <= maxN {
		return s
	}
	return string(r[:maxN]) + "..."
}
