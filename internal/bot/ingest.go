package bot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"notebot/internal/notes"
	"notebot/internal/transport"
	logx "notebot/pkg/logx"
)

func (r *Router) saveUser(ctx context.Context, m *transport.Message) {
	err := r.store.SaveUser(ctx, notes.User{
		ID:        m.UserID,
		Username:  m.FromUsername,
		FirstName: m.FirstName,
		LastName:  m.LastName,
	})
	if err != nil {
		r.log.Error("saving user failed", logx.String("user", m.UserID), logx.Err(err))
	}
}

// saveNote ingests a non-command message as a note. Media payloads are
// downloaded into the media dir first; when the download fails the note is
// still saved with the platform file_id only, and reminder delivery will
// degrade to text for it.
func (r *Router) saveNote(ctx context.Context, m *transport.Message) {
	r.saveUser(ctx, m)

	if m.Media == nil {
		text := strings.TrimSpace(m.Text)
		if text == "" {
			r.reply(ctx, m.UserID, "❌ Empty message. Please send some text!")
			return
		}
		r.persist(ctx, m.UserID, notes.Note{
			UserID:  m.UserID,
			Content: text,
			Kind:    notes.KindText,
		}, "📝 Note", "note")
		return
	}

	kind, label, content := describeMedia(m)
	attrs := map[string]any{
		notes.AttrFileID: m.Media.FileID,
	}
	if m.Media.FileName != "" {
		attrs[notes.AttrFileName] = m.Media.FileName
	}
	if m.Media.MIME != "" {
		attrs[notes.AttrMIMEType] = m.Media.MIME
	}
	if m.Media.Size > 0 {
		attrs[notes.AttrFileSize] = m.Media.Size
	}
	if m.Media.Duration > 0 {
		attrs[notes.AttrDuration] = int(m.Media.Duration.Seconds())
	}
	if m.Media.Width > 0 {
		attrs[notes.AttrWidth] = m.Media.Width
		attrs[notes.AttrHeight] = m.Media.Height
	}
	if m.Caption != "" {
		attrs[notes.AttrCaption] = m.Caption
	}

	dest := r.mediaPath(m)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err == nil {
		err = r.tg.Download(ctx, m.Media.FileID, dest)
		if err == nil {
			attrs[notes.AttrFilePath] = dest
		} else {
			r.log.Warn("media download failed, keeping file_id only",
				logx.String("user", m.UserID), logx.String("file_id", m.Media.FileID), logx.Err(err))
		}
	} else {
		r.log.Warn("media dir not writable", logx.String("dir", filepath.Dir(dest)), logx.Err(err))
	}

	r.persist(ctx, m.UserID, notes.Note{
		UserID:     m.UserID,
		Content:    content,
		Kind:       kind,
		Attributes: attrs,
	}, label, string(kind))
}

func (r *Router) persist(ctx context.Context, userID string, n notes.Note, label, what string) {
	if err := r.store.SaveNote(ctx, n); err != nil {
		r.log.Error("saving note failed", logx.String("user", userID), logx.String("kind", what), logx.Err(err))
		r.reply(ctx, userID, "❌ Failed to save "+what+". Please try again.")
		return
	}
	count, err := r.store.CountNotes(ctx, userID)
	if err != nil {
		count = 1 // reply anyway; the save itself succeeded
	}
	r.reply(ctx, userID, savedText(label, count))
	r.log.Info("note saved",
		logx.String("user", userID),
		logx.String("kind", what),
		logx.String("preview", truncateForDisplay(n.Content, 50)))
}

func describeMedia(m *transport.Message) (kind notes.Kind, label, content string) {
	caption := strings.TrimSpace(m.Caption)
	orNoCaption := caption
	if orNoCaption == "" {
		orNoCaption = "No caption"
	}
	switch m.Media.Kind {
	case transport.MediaPhoto:
		return notes.KindImage, "📷 Image", "📷 Image: " + orNoCaption
	case transport.MediaVoice:
		secs := int(m.Media.Duration.Seconds())
		return notes.KindVoice, "🎤 Voice message", fmt.Sprintf("🎤 Voice message (%ds)", secs)
	case transport.MediaDocument:
		return notes.KindDocument, "📄 Document", "📄 Document: " + m.Media.FileName + " (" + orNoCaption + ")"
	case transport.MediaVideo:
		return notes.KindVideo, "🎬 Video", "🎬 Video: " + orNoCaption
	case transport.MediaAudio:
		name := m.Media.FileName
		if name == "" {
			name = "audio"
		}
		return notes.KindAudio, "🎵 Audio", "🎵 Audio: " + name + " (" + orNoCaption + ")"
	default:
		return notes.KindText, "📝 Note", caption
	}
}

// mediaPath builds a stable local path: <dir>/<subdir>/<user>_<fileID><ext>.
func (r *Router) mediaPath(m *transport.Message) string {
	var subdir, ext string
	switch m.Media.Kind {
	case transport.MediaPhoto:
		subdir, ext = "images", ".jpg"
	case transport.MediaVoice:
		subdir, ext = "voice", ".ogg"
	case transport.MediaDocument:
		subdir, ext = "documents", ""
		if m.Media.FileName != "" {
			ext = "_" + sanitizeFilename(m.Media.FileName)
		}
	case transport.MediaVideo:
		subdir, ext = "videos", ".mp4"
	case transport.MediaAudio:
		subdir, ext = "audio", ".mp3"
		if m.Media.FileName != "" {
			ext = "_" + sanitizeFilename(m.Media.FileName)
		}
	default:
		subdir = "other"
	}
	return filepath.Join(r.cfg.MediaDir, subdir, m.UserID+"_"+m.Media.FileID+ext)
}

func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, name)
}
