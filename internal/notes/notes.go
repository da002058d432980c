// Package notes defines the domain types shared by storage, the command
// surface, and the reminder engine.
package notes

import "time"

// Kind classifies a note's content.
type Kind string

const (
	KindText     Kind = "text"
	KindImage    Kind = "image"
	KindVoice    Kind = "voice"
	KindDocument Kind = "document"
	KindVideo    Kind = "video"
	KindAudio    Kind = "audio"
)

// Known attribute keys. Which keys are present depends on the note kind.
const (
	AttrFilePath = "file_path"
	AttrFileID   = "file_id"
	AttrFileName = "file_name"
	AttrMIMEType = "mime_type"
	AttrDuration = "duration"
	AttrCaption  = "caption"
	AttrFileSize = "file_size"
	AttrWidth    = "width"
	AttrHeight   = "height"
)

// Note is one unit of user-submitted content. Immutable once created
// (except deletion) and owned exclusively by UserID.
type Note struct {
	ID         int64
	UserID     string
	Content    string
	Kind       Kind
	Attributes map[string]any
	CreatedAt  time.Time
}

// FilePath returns the local attachment path, or "" when the note carries
// no resolvable media reference.
func (n Note) FilePath() string {
	if n.Attributes == nil {
		return ""
	}
	p, _ := n.Attributes[AttrFilePath].(string)
	return p
}

// User holds the profile captured on /start. Identity key into the store.
type User struct {
	ID        string
	Username  string
	FirstName string
	LastName  string
	CreatedAt time.Time
	UpdatedAt time.Time
}
