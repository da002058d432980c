package transport

import (
	"context"
	"fmt"
	"time"
)

type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateCallback UpdateKind = "callback"
)

type Update struct {
	Kind     UpdateKind
	Message  *Message
	Callback *Callback
}

// MediaKind mirrors the note kinds the bot accepts as attachments.
type MediaKind string

const (
	MediaPhoto    MediaKind = "photo"
	MediaVoice    MediaKind = "voice"
	MediaDocument MediaKind = "document"
	MediaVideo    MediaKind = "video"
	MediaAudio    MediaKind = "audio"
)

// Media describes an attachment on an incoming message. FileID is the
// platform reference used to download the payload.
type Media struct {
	Kind     MediaKind
	FileID   string
	FileName string
	MIME     string
	Duration time.Duration
	Size     int64
	Width    int
	Height   int
}

type Message struct {
	ID           int
	UserID       string // opaque stable user identifier (chat id as string)
	FromUsername string
	FirstName    string
	LastName     string
	Text         string
	Caption      string
	Media        *Media // nil for plain text
}

type Callback struct {
	ID        string
	UserID    string
	MessageID int
	Data      string
}

// InlineButton is one button of an inline keyboard, expressed
// adapter-agnostically. Data round-trips via Callback.Data.
type InlineButton struct {
	Text string
	Data string
}

type SendOptions struct {
	DisablePreview bool
	Keyboard       [][]InlineButton
}

// DeliveryError reports a failed send of a typed payload. The reminder
// dispatcher treats any such failure for non-text kinds as "retry as text".
type DeliveryError struct {
	Kind  string // capability that failed: "text", "image", ...
	Cause error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery failed (%s): %v", e.Kind, e.Cause)
}

func (e *DeliveryError) Unwrap() error { return e.Cause }

// Sender is the outbound capability set. Every method may fail with a
// *DeliveryError. Media methods take a local file path plus a caption.
type Sender interface {
	SendText(ctx context.Context, userID, text string, opt *SendOptions) error
	SendImage(ctx context.Context, userID, path, caption string) error
	SendVoice(ctx context.Context, userID, path, caption string) error
	SendDocument(ctx context.Context, userID, path, caption string) error
	SendVideo(ctx context.Context, userID, path, caption string) error
	SendAudio(ctx context.Context, userID, path, caption string) error
}

// Adapter is a platform transport: it pumps incoming updates and implements
// the outbound Sender capabilities.
type Adapter interface {
	Sender

	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	// Download fetches the platform file behind fileID into dest.
	Download(ctx context.Context, fileID, dest string) error

	// EditText rewrites a previously sent message (used by the /clear keyboard).
	EditText(ctx context.Context, userID string, messageID int, text string, opt *SendOptions) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

// BotCommand represents a single bot command menu entry.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is an optional interface adapters can implement to
// update platform-specific command menus (e.g. Telegram's / list).
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
