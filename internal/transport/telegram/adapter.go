package telegram

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	rtsup "notebot/internal/runtime/supervisor"
	kit "notebot/internal/transport"
	logx "notebot/pkg/logx"
)

// Config configures the Telegram adapter.
type Config struct {
	Token       string
	PollTimeout time.Duration
	// SendRatePerSec caps outgoing API calls (Telegram allows ~30 msg/s
	// globally). 0 picks a conservative default.
	SendRatePerSec int
}

type Adapter struct {
	cfg Config
	log logx.Logger

	bot     *tele.Bot
	out     atomic.Value // stores (chan<- kit.Update)
	runMu   sync.Mutex
	running bool

	// sup owns adapter internal goroutines (poll loop, drop logger, stop watcher).
	sup *rtsup.Supervisor

	limiter *rate.Limiter

	// droppedUpdates counts updates dropped because the consumer was slower
	// than the poll loop. Logged periodically to avoid per-update spam.
	droppedUpdates uint64
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	rps := cfg.SendRatePerSec
	if rps <= 0 {
		rps = 20
	}
	a := &Adapter{
		cfg:     cfg,
		log:     log,
		bot:     b,
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
	}
	// Ensure atomic.Value is initialized with a stable dynamic type.
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.registerHandlers()
	return a, nil
}

func (a *Adapter) registerHandlers() {
	// Handlers forward to the CURRENT output channel. Start() may swap it.
	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		a.forwardMessage(c.Message(), nil)
		return nil
	})
	a.bot.Handle(tele.OnPhoto, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Photo == nil {
			return nil
		}
		a.forwardMessage(m, &kit.Media{
			Kind:   kit.MediaPhoto,
			FileID: m.Photo.FileID,
			Size:   m.Photo.FileSize,
			Width:  m.Photo.Width,
			Height: m.Photo.Height,
		})
		return nil
	})
	a.bot.Handle(tele.OnVoice, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Voice == nil {
			return nil
		}
		a.forwardMessage(m, &kit.Media{
			Kind:     kit.MediaVoice,
			FileID:   m.Voice.FileID,
			MIME:     m.Voice.MIME,
			Duration: time.Duration(m.Voice.Duration) * time.Second,
			Size:     m.Voice.FileSize,
		})
		return nil
	})
	a.bot.Handle(tele.OnDocument, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Document == nil {
			return nil
		}
		a.forwardMessage(m, &kit.Media{
			Kind:     kit.MediaDocument,
			FileID:   m.Document.FileID,
			FileName: m.Document.FileName,
			MIME:     m.Document.MIME,
			Size:     m.Document.FileSize,
		})
		return nil
	})
	a.bot.Handle(tele.OnVideo, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Video == nil {
			return nil
		}
		a.forwardMessage(m, &kit.Media{
			Kind:     kit.MediaVideo,
			FileID:   m.Video.FileID,
			MIME:     m.Video.MIME,
			Duration: time.Duration(m.Video.Duration) * time.Second,
			Size:     m.Video.FileSize,
			Width:    m.Video.Width,
			Height:   m.Video.Height,
		})
		return nil
	})
	a.bot.Handle(tele.OnAudio, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Audio == nil {
			return nil
		}
		a.forwardMessage(m, &kit.Media{
			Kind:     kit.MediaAudio,
			FileID:   m.Audio.FileID,
			FileName: m.Audio.FileName,
			MIME:     m.Audio.MIME,
			Duration: time.Duration(m.Audio.Duration) * time.Second,
			Size:     m.Audio.FileSize,
		})
		return nil
	})

	a.bot.Handle(tele.OnCallback, func(c tele.Context) error {
		cb := c.Callback()
		m := c.Message()
		if cb == nil || m == nil {
			return nil
		}
		a.sendUpdate(kit.Update{
			Kind: kit.UpdateCallback,
			Callback: &kit.Callback{
				ID:        cb.ID,
				UserID:    strconv.FormatInt(m.Chat.ID, 10),
				MessageID: m.ID,
				// telebot prefixes unique-routed callbacks with "\f".
				Data: strings.TrimPrefix(cb.Data, "\f"),
			},
		})
		return nil
	})
}

func (a *Adapter) forwardMessage(m *tele.Message, media *kit.Media) {
	if m == nil || m.Sender == nil {
		return
	}
	a.sendUpdate(kit.Update{
		Kind: kit.UpdateMessage,
		Message: &kit.Message{
			ID:           m.ID,
			UserID:       strconv.FormatInt(m.Chat.ID, 10),
			FromUsername: m.Sender.Username,
			FirstName:    m.Sender.FirstName,
			LastName:     m.Sender.LastName,
			Text:         m.Text,
			Caption:      m.Caption,
			Media:        media,
		},
	})
}

func (a *Adapter) sendUpdate(up kit.Update) {
	v := a.out.Load()
	out, _ := v.(chan<- kit.Update)
	if out == nil {
		return
	}
	select {
	case out <- up:
	default:
		atomic.AddUint64(&a.droppedUpdates, 1)
	}
}

func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.out.Store(out)
	a.sup = rtsup.New(ctx,
		rtsup.WithLogger(a.log.With(logx.String("comp", "telegram.adapter"))),
		// adapter errors should not take down the whole app; treat as best-effort.
		rtsup.WithCancelOnError(false),
	)
	sup := a.sup
	a.runMu.Unlock()

	// Periodic summary for dropped updates (avoid noisy per-update logs).
	sup.Go0("updates.drop_report", func(c context.Context) {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-c.Done():
				if n := atomic.SwapUint64(&a.droppedUpdates, 0); n > 0 {
					a.log.Warn("incoming updates dropped (channel full)", logx.Uint64("count", n), logx.Int("chan_cap", cap(out)))
				}
				return
			case <-ticker.C:
				if n := atomic.SwapUint64(&a.droppedUpdates, 0); n > 0 {
					a.log.Warn("incoming updates dropped (channel full)", logx.Uint64("count", n), logx.Int("chan_cap", cap(out)))
				}
			}
		}
	})

	// Ensure we stop telebot when the adapter context is cancelled.
	sup.Go0("telebot.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		if a.bot != nil {
			a.bot.Stop()
		}
	})

	// Telebot's Start() is a long-running loop. In some failure modes it can
	// exit unexpectedly; run it under a restart loop so the adapter self-heals.
	sup.GoRestart("telebot.poll", func(c context.Context) error {
		a.log.Info("polling started")
		// Start blocks until Stop() is called.
		if a.bot != nil {
			a.bot.Start()
		}
		a.log.Info("polling stopped")
		if c.Err() == nil {
			return errors.New("telebot poll loop exited unexpectedly")
		}
		return nil
	}, 500*time.Millisecond, 10*time.Second)

	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	// Best-effort graceful stop. Never block shutdown on a long-poll.
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	wasRunning := a.running
	a.running = false
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.runMu.Unlock()

	if !wasRunning {
		a.log.Debug("telegram stop called but not running")
		return nil
	}

	if sup != nil {
		sup.Cancel()
	}

	// telebot Stop is expected to be fast; run it async just in case.
	if a.bot != nil {
		go a.bot.Stop()
	}

	if sup == nil {
		return nil
	}

	// Grace window: keep shutdown snappy even if getUpdates is still waiting.
	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	wctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if !sup.Wait(wctx) {
		a.log.Warn("adapter goroutines still draining at shutdown")
	}
	return nil
}

// ---- outbound ----

func recipient(userID string) (tele.Recipient, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(userID), 10, 64)
	if err != nil {
		return nil, errors.New("invalid user id: " + userID)
	}
	return tele.ChatID(id), nil
}

func (a *Adapter) send(ctx context.Context, kind, userID string, what any, opts ...any) error {
	to, err := recipient(userID)
	if err != nil {
		return &kit.DeliveryError{Kind: kind, Cause: err}
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return &kit.DeliveryError{Kind: kind, Cause: err}
	}
	if _, err := a.bot.Send(to, what, opts...); err != nil {
		return &kit.DeliveryError{Kind: kind, Cause: err}
	}
	return nil
}

func (a *Adapter) SendText(ctx context.Context, userID, text string, opt *kit.SendOptions) error {
	return a.send(ctx, "text", userID, text, sendOptions(opt)...)
}

func (a *Adapter) SendImage(ctx context.Context, userID, path, caption string) error {
	return a.send(ctx, "image", userID, &tele.Photo{File: tele.FromDisk(path), Caption: caption})
}

func (a *Adapter) SendVoice(ctx context.Context, userID, path, caption string) error {
	return a.send(ctx, "voice", userID, &tele.Voice{File: tele.FromDisk(path), Caption: caption})
}

func (a *Adapter) SendDocument(ctx context.Context, userID, path, caption string) error {
	return a.send(ctx, "document", userID, &tele.Document{File: tele.FromDisk(path), Caption: caption})
}

func (a *Adapter) SendVideo(ctx context.Context, userID, path, caption string) error {
	return a.send(ctx, "video", userID, &tele.Video{File: tele.FromDisk(path), Caption: caption})
}

func (a *Adapter) SendAudio(ctx context.Context, userID, path, caption string) error {
	return a.send(ctx, "audio", userID, &tele.Audio{File: tele.FromDisk(path), Caption: caption})
}

func (a *Adapter) Download(ctx context.Context, fileID, dest string) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}
	return a.bot.Download(&tele.File{FileID: fileID}, dest)
}

func (a *Adapter) EditText(ctx context.Context, userID string, messageID int, text string, opt *kit.SendOptions) error {
	id, err := strconv.ParseInt(strings.TrimSpace(userID), 10, 64)
	if err != nil {
		return errors.New("invalid user id: " + userID)
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}
	msg := tele.StoredMessage{MessageID: strconv.Itoa(messageID), ChatID: id}
	_, err = a.bot.Edit(msg, text, sendOptions(opt)...)
	return err
}

func (a *Adapter) AnswerCallback(ctx context.Context, callbackID, text string) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}
	return a.bot.Respond(&tele.Callback{ID: callbackID}, &tele.CallbackResponse{Text: text})
}

func (a *Adapter) UpdateMenuCommands(ctx context.Context, cmds []kit.BotCommand) error {
	out := make([]tele.Command, 0, len(cmds))
	for _, c := range cmds {
		out = append(out, tele.Command{Text: c.Command, Description: c.Description})
	}
	return a.bot.SetCommands(out)
}

func sendOptions(opt *kit.SendOptions) []any {
	if opt == nil {
		return nil
	}
	o := &tele.SendOptions{DisableWebPagePreview: opt.DisablePreview}
	if len(opt.Keyboard) > 0 {
		rows := make([][]tele.InlineButton, 0, len(opt.Keyboard))
		for _, r := range opt.Keyboard {
			row := make([]tele.InlineButton, 0, len(r))
			for _, b := range r {
				row = append(row, tele.InlineButton{Text: b.Text, Data: b.Data})
			}
			rows = append(rows, row)
		}
		o.ReplyMarkup = &tele.ReplyMarkup{InlineKeyboard: rows}
	}
	return []any{o}
}
