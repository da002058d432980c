package bot

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"notebot/internal/reminder"
	rtsup "notebot/internal/runtime/supervisor"
	"notebot/internal/storage"
	"notebot/internal/transport"
	logx "notebot/pkg/logx"
)

// Config configures the command surface.
type Config struct {
	MediaDir string
	Reminder reminder.Config // for /help and /stats texts
}

// Router consumes transport updates and owns the conversational command
// surface plus note ingestion.
type Router struct {
	cfg   Config
	store storage.Store
	sched *reminder.Scheduler
	tg    transport.Adapter
	log   logx.Logger

	sup     *rtsup.Supervisor
	updates chan transport.Update
}

func New(cfg Config, store storage.Store, sched *reminder.Scheduler, tg transport.Adapter, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Router{cfg: cfg, store: store, sched: sched, tg: tg, log: log}
}

func (r *Router) Start(ctx context.Context) error {
	r.updates = make(chan transport.Update, 128)
	r.sup = rtsup.New(ctx, rtsup.WithLogger(r.log.With(logx.String("comp", "bot.router"))))

	if err := r.tg.Start(ctx, r.updates); err != nil {
		return err
	}

	if mu, ok := r.tg.(transport.CommandMenuUpdater); ok {
		if err := mu.UpdateMenuCommands(ctx, menuCommands()); err != nil {
			r.log.Warn("failed to set command menu", logx.Err(err))
		} else {
			r.log.Info("command menu set")
		}
	}

	updates := r.updates
	r.sup.Go0("router.consume", func(c context.Context) {
		for {
			select {
			case <-c.Done():
				return
			case up := <-updates:
				r.handle(c, up)
			}
		}
	})
	return nil
}

func (r *Router) Stop(ctx context.Context) {
	if err := r.tg.Stop(ctx); err != nil {
		r.log.Warn("adapter stop failed", logx.Err(err))
	}
	if r.sup != nil {
		r.sup.Cancel()
		wctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if !r.sup.Wait(wctx) {
			r.log.Warn("router consumer still draining at shutdown")
		}
	}
}

func menuCommands() []transport.BotCommand {
	return []transport.BotCommand{
		{Command: "start", Description: "Start using the bot"},
		{Command: "help", Description: "Show help information"},
		{Command: "stats", Description: "View your notes statistics"},
		{Command: "test", Description: "Send a test reminder now"},
		{Command: "clear", Description: "Select and delete individual notes"},
		{Command: "clearall", Description: "Delete all your notes"},
	}
}

func (r *Router) handle(ctx context.Context, up transport.Update) {
	switch up.Kind {
	case transport.UpdateMessage:
		if up.Message == nil {
			return
		}
		r.handleMessage(ctx, up.Message)
	case transport.UpdateCallback:
		if up.Callback == nil {
			return
		}
		r.handleCallback(ctx, up.Callback)
	}
}

func (r *Router) handleMessage(ctx context.Context, m *transport.Message) {
	if m.Media == nil && strings.HasPrefix(strings.TrimSpace(m.Text), "/") {
		r.handleCommand(ctx, m)
		return
	}
	r.saveNote(ctx, m)
}

func (r *Router) handleCommand(ctx context.Context, m *transport.Message) {
	cmd := strings.Fields(strings.TrimSpace(m.Text))[0]
	// Strip the "@botname" suffix used in groups.
	if i := strings.IndexByte(cmd, '@'); i > 0 {
		cmd = cmd[:i]
	}

	rc := r.cfg.Reminder
	switch cmd {
	case "/start":
		r.saveUser(ctx, m)
		r.reply(ctx, m.UserID, welcomeText)
		r.log.Info("new user started", logx.String("user", m.UserID), logx.String("username", m.FromUsername))
	case "/help":
		r.reply(ctx, m.UserID, helpText(rc.IntervalDays, rc.WindowStartHour, rc.WindowEndHour))
	case "/stats":
		count, err := r.store.CountNotes(ctx, m.UserID)
		if err != nil {
			r.log.Error("stats query failed", logx.String("user", m.UserID), logx.Err(err))
			r.reply(ctx, m.UserID, "❌ Something went wrong. Please try again.")
			return
		}
		r.reply(ctx, m.UserID, statsText(count, rc.IntervalDays, rc.WindowStartHour, rc.WindowEndHour))
	case "/test":
		err := r.sched.SendNow(ctx, m.UserID)
		switch {
		case err == nil:
			r.reply(ctx, m.UserID, "✅ Test reminder sent!")
		case errors.Is(err, reminder.ErrNoNotes):
			r.reply(ctx, m.UserID, "❌ No notes available for reminder. Send me some messages first!")
		default:
			r.log.Error("test reminder failed", logx.String("user", m.UserID), logx.Err(err))
			r.reply(ctx, m.UserID, "❌ Failed to send test reminder. Please try again.")
		}
	case "/clear":
		r.clearCommand(ctx, m)
	case "/clearall":
		deleted, err := r.store.ClearNotes(ctx, m.UserID)
		if err != nil {
			r.log.Error("clearall failed", logx.String("user", m.UserID), logx.Err(err))
			r.reply(ctx, m.UserID, "❌ Failed to clear notes. Please try again.")
			return
		}
		r.log.Info("all notes cleared", logx.String("user", m.UserID), logx.Int("deleted", deleted))
		r.reply(ctx, m.UserID, "🗑️ All your notes have been cleared!\nSend me new messages to start collecting notes again.")
	default:
		r.reply(ctx, m.UserID, "❓ Unknown command. Use /help to see what I can do.")
	}
}

// clearCommand shows up to the 10 newest notes as an inline keyboard for
// selective deletion.
func (r *Router) clearCommand(ctx context.Context, m *transport.Message) {
	all, err := r.store.Notes(ctx, m.UserID)
	if err != nil {
		r.log.Error("listing notes failed", logx.String("user", m.UserID), logx.Err(err))
		r.reply(ctx, m.UserID, "❌ Something went wrong. Please try again.")
		return
	}
	if len(all) == 0 {
		r.reply(ctx, m.UserID, "📝 You don't have any notes to delete.\nSend me some messages first!")
		return
	}

	shown := all
	if len(shown) > 10 {
		shown = shown[:10]
	}
	keyboard := make([][]transport.InlineButton, 0, len(shown)+1)
	for i, n := range shown {
		keyboard = append(keyboard, []transport.InlineButton{{
			Text: "🗑️ " + truncateForDisplay(n.Content, 50),
			Data: "delete_" + strconv.Itoa(i),
		}})
	}
	keyboard = append(keyboard, []transport.InlineButton{{Text: "❌ Cancel", Data: "cancel"}})

	text := "🗑️ Select a note to delete:\n\n" +
		"Showing " + strconv.Itoa(len(shown)) + " of " + strconv.Itoa(len(all)) + " notes"
	if err := r.tg.SendText(ctx, m.UserID, text, &transport.SendOptions{Keyboard: keyboard}); err != nil {
		r.log.Error("sending clear keyboard failed", logx.String("user", m.UserID), logx.Err(err))
	}
}

func (r *Router) handleCallback(ctx context.Context, cb *transport.Callback) {
	// Acknowledge immediately so the client stops its spinner.
	if err := r.tg.AnswerCallback(ctx, cb.ID, ""); err != nil {
		r.log.Debug("callback ack failed", logx.Err(err))
	}

	switch {
	case cb.Data == "cancel":
		r.edit(ctx, cb, "❌ Deletion cancelled.")
	case strings.HasPrefix(cb.Data, "delete_"):
		idx, err := strconv.Atoi(strings.TrimPrefix(cb.Data, "delete_"))
		if err != nil {
			r.edit(ctx, cb, "❌ Invalid selection format.")
			return
		}
		deleted, err := r.store.DeleteNoteByIndex(ctx, cb.UserID, idx)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			r.edit(ctx, cb, "❌ Invalid note selection.")
		case err != nil:
			r.log.Error("note deletion failed", logx.String("user", cb.UserID), logx.Int("index", idx), logx.Err(err))
			r.edit(ctx, cb, "❌ Failed to delete note. Please try again.")
		default:
			r.log.Info("note deleted", logx.String("user", cb.UserID), logx.Int64("note_id", deleted.ID))
			r.edit(ctx, cb, "✅ Note deleted successfully!\n\nDeleted: "+truncateForDisplay(deleted.Content, 50))
		}
	}
}

func (r *Router) reply(ctx context.Context, userID, text string) {
	if err := r.tg.SendText(ctx, userID, text, nil); err != nil {
		r.log.Warn("reply failed", logx.String("user", userID), logx.Err(err))
	}
}

func (r *Router) edit(ctx context.Context, cb *transport.Callback, text string) {
	if err := r.tg.EditText(ctx, cb.UserID, cb.MessageID, text, nil); err != nil {
		r.log.Warn("message edit failed", logx.String("user", cb.UserID), logx.Err(err))
	}
}
