package reminder

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime/debug"
	"sync"
	"time"

	"notebot/internal/notes"
	rtsup "notebot/internal/runtime/supervisor"
	"notebot/internal/transport"
	logx "notebot/pkg/logx"
)

const (
	// stopTimeout bounds how long Stop() waits for the control loop.
	stopTimeout = 5 * time.Second
	// faultBackoff is applied after an unexpected control-loop fault.
	faultBackoff = 5 * time.Minute
	// recheckInterval is the poll interval on non-reminder days (and on
	// reminder days with nobody to schedule).
	recheckInterval = time.Hour
)

// ErrNoNotes is returned by SendNow when the user has nothing stored.
var ErrNoNotes = errors.New("reminder: user has no notes")

// Config holds the reminder window settings. Read-only after load.
type Config struct {
	IntervalDays    int
	WindowStartHour int
	WindowEndHour   int
}

func (c Config) Validate() error {
	if c.IntervalDays < 1 {
		return fmt.Errorf("interval_days must be >= 1, got %d", c.IntervalDays)
	}
	if c.WindowStartHour < 0 || c.WindowStartHour > 23 {
		return fmt.Errorf("window_start_hour out of range: %d", c.WindowStartHour)
	}
	if c.WindowEndHour < 0 || c.WindowEndHour > 23 {
		return fmt.Errorf("window_end_hour out of range: %d", c.WindowEndHour)
	}
	if c.WindowStartHour >= c.WindowEndHour {
		return fmt.Errorf("window_start_hour (%d) must be before window_end_hour (%d)", c.WindowStartHour, c.WindowEndHour)
	}
	return nil
}

// Store is the slice of the note store the scheduler consumes.
// *storage.Store satisfies it.
type Store interface {
	ListUsersWithNotes(ctx context.Context) ([]string, error)
	Notes(ctx context.Context, userID string) ([]notes.Note, error)
	TotalUsers(ctx context.Context) (int, error)
	TotalNotes(ctx context.Context) (int, error)
}

type state int

const (
	stateStopped state = iota
	stateRunning
	stateStopping
)

// Scheduler decides, per user, whether today is a reminder day, when in the
// window the reminder fires, which note to pick, and how to degrade when a
// typed delivery fails. One control goroutine plus one dispatcher goroutine
// per eligible user on reminder days.
type Scheduler struct {
	cfg    Config
	store  Store
	sender transport.Sender
	log    logx.Logger

	mu       sync.Mutex
	state    state
	cancel   context.CancelFunc
	loopDone chan struct{}
	sup      *rtsup.Supervisor

	table *scheduleTable

	// now is swappable for tests.
	now func() time.Time
}

func New(cfg Config, store Store, sender transport.Sender, log logx.Logger) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if store == nil || sender == nil {
		return nil, errors.New("reminder: store and sender are required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Scheduler{
		cfg:    cfg,
		store:  store,
		sender: sender,
		log:    log,
		table:  newScheduleTable(),
		now:    time.Now,
	}, nil
}

// Start launches the control loop. Idempotent: a second call while running
// logs and no-ops.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.state != stateStopped {
		s.mu.Unlock()
		s.log.Warn("scheduler is already running")
		return
	}
	s.state = stateRunning
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.loopDone = make(chan struct{})
	s.sup = rtsup.New(ctx, rtsup.WithLogger(s.log.With(logx.String("comp", "reminder"))))
	done := s.loopDone
	s.mu.Unlock()

	go func() {
		defer close(done)
		s.run(ctx)
	}()
	s.log.Info("multi-user reminder scheduler started",
		logx.Int("interval_days", s.cfg.IntervalDays),
		logx.Int("window_start", s.cfg.WindowStartHour),
		logx.Int("window_end", s.cfg.WindowEndHour))
}

// Stop signals the control loop and every in-flight dispatcher, then waits
// (bounded) for the control loop only. Dispatchers are daemonic: they observe
// the cancellation on their next sleep check and abandon without delivering.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.state != stateRunning {
		s.mu.Unlock()
		s.log.Debug("scheduler stop requested but not running")
		return
	}
	s.state = stateStopping
	cancel := s.cancel
	done := s.loopDone
	s.mu.Unlock()

	cancel()

	t := time.NewTimer(stopTimeout)
	defer t.Stop()
	select {
	case <-done:
	case <-t.C:
		s.log.Warn("control loop did not exit within stop timeout")
	}

	s.table.clear()

	s.mu.Lock()
	s.state = stateStopped
	s.cancel = nil
	s.loopDone = nil
	s.sup = nil
	s.mu.Unlock()
	s.log.Info("multi-user reminder scheduler stopped")
}

// Running reports whether the control loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateRunning
}

// NextReminder returns the pending fire time for a user, if one is scheduled.
func (s *Scheduler) NextReminder(userID string) (time.Time, bool) {
	r, ok := s.table.get(userID)
	return r.FireAt, ok
}

// run is the control loop. It never terminates the host process: any
// unexpected fault is logged and retried after a backoff.
func (s *Scheduler) run(ctx context.Context) {
	s.log.Debug("control loop started")
	for ctx.Err() == nil {
		if fault := s.iterateSafe(ctx); fault {
			sleepUnless(ctx, faultBackoff)
		}
	}
	s.log.Debug("control loop exited")
}

// iterateSafe runs one iteration with panic containment.
// Returns true when the iteration faulted and the loop should back off.
func (s *Scheduler) iterateSafe(ctx context.Context) (fault bool) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic in scheduler loop", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			fault = true
		}
	}()
	return s.iterate(ctx)
}

func (s *Scheduler) iterate(ctx context.Context) (fault bool) {
	today := s.now()
	if !IsReminderDay(today, s.cfg.IntervalDays) {
		s.log.Debug("not a reminder day", logx.Int("day", today.Day()))
		sleepUnless(ctx, recheckInterval)
		return false
	}

	users, err := s.store.ListUsersWithNotes(ctx)
	if err != nil {
		s.log.Error("listing eligible users failed", logx.Err(err))
		return true
	}
	if len(users) == 0 {
		s.log.Info("no users with notes found for reminders")
		sleepUnless(ctx, recheckInterval)
		return false
	}

	s.log.Info("processing reminders", logx.Int("users", len(users)))
	for _, userID := range users {
		if err := s.scheduleUser(ctx, userID); err != nil {
			s.log.Error("failed to schedule reminder", logx.String("user", userID), logx.Err(err))
		}
	}

	s.sleepUntilMidnight(ctx)
	return false
}

// scheduleUser snapshots the user's notes, picks a fire time, records it and
// spawns the dispatcher. A user with zero notes is skipped silently: no
// delivery, no schedule entry.
func (s *Scheduler) scheduleUser(ctx context.Context, userID string) error {
	snapshot, err := s.store.Notes(ctx, userID)
	if err != nil {
		return err
	}
	if len(snapshot) == 0 {
		s.log.Debug("no notes for user, skipping reminder", logx.String("user", userID))
		return nil
	}

	fireAt := s.nextFireTime(s.now())
	s.table.set(ScheduledReminder{UserID: userID, FireAt: fireAt})
	s.log.Info("reminder scheduled", logx.String("user", userID), logx.Time("fire_at", fireAt))

	s.mu.Lock()
	sup := s.sup
	s.mu.Unlock()
	if sup == nil {
		return errors.New("scheduler is not running")
	}
	sup.Go0("dispatch."+userID, func(c context.Context) {
		s.dispatch(c, userID, fireAt, snapshot)
	})
	return nil
}

// nextFireTime picks a uniformly random (hour, minute) inside the configured
// window on now's calendar day, rolling to the same clock time tomorrow when
// that instant is not strictly in the future.
func (s *Scheduler) nextFireTime(now time.Time) time.Time {
	hour := s.cfg.WindowStartHour + rand.Intn(s.cfg.WindowEndHour-s.cfg.WindowStartHour+1)
	minute := rand.Intn(60)
	at := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !at.After(now) {
		at = at.AddDate(0, 0, 1)
	}
	return at
}

func (s *Scheduler) sleepUntilMidnight(ctx context.Context) {
	now := s.now()
	next := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, 1)
	sleepUnless(ctx, next.Sub(now))
}
