package reminder

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"notebot/internal/notes"
	"notebot/internal/transport"
	logx "notebot/pkg/logx"
)

type fakeStore struct {
	mu    sync.Mutex
	notes map[string][]notes.Note
}

func newFakeStore() *fakeStore {
	return &fakeStore{notes: make(map[string][]notes.Note)}
}

func (f *fakeStore) add(userID string, n notes.Note) {
	f.mu.Lock()
	n.UserID = userID
	f.notes[userID] = append(f.notes[userID], n)
	f.mu.Unlock()
}

func (f *fakeStore) ListUsersWithNotes(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var users []string
	for id, ns := range f.notes {
		if len(ns) > 0 {
			users = append(users, id)
		}
	}
	sort.Strings(users)
	return users, nil
}

func (f *fakeStore) Notes(_ context.Context, userID string) ([]notes.Note, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]notes.Note, len(f.notes[userID]))
	copy(out, f.notes[userID])
	return out, nil
}

func (f *fakeStore) TotalUsers(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.notes), nil
}

func (f *fakeStore) TotalNotes(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, ns := range f.notes {
		total += len(ns)
	}
	return total, nil
}

type sendCall struct {
	method  string
	userID  string
	payload string
}

type fakeSender struct {
	mu       sync.Mutex
	calls    []sendCall
	mediaErr error
	textErr  error
}

func (f *fakeSender) record(method, userID, payload string) {
	f.mu.Lock()
	f.calls = append(f.calls, sendCall{method: method, userID: userID, payload: payload})
	f.mu.Unlock()
}

func (f *fakeSender) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.method == method {
			n++
		}
	}
	return n
}

func (f *fakeSender) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeSender) SendText(_ context.Context, userID, text string, _ *transport.SendOptions) error {
	f.record("text", userID, text)
	return f.textErr
}

func (f *fakeSender) SendImage(_ context.Context, userID, path, _ string) error {
	f.record("image", userID, path)
	return f.mediaErr
}

func (f *fakeSender) SendVoice(_ context.Context, userID, path, _ string) error {
	f.record("voice", userID, path)
	return f.mediaErr
}

func (f *fakeSender) SendDocument(_ context.Context, userID, path, _ string) error {
	f.record("document", userID, path)
	return f.mediaErr
}

func (f *fakeSender) SendVideo(_ context.Context, userID, path, _ string) error {
	f.record("video", userID, path)
	return f.mediaErr
}

func (f *fakeSender) SendAudio(_ context.Context, userID, path, _ string) error {
	f.record("audio", userID, path)
	return f.mediaErr
}

func testConfig() Config {
	return Config{IntervalDays: 2, WindowStartHour: 8, WindowEndHour: 20}
}

func newTestScheduler(t *testing.T, store Store, sender transport.Sender) *Scheduler {
	t.Helper()
	s, err := New(testConfig(), store, sender, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "valid", cfg: Config{IntervalDays: 2, WindowStartHour: 8, WindowEndHour: 20}},
		{name: "zero interval", cfg: Config{IntervalDays: 0, WindowStartHour: 8, WindowEndHour: 20}, wantErr: true},
		{name: "start above range", cfg: Config{IntervalDays: 1, WindowStartHour: 24, WindowEndHour: 20}, wantErr: true},
		{name: "negative start", cfg: Config{IntervalDays: 1, WindowStartHour: -1, WindowEndHour: 20}, wantErr: true},
		{name: "end above range", cfg: Config{IntervalDays: 1, WindowStartHour: 8, WindowEndHour: 24}, wantErr: true},
		{name: "inverted window", cfg: Config{IntervalDays: 1, WindowStartHour: 20, WindowEndHour: 8}, wantErr: true},
		{name: "empty window", cfg: Config{IntervalDays: 1, WindowStartHour: 8, WindowEndHour: 8}, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNextFireTimeWithinWindow(t *testing.T) {
	t.Parallel()
	s := newTestScheduler(t, newFakeStore(), &fakeSender{})
	now := time.Date(2026, time.March, 10, 0, 30, 0, 0, time.UTC)

	for i := 0; i < 500; i++ {
		at := s.nextFireTime(now)
		if at.Hour() < 8 || at.Hour() > 20 {
			t.Fatalf("fire hour %d outside [8, 20]", at.Hour())
		}
		if !at.After(now) {
			t.Fatalf("fire time %v not after now %v", at, now)
		}
		if at.Day() != now.Day() {
			t.Fatalf("fire time rolled to day %d from an early-morning now", at.Day())
		}
	}
}

func TestNextFireTimeRollsToTomorrow(t *testing.T) {
	t.Parallel()
	s := newTestScheduler(t, newFakeStore(), &fakeSender{})
	now := time.Date(2026, time.March, 10, 21, 0, 0, 0, time.UTC)

	for i := 0; i < 200; i++ {
		at := s.nextFireTime(now)
		if !at.After(now) {
			t.Fatalf("fire time %v not after now %v", at, now)
		}
		if at.Day() != 11 {
			t.Fatalf("fire day = %d, want 11 when the whole window is past", at.Day())
		}
		if at.Hour() < 8 || at.Hour() > 20 {
			t.Fatalf("fire hour %d outside [8, 20]", at.Hour())
		}
	}
}

func TestScheduleTable(t *testing.T) {
	t.Parallel()
	tbl := newScheduleTable()

	first := ScheduledReminder{UserID: "u1", FireAt: day(10)}
	second := ScheduledReminder{UserID: "u1", FireAt: day(12)}
	tbl.set(first)
	tbl.set(second)

	if n := tbl.size(); n != 1 {
		t.Fatalf("size = %d, want 1 after overwriting the same user", n)
	}
	got, ok := tbl.get("u1")
	if !ok || !got.FireAt.Equal(second.FireAt) {
		t.Fatalf("get = %v/%v, want the overwriting entry", got, ok)
	}

	tbl.set(ScheduledReminder{UserID: "u2", FireAt: day(10)})
	tbl.remove("u1")
	if _, ok := tbl.get("u1"); ok {
		t.Fatal("u1 still present after remove")
	}
	if n := tbl.size(); n != 1 {
		t.Fatalf("size = %d, want 1 after remove", n)
	}

	tbl.clear()
	if n := tbl.size(); n != 0 {
		t.Fatalf("size = %d, want 0 after clear", n)
	}
}

func TestScheduleUserSkipsUserWithoutNotes(t *testing.T) {
	t.Parallel()
	s := newTestScheduler(t, newFakeStore(), &fakeSender{})

	if err := s.scheduleUser(context.Background(), "ghost"); err != nil {
		t.Fatalf("scheduleUser: %v", err)
	}
	if _, ok := s.NextReminder("ghost"); ok {
		t.Fatal("schedule entry created for a user with no notes")
	}
}

func TestStartIsIdempotent(t *testing.T) {
	t.Parallel()
	s := newTestScheduler(t, newFakeStore(), &fakeSender{})
	// Pin the clock to a non-reminder day so the loop just idles.
	s.now = func() time.Time { return day(11) }

	s.Start()
	s.Start()
	if !s.Running() {
		t.Fatal("Running = false after Start")
	}

	s.Stop()
	if s.Running() {
		t.Fatal("Running = true after Stop")
	}
	s.Stop() // second Stop is a no-op
}

func TestStopAbortsPendingDispatchers(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	for _, u := range []string{"u1", "u2", "u3"} {
		store.add(u, notes.Note{Content: "remember me", Kind: notes.KindText})
	}
	sender := &fakeSender{}
	s := newTestScheduler(t, store, sender)
	// Reminder day at 00:30, so every fire time lands hours in the future.
	s.now = func() time.Time { return time.Date(2026, time.March, 10, 0, 30, 0, 0, time.UTC) }

	s.Start()

	deadline := time.Now().Add(2 * time.Second)
	for s.table.size() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("only %d reminders scheduled before deadline", s.table.size())
		}
		time.Sleep(5 * time.Millisecond)
	}

	start := time.Now()
	s.Stop()
	if took := time.Since(start); took > stopTimeout {
		t.Fatalf("Stop took %v", took)
	}

	if n := sender.total(); n != 0 {
		t.Fatalf("%d messages sent, want 0 for aborted dispatchers", n)
	}
	if n := s.table.size(); n != 0 {
		t.Fatalf("schedule table size = %d after Stop, want 0", n)
	}
}

func TestStats(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	store.add("u1", notes.Note{Content: "a", Kind: notes.KindText})
	store.add("u1", notes.Note{Content: "b", Kind: notes.KindText})
	store.add("u2", notes.Note{Content: "c", Kind: notes.KindText})
	s := newTestScheduler(t, store, &fakeSender{})
	s.table.set(ScheduledReminder{UserID: "u1", FireAt: day(10)})

	snap, err := s.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	want := Snapshot{TotalUsers: 2, TotalNotes: 3, ActiveUsers: 2, ScheduledReminders: 1, Running: false}
	if snap != want {
		t.Fatalf("Stats = %+v, want %+v", snap, want)
	}
}
