package reminder

import (
	"sync"
	"time"
)

// ScheduledReminder is one pending reminder occurrence. Transient and
// in-memory only: forgotten once it fires or the scheduler stops.
type ScheduledReminder struct {
	UserID string
	FireAt time.Time
}

// scheduleTable tracks at most one pending reminder per user. It is written
// concurrently by every dispatcher and read by the introspection surface,
// so every access takes the mutex. Scheduling the same user again before the
// previous entry fires overwrites it.
type scheduleTable struct {
	mu sync.Mutex
	m  map[string]ScheduledReminder
}

func newScheduleTable() *scheduleTable {
	return &scheduleTable{m: make(map[string]ScheduledReminder)}
}

func (t *scheduleTable) set(r ScheduledReminder) {
	t.mu.Lock()
	t.m[r.UserID] = r
	t.mu.Unlock()
}

func (t *scheduleTable) remove(userID string) {
	t.mu.Lock()
	delete(t.m, userID)
	t.mu.Unlock()
}

func (t *scheduleTable) get(userID string) (ScheduledReminder, bool) {
	t.mu.Lock()
	r, ok := t.m[userID]
	t.mu.Unlock()
	return r, ok
}

func (t *scheduleTable) size() int {
	t.mu.Lock()
	n := len(t.m)
	t.mu.Unlock()
	return n
}

func (t *scheduleTable) clear() {
	t.mu.Lock()
	t.m = make(map[string]ScheduledReminder)
	t.mu.Unlock()
}
