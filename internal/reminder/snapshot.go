package reminder

import "context"

// Snapshot is a read-only view of the scheduler. Purely informational.
type Snapshot struct {
	TotalUsers         int  `json:"total_users"`
	TotalNotes         int  `json:"total_notes"`
	ActiveUsers        int  `json:"active_users"`
	ScheduledReminders int  `json:"scheduled_reminders"`
	Running            bool `json:"running"`
}

// Stats gathers store counts and the current in-memory schedule size.
func (s *Scheduler) Stats(ctx context.Context) (Snapshot, error) {
	totalUsers, err := s.store.TotalUsers(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	totalNotes, err := s.store.TotalNotes(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	active, err := s.store.ListUsersWithNotes(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		TotalUsers:         totalUsers,
		TotalNotes:         totalNotes,
		ActiveUsers:        len(active),
		ScheduledReminders: s.table.size(),
		Running:            s.Running(),
	}, nil
}
