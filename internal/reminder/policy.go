package reminder

import "time"

// IsReminderDay reports whether date is an eligible reminder day for the
// given interval. The cadence is anchored to the calendar month: with an
// interval of 2 it fires on every even day of the month, not "every 2 days
// since first use". Pure and total over valid dates.
func IsReminderDay(date time.Time, intervalDays int) bool {
	if intervalDays < 1 {
		return false
	}
	return date.Day()%intervalDays == 0
}
