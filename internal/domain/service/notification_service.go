package service

import (
	"context"
)

// ReminderScheduler schedules and cancels the daily journaling reminder push
// for a user. Calls are fire-and-forget side effects of preference updates;
// failures are logged and never surfaced to the caller.
type ReminderScheduler interface {
	// ScheduleDailyReminder (re)schedules the reminder at the given local
	// time of day ("HH:MM").
	ScheduleDailyReminder(ctx context.Context, userID, timeOfDay string) error

	// CancelDailyReminder removes any scheduled reminder for the user.
	CancelDailyReminder(ctx context.Context, userID string) error
}
