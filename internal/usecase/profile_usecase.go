package usecase

import (
	"context"

	"gratia/internal/domain/entity"
)

// ProfileSnapshot is the reactive view of the mirrored profile record.
type ProfileSnapshot struct {
	Profile        *entity.Profile
	IsLoading      bool
	Error          error
	FetchAttempted bool
}

// ProfileUsecase defines the interface for the profile cache/sync store.
type ProfileUsecase interface {
	// Start attaches the store to the identity stream and rehydrates the
	// persisted cache.
	Start(ctx context.Context) error
	Close()

	// RefreshProfile fetches the remote record for the current identity,
	// retrying transient failures a bounded number of times.
	RefreshProfile(ctx context.Context) error

	UpdateDailyReminderSettings(ctx context.Context, input *DailyReminderInput) error
	UpdateThrowbackPreferences(ctx context.Context, input *ThrowbackInput) error
	SetVariedPrompts(ctx context.Context, enabled bool) error
	SetDailyGoal(ctx context.Context, goal int) error
	SetUsername(ctx context.Context, username string) error
	CompleteOnboarding(ctx context.Context) error

	Snapshot() ProfileSnapshot
	Subscribe(fn func(ProfileSnapshot)) Unsubscribe
}

// --- Input DTOs ---

// DailyReminderInput defines the data required to update reminder settings.
type DailyReminderInput struct {
	Enabled   bool   `json:"enabled"`
	TimeOfDay string `json:"time_of_day,omitempty"`
}

// ThrowbackInput defines the data required to update throwback preferences.
type ThrowbackInput struct {
	Enabled bool `json:"enabled"`
}
