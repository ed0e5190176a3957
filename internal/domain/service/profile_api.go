package service

import (
	"context"

	"gratia/internal/domain/entity"
)

// ProfileUpdate is a partial write against the remote profiles row. Nil fields
// are left untouched.
type ProfileUpdate struct {
	Username         *string `json:"username,omitempty"`
	Onboarded        *bool   `json:"onboarded,omitempty"`
	ReminderEnabled  *bool   `json:"reminder_enabled,omitempty"`
	ReminderTime     *string `json:"reminder_time,omitempty"`
	ThrowbackEnabled *bool   `json:"throwback_enabled,omitempty"`
	VariedPrompts    *bool   `json:"varied_prompts,omitempty"`
	DailyGoal        *int    `json:"daily_goal,omitempty"`
}

// ProfileAPI is the remote profiles table, accessed through the hosted
// backend's REST surface.
type ProfileAPI interface {
	// GetProfile fetches the row keyed by the identity id. Absence surfaces as
	// the NotFound error kind.
	GetProfile(ctx context.Context, userID string) (*entity.Profile, error)

	// UpdateProfile applies a partial update and returns the server's echo of
	// the resulting row. A (nil, nil) return is an ambiguous success: the
	// write was accepted but no row came back.
	UpdateProfile(ctx context.Context, userID string, patch *ProfileUpdate) (*entity.Profile, error)
}
