package entity

import (
	"time"
)

// ReminderTimeLayout is the canonical time-of-day format ("HH:MM", 24h) used for
// the daily reminder preference, both on the wire and in the local cache.
const ReminderTimeLayout = "15:04"

// Profile mirrors one row of the remote profiles table, keyed by the identity
// id. It is the only piece of remote state the client caches locally.
//
// The validate tags describe the shape a fetched record must satisfy; a record
// failing them is treated as corrupt and is never retried.
type Profile struct {
	ID               string    `json:"id" validate:"required"`
	Username         string    `json:"username" validate:"max=64"`
	Onboarded        bool      `json:"onboarded"`
	ReminderEnabled  bool      `json:"reminder_enabled"`
	ReminderTime     string    `json:"reminder_time" validate:"omitempty,datetime=15:04"`
	ThrowbackEnabled bool      `json:"throwback_enabled"`
	VariedPrompts    bool      `json:"varied_prompts"`
	DailyGoal        int       `json:"daily_goal" validate:"gte=0,lte=50"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// DefaultProfile returns the reset state the local store falls back to whenever
// the authenticated identity disappears or changes.
func DefaultProfile() *Profile {
	return &Profile{
		ReminderEnabled: false,
		ReminderTime:    "",
		VariedPrompts:   true,
		DailyGoal:       1,
	}
}

// Clone returns a copy of the profile.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}

	clone := *p

	return &clone
}
