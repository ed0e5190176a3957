// Package repository defines persistence interfaces for the domain layer.
package repository

import (
	"context"

	"gratia/internal/domain/entity"
	"gratia/internal/errors"
)

// ErrCacheMiss is returned by Load when no profile has been persisted.
var ErrCacheMiss = errors.New("profile cache: no record")

// ProfileCache persists the mirrored profile record across app restarts. The
// cache holds at most one record, the current identity's; it is invalidated by
// an identity mismatch, never by time.
type ProfileCache interface {
	// Load returns the persisted profile, migrated to the current schema
	// version. Returns ErrCacheMiss when nothing is stored.
	Load(ctx context.Context) (*entity.Profile, error)

	// Save persists the profile, replacing any previous record.
	Save(ctx context.Context, profile *entity.Profile) error

	// Clear removes the persisted record.
	Clear(ctx context.Context) error
}
