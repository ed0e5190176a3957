// Package usecase contains the application-specific business rules.
package usecase

import (
	"context"
	"time"

	"gratia/internal/domain/entity"
)

// Unsubscribe releases a subscription. Safe to call more than once.
type Unsubscribe func()

// AuthSnapshot is the reactive view of the authentication state handed to
// subscribers. IsAuthenticated holds exactly when Identity is non-nil.
type AuthSnapshot struct {
	Identity               *entity.Identity
	IsAuthenticated        bool
	IsLoading              bool
	Error                  error
	MagicLinkSent          bool
	LastMagicLinkRequestAt time.Time
}

// AuthUsecase defines the interface for the auth session state machine.
//
// Actions return the same user-safe error they merge into the snapshot, so
// callers may either inspect the return value or watch the snapshot stream.
type AuthUsecase interface {
	// Initialize resolves the persisted session and establishes the auth
	// event subscription, releasing any previous one first.
	Initialize(ctx context.Context) error
	// Close releases the event subscription.
	Close()

	LoginWithMagicLink(ctx context.Context, email string) error
	LoginWithGoogle(ctx context.Context) error
	ConfirmMagicLink(ctx context.Context, tokenHash, otpType string) error
	SetSessionFromTokens(ctx context.Context, accessToken, refreshToken string) error
	// HandleCallbackURL parses an auth deep-link callback URL and routes it
	// to SetSessionFromTokens or ConfirmMagicLink.
	HandleCallbackURL(ctx context.Context, rawURL string) error
	Logout(ctx context.Context) error

	// Direct setters used by the UI to recover from transient error displays.
	SetLoading(loading bool)
	SetError(err error)
	ClearError()
	ResetMagicLinkSent()

	Snapshot() AuthSnapshot
	// Subscribe registers a snapshot observer. The current snapshot is
	// delivered immediately.
	Subscribe(fn func(AuthSnapshot)) Unsubscribe
}

// IdentityNotifier publishes identity transitions (sign-in, sign-out,
// identity swap) to interested components. Subscribers receive the current
// identity immediately, then every change; a nil identity means signed out.
type IdentityNotifier interface {
	OnIdentityChange(fn func(*entity.Identity)) Unsubscribe
}
