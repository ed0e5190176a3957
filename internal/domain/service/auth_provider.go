// Package service defines the interfaces for infrastructure services the
// application depends on. Implementations live under internal/infra.
package service

import (
	"context"

	"gratia/internal/domain/entity"
)

// MagicLinkOptions tunes a magic-link send.
type MagicLinkOptions struct {
	// ShouldCreateUser lets the provider create an account on first sign-in.
	ShouldCreateUser bool

	// Data is attached to the provider's user metadata on account creation.
	Data map[string]any
}

// ExchangeResult is the normalized outcome of any credential exchange.
type ExchangeResult struct {
	Identity *entity.Identity
	Session  *entity.Session
}

// Subscription is a handle on an auth-event stream registration.
// Unsubscribe is idempotent.
type Subscription interface {
	Unsubscribe()
}

// AuthProvider wraps the hosted auth backend's credential exchanges behind a
// normalized surface. Implementations translate every provider failure into the
// tagged error union of internal/domain/errors at this boundary; raw provider
// errors never cross it.
type AuthProvider interface {
	// SignInWithMagicLink sanitizes the email and asks the provider to send a
	// one-time sign-in link. It has no local side effects; authentication
	// completes later, out of band, via the event stream.
	SignInWithMagicLink(ctx context.Context, email string, opts MagicLinkOptions) error

	// ConfirmMagicLink exchanges a token hash from a sign-in link for a session.
	ConfirmMagicLink(ctx context.Context, tokenHash, otpType string) (*ExchangeResult, error)

	// SetSessionFromTokens installs an externally obtained token pair (OAuth
	// deep-link callback) as the active session.
	SetSessionFromTokens(ctx context.Context, accessToken, refreshToken string) (*ExchangeResult, error)

	// SignInWithOAuth starts a browser-based OAuth flow. A user-abandoned flow
	// surfaces as the Cancelled error kind, which callers must not treat as a
	// failure. On success the resulting session arrives via the event stream;
	// this call itself returns no session.
	SignInWithOAuth(ctx context.Context, provider string) error

	// SignOut invalidates the current session at the provider.
	SignOut(ctx context.Context) error

	// CurrentSession returns the session the provider currently holds, or
	// (nil, nil) when signed out. An error means the session state could not
	// be determined (e.g. a failed refresh), not that it is absent.
	CurrentSession(ctx context.Context) (*entity.Session, error)

	// OnAuthStateChange registers a callback on the auth-event stream. The
	// provider emits an INITIAL_SESSION event synchronously on subscribe and
	// delivers subsequent events in order.
	OnAuthStateChange(fn func(entity.AuthEvent)) Subscription
}

// BrowserOpener hands an authorization URL to the platform browser. An
// implementation returns the Cancelled error kind when the user abandons the
// flow, and nil once the hand-off succeeds.
type BrowserOpener interface {
	Open(ctx context.Context, url string) error
}
