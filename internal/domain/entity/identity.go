// Package entity contains the core business objects of the project,
// each representing a unique, identifiable concept within the domain.
package entity

import (
	"time"
)

// Identity is the authenticated subject as reported by the hosted auth provider.
// The ID is stable for the lifetime of the account; the remaining attributes are
// provider-supplied and may change between events.
type Identity struct {
	ID        string         // The provider's stable subject identifier ("sub" claim).
	Email     string         // The email address the identity authenticated with.
	Metadata  map[string]any // Provider-supplied user metadata, free-form.
	CreatedAt time.Time      // Timestamp of when the account was created at the provider.
	UpdatedAt time.Time      // Timestamp of the last attribute change at the provider.
}

// Clone returns a deep copy so callers can hand identities to subscribers
// without sharing the metadata map.
func (i *Identity) Clone() *Identity {
	if i == nil {
		return nil
	}

	clone := *i
	if i.Metadata != nil {
		clone.Metadata = make(map[string]any, len(i.Metadata))
		for k, v := range i.Metadata {
			clone.Metadata[k] = v
		}
	}

	return &clone
}

// Session is the opaque bearer credential pair issued by the auth provider,
// together with the identity it authenticates. Raw tokens live only here and in
// the provider; nothing else persists them.
type Session struct {
	AccessToken  string    // Short-lived bearer token presented on API calls.
	RefreshToken string    // Long-lived token used to mint a replacement session.
	TokenType    string    // Token scheme, normally "bearer".
	ExpiresAt    time.Time // Expiry of the access token; zero when unknown.
	Identity     *Identity // The subject this session authenticates.
}

// Expired reports whether the access token has passed its expiry at the given
// instant. A session without a known expiry is never considered expired.
func (s *Session) Expired(now time.Time) bool {
	if s == nil || s.ExpiresAt.IsZero() {
		return false
	}

	return now.After(s.ExpiresAt)
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}

	clone := *s
	clone.Identity = s.Identity.Clone()

	return &clone
}
