package entity

// AuthEventType identifies a change reported on the auth provider's event stream.
type AuthEventType string

// Event types mirror the provider's wire names so log lines line up with the
// provider's own dashboards.
const (
	EventInitialSession AuthEventType = "INITIAL_SESSION"
	EventSignedIn       AuthEventType = "SIGNED_IN"
	EventSignedOut      AuthEventType = "SIGNED_OUT"
	EventUserUpdated    AuthEventType = "USER_UPDATED"
	EventTokenRefreshed AuthEventType = "TOKEN_REFRESHED"
)

// AuthEvent is a single notification from the auth-event stream. Session is nil
// for SIGNED_OUT and for an INITIAL_SESSION without a stored session.
type AuthEvent struct {
	Type    AuthEventType
	Session *Session
}
