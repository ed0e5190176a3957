// Package errors defines the application's error taxonomy. Every failure that
// can reach the UI layer is decided here, at a single boundary, as a tagged
// AuthError value with a safe display message; technical detail travels in the
// wrapped cause and is only ever logged.
package errors

import (
	"gratia/internal/errors"
)

// Kind tags an AuthError so downstream code can match on the failure class
// instead of probing error values for marker fields.
type Kind string

const (
	// KindCancelled marks a user-abandoned flow. It is benign and must never
	// populate the snapshot's error field.
	KindCancelled Kind = "cancelled"

	// KindInvalidRedirect marks a malformed OAuth/deep-link callback URL.
	KindInvalidRedirect Kind = "invalid_redirect"

	// KindTokensMissing marks a callback URL that parsed but carried no usable
	// token material.
	KindTokensMissing Kind = "tokens_missing"

	// KindURLMissing marks a callback invocation without any URL at all.
	KindURLMissing Kind = "url_missing"

	// KindProvider marks any failure reported by the hosted backend, network
	// errors included.
	KindProvider Kind = "provider"

	// KindRateLimited marks a request refused by the client-side cooldown
	// before the backend was contacted.
	KindRateLimited Kind = "rate_limited"

	// KindValidation marks a fetched record that failed schema validation.
	// Never retried.
	KindValidation Kind = "validation"

	// KindNotFound marks an absent remote record. Retried a bounded number of
	// times to cover read-after-write replication lag.
	KindNotFound Kind = "not_found"

	// KindUnknown is the catch-all for unexpected failures.
	KindUnknown Kind = "unknown"
)

// AuthError is the normalized error shape exposed past the adapter boundary.
// Message is always safe to display verbatim; Details carries technical context
// for logs only.
type AuthError struct {
	kind    Kind
	code    string
	message string
	details string
}

// New creates a new AuthError.
func New(kind Kind, code, message string) *AuthError {
	return &AuthError{
		kind:    kind,
		code:    code,
		message: message,
	}
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	return e.message
}

// Kind returns the failure class tag.
func (e *AuthError) Kind() Kind {
	return e.kind
}

// ErrorCode returns the stable business error code.
func (e *AuthError) ErrorCode() string {
	return e.code
}

// Message returns the user-displayable error message.
func (e *AuthError) Message() string {
	return e.message
}

// Details returns technical error information, for logging only.
func (e *AuthError) Details() string {
	return e.details
}

// WithDetails returns a copy carrying technical detail.
func (e *AuthError) WithDetails(details string) *AuthError {
	return &AuthError{
		kind:    e.kind,
		code:    e.code,
		message: e.message,
		details: details,
	}
}

// WithMessage returns a copy with a different safe display message, keeping the
// kind and code. Used for messages that interpolate runtime values, e.g. the
// remaining cooldown wait.
func (e *AuthError) WithMessage(message string) *AuthError {
	return &AuthError{
		kind:    e.kind,
		code:    e.code,
		message: message,
		details: e.details,
	}
}

// WrapMessage wraps the error with additional context message.
func (e *AuthError) WrapMessage(message string) error {
	return errors.Wrap(e, message)
}

// Is matches two AuthErrors by kind and code, so predefined values work as
// errors.Is targets regardless of WithDetails/WithMessage copies in between.
func (e *AuthError) Is(target error) bool {
	other, ok := target.(*AuthError)
	if !ok {
		return false
	}

	return e.kind == other.kind && e.code == other.code
}

// Predefined error values. Adapter and store code wraps these; UI-facing code
// matches on them with errors.Is or on KindOf.
var (
	ErrCancelled = New(
		KindCancelled,
		"AUTH_CANCELLED",
		"Sign-in was cancelled.",
	)

	ErrInvalidRedirect = New(
		KindInvalidRedirect,
		"AUTH_INVALID_REDIRECT",
		"The sign-in link is invalid. Please request a new one.",
	)

	ErrTokensMissing = New(
		KindTokensMissing,
		"AUTH_TOKENS_MISSING",
		"The sign-in link is incomplete. Please request a new one.",
	)

	ErrURLMissing = New(
		KindURLMissing,
		"AUTH_URL_MISSING",
		"No sign-in link was provided.",
	)

	ErrProvider = New(
		KindProvider,
		"AUTH_PROVIDER",
		"Something went wrong while contacting the sign-in service. Please try again.",
	)

	ErrSessionMissing = New(
		KindProvider,
		"AUTH_SESSION_MISSING",
		"Your session could not be confirmed. Please request a new link.",
	)

	ErrRateLimited = New(
		KindRateLimited,
		"AUTH_RATE_LIMITED",
		"Please wait a moment before requesting another link.",
	)

	ErrProfileInvalid = New(
		KindValidation,
		"PROFILE_INVALID",
		"Your profile could not be read. Please contact support if this persists.",
	)

	ErrProfileNotFound = New(
		KindNotFound,
		"PROFILE_NOT_FOUND",
		"Your profile is not available yet. Please try again shortly.",
	)

	ErrUnknown = New(
		KindUnknown,
		"AUTH_UNKNOWN",
		"Something unexpected went wrong. Please try again.",
	)
)

// AsAuthError returns the first AuthError in err's tree.
func AsAuthError(err error) (*AuthError, bool) {
	if err == nil {
		return nil, false
	}

	return errors.AsType[*AuthError](err)
}

// KindOf returns the Kind of the first AuthError in err's tree, or KindUnknown
// when none is present. A nil error has no kind and returns "".
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}

	if authErr, ok := errors.AsType[*AuthError](err); ok {
		return authErr.Kind()
	}

	return KindUnknown
}

// SafeMessage translates any error into a string safe to surface to the UI.
// AuthErrors surface their own message; anything else collapses to the generic
// unknown-failure text so provider internals never leak into a screen.
func SafeMessage(err error) string {
	if err == nil {
		return ""
	}

	if authErr, ok := errors.AsType[*AuthError](err); ok {
		return authErr.Message()
	}

	return ErrUnknown.Message()
}
