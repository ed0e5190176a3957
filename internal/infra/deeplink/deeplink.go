// Package deeplink builds and parses the custom-scheme URLs the auth provider
// redirects back to after a magic-link or OAuth sign-in.
package deeplink

import (
	"net/url"
	"strings"

	"gratia/config"
	domainerrors "gratia/internal/domain/errors"
)

const callbackPath = "auth/callback"

// RedirectURL returns the environment-specific callback URL registered with
// the auth provider. Each environment gets its own scheme so a dev build never
// swallows a production link.
func RedirectURL(env string) string {
	switch env {
	case config.EnvDev:
		return "gratia-dev://" + callbackPath
	case config.EnvPreview:
		return "gratia-preview://" + callbackPath
	default:
		return "gratia://" + callbackPath
	}
}

// Callback is the token material extracted from an incoming redirect URL.
// Either the token pair or the token hash is set, never both.
type Callback struct {
	AccessToken  string
	RefreshToken string
	TokenHash    string
	OTPType      string
}

// HasTokenPair reports whether the callback carries an explicit session pair.
func (c *Callback) HasTokenPair() bool {
	return c.AccessToken != "" && c.RefreshToken != ""
}

// ParseCallback extracts token material from a redirect URL. The provider
// places session tokens in the URL fragment and magic-link hashes in the
// query, so both are inspected, fragment first.
func ParseCallback(raw string) (*Callback, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, domainerrors.ErrURLMissing
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, domainerrors.ErrInvalidRedirect.WithDetails(err.Error())
	}

	params, err := url.ParseQuery(parsed.Fragment)
	if err != nil || params.Get("access_token") == "" {
		params = parsed.Query()
	}

	cb := &Callback{
		AccessToken:  params.Get("access_token"),
		RefreshToken: params.Get("refresh_token"),
		TokenHash:    params.Get("token_hash"),
		OTPType:      params.Get("type"),
	}
	if cb.OTPType == "" {
		cb.OTPType = "magiclink"
	}

	if cb.TokenHash != "" {
		cb.AccessToken = ""
		cb.RefreshToken = ""

		return cb, nil
	}

	if !cb.HasTokenPair() {
		return nil, domainerrors.ErrTokensMissing.WithDetails("redirect carried neither a token pair nor a token hash")
	}

	return cb, nil
}
