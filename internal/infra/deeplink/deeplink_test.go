package deeplink

import (
	"testing"

	"gratia/config"
	domainerrors "gratia/internal/domain/errors"
	"gratia/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedirectURL_PerEnvironment(t *testing.T) {
	assert.Equal(t, "gratia-dev://auth/callback", RedirectURL(config.EnvDev))
	assert.Equal(t, "gratia-preview://auth/callback", RedirectURL(config.EnvPreview))
	assert.Equal(t, "gratia://auth/callback", RedirectURL(config.EnvProd))
}

func TestParseCallback_TokenPairInFragment(t *testing.T) {
	cb, err := ParseCallback("gratia://auth/callback#access_token=at123&refresh_token=rt456&token_type=bearer")

	require.NoError(t, err)
	assert.True(t, cb.HasTokenPair())
	assert.Equal(t, "at123", cb.AccessToken)
	assert.Equal(t, "rt456", cb.RefreshToken)
	assert.Empty(t, cb.TokenHash)
}

func TestParseCallback_TokenHashInQuery(t *testing.T) {
	cb, err := ParseCallback("gratia-dev://auth/callback?token_hash=abc&type=magiclink")

	require.NoError(t, err)
	assert.False(t, cb.HasTokenPair())
	assert.Equal(t, "abc", cb.TokenHash)
	assert.Equal(t, "magiclink", cb.OTPType)
}

func TestParseCallback_DefaultsOTPType(t *testing.T) {
	cb, err := ParseCallback("gratia://auth/callback?token_hash=abc")

	require.NoError(t, err)
	assert.Equal(t, "magiclink", cb.OTPType)
}

func TestParseCallback_MissingURL(t *testing.T) {
	_, err := ParseCallback("   ")

	assert.True(t, errors.Is(err, domainerrors.ErrURLMissing))
}

func TestParseCallback_NoTokenMaterial(t *testing.T) {
	_, err := ParseCallback("gratia://auth/callback?foo=bar")

	assert.True(t, errors.Is(err, domainerrors.ErrTokensMissing))
	assert.Equal(t, domainerrors.KindTokensMissing, domainerrors.KindOf(err))
}

func TestParseCallback_MalformedURL(t *testing.T) {
	_, err := ParseCallback("://not-a-url")

	assert.True(t, errors.Is(err, domainerrors.ErrInvalidRedirect))
}
