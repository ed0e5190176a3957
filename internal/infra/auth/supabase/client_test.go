package supabase

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gratia/config"
	"gratia/internal/domain/entity"
	domainerrors "gratia/internal/domain/errors"
	"gratia/internal/domain/service"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBrowser struct {
	urls []string
	err  error
}

func (b *fakeBrowser) Open(_ context.Context, url string) error {
	b.urls = append(b.urls, url)

	return b.err
}

func newTestClient(t *testing.T, handler http.Handler) (*Client, *fakeBrowser) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := &config.Config{}
	cfg.Env.Env = config.EnvDev
	cfg.Supabase = config.SupabaseConfig{URL: server.URL, AnonKey: "anon-key"}
	cfg.Auth = config.AuthConfig{ShouldCreateUser: true}

	browser := &fakeBrowser{}
	client := NewClient(ClientParams{
		Config:  cfg,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Browser: browser,
	})

	return client, browser
}

// signedToken mints a token whose exp claim the client can read; the signature
// is irrelevant since the client never verifies it.
func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "u1",
		"exp": exp.Unix(),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	return signed
}

func sessionBody(t *testing.T, accessToken string) []byte {
	t.Helper()

	body, err := json.Marshal(map[string]any{
		"access_token":  accessToken,
		"token_type":    "bearer",
		"expires_in":    3600,
		"refresh_token": "rt-1",
		"user": map[string]any{
			"id":    "u1",
			"email": "user@example.com",
		},
	})
	require.NoError(t, err)

	return body
}

func defaultLinkOpts() service.MagicLinkOptions {
	return service.MagicLinkOptions{}
}

func TestClient_SignInWithMagicLinkSanitizesEmail(t *testing.T) {
	var gotBody map[string]any
	var gotRedirect, gotAPIKey string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/auth/v1/otp", r.URL.Path)
		gotRedirect = r.URL.Query().Get("redirect_to")
		gotAPIKey = r.Header.Get("apikey")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	})
	client, _ := newTestClient(t, handler)

	err := client.SignInWithMagicLink(context.Background(), "  User@Example.COM\u200b ", defaultLinkOpts())
	require.NoError(t, err)

	assert.Equal(t, "user@example.com", gotBody["email"])
	assert.Equal(t, true, gotBody["create_user"])
	assert.Equal(t, "gratia-dev://auth/callback", gotRedirect)
	assert.Equal(t, "anon-key", gotAPIKey)
}

func TestClient_SignInWithMagicLinkProviderError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"msg":"Signups not allowed for otp"}`))
	})
	client, _ := newTestClient(t, handler)

	err := client.SignInWithMagicLink(context.Background(), "user@example.com", defaultLinkOpts())
	require.Error(t, err)
	assert.Equal(t, domainerrors.KindProvider, domainerrors.KindOf(err))
	assert.NotContains(t, domainerrors.SafeMessage(err), "Signups not allowed")

	authErr, ok := domainerrors.AsAuthError(err)
	require.True(t, ok)
	assert.Contains(t, authErr.Details(), "Signups not allowed")
}

func TestClient_ConfirmMagicLinkAdoptsSessionAndEmitsSignedIn(t *testing.T) {
	access := ""
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/v1/verify", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "magiclink", body["type"])
		assert.Equal(t, "hash-1", body["token_hash"])

		_, _ = w.Write(sessionBody(t, access))
	})
	client, _ := newTestClient(t, handler)
	access = signedToken(t, time.Now().Add(time.Hour))

	var events []entity.AuthEvent
	sub := client.OnAuthStateChange(func(e entity.AuthEvent) {
		events = append(events, e)
	})
	defer sub.Unsubscribe()

	result, err := client.ConfirmMagicLink(context.Background(), "hash-1", "")
	require.NoError(t, err)
	require.NotNil(t, result.Identity)
	assert.Equal(t, "u1", result.Identity.ID)
	assert.False(t, result.Session.ExpiresAt.IsZero())

	require.Len(t, events, 2)
	assert.Equal(t, entity.EventInitialSession, events[0].Type)
	assert.Nil(t, events[0].Session)
	assert.Equal(t, entity.EventSignedIn, events[1].Type)

	session, err := client.CurrentSession(context.Background())
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, "u1", session.Identity.ID)
}

func TestClient_SetSessionFromTokensRecoversIdentity(t *testing.T) {
	access := signedToken(t, time.Now().Add(time.Hour))
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/v1/user", r.URL.Path)
		assert.Equal(t, "Bearer "+access, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"id":"u1","email":"user@example.com"}`))
	})
	client, _ := newTestClient(t, handler)

	result, err := client.SetSessionFromTokens(context.Background(), access, "rt-1")
	require.NoError(t, err)
	require.NotNil(t, result.Identity)
	assert.Equal(t, "u1", result.Identity.ID)
	assert.Equal(t, "rt-1", result.Session.RefreshToken)
	assert.False(t, result.Session.ExpiresAt.IsZero())
}

func TestClient_SignOutClearsSessionAndEmits(t *testing.T) {
	var logoutCalls int
	access := signedToken(t, time.Now().Add(time.Hour))
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/v1/user":
			_, _ = w.Write([]byte(`{"id":"u1"}`))
		case "/auth/v1/logout":
			logoutCalls++
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	})
	client, _ := newTestClient(t, handler)

	_, err := client.SetSessionFromTokens(context.Background(), access, "rt-1")
	require.NoError(t, err)

	var events []entity.AuthEventType
	sub := client.OnAuthStateChange(func(e entity.AuthEvent) {
		events = append(events, e.Type)
	})
	defer sub.Unsubscribe()

	require.NoError(t, client.SignOut(context.Background()))
	assert.Equal(t, 1, logoutCalls)
	assert.Contains(t, events, entity.EventSignedOut)

	session, err := client.CurrentSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, session)
}

func TestClient_SignOutToleratesRevokedToken(t *testing.T) {
	access := signedToken(t, time.Now().Add(time.Hour))
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/v1/user":
			_, _ = w.Write([]byte(`{"id":"u1"}`))
		case "/auth/v1/logout":
			w.WriteHeader(http.StatusUnauthorized)
		}
	})
	client, _ := newTestClient(t, handler)

	_, err := client.SetSessionFromTokens(context.Background(), access, "rt-1")
	require.NoError(t, err)

	require.NoError(t, client.SignOut(context.Background()))

	session, err := client.CurrentSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, session)
}

func TestClient_SignOutWithoutSessionStillEmits(t *testing.T) {
	handler := http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected request %s", r.URL.Path)
	})
	client, _ := newTestClient(t, handler)

	var events []entity.AuthEventType
	sub := client.OnAuthStateChange(func(e entity.AuthEvent) {
		events = append(events, e.Type)
	})
	defer sub.Unsubscribe()

	require.NoError(t, client.SignOut(context.Background()))
	assert.Contains(t, events, entity.EventSignedOut)
}

func TestClient_CurrentSessionRefreshesExpiredToken(t *testing.T) {
	expired := signedToken(t, time.Now().Add(-time.Minute))
	fresh := signedToken(t, time.Now().Add(time.Hour))
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/v1/user":
			_, _ = w.Write([]byte(`{"id":"u1"}`))
		case "/auth/v1/token":
			assert.Equal(t, "refresh_token", r.URL.Query().Get("grant_type"))

			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "rt-1", body["refresh_token"])

			_, _ = w.Write(sessionBody(t, fresh))
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	})
	client, _ := newTestClient(t, handler)

	_, err := client.SetSessionFromTokens(context.Background(), expired, "rt-1")
	require.NoError(t, err)

	var events []entity.AuthEventType
	sub := client.OnAuthStateChange(func(e entity.AuthEvent) {
		events = append(events, e.Type)
	})
	defer sub.Unsubscribe()

	session, err := client.CurrentSession(context.Background())
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, fresh, session.AccessToken)
	assert.Contains(t, events, entity.EventTokenRefreshed)
}

func TestClient_CurrentSessionRefreshFailureSurfaces(t *testing.T) {
	expired := signedToken(t, time.Now().Add(-time.Minute))
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/v1/user":
			_, _ = w.Write([]byte(`{"id":"u1"}`))
		case "/auth/v1/token":
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"refresh token revoked"}`))
		}
	})
	client, _ := newTestClient(t, handler)

	_, err := client.SetSessionFromTokens(context.Background(), expired, "rt-1")
	require.NoError(t, err)

	_, err = client.CurrentSession(context.Background())
	require.Error(t, err)
	assert.Equal(t, domainerrors.KindProvider, domainerrors.KindOf(err))
}

func TestClient_SignInWithOAuthOpensAuthorizeURL(t *testing.T) {
	client, browser := newTestClient(t, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	require.NoError(t, client.SignInWithOAuth(context.Background(), "google"))

	require.Len(t, browser.urls, 1)
	assert.Contains(t, browser.urls[0], "/auth/v1/authorize?")
	assert.Contains(t, browser.urls[0], "provider=google")
	assert.Contains(t, browser.urls[0], "redirect_to=gratia-dev")
}

func TestClient_SignInWithOAuthCancellation(t *testing.T) {
	client, browser := newTestClient(t, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	browser.err = domainerrors.ErrCancelled

	err := client.SignInWithOAuth(context.Background(), "google")
	require.Error(t, err)
	assert.ErrorIs(t, err, domainerrors.ErrCancelled)
}

func TestClient_AccessTokenFallsBackToAnonKey(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	assert.Equal(t, "anon-key", client.AccessToken())
}
