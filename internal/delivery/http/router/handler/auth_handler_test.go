package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	httpvalidator "gratia/internal/delivery/http/validator"
	"gratia/internal/domain/entity"
	domainerrors "gratia/internal/domain/errors"
	"gratia/internal/usecase"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubAuthUsecase is a scriptable usecase.AuthUsecase for handler tests.
type stubAuthUsecase struct {
	snapshot usecase.AuthSnapshot

	callbackURLs []string
	callbackErr  error

	magicLinkEmails []string
	magicLinkErr    error

	googleCalls int
	logoutCalls int
	logoutErr   error
	clearCalls  int
}

func (s *stubAuthUsecase) Initialize(context.Context) error { return nil }
func (s *stubAuthUsecase) Close()                           {}

func (s *stubAuthUsecase) LoginWithMagicLink(_ context.Context, email string) error {
	s.magicLinkEmails = append(s.magicLinkEmails, email)

	return s.magicLinkErr
}

func (s *stubAuthUsecase) LoginWithGoogle(context.Context) error {
	s.googleCalls++

	return nil
}

func (s *stubAuthUsecase) ConfirmMagicLink(context.Context, string, string) error { return nil }
func (s *stubAuthUsecase) SetSessionFromTokens(context.Context, string, string) error {
	return nil
}

func (s *stubAuthUsecase) HandleCallbackURL(_ context.Context, rawURL string) error {
	s.callbackURLs = append(s.callbackURLs, rawURL)

	return s.callbackErr
}

func (s *stubAuthUsecase) Logout(context.Context) error {
	s.logoutCalls++

	return s.logoutErr
}

func (s *stubAuthUsecase) SetLoading(bool)     {}
func (s *stubAuthUsecase) SetError(error)      {}
func (s *stubAuthUsecase) ClearError()         { s.clearCalls++ }
func (s *stubAuthUsecase) ResetMagicLinkSent() {}

func (s *stubAuthUsecase) Snapshot() usecase.AuthSnapshot { return s.snapshot }

func (s *stubAuthUsecase) Subscribe(fn func(usecase.AuthSnapshot)) usecase.Unsubscribe {
	fn(s.snapshot)

	return func() {}
}

func newHandlerContext(t *testing.T, method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()

	e := echo.New()
	e.Validator = httpvalidator.New()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()

	return e.NewContext(req, rec), rec
}

func newTestAuthHandler(stub *stubAuthUsecase) *AuthHandler {
	return NewAuthHandler(stub, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestAuthHandler_CallbackWithQueryTokens(t *testing.T) {
	stub := &stubAuthUsecase{}
	h := newTestAuthHandler(stub)

	c, rec := newHandlerContext(t, http.MethodGet, "/auth/callback?access_token=at&refresh_token=rt", "")

	require.NoError(t, h.Callback(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, stub.callbackURLs, 1)
	assert.Contains(t, stub.callbackURLs[0], "access_token=at")
	assert.Contains(t, rec.Body.String(), "Sign-in complete")
}

func TestAuthHandler_CallbackWithoutTokensServesRelayPage(t *testing.T) {
	stub := &stubAuthUsecase{}
	h := newTestAuthHandler(stub)

	c, rec := newHandlerContext(t, http.MethodGet, "/auth/callback", "")

	require.NoError(t, h.Callback(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, stub.callbackURLs)
	assert.Contains(t, rec.Body.String(), "window.location.hash")
}

func TestAuthHandler_CallbackErrorMapsToBadRequest(t *testing.T) {
	stub := &stubAuthUsecase{callbackErr: domainerrors.ErrTokensMissing}
	h := newTestAuthHandler(stub)

	c, rec := newHandlerContext(t, http.MethodGet, "/auth/callback?token_hash=x", "")

	require.NoError(t, h.Callback(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "AUTH_TOKENS_MISSING")
}

func TestAuthHandler_MagicLink(t *testing.T) {
	stub := &stubAuthUsecase{}
	h := newTestAuthHandler(stub)

	c, rec := newHandlerContext(t, http.MethodPost, "/auth/magiclink", `{"email":"user@example.com"}`)

	require.NoError(t, h.MagicLink(c))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{"user@example.com"}, stub.magicLinkEmails)
}

func TestAuthHandler_MagicLinkRejectsInvalidEmail(t *testing.T) {
	stub := &stubAuthUsecase{}
	h := newTestAuthHandler(stub)

	c, rec := newHandlerContext(t, http.MethodPost, "/auth/magiclink", `{"email":"not-an-email"}`)

	require.NoError(t, h.MagicLink(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, stub.magicLinkEmails)
}

func TestAuthHandler_MagicLinkRateLimited(t *testing.T) {
	stub := &stubAuthUsecase{magicLinkErr: domainerrors.ErrRateLimited}
	h := newTestAuthHandler(stub)

	c, rec := newHandlerContext(t, http.MethodPost, "/auth/magiclink", `{"email":"user@example.com"}`)

	require.NoError(t, h.MagicLink(c))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestAuthHandler_LogoutFailureMapsToBadGateway(t *testing.T) {
	stub := &stubAuthUsecase{logoutErr: domainerrors.ErrProvider}
	h := newTestAuthHandler(stub)

	c, rec := newHandlerContext(t, http.MethodPost, "/auth/logout", "")

	require.NoError(t, h.Logout(c))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, 1, stub.logoutCalls)
}

func TestAuthHandler_StatusReportsSnapshot(t *testing.T) {
	stub := &stubAuthUsecase{
		snapshot: usecase.AuthSnapshot{
			Identity:        &entity.Identity{ID: "u1", Email: "user@example.com"},
			IsAuthenticated: true,
			MagicLinkSent:   true,
			Error:           domainerrors.ErrProvider,
		},
	}
	h := newTestAuthHandler(stub)

	c, rec := newHandlerContext(t, http.MethodGet, "/auth/status", "")

	require.NoError(t, h.Status(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data authStatus `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Data.Authenticated)
	assert.Equal(t, "u1", body.Data.UserID)
	assert.True(t, body.Data.MagicLinkSent)
	assert.Equal(t, domainerrors.ErrProvider.Message(), body.Data.Error)
}
