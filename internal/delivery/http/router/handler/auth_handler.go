package handler

import (
	"log/slog"
	"net/http"
	"time"

	deliverycontext "gratia/internal/delivery/context"
	"gratia/internal/delivery/http/response"
	domainerrors "gratia/internal/domain/errors"
	"gratia/internal/usecase"

	"github.com/labstack/echo/v4"
)

// relayFragmentPage moves URL-fragment token parameters into the query string.
// Fragments never reach the server, so the first hit of a fragment-style
// callback gets this page, which immediately re-requests with the tokens
// visible to the handler.
const relayFragmentPage = `<!DOCTYPE html>
<html><head><title>Signing in…</title></head><body>
<p>Completing sign-in…</p>
<script>
  var h = window.location.hash;
  if (h && h.length > 1) {
    window.location.replace(window.location.pathname + "?" + h.substring(1));
  } else {
    document.body.textContent = "This sign-in link is incomplete. Please request a new one.";
  }
</script>
</body></html>`

const signedInPage = `<!DOCTYPE html>
<html><head><title>Signed in</title></head><body>
<p>Sign-in complete. You can close this window and return to the app.</p>
</body></html>`

// AuthHandler serves the local auth surface: the OAuth/magic-link callback and
// the action endpoints the companion UI drives.
type AuthHandler struct {
	auth   usecase.AuthUsecase
	logger *slog.Logger
}

// NewAuthHandler creates a new AuthHandler instance.
func NewAuthHandler(auth usecase.AuthUsecase, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, logger: logger}
}

// Callback handles GET /auth/callback, the browser's return leg of the OAuth
// and magic-link flows.
func (h *AuthHandler) Callback(c echo.Context) error {
	query := c.QueryParams()
	if query.Get("access_token") == "" && query.Get("token_hash") == "" {
		return c.HTML(http.StatusOK, relayFragmentPage)
	}

	ctx := c.Request().Context()
	if err := h.auth.HandleCallbackURL(ctx, c.Request().URL.String()); err != nil {
		logger := deliverycontext.GetLoggerOrDefault(ctx, h.logger)
		logger.Error("Auth callback rejected", slog.Any("error", err))

		return authErrorResponse(c, err)
	}

	return c.HTML(http.StatusOK, signedInPage)
}

type magicLinkRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// MagicLink handles POST /auth/magiclink.
func (h *AuthHandler) MagicLink(c echo.Context) error {
	var req magicLinkRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, "INVALID_REQUEST", "Invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return response.BadRequest(c, "INVALID_EMAIL", "A valid email address is required")
	}

	if err := h.auth.LoginWithMagicLink(c.Request().Context(), req.Email); err != nil {
		return authErrorResponse(c, err)
	}

	return response.Success(c, http.StatusAccepted, nil, "Magic link sent")
}

// Google handles POST /auth/google, which opens the system browser for the
// OAuth exchange. Completion arrives later through the callback.
func (h *AuthHandler) Google(c echo.Context) error {
	if err := h.auth.LoginWithGoogle(c.Request().Context()); err != nil {
		return authErrorResponse(c, err)
	}

	return response.Success(c, http.StatusAccepted, nil, "Browser opened for sign-in")
}

// Logout handles POST /auth/logout.
func (h *AuthHandler) Logout(c echo.Context) error {
	if err := h.auth.Logout(c.Request().Context()); err != nil {
		return authErrorResponse(c, err)
	}

	return response.Success(c, http.StatusOK, nil, "Signed out")
}

type authStatus struct {
	Authenticated          bool       `json:"authenticated"`
	UserID                 string     `json:"user_id,omitempty"`
	Email                  string     `json:"email,omitempty"`
	IsLoading              bool       `json:"is_loading"`
	MagicLinkSent          bool       `json:"magic_link_sent"`
	LastMagicLinkRequestAt *time.Time `json:"last_magic_link_request_at,omitempty"`
	Error                  string     `json:"error,omitempty"`
}

// Status handles GET /auth/status; the companion UI polls it.
func (h *AuthHandler) Status(c echo.Context) error {
	snapshot := h.auth.Snapshot()

	status := authStatus{
		Authenticated: snapshot.IsAuthenticated,
		IsLoading:     snapshot.IsLoading,
		MagicLinkSent: snapshot.MagicLinkSent,
		Error:         domainerrors.SafeMessage(snapshot.Error),
	}
	if snapshot.Identity != nil {
		status.UserID = snapshot.Identity.ID
		status.Email = snapshot.Identity.Email
	}
	if !snapshot.LastMagicLinkRequestAt.IsZero() {
		at := snapshot.LastMagicLinkRequestAt
		status.LastMagicLinkRequestAt = &at
	}

	return response.Success(c, http.StatusOK, status, "")
}

// ClearError handles POST /auth/clear-error, the UI's error dismissal.
func (h *AuthHandler) ClearError(c echo.Context) error {
	h.auth.ClearError()

	return response.Success(c, http.StatusOK, nil, "")
}

// authErrorResponse maps the error taxonomy onto HTTP statuses, surfacing only
// the safe display message.
func authErrorResponse(c echo.Context, err error) error {
	message := domainerrors.SafeMessage(err)
	code := "AUTH_UNKNOWN"
	if authErr, ok := domainerrors.AsAuthError(err); ok {
		code = authErr.ErrorCode()
	}

	switch domainerrors.KindOf(err) {
	case domainerrors.KindURLMissing, domainerrors.KindTokensMissing, domainerrors.KindInvalidRedirect, domainerrors.KindValidation:
		return response.BadRequest(c, code, message)
	case domainerrors.KindRateLimited:
		return response.TooManyRequests(c, code, message)
	case domainerrors.KindProvider, domainerrors.KindNotFound:
		return response.BadGateway(c, code, message)
	default:
		return response.InternalServerError(c, code, message)
	}
}
