// Package supabase is the credential-exchange adapter for the hosted
// Supabase backend: the GoTrue auth REST API plus the PostgREST profiles
// table. All provider failures are translated into the domain error union at
// this boundary; raw provider errors are logged here and never propagated.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"gratia/config"
	"gratia/internal/domain/entity"
	domainerrors "gratia/internal/domain/errors"
	"gratia/internal/domain/service"
	"gratia/internal/errors"
	"gratia/internal/infra/deeplink"
	"gratia/internal/util"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/fx"
	"golang.org/x/time/rate"
)

const (
	authBasePath = "/auth/v1"

	defaultRequestTimeout = 15 * time.Second
)

// Client implements service.AuthProvider against a GoTrue endpoint.
type Client struct {
	baseURL          string
	anonKey          string
	redirectURL      string
	shouldCreateUser bool

	httpClient *http.Client
	limiter    *rate.Limiter
	browser    service.BrowserOpener
	hub        *eventHub
	logger     *slog.Logger

	mu      sync.RWMutex
	session *entity.Session
}

var _ service.AuthProvider = (*Client)(nil)

// ClientParams holds dependencies for the Client, injected by Fx.
type ClientParams struct {
	fx.In

	Config  *config.Config
	Logger  *slog.Logger
	Browser service.BrowserOpener
}

// NewClient is the constructor for Client.
func NewClient(params ClientParams) *Client {
	cfg := params.Config

	// Outbound pacing guards against client-side request flooding across the
	// whole auth surface; the magic-link cooldown is enforced separately by
	// the controller.
	limit := rate.Inf
	if rpm := cfg.Auth.RequestsPerMinute; rpm > 0 {
		limit = rate.Limit(float64(rpm) / 60.0)
	}

	client := &Client{
		baseURL:          cfg.Supabase.URL,
		anonKey:          cfg.Supabase.AnonKey,
		redirectURL:      deeplink.RedirectURL(cfg.Env.Env),
		shouldCreateUser: cfg.Auth.ShouldCreateUser,
		httpClient:       &http.Client{Timeout: defaultRequestTimeout},
		limiter:          rate.NewLimiter(limit, 3),
		browser:          params.Browser,
		logger:           params.Logger,
	}
	client.hub = newEventHub(client.snapshotSession)

	return client
}

// --- wire shapes ---

type userResponse struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

type sessionResponse struct {
	AccessToken  string        `json:"access_token"`
	TokenType    string        `json:"token_type"`
	ExpiresIn    int           `json:"expires_in"`
	RefreshToken string        `json:"refresh_token"`
	User         *userResponse `json:"user"`
}

type errorResponse struct {
	Code             string `json:"error_code"`
	Msg              string `json:"msg"`
	Err              string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (e *errorResponse) text() string {
	switch {
	case e.Msg != "":
		return e.Msg
	case e.ErrorDescription != "":
		return e.ErrorDescription
	default:
		return e.Err
	}
}

func (u *userResponse) toIdentity() *entity.Identity {
	if u == nil || u.ID == "" {
		return nil
	}

	return &entity.Identity{
		ID:        u.ID,
		Email:     u.Email,
		Metadata:  u.UserMetadata,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func (c *Client) toSession(resp *sessionResponse) *entity.Session {
	expiresAt := parseAccessTokenExpiry(resp.AccessToken)
	if expiresAt.IsZero() && resp.ExpiresIn > 0 {
		expiresAt = time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}

	return &entity.Session{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		TokenType:    resp.TokenType,
		ExpiresAt:    expiresAt,
		Identity:     resp.User.toIdentity(),
	}
}

// parseAccessTokenExpiry reads the exp claim from the JWT without verifying
// the signature; verification is the backend's job, the client only needs the
// expiry for refresh scheduling.
func parseAccessTokenExpiry(accessToken string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return time.Time{}
	}

	expiry, err := claims.GetExpirationTime()
	if err != nil || expiry == nil {
		return time.Time{}
	}

	return expiry.Time
}

// --- service.AuthProvider ---

// SignInWithMagicLink asks GoTrue to email a one-time sign-in link.
func (c *Client) SignInWithMagicLink(ctx context.Context, email string, opts service.MagicLinkOptions) error {
	sanitized := util.SanitizeEmail(email)

	payload := map[string]any{
		"email":       sanitized,
		"create_user": opts.ShouldCreateUser || c.shouldCreateUser,
	}
	if len(opts.Data) > 0 {
		payload["data"] = opts.Data
	}

	query := url.Values{}
	query.Set("redirect_to", c.redirectURL)

	if err := c.doJSON(ctx, http.MethodPost, authBasePath+"/otp?"+query.Encode(), "", payload, nil); err != nil {
		return c.providerError("otp send", err)
	}

	c.logger.Debug("Magic link requested", slog.String("redirectTo", c.redirectURL))

	return nil
}

// ConfirmMagicLink exchanges a token hash for a session.
func (c *Client) ConfirmMagicLink(ctx context.Context, tokenHash, otpType string) (*service.ExchangeResult, error) {
	if otpType == "" {
		otpType = "magiclink"
	}

	payload := map[string]any{
		"type":       otpType,
		"token_hash": tokenHash,
	}

	var resp sessionResponse
	if err := c.doJSON(ctx, http.MethodPost, authBasePath+"/verify", "", payload, &resp); err != nil {
		return nil, c.providerError("otp verify", err)
	}

	session := c.toSession(&resp)
	c.adoptSession(session)

	return &service.ExchangeResult{Identity: session.Identity, Session: session}, nil
}

// SetSessionFromTokens installs an externally obtained token pair; the
// identity is recovered from the user endpoint.
func (c *Client) SetSessionFromTokens(ctx context.Context, accessToken, refreshToken string) (*service.ExchangeResult, error) {
	var user userResponse
	if err := c.doJSON(ctx, http.MethodGet, authBasePath+"/user", accessToken, nil, &user); err != nil {
		return nil, c.providerError("user fetch", err)
	}

	session := &entity.Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "bearer",
		ExpiresAt:    parseAccessTokenExpiry(accessToken),
		Identity:     user.toIdentity(),
	}
	c.adoptSession(session)

	return &service.ExchangeResult{Identity: session.Identity, Session: session}, nil
}

// SignInWithOAuth opens the provider's authorization URL in the platform
// browser. The session, if any, arrives later through the deep-link callback
// and the event stream.
func (c *Client) SignInWithOAuth(ctx context.Context, provider string) error {
	query := url.Values{}
	query.Set("provider", provider)
	query.Set("redirect_to", c.redirectURL)

	authorizeURL := c.baseURL + authBasePath + "/authorize?" + query.Encode()

	if err := c.browser.Open(ctx, authorizeURL); err != nil {
		if domainerrors.KindOf(err) == domainerrors.KindCancelled {
			c.logger.Debug("OAuth flow cancelled by user", slog.String("provider", provider))

			return domainerrors.ErrCancelled
		}

		return c.providerError("oauth authorize", err)
	}

	return nil
}

// SignOut invalidates the current session. Local state is only cleared once
// the provider confirms, so a failed logout leaves the user signed in.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.RLock()
	session := c.session
	c.mu.RUnlock()

	if session == nil {
		c.hub.Emit(entity.EventSignedOut, nil)

		return nil
	}

	if err := c.doJSON(ctx, http.MethodPost, authBasePath+"/logout", session.AccessToken, nil, nil); err != nil {
		// A token the provider no longer recognizes is as signed-out as it gets.
		var apiErr *apiError
		if !errors.As(err, &apiErr) || (apiErr.status != http.StatusUnauthorized && apiErr.status != http.StatusNotFound) {
			return c.providerError("sign out", err)
		}
	}

	c.mu.Lock()
	c.session = nil
	c.mu.Unlock()

	c.hub.Emit(entity.EventSignedOut, nil)

	return nil
}

// CurrentSession returns the cached session, refreshing it first when the
// access token has expired. (nil, nil) means signed out.
func (c *Client) CurrentSession(ctx context.Context) (*entity.Session, error) {
	c.mu.RLock()
	session := c.session.Clone()
	c.mu.RUnlock()

	if session == nil {
		return nil, nil
	}

	if !session.Expired(time.Now()) {
		return session, nil
	}

	refreshed, err := c.refreshSession(ctx, session.RefreshToken)
	if err != nil {
		return nil, err
	}

	return refreshed.Clone(), nil
}

// OnAuthStateChange registers a callback on the auth-event stream.
func (c *Client) OnAuthStateChange(fn func(entity.AuthEvent)) service.Subscription {
	return c.hub.Subscribe(fn)
}

// --- internals ---

func (c *Client) refreshSession(ctx context.Context, refreshToken string) (*entity.Session, error) {
	payload := map[string]any{"refresh_token": refreshToken}

	var resp sessionResponse
	if err := c.doJSON(ctx, http.MethodPost, authBasePath+"/token?grant_type=refresh_token", "", payload, &resp); err != nil {
		return nil, c.providerError("token refresh", err)
	}

	session := c.toSession(&resp)

	c.mu.Lock()
	c.session = session
	c.mu.Unlock()

	c.hub.Emit(entity.EventTokenRefreshed, session)

	return session, nil
}

// adoptSession stores the session and announces it on the event stream.
func (c *Client) adoptSession(session *entity.Session) {
	c.mu.Lock()
	c.session = session
	c.mu.Unlock()

	c.hub.Emit(entity.EventSignedIn, session)
}

func (c *Client) snapshotSession() *entity.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.session.Clone()
}

// AccessToken returns the current access token, or the anon key when signed
// out. Used by the profile API for its Authorization header.
func (c *Client) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.session != nil {
		return c.session.AccessToken
	}

	return c.anonKey
}

// apiError is a non-2xx response from the provider, pre-decoded.
type apiError struct {
	status int
	body   string
}

func (e *apiError) Error() string {
	return "provider returned " + http.StatusText(e.status) + ": " + e.body
}

func (c *Client) doJSON(ctx context.Context, method, path, bearer string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "request pacing wait aborted")
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "failed to encode request body")
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}

	req.Header.Set("apikey", c.anonKey)
	if bearer == "" {
		bearer = c.anonKey
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "request failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "failed to read response body")
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		var decoded errorResponse
		detail := string(raw)
		if json.Unmarshal(raw, &decoded) == nil && decoded.text() != "" {
			detail = decoded.text()
		}

		return &apiError{status: resp.StatusCode, body: detail}
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return errors.Wrap(err, "failed to decode response body")
		}
	}

	return nil
}

// providerError logs the technical failure and returns the safe provider
// error carrying the detail for further logging upstream.
func (c *Client) providerError(op string, err error) error {
	c.logger.Error("Auth provider call failed", slog.String("op", op), slog.Any("error", err))

	return domainerrors.ErrProvider.WithDetails(op + ": " + err.Error())
}
