package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"gratia/config"
	"gratia/internal/domain/entity"
	domainerrors "gratia/internal/domain/errors"
	"gratia/internal/domain/service"
	"gratia/internal/errors"

	"go.uber.org/fx"
)

const (
	restBasePath  = "/rest/v1"
	profilesTable = "profiles"
)

// ProfileAPI implements service.ProfileAPI against the PostgREST surface of
// the hosted backend. Requests carry the signed-in user's access token so the
// backend's row-level security scopes every query to the caller.
type ProfileAPI struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client
	auth       *Client
	logger     *slog.Logger
}

var _ service.ProfileAPI = (*ProfileAPI)(nil)

// ProfileAPIParams holds dependencies for ProfileAPI, injected by Fx.
type ProfileAPIParams struct {
	fx.In

	Config *config.Config
	Logger *slog.Logger
	Auth   *Client
}

// NewProfileAPI is the constructor for ProfileAPI.
func NewProfileAPI(params ProfileAPIParams) service.ProfileAPI {
	return &ProfileAPI{
		baseURL:    params.Config.Supabase.URL,
		anonKey:    params.Config.Supabase.AnonKey,
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
		auth:       params.Auth,
		logger:     params.Logger,
	}
}

// GetProfile fetches the profile row keyed by the identity id.
func (api *ProfileAPI) GetProfile(ctx context.Context, userID string) (*entity.Profile, error) {
	query := url.Values{}
	query.Set("id", "eq."+userID)
	query.Set("select", "*")

	var rows []entity.Profile
	status, err := api.do(ctx, http.MethodGet, profilesTable+"?"+query.Encode(), nil, nil, &rows)
	if err != nil {
		api.logger.Error("Profile fetch failed", slog.String("userID", userID), slog.Any("error", err))

		return nil, domainerrors.ErrProvider.WithDetails("profile fetch: " + err.Error())
	}

	if status == http.StatusNotFound || len(rows) == 0 {
		return nil, domainerrors.ErrProfileNotFound.WithDetails("no profiles row for id " + userID)
	}

	return rows[0].Clone(), nil
}

// UpdateProfile applies a partial update and returns the server's echo of the
// row. Returns (nil, nil) when the write succeeded but no row came back.
func (api *ProfileAPI) UpdateProfile(ctx context.Context, userID string, patch *service.ProfileUpdate) (*entity.Profile, error) {
	query := url.Values{}
	query.Set("id", "eq."+userID)

	headers := map[string]string{"Prefer": "return=representation"}

	var rows []entity.Profile
	if _, err := api.do(ctx, http.MethodPatch, profilesTable+"?"+query.Encode(), headers, patch, &rows); err != nil {
		api.logger.Error("Profile update failed", slog.String("userID", userID), slog.Any("error", err))

		return nil, domainerrors.ErrProvider.WithDetails("profile update: " + err.Error())
	}

	if len(rows) == 0 {
		return nil, nil
	}

	return rows[0].Clone(), nil
}

func (api *ProfileAPI) do(ctx context.Context, method, path string, headers map[string]string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return 0, errors.Wrap(err, "failed to encode request body")
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, api.baseURL+restBasePath+"/"+path, reader)
	if err != nil {
		return 0, errors.Wrap(err, "failed to create request")
	}

	req.Header.Set("apikey", api.anonKey)
	req.Header.Set("Authorization", "Bearer "+api.auth.AccessToken())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := api.httpClient.Do(req)
	if err != nil {
		return 0, errors.Wrap(err, "request failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, errors.Wrap(err, "failed to read response body")
	}

	if resp.StatusCode == http.StatusNotFound {
		return resp.StatusCode, nil
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return resp.StatusCode, &apiError{status: resp.StatusCode, body: string(raw)}
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return resp.StatusCode, errors.Wrap(err, "failed to decode response body")
		}
	}

	return resp.StatusCode, nil
}
