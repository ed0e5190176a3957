package handler

import (
	"net/http"

	"gratia/internal/delivery/http/response"
	domainerrors "gratia/internal/domain/errors"
	"gratia/internal/usecase"

	"github.com/labstack/echo/v4"
)

// ProfileHandler exposes the mirrored profile and its preference updates.
type ProfileHandler struct {
	profile usecase.ProfileUsecase
}

// NewProfileHandler creates a new ProfileHandler instance.
func NewProfileHandler(profile usecase.ProfileUsecase) *ProfileHandler {
	return &ProfileHandler{profile: profile}
}

type profileView struct {
	Profile        any    `json:"profile"`
	IsLoading      bool   `json:"is_loading"`
	FetchAttempted bool   `json:"fetch_attempted"`
	Error          string `json:"error,omitempty"`
}

// Get handles GET /profile.
func (h *ProfileHandler) Get(c echo.Context) error {
	snapshot := h.profile.Snapshot()

	return response.Success(c, http.StatusOK, profileView{
		Profile:        snapshot.Profile,
		IsLoading:      snapshot.IsLoading,
		FetchAttempted: snapshot.FetchAttempted,
		Error:          domainerrors.SafeMessage(snapshot.Error),
	}, "")
}

// Refresh handles POST /profile/refresh.
func (h *ProfileHandler) Refresh(c echo.Context) error {
	if err := h.profile.RefreshProfile(c.Request().Context()); err != nil {
		return authErrorResponse(c, err)
	}

	return h.Get(c)
}

type reminderRequest struct {
	Enabled   bool   `json:"enabled"`
	TimeOfDay string `json:"time_of_day" validate:"omitempty,datetime=15:04"`
}

// UpdateReminder handles PUT /profile/reminder.
func (h *ProfileHandler) UpdateReminder(c echo.Context) error {
	var req reminderRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, "INVALID_REQUEST", "Invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return response.BadRequest(c, "INVALID_REMINDER_TIME", "Reminder time must be HH:MM")
	}

	input := &usecase.DailyReminderInput{Enabled: req.Enabled, TimeOfDay: req.TimeOfDay}
	if err := h.profile.UpdateDailyReminderSettings(c.Request().Context(), input); err != nil {
		return authErrorResponse(c, err)
	}

	return h.Get(c)
}

type throwbackRequest struct {
	Enabled bool `json:"enabled"`
}

// UpdateThrowback handles PUT /profile/throwback.
func (h *ProfileHandler) UpdateThrowback(c echo.Context) error {
	var req throwbackRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, "INVALID_REQUEST", "Invalid request body")
	}

	input := &usecase.ThrowbackInput{Enabled: req.Enabled}
	if err := h.profile.UpdateThrowbackPreferences(c.Request().Context(), input); err != nil {
		return authErrorResponse(c, err)
	}

	return h.Get(c)
}

type variedPromptsRequest struct {
	Enabled bool `json:"enabled"`
}

// UpdateVariedPrompts handles PUT /profile/varied-prompts.
func (h *ProfileHandler) UpdateVariedPrompts(c echo.Context) error {
	var req variedPromptsRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, "INVALID_REQUEST", "Invalid request body")
	}

	if err := h.profile.SetVariedPrompts(c.Request().Context(), req.Enabled); err != nil {
		return authErrorResponse(c, err)
	}

	return h.Get(c)
}

type dailyGoalRequest struct {
	Goal int `json:"goal" validate:"gte=0,lte=50"`
}

// UpdateDailyGoal handles PUT /profile/daily-goal.
func (h *ProfileHandler) UpdateDailyGoal(c echo.Context) error {
	var req dailyGoalRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, "INVALID_REQUEST", "Invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return response.BadRequest(c, "INVALID_DAILY_GOAL", "Daily goal must be between 0 and 50")
	}

	if err := h.profile.SetDailyGoal(c.Request().Context(), req.Goal); err != nil {
		return authErrorResponse(c, err)
	}

	return h.Get(c)
}

type usernameRequest struct {
	Username string `json:"username" validate:"required,max=64"`
}

// UpdateUsername handles PUT /profile/username.
func (h *ProfileHandler) UpdateUsername(c echo.Context) error {
	var req usernameRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, "INVALID_REQUEST", "Invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return response.BadRequest(c, "INVALID_USERNAME", "Username is required and limited to 64 characters")
	}

	if err := h.profile.SetUsername(c.Request().Context(), req.Username); err != nil {
		return authErrorResponse(c, err)
	}

	return h.Get(c)
}

// CompleteOnboarding handles POST /profile/onboarding/complete.
func (h *ProfileHandler) CompleteOnboarding(c echo.Context) error {
	if err := h.profile.CompleteOnboarding(c.Request().Context()); err != nil {
		return authErrorResponse(c, err)
	}

	return h.Get(c)
}
