// Package router contains routing and server setup for the HTTP delivery.
package router

import (
	"gratia/internal/delivery/http/middleware"
	"gratia/internal/delivery/http/router/handler"

	"github.com/labstack/echo/v4"
	"go.uber.org/fx"
)

type RouterParams struct {
	fx.In

	AuthHandler         *handler.AuthHandler
	ProfileHandler      *handler.ProfileHandler
	RequestIDMiddleware *middleware.RequestIDMiddleware
	LoggerMiddleware    *middleware.LoggerMiddleware
}

// router holds all the handlers that need to be registered.
type router struct {
	authHandler         *handler.AuthHandler
	profileHandler      *handler.ProfileHandler
	requestIDMiddleware *middleware.RequestIDMiddleware
	loggerMiddleware    *middleware.LoggerMiddleware
}

// NewRouter is the constructor for the Router.
// Fx will inject the required handlers here.
func NewRouter(params RouterParams) *router {
	return &router{
		authHandler:         params.AuthHandler,
		profileHandler:      params.ProfileHandler,
		requestIDMiddleware: params.RequestIDMiddleware,
		loggerMiddleware:    params.LoggerMiddleware,
	}
}

// RegisterRoutes sets up all the routes of the local callback server.
func (r *router) RegisterRoutes(e *echo.Echo) {
	e.Use(r.requestIDMiddleware.Process)
	e.Use(r.loggerMiddleware.Handle)

	// Health check endpoint
	e.GET("/health", handler.HealthCheck)

	// Auth routes
	authGroup := e.Group("/auth")
	{
		authGroup.GET("/callback", r.authHandler.Callback)
		authGroup.GET("/status", r.authHandler.Status)
		authGroup.POST("/magiclink", r.authHandler.MagicLink)
		authGroup.POST("/google", r.authHandler.Google)
		authGroup.POST("/logout", r.authHandler.Logout)
		authGroup.POST("/clear-error", r.authHandler.ClearError)
	}

	// Profile routes
	profileGroup := e.Group("/profile")
	{
		profileGroup.GET("", r.profileHandler.Get)
		profileGroup.POST("/refresh", r.profileHandler.Refresh)
		profileGroup.PUT("/reminder", r.profileHandler.UpdateReminder)
		profileGroup.PUT("/throwback", r.profileHandler.UpdateThrowback)
		profileGroup.PUT("/varied-prompts", r.profileHandler.UpdateVariedPrompts)
		profileGroup.PUT("/daily-goal", r.profileHandler.UpdateDailyGoal)
		profileGroup.PUT("/username", r.profileHandler.UpdateUsername)
		profileGroup.POST("/onboarding/complete", r.profileHandler.CompleteOnboarding)
	}
}
