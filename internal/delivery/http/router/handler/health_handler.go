package handler

import (
	"net/http"

	"gratia/internal/delivery/http/response"

	"github.com/labstack/echo/v4"
)

// HealthCheck reports liveness of the callback server.
func HealthCheck(c echo.Context) error {
	return response.Success(c, http.StatusOK, map[string]string{"status": "ok"}, "")
}
