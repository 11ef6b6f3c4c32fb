package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

type HealthHandler struct {
	storeBackend string
}

func NewHealthHandler(storeBackend string) *HealthHandler {
	return &HealthHandler{
		storeBackend: storeBackend,
	}
}

func (h *HealthHandler) CheckHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "Server is running",
		"store":  h.storeBackend,
		"time":   time.Now().Format(time.RFC3339),
	})
}
