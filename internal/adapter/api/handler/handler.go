package handler

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"kitchenchat/internal/adapter/api/middleware"
	"kitchenchat/internal/domain/entity"
	"kitchenchat/pkg/errors"
)

// caller returns the authenticated user set by middleware.Authenticate.
func caller(c echo.Context) (int64, entity.Role, error) {
	userID, _ := c.Get(middleware.ContextUserID).(int64)
	role, _ := c.Get(middleware.ContextRole).(entity.Role)
	if userID == 0 || !role.IsParty() {
		return 0, "", errors.Unauthorized("Authentication required", nil)
	}
	return userID, role, nil
}

func int64Param(c echo.Context, name string) (int64, error) {
	v, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || v <= 0 {
		return 0, errors.Validation(name + " must be a positive integer")
	}
	return v, nil
}

func limitQuery(c echo.Context) (int, error) {
	raw := c.QueryParam("limit")
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, errors.Validation("limit must be a non-negative integer")
	}
	return limit, nil
}
