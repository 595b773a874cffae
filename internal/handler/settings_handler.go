package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"estuary/internal/refresh"
	"estuary/internal/repository"
)

type SettingsHandler struct {
	settings repository.SettingsRepository
}

type refreshIntervalResponse struct {
	Minutes int `json:"minutes"`
}

type setRefreshIntervalRequest struct {
	Minutes int `json:"minutes"`
}

func NewSettingsHandler(settings repository.SettingsRepository) *SettingsHandler {
	return &SettingsHandler{settings: settings}
}

func (h *SettingsHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/settings/refresh-interval", h.GetRefreshInterval)
	g.PUT("/settings/refresh-interval", h.SetRefreshInterval)
}

func (h *SettingsHandler) GetRefreshInterval(c echo.Context) error {
	setting, err := h.settings.Get(c.Request().Context(), refresh.SettingDefaultInterval)
	if err != nil {
		return writeError(c, err)
	}
	minutes := 60
	if setting != nil {
		if parsed, err := strconv.Atoi(setting.Value); err == nil && parsed > 0 {
			minutes = parsed
		}
	}
	return c.JSON(http.StatusOK, refreshIntervalResponse{Minutes: minutes})
}

func (h *SettingsHandler) SetRefreshInterval(c echo.Context) error {
	var req setRefreshIntervalRequest
	if err := c.Bind(&req); err != nil || req.Minutes <= 0 {
		return Error(c, http.StatusBadRequest, "minutes must be a positive integer")
	}
	if err := h.settings.Set(c.Request().Context(), refresh.SettingDefaultInterval, strconv.Itoa(req.Minutes)); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, refreshIntervalResponse{Minutes: req.Minutes})
}
