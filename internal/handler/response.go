package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"estuary/internal/feederr"
	"estuary/internal/logger"
	"estuary/internal/refresh"
)

type errorResponse struct {
	Error string `json:"error"`
}

type statusResponse struct {
	Status string `json:"status"`
}

// writeError maps classified errors to HTTP statuses. Upstream fetch and
// parse problems are gateway errors: the server itself is fine.
func writeError(c echo.Context, err error) error {
	if errors.Is(err, refresh.ErrDuplicateFeed) {
		return c.JSON(http.StatusConflict, errorResponse{Error: "feed already subscribed"})
	}
	switch feederr.KindOf(err) {
	case feederr.KindValidation:
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	case feederr.KindNotFound:
		return c.JSON(http.StatusNotFound, errorResponse{Error: "resource not found"})
	case feederr.KindNetwork, feederr.KindTimeout, feederr.KindHTTPStatus, feederr.KindParse:
		return c.JSON(http.StatusBadGateway, errorResponse{Error: "upstream fetch failed"})
	default:
		logger.Error("request failed",
			"module", "handler", "action", "request", "resource", "http", "result", "failed",
			"path", c.Request().URL.Path, "error", err)
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

// Error returns a JSON error response with the given status and message
func Error(c echo.Context, status int, message string) error {
	return c.JSON(status, errorResponse{Error: message})
}
