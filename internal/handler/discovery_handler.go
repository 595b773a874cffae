package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"estuary/internal/discovery"
	"estuary/internal/model"
)

type DiscoveryHandler struct {
	engine *discovery.Engine
}

type discoverURLRequest struct {
	URL string `json:"url"`
}

type discoverSearchRequest struct {
	Term  string `json:"term"`
	Limit int    `json:"limit"`
	Type  string `json:"type"`
}

type discoverResponse struct {
	Candidates []model.DiscoveredCandidate `json:"candidates"`
}

func NewDiscoveryHandler(engine *discovery.Engine) *DiscoveryHandler {
	return &DiscoveryHandler{engine: engine}
}

func (h *DiscoveryHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/discover/url", h.FromURL)
	g.POST("/discover/search", h.Search)
}

// FromURL resolves a URL into feed candidates.
func (h *DiscoveryHandler) FromURL(c echo.Context) error {
	var req discoverURLRequest
	if err := c.Bind(&req); err != nil {
		return Error(c, http.StatusBadRequest, "invalid request")
	}

	candidates, err := h.engine.DiscoverFromURL(c.Request().Context(), req.URL)
	if err != nil {
		return writeError(c, err)
	}
	if candidates == nil {
		candidates = []model.DiscoveredCandidate{}
	}
	return c.JSON(http.StatusOK, discoverResponse{Candidates: candidates})
}

// Search finds feed candidates for a keyword.
func (h *DiscoveryHandler) Search(c echo.Context) error {
	var req discoverSearchRequest
	if err := c.Bind(&req); err != nil {
		return Error(c, http.StatusBadRequest, "invalid request")
	}

	candidates, err := h.engine.DiscoverByKeyword(c.Request().Context(), req.Term, req.Limit, model.FeedType(req.Type))
	if err != nil {
		return writeError(c, err)
	}
	if candidates == nil {
		candidates = []model.DiscoveredCandidate{}
	}
	return c.JSON(http.StatusOK, discoverResponse{Candidates: candidates})
}
