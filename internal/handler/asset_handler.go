package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"estuary/internal/assets"
	"estuary/internal/repository"
)

type AssetHandler struct {
	cache *assets.Cache
	repo  repository.AssetRepository
}

func NewAssetHandler(cache *assets.Cache, repo repository.AssetRepository) *AssetHandler {
	return &AssetHandler{cache: cache, repo: repo}
}

func (h *AssetHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/assets/:owner", h.Get)
	g.DELETE("/assets/:owner", h.Delete)
	g.DELETE("/assets", h.DeleteAll)
}

// Get serves the cached binary for an owner.
func (h *AssetHandler) Get(c echo.Context) error {
	ownerID, err := parseIDParam(c, "owner")
	if err != nil {
		return Error(c, http.StatusBadRequest, "invalid owner id")
	}
	asset, err := h.repo.Get(c.Request().Context(), ownerID)
	if err != nil {
		return writeError(c, err)
	}
	if asset == nil {
		return Error(c, http.StatusNotFound, "asset not found")
	}
	c.Response().Header().Set("Content-Type", asset.MimeType)
	c.Response().Header().Set("Cache-Control", "public, max-age=86400")
	return c.File(h.cache.Path(asset.FileRef))
}

func (h *AssetHandler) Delete(c echo.Context) error {
	ownerID, err := parseIDParam(c, "owner")
	if err != nil {
		return Error(c, http.StatusBadRequest, "invalid owner id")
	}
	if err := h.cache.ClearAsset(c.Request().Context(), ownerID); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *AssetHandler) DeleteAll(c echo.Context) error {
	if err := h.cache.ClearAllAssets(c.Request().Context()); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
