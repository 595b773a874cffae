package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"estuary/internal/readability"
	"estuary/internal/repository"
)

type ArticleHandler struct {
	articles  repository.ArticleRepository
	extractor *readability.Extractor
}

type readableContentResponse struct {
	Content string `json:"content"`
}

func NewArticleHandler(articles repository.ArticleRepository, extractor *readability.Extractor) *ArticleHandler {
	return &ArticleHandler{articles: articles, extractor: extractor}
}

func (h *ArticleHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/articles/:id", h.Get)
	g.GET("/articles/:id/content", h.ReadableContent)
}

func (h *ArticleHandler) Get(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return Error(c, http.StatusBadRequest, "invalid article id")
	}
	article, err := h.articles.GetByID(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toArticleResponse(article))
}

// ReadableContent extracts (or returns the cached) readable HTML for an
// article.
func (h *ArticleHandler) ReadableContent(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return Error(c, http.StatusBadRequest, "invalid article id")
	}
	content, err := h.extractor.FetchReadableContent(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, readableContentResponse{Content: content})
}
