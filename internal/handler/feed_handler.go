package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"estuary/internal/model"
	"estuary/internal/refresh"
	"estuary/internal/repository"
)

type FeedHandler struct {
	feeds         repository.FeedRepository
	articles      repository.ArticleRepository
	subscriptions *refresh.Subscriptions
	lifecycle     *refresh.Lifecycle
	engine        *refresh.Engine
}

type createFeedRequest struct {
	URL                    string `json:"url"`
	Title                  string `json:"title"`
	RefreshIntervalMinutes int    `json:"refreshIntervalMinutes"`
}

type updateFeedRequest struct {
	Title                  string `json:"title"`
	RefreshIntervalMinutes int    `json:"refreshIntervalMinutes"`
}

type feedResponse struct {
	ID                     string  `json:"id"`
	URL                    string  `json:"url"`
	Type                   string  `json:"type"`
	Title                  string  `json:"title"`
	SiteURL                *string `json:"siteUrl,omitempty"`
	Description            *string `json:"description,omitempty"`
	IconURL                *string `json:"iconUrl,omitempty"`
	IconCacheRef           *string `json:"iconCacheRef,omitempty"`
	RefreshIntervalMinutes int     `json:"refreshIntervalMinutes"`
	LastFetchedAt          *string `json:"lastFetchedAt,omitempty"`
	NextFetchAt            *string `json:"nextFetchAt,omitempty"`
	ErrorCount             int     `json:"errorCount"`
	LastError              *string `json:"lastError,omitempty"`
	Paused                 bool    `json:"paused"`
	CreatedAt              string  `json:"createdAt"`
	UpdatedAt              string  `json:"updatedAt"`
}

type subscribeResponse struct {
	Feed    feedResponse   `json:"feed"`
	Refresh refresh.Result `json:"refresh"`
}

type articleResponse struct {
	ID            string  `json:"id"`
	FeedID        string  `json:"feedId"`
	GUID          string  `json:"guid"`
	Title         string  `json:"title"`
	URL           *string `json:"url,omitempty"`
	Author        *string `json:"author,omitempty"`
	Summary       *string `json:"summary,omitempty"`
	Content       *string `json:"content,omitempty"`
	EnclosureURL  *string `json:"enclosureUrl,omitempty"`
	EnclosureType *string `json:"enclosureType,omitempty"`
	ThumbnailURL  *string `json:"thumbnailUrl,omitempty"`
	PublishedAt   *string `json:"publishedAt,omitempty"`
}

func NewFeedHandler(
	feeds repository.FeedRepository,
	articles repository.ArticleRepository,
	subscriptions *refresh.Subscriptions,
	lifecycle *refresh.Lifecycle,
	engine *refresh.Engine,
) *FeedHandler {
	return &FeedHandler{
		feeds:         feeds,
		articles:      articles,
		subscriptions: subscriptions,
		lifecycle:     lifecycle,
		engine:        engine,
	}
}

func (h *FeedHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/feeds", h.Create)
	g.GET("/feeds", h.List)
	g.POST("/feeds/backfill-icons", h.BackfillIcons)
	g.GET("/feeds/:id", h.Get)
	g.PUT("/feeds/:id", h.Update)
	g.DELETE("/feeds/:id", h.Delete)
	g.GET("/feeds/:id/articles", h.Articles)
	g.POST("/feeds/:id/refresh", h.Refresh)
	g.POST("/feeds/:id/pause", h.Pause)
	g.POST("/feeds/:id/resume", h.Resume)
	g.POST("/feeds/:id/restore", h.Restore)
	g.POST("/feeds/:id/refresh-icon", h.RefreshIcon)
}

// Create subscribes to a feed URL and runs its initial refresh.
func (h *FeedHandler) Create(c echo.Context) error {
	var req createFeedRequest
	if err := c.Bind(&req); err != nil {
		return Error(c, http.StatusBadRequest, "invalid request")
	}

	feed, result, err := h.subscriptions.Subscribe(c.Request().Context(), req.URL, req.Title, req.RefreshIntervalMinutes)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, subscribeResponse{Feed: toFeedResponse(feed), Refresh: result})
}

func (h *FeedHandler) List(c echo.Context) error {
	feeds, err := h.feeds.List(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	out := make([]feedResponse, 0, len(feeds))
	for _, feed := range feeds {
		out = append(out, toFeedResponse(feed))
	}
	return c.JSON(http.StatusOK, out)
}

func (h *FeedHandler) Get(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return Error(c, http.StatusBadRequest, "invalid feed id")
	}
	feed, err := h.feeds.GetByID(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toFeedResponse(feed))
}

func (h *FeedHandler) Update(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return Error(c, http.StatusBadRequest, "invalid feed id")
	}
	var req updateFeedRequest
	if err := c.Bind(&req); err != nil {
		return Error(c, http.StatusBadRequest, "invalid request")
	}

	ctx := c.Request().Context()
	feed, err := h.feeds.GetByID(ctx, id)
	if err != nil {
		return writeError(c, err)
	}
	if req.Title != "" {
		feed.Title = req.Title
	}
	if req.RefreshIntervalMinutes > 0 {
		feed.RefreshIntervalMinutes = req.RefreshIntervalMinutes
	}
	updated, err := h.feeds.Update(ctx, feed)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toFeedResponse(updated))
}

func (h *FeedHandler) Delete(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return Error(c, http.StatusBadRequest, "invalid feed id")
	}
	if err := h.lifecycle.SoftDelete(c.Request().Context(), id); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *FeedHandler) Articles(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return Error(c, http.StatusBadRequest, "invalid feed id")
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	ctx := c.Request().Context()
	if _, err := h.feeds.GetByID(ctx, id); err != nil {
		return writeError(c, err)
	}
	articles, err := h.articles.ListByFeed(ctx, id, limit)
	if err != nil {
		return writeError(c, err)
	}
	out := make([]articleResponse, 0, len(articles))
	for _, article := range articles {
		out = append(out, toArticleResponse(article))
	}
	return c.JSON(http.StatusOK, out)
}

// Refresh triggers an immediate refresh regardless of schedule.
func (h *FeedHandler) Refresh(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return Error(c, http.StatusBadRequest, "invalid feed id")
	}
	feed, err := h.feeds.GetByID(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	result := h.engine.Refresh(c.Request().Context(), feed)
	return c.JSON(http.StatusOK, result)
}

func (h *FeedHandler) Pause(c echo.Context) error {
	return h.lifecycleOp(c, h.lifecycle.Pause, "paused")
}

func (h *FeedHandler) Resume(c echo.Context) error {
	return h.lifecycleOp(c, h.lifecycle.Resume, "resumed")
}

func (h *FeedHandler) Restore(c echo.Context) error {
	return h.lifecycleOp(c, h.lifecycle.Restore, "restored")
}

func (h *FeedHandler) lifecycleOp(c echo.Context, op func(ctx context.Context, id int64) error, status string) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return Error(c, http.StatusBadRequest, "invalid feed id")
	}
	if err := op(c.Request().Context(), id); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, statusResponse{Status: status})
}

func (h *FeedHandler) RefreshIcon(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return Error(c, http.StatusBadRequest, "invalid feed id")
	}
	asset, err := h.lifecycle.RefreshIcon(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"fileRef": asset.FileRef, "mimeType": asset.MimeType})
}

func (h *FeedHandler) BackfillIcons(c echo.Context) error {
	count, err := h.lifecycle.BackfillIcons(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]int{"cached": count})
}

func toFeedResponse(feed model.Feed) feedResponse {
	return feedResponse{
		ID:                     strconv.FormatInt(feed.ID, 10),
		URL:                    feed.URL,
		Type:                   string(feed.Type),
		Title:                  feed.Title,
		SiteURL:                feed.SiteURL,
		Description:            feed.Description,
		IconURL:                feed.IconURL,
		IconCacheRef:           feed.IconCacheRef,
		RefreshIntervalMinutes: feed.RefreshIntervalMinutes,
		LastFetchedAt:          formatTimePtr(feed.LastFetchedAt),
		NextFetchAt:            formatTimePtr(feed.NextFetchAt),
		ErrorCount:             feed.ErrorCount,
		LastError:              feed.LastError,
		Paused:                 feed.PausedAt != nil,
		CreatedAt:              feed.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:              feed.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func toArticleResponse(article model.Article) articleResponse {
	return articleResponse{
		ID:            strconv.FormatInt(article.ID, 10),
		FeedID:        strconv.FormatInt(article.FeedID, 10),
		GUID:          article.GUID,
		Title:         article.Title,
		URL:           article.URL,
		Author:        article.Author,
		Summary:       article.Summary,
		Content:       article.Content,
		EnclosureURL:  article.EnclosureURL,
		EnclosureType: article.EnclosureType,
		ThumbnailURL:  article.ThumbnailURL,
		PublishedAt:   formatTimePtr(article.PublishedAt),
	}
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}
