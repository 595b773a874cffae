// Package http wires the echo router.
package http

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"estuary/internal/handler"
)

func NewRouter(
	discoveryHandler *handler.DiscoveryHandler,
	feedHandler *handler.FeedHandler,
	articleHandler *handler.ArticleHandler,
	assetHandler *handler.AssetHandler,
	settingsHandler *handler.SettingsHandler,
) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(RequestLoggerMiddleware())

	api := e.Group("/api")
	discoveryHandler.RegisterRoutes(api)
	feedHandler.RegisterRoutes(api)
	articleHandler.RegisterRoutes(api)
	assetHandler.RegisterRoutes(api)
	settingsHandler.RegisterRoutes(api)

	return e
}
