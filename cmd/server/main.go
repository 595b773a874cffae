package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"estuary/internal/activity"
	"estuary/internal/assets"
	"estuary/internal/config"
	"estuary/internal/db"
	"estuary/internal/discovery"
	"estuary/internal/handler"
	transport "estuary/internal/http"
	"estuary/internal/logger"
	"estuary/internal/network"
	"estuary/internal/parser"
	"estuary/internal/readability"
	"estuary/internal/refresh"
	"estuary/internal/repository"
	"estuary/internal/scheduler"
	"estuary/internal/snowflake"
	"estuary/internal/suggest"
)

func main() {
	cfg := config.Load()
	logger.Init(logger.ParseLevel(cfg.LogLevel))

	if err := snowflake.Init(1); err != nil {
		log.Fatalf("init id generator: %v", err)
	}

	dbConn, err := db.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer dbConn.Close()

	feedRepo := repository.NewFeedRepository(dbConn)
	articleRepo := repository.NewArticleRepository(dbConn)
	assetRepo := repository.NewAssetRepository(dbConn)
	settingsRepo := repository.NewSettingsRepository(dbConn)

	clients := network.NewClientFactory(cfg.ProxyURL)

	cache, err := assets.NewCache(cfg.DataDir, assetRepo, clients)
	if err != nil {
		log.Fatalf("init asset cache: %v", err)
	}
	thumbs := assets.NewThumbnailQueue(cache)
	thumbs.Start()

	provider, err := suggest.NewProvider(suggest.Config{
		Provider: cfg.AIProvider,
		APIKey:   cfg.AIAPIKey,
		BaseURL:  cfg.AIBaseURL,
		Model:    cfg.AIModel,
	}, suggest.NewRateLimiter(suggest.DefaultRateLimit))
	if err != nil {
		log.Fatalf("init suggestion provider: %v", err)
	}

	feedParser := parser.New(clients, cfg.YouTubeAPIKey)
	checker := activity.NewChecker(clients)
	discoveryEngine := discovery.NewEngine(clients, checker, provider, cfg.YouTubeAPIKey)
	refreshEngine := refresh.NewEngine(feedRepo, articleRepo, feedParser, cache, thumbs)
	lifecycle := refresh.NewLifecycle(feedRepo, cache)
	subscriptions := refresh.NewSubscriptions(feedRepo, settingsRepo, refreshEngine, cfg.RefreshIntervalMinutes)
	extractor := readability.NewExtractor(articleRepo, clients)

	router := transport.NewRouter(
		handler.NewDiscoveryHandler(discoveryEngine),
		handler.NewFeedHandler(feedRepo, articleRepo, subscriptions, lifecycle, refreshEngine),
		handler.NewArticleHandler(articleRepo, extractor),
		handler.NewAssetHandler(cache, assetRepo),
		handler.NewSettingsHandler(settingsRepo),
	)

	sched := scheduler.New(feedRepo, refreshEngine)
	sched.Start()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("shutting down", "module", "main", "action", "shutdown", "resource", "server", "result", "ok")
		sched.Stop()
		thumbs.Stop()
		os.Exit(0)
	}()

	if err := router.Start(cfg.Addr); err != nil {
		log.Fatalf("start server: %v", err)
	}
}
