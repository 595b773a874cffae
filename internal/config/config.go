package config

import (
	"os"
	"path/filepath"
	"strconv"
)

const (
	AppName    = "Estuary"
	AppVersion = "1.0.0"
	AppRepo    = "https://github.com/estuary-reader/estuary"
)

// UserAgent identifies Estuary on outbound feed and asset fetches.
var UserAgent = "Mozilla/5.0 (compatible; " + AppName + "/" + AppVersion + "; +" + AppRepo + ")"

// BrowserUserAgent is sent where sites reject bot user agents (page scrapes,
// readability fetches).
const BrowserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/135.0.0.0 Safari/537.36"

type Config struct {
	Addr                   string
	DBPath                 string
	DataDir                string
	LogLevel               string
	ProxyURL               string
	RefreshIntervalMinutes int
	YouTubeAPIKey          string

	AIProvider string
	AIAPIKey   string
	AIBaseURL  string
	AIModel    string
}

func Load() Config {
	addr := os.Getenv("ESTUARY_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	dataDir := os.Getenv("ESTUARY_DATA_DIR")
	if dataDir == "" {
		dataDir = "./data"
	}
	path := os.Getenv("ESTUARY_DB_PATH")
	if path == "" {
		path = filepath.Join(dataDir, "estuary.db")
	}
	logLevel := os.Getenv("ESTUARY_LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	interval := 60
	if raw := os.Getenv("ESTUARY_REFRESH_INTERVAL"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			interval = parsed
		}
	}

	return Config{
		Addr:                   addr,
		DBPath:                 filepath.Clean(path),
		DataDir:                filepath.Clean(dataDir),
		LogLevel:               logLevel,
		ProxyURL:               os.Getenv("ESTUARY_PROXY_URL"),
		RefreshIntervalMinutes: interval,
		YouTubeAPIKey:          os.Getenv("ESTUARY_YOUTUBE_API_KEY"),
		AIProvider:             os.Getenv("ESTUARY_AI_PROVIDER"),
		AIAPIKey:               os.Getenv("ESTUARY_AI_API_KEY"),
		AIBaseURL:              os.Getenv("ESTUARY_AI_BASE_URL"),
		AIModel:                os.Getenv("ESTUARY_AI_MODEL"),
	}
}
