package suggest

import (
	"context"
	"errors"
	"strings"
)

//go:generate mockgen -source=provider.go -destination=mock/provider.go -package=mock

// Suggestion is a candidate feed source proposed by the oracle. The URL
// is never trusted as-is: callers re-resolve it through discovery.
type Suggestion struct {
	Title string
	URL   string
}

// Provider proposes candidate feed URLs for a keyword. Implementations
// are external oracles; absence degrades gracefully to zero candidates.
type Provider interface {
	Suggest(ctx context.Context, term string, limit int) ([]Suggestion, error)
}

// Config holds the configuration for a suggestion provider.
type Config struct {
	Provider string // openai, anthropic
	APIKey   string
	BaseURL  string // optional
	Model    string
}

// Provider type constants
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

var (
	ErrInvalidProvider = errors.New("invalid provider")
	ErrMissingAPIKey   = errors.New("API key is required")
	ErrMissingModel    = errors.New("model is required")
)

// NewProvider creates a suggestion provider based on the config.
// Returns (nil, nil) when no provider is configured.
func NewProvider(cfg Config, limiter *RateLimiter) (Provider, error) {
	if cfg.Provider == "" {
		return nil, nil
	}
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.Model == "" {
		return nil, ErrMissingModel
	}

	switch cfg.Provider {
	case ProviderOpenAI:
		return newOpenAIProvider(cfg, limiter), nil
	case ProviderAnthropic:
		return newAnthropicProvider(cfg, limiter), nil
	default:
		return nil, ErrInvalidProvider
	}
}

const systemPrompt = `You recommend RSS/Atom feeds, podcasts, YouTube channels and subreddits.
Given a topic, list up to %LIMIT% well-known, currently active sources.
Respond with one source per line in the exact format:
Title | URL
Use the site or channel URL when you do not know the feed URL. No other text.`

// parseSuggestions parses "Title | URL" lines out of a model response,
// tolerating surrounding chatter and list markers.
func parseSuggestions(response string, limit int) []Suggestion {
	var suggestions []Suggestion
	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*0123456789. ")
		parts := strings.SplitN(line, "|", 2)
		if len(parts) != 2 {
			continue
		}
		title := strings.TrimSpace(parts[0])
		rawURL := strings.TrimSpace(parts[1])
		if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
			continue
		}
		suggestions = append(suggestions, Suggestion{Title: title, URL: rawURL})
		if limit > 0 && len(suggestions) >= limit {
			break
		}
	}
	return suggestions
}
