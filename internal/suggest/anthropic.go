package suggest

import (
	"context"
	"strconv"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// anthropicProvider implements Provider with the Anthropic messages API.
type anthropicProvider struct {
	client  anthropic.Client
	model   string
	limiter *RateLimiter
}

func newAnthropicProvider(cfg Config, limiter *RateLimiter) *anthropicProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &anthropicProvider{
		client:  anthropic.NewClient(opts...),
		model:   cfg.Model,
		limiter: limiter,
	}
}

func (p *anthropicProvider) Suggest(ctx context.Context, term string, limit int) ([]Suggestion, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	prompt := strings.ReplaceAll(systemPrompt, "%LIMIT%", strconv.Itoa(limit))
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: 1024,
		System: []anthropic.TextBlockParam{
			{Text: prompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(term)),
		},
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, err
	}

	for _, block := range resp.Content {
		switch v := block.AsAny().(type) {
		case anthropic.TextBlock:
			return parseSuggestions(v.Text, limit), nil
		}
	}
	return nil, nil
}
