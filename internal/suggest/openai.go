package suggest

import (
	"context"
	"strconv"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// openAIProvider implements Provider with the OpenAI chat completions API.
type openAIProvider struct {
	client  openai.Client
	model   string
	limiter *RateLimiter
}

func newOpenAIProvider(cfg Config, limiter *RateLimiter) *openAIProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &openAIProvider{
		client:  openai.NewClient(opts...),
		model:   cfg.Model,
		limiter: limiter,
	}
}

func (p *openAIProvider) Suggest(ctx context.Context, term string, limit int) ([]Suggestion, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	prompt := strings.ReplaceAll(systemPrompt, "%LIMIT%", strconv.Itoa(limit))
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(prompt),
			openai.UserMessage(term),
		},
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, nil
	}
	return parseSuggestions(resp.Choices[0].Message.Content, limit), nil
}
