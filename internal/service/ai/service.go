package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"smartdesk/internal/config"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"
)

const defaultTemperature float32 = 0.7

// Service is the chat-completion adapter: one request, one plain-text reply,
// fixed model and temperature. No streaming, no tool calls, no retries.
type Service struct {
	chatModel model.ToolCallingChatModel
	provider  string
	modelName string
}

// NewService builds the adapter for the configured provider. The provider
// name "openrouter" is served by the OpenAI-compatible component with the
// provider's base URL.
func NewService(ctx context.Context, cfg *config.Config, provider, modelName string) (*Service, error) {
	provCfg, ok := cfg.Providers[provider]
	if !ok {
		return nil, fmt.Errorf("provider %s not configured", provider)
	}
	if modelName == "" {
		modelName = provCfg.Model
	}
	if provCfg.APIKey == "" {
		return nil, &Error{Kind: KindAuth, Err: fmt.Errorf("api key for provider %s not configured", provider)}
	}

	var (
		chatModel model.ToolCallingChatModel
		err       error
	)
	temperature := defaultTemperature
	switch provider {
	case "openai", "openrouter":
		chatModel, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL:     provCfg.BaseURL,
			Model:       modelName,
			APIKey:      provCfg.APIKey,
			Temperature: &temperature,
		})
	case "gemini":
		var client *genai.Client
		client, err = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey: provCfg.APIKey,
		})
		if err != nil {
			return nil, fmt.Errorf("init gemini client: %w", err)
		}
		chatModel, err = gemini.NewChatModel(ctx, &gemini.Config{
			Client: client,
			Model:  modelName,
		})
	case "claude":
		var baseURLPtr *string
		if provCfg.BaseURL != "" {
			baseURLPtr = &provCfg.BaseURL
		}
		chatModel, err = claude.NewChatModel(ctx, &claude.Config{
			APIKey:    provCfg.APIKey,
			Model:     modelName,
			BaseURL:   baseURLPtr,
			MaxTokens: 3000,
		})
	default:
		return nil, fmt.Errorf("invalid provider: %s", provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s chat model: %w", provider, err)
	}

	return &Service{
		chatModel: chatModel,
		provider:  provider,
		modelName: modelName,
	}, nil
}

// Complete sends the context messages and returns the reply text, or a
// categorized *Error. The caller bounds the call with a context deadline.
func (s *Service) Complete(ctx context.Context, messages []*schema.Message) (string, error) {
	if len(messages) == 0 {
		return "", errors.New("context messages are required")
	}
	resp, err := s.chatModel.Generate(ctx, messages)
	if err != nil {
		return "", classify(err)
	}
	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return "", classify(errors.New("empty completion from provider"))
	}
	return text, nil
}
