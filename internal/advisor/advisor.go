// Package advisor asks an LLM for a short commentary on a finished
// episode. Advice only: nothing here feeds back into action selection.
package advisor

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/deepseek"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/reflexcoder/autoagent/internal/config"
	"github.com/reflexcoder/autoagent/internal/log"
	"github.com/reflexcoder/autoagent/internal/models"
)

const systemPrompt = `You are a trading performance reviewer. Given an episode summary
(symbol, steps, reward, net result and the strategy used), write a concise
review in 2-3 sentences: what worked, what did not, and one concrete
suggestion. Plain text only.`

// Advisor produces episode commentary through a chat model.
type Advisor struct {
	chatModel model.BaseChatModel
}

// New builds an advisor from the config. Returns (nil, nil) when the
// advisor is disabled or no API key is configured; callers treat a nil
// advisor as "no commentary".
func New(ctx context.Context, cfg *config.Config) (*Advisor, error) {
	if cfg == nil || !cfg.AdvisorEnabled {
		return nil, nil
	}

	logger := log.WithComponent("advisor")

	var (
		chatModel model.BaseChatModel
		err       error
	)
	switch strings.ToLower(cfg.LLMProvider) {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			logger.Warn().Msg("advisor enabled but OPENAI_API_KEY not set, disabling")
			return nil, nil
		}
		maxTokens := 1024
		chatModel, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL:   cfg.BackendURL,
			APIKey:    cfg.OpenAIAPIKey,
			Model:     cfg.LLMModel,
			MaxTokens: &maxTokens,
		})
	case "deepseek":
		if cfg.DeepSeekAPIKey == "" {
			logger.Warn().Msg("advisor enabled but DEEPSEEK_API_KEY not set, disabling")
			return nil, nil
		}
		chatModel, err = deepseek.NewChatModel(ctx, &deepseek.ChatModelConfig{
			APIKey:    cfg.DeepSeekAPIKey,
			Model:     cfg.LLMModel,
			MaxTokens: 1024,
		})
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLMProvider)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s chat model: %w", cfg.LLMProvider, err)
	}

	return &Advisor{chatModel: chatModel}, nil
}

// Review returns a short commentary on the episode.
func (a *Advisor) Review(ctx context.Context, symbol string, ep models.EpisodeRecord) (string, error) {
	if a == nil || a.chatModel == nil {
		return "", nil
	}

	summary := fmt.Sprintf(
		"Symbol: %s\nStrategy: %s\nSteps: %d\nTotal reward: %.2f\nStart equity: %s\nEnd equity: %s\nNet: %s\nEpsilon: %.3f",
		symbol, ep.Strategy, ep.Steps, ep.Reward,
		ep.StartEquity, ep.EndEquity, ep.Net, ep.Epsilon,
	)

	resp, err := a.chatModel.Generate(ctx, []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(summary),
	})
	if err != nil {
		return "", fmt.Errorf("generate commentary: %w", err)
	}
	return strings.TrimSpace(resp.Content), nil
}
