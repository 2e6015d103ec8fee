package chat

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	"google.golang.org/genai"

	"github.com/audience-andy/server/internal/agent/model"
	logx "github.com/audience-andy/server/pkg/logger"
)

// ChatModelConfig holds the configuration for chat model creation
type ChatModelConfig struct {
	APIKey         string
	BaseURL        string
	Narration      *model.NarrationModelConfig
	Reasoning      *model.ReasoningModelConfig
	ThinkingBudget int
}

// ChatModels holds the narration and reasoning chat models
type ChatModels struct {
	Narrator     *gemini.ChatModel
	Reasoner     *gemini.ChatModel
	NarratorName string
	ReasonerName string
}

// NewChatModels creates both chat models on one Gemini client.
func NewChatModels(ctx context.Context, config ChatModelConfig) (*ChatModels, error) {
	if config.Narration == nil || config.Reasoning == nil {
		return nil, fmt.Errorf("chat model config is incomplete")
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = config.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}

	narrator, err := newGeminiModel(ctx, client, config.Narration.Model, config.Narration.Temperature, config.Narration.MaxTokens, config.ThinkingBudget)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating narration model")
		return nil, fmt.Errorf("error creating narration model: %w", err)
	}

	reasoner, err := newGeminiModel(ctx, client, config.Reasoning.Model, config.Reasoning.Temperature, config.Reasoning.MaxTokens, config.ThinkingBudget)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating reasoning model")
		return nil, fmt.Errorf("error creating reasoning model: %w", err)
	}

	return &ChatModels{
		Narrator:     narrator,
		Reasoner:     reasoner,
		NarratorName: config.Narration.Model,
		ReasonerName: config.Reasoning.Model,
	}, nil
}

func newGeminiModel(ctx context.Context, client *genai.Client, name string, temperature float32, maxTokens, thinkingBudget int) (*gemini.ChatModel, error) {
	cfg := &gemini.Config{
		Client:      client,
		Model:       name,
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	}
	if thinkingBudget > 0 {
		// thinking tokens count against the output limit
		total := maxTokens + thinkingBudget
		cfg.MaxTokens = &total
		cfg.ThinkingConfig = &genai.ThinkingConfig{
			IncludeThoughts: true,
			ThinkingBudget:  genai.Ptr(int32(thinkingBudget)),
		}
	}
	return gemini.NewChatModel(ctx, cfg)
}
