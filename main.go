package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	goredis "github.com/redis/go-redis/v9"

	"github.com/audience-andy/server/internal/agent/chat"
	"github.com/audience-andy/server/internal/agent/model"
	"github.com/audience-andy/server/internal/agent/observers"
	"github.com/audience-andy/server/internal/agent/tools"
	"github.com/audience-andy/server/internal/agent/workflow"
	"github.com/audience-andy/server/internal/api"
	"github.com/audience-andy/server/internal/core"
	logx "github.com/audience-andy/server/pkg/logger"
	pkgredis "github.com/audience-andy/server/pkg/redis"
)

// AppConfig defines all configurable parameters of the service,
// sourced from environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment core.Environment `envconfig:"ENVIRONMENT" default:"development"`
	Server      ServerConfig

	// Infrastructure
	Redis pkgredis.Config

	// LLM provider
	APIKey         string `envconfig:"GEMINI_API_KEY" required:"true"`
	BaseURL        string `envconfig:"GEMINI_BASE_URL"`
	ThinkingBudget int    `envconfig:"LLM_THINKING_BUDGET" default:"1024"`

	// Agent configs
	Narration    model.NarrationModelConfig
	Reasoning    model.ReasoningModelConfig
	Conversation model.ConversationConfig
	Tools        model.ToolsConfig
}

type ServerConfig struct {
	Addr            string        `envconfig:"SERVER_ADDR" default:":8000"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"10s"`
}

func main() {
	// Load .env file
	envErr := godotenv.Load(".env")

	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		logx.Init()
		logx.Fatal().Err(err).Msg("Failed to process environment config")
	}
	logx.Init(logx.LoggerOpts{Environment: cfg.Environment})
	if envErr != nil {
		logx.Warn().Err(envErr).Msg("Could not load .env file")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var rdb *goredis.Client
	if cfg.Redis.Enabled() {
		client, err := cfg.Redis.New()
		if err != nil {
			logx.Fatal().Err(err).Msg("Failed to initialise Redis client")
		}
		defer client.Close()
		rdb = client
		logx.Info().Msg("Connected to Redis, tool result cache enabled")
	}

	handler := observers.NewAllCallbacks()

	models, err := chat.NewChatModels(ctx, chat.ChatModelConfig{
		APIKey:         cfg.APIKey,
		BaseURL:        cfg.BaseURL,
		Narration:      &cfg.Narration,
		Reasoning:      &cfg.Reasoning,
		ThinkingBudget: cfg.ThinkingBudget,
	})
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to create chat models")
	}
	gateway := chat.NewGateway(chat.GatewayConfig{
		Narrator:             models.Narrator,
		Reasoner:             models.Reasoner,
		NarratorName:         models.NarratorName,
		ReasonerName:         models.ReasonerName,
		HistoryWindow:        cfg.Conversation.HistoryWindow,
		NarrationTemperature: cfg.Narration.Temperature,
		NarrationMaxTokens:   cfg.Narration.MaxTokens,
		Handlers:             []einocb.Handler{handler},
	})

	registry := newRegistry(cfg.Tools, rdb, handler)
	for name, status := range registry.InitializationStatus() {
		logx.Info().Str("tool", name).Str("status", status).Msg("Tool initialization")
	}

	orchestrator := workflow.New(registry, gateway)
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.NewServer(orchestrator, registry).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logx.Info().Str("addr", cfg.Server.Addr).Str("environment", cfg.Environment.String()).Msg("Audience Andy listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logx.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	<-ctx.Done()
	logx.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logx.Error().Err(err).Msg("Graceful shutdown failed")
	}
}

// newRegistry registers the three analysis tools. Each is built on first use
// and, when Redis is configured, served through the result cache.
func newRegistry(cfg model.ToolsConfig, rdb *goredis.Client, handler einocb.Handler) *tools.Registry {
	cached := func(t tools.Tool) tools.Tool {
		if rdb == nil {
			return t
		}
		return tools.Cached(t, rdb, cfg.CacheTTL)
	}

	registry := tools.NewRegistry(tools.WithCallbacks(handler))
	registry.Register(tools.ScraperName, func() (tools.Tool, error) {
		return cached(tools.NewScraper(cfg)), nil
	})
	registry.Register(tools.SerpName, func() (tools.Tool, error) {
		return cached(tools.NewSerpAnalyzer(cfg)), nil
	})
	registry.Register(tools.CategoryTreeName, func() (tools.Tool, error) {
		return tools.NewCategoryTree(cfg), nil
	})
	return registry
}
