package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/audience-andy/server/internal/agent/model"
	"github.com/audience-andy/server/internal/agent/prompts"
	errx "github.com/audience-andy/server/internal/core/error"
	"github.com/audience-andy/server/internal/metrics"
	logx "github.com/audience-andy/server/pkg/logger"
)

const (
	defaultHistoryWindow = 10
	narrationKind        = "narration"
)

var errEmptyCompletion = errors.New("model returned an empty message")

// GatewayConfig wires the chat models behind a Gateway.
type GatewayConfig struct {
	Narrator             einomodel.BaseChatModel
	Reasoner             einomodel.BaseChatModel
	NarratorName         string
	ReasonerName         string
	HistoryWindow        int
	NarrationTemperature float32
	NarrationMaxTokens   int
	Handlers             []einocb.Handler
}

// Gateway turns briefs into narrations and runs raw completions.
type Gateway struct {
	narrator     einomodel.BaseChatModel
	reasoner     einomodel.BaseChatModel
	narratorName string
	reasonerName string
	window       int
	temperature  float32
	maxTokens    int
	handlers     []einocb.Handler
}

func NewGateway(cfg GatewayConfig) *Gateway {
	window := cfg.HistoryWindow
	if window <= 0 {
		window = defaultHistoryWindow
	}
	reasoner := cfg.Reasoner
	reasonerName := cfg.ReasonerName
	if reasoner == nil {
		reasoner = cfg.Narrator
		reasonerName = cfg.NarratorName
	}
	return &Gateway{
		narrator:     cfg.Narrator,
		reasoner:     reasoner,
		narratorName: cfg.NarratorName,
		reasonerName: reasonerName,
		window:       window,
		temperature:  cfg.NarrationTemperature,
		maxTokens:    cfg.NarrationMaxTokens,
		handlers:     cfg.Handlers,
	}
}

// Narrate renders the stage instruction, appends the trailing history window
// and the brief, and returns the narrator's reply.
func (g *Gateway) Narrate(ctx context.Context, req model.NarrationRequest) (string, error) {
	promptCtx := einocb.InitCallbacks(ctx, &einocb.RunInfo{
		Name:      "stage_instruction",
		Type:      string(req.Stage),
		Component: components.ComponentOfPrompt,
	}, g.handlers...)
	system, err := prompts.RenderStageSystem(promptCtx, req.Stage, req.Analysis)
	if err != nil {
		return "", fmt.Errorf("render stage instruction: %w", err)
	}

	msgs := make([]*schema.Message, 0, g.window+2)
	msgs = append(msgs, schema.SystemMessage(system))
	msgs = append(msgs, historyMessages(tail(req.History, g.window))...)
	if brief := strings.TrimSpace(req.Brief); brief != "" {
		msgs = append(msgs, schema.UserMessage(brief))
	}

	var opts []einomodel.Option
	if g.temperature > 0 {
		opts = append(opts, einomodel.WithTemperature(g.temperature))
	}
	if g.maxTokens > 0 {
		opts = append(opts, einomodel.WithMaxTokens(g.maxTokens))
	}
	return g.generate(ctx, narrationKind, g.narrator, g.narratorName, msgs, opts...)
}

// Complete sends a system and user pair to the reasoning model.
func (g *Gateway) Complete(ctx context.Context, req model.CompletionRequest) (string, error) {
	msgs := []*schema.Message{
		schema.SystemMessage(req.System),
		schema.UserMessage(req.Prompt),
	}
	var opts []einomodel.Option
	if req.Temperature != nil {
		opts = append(opts, einomodel.WithTemperature(*req.Temperature))
	}
	if req.MaxTokens > 0 {
		opts = append(opts, einomodel.WithMaxTokens(req.MaxTokens))
	}
	return g.generate(ctx, string(req.Kind), g.reasoner, g.reasonerName, msgs, opts...)
}

func (g *Gateway) generate(ctx context.Context, kind string, cm einomodel.BaseChatModel, modelName string, msgs []*schema.Message, opts ...einomodel.Option) (string, error) {
	if cm == nil {
		metrics.LLMCalls.WithLabelValues(kind, modelName, "failure").Inc()
		return "", errx.WrapLLM(errors.New("chat model is not configured"))
	}

	ctx = einocb.InitCallbacks(ctx, &einocb.RunInfo{
		Name:      kind,
		Type:      modelName,
		Component: components.ComponentOfChatModel,
	}, g.handlers...)

	start := time.Now()
	out, err := cm.Generate(ctx, msgs, opts...)
	elapsed := time.Since(start)
	if err == nil && (out == nil || strings.TrimSpace(out.Content) == "") {
		err = errEmptyCompletion
	}
	if err != nil {
		metrics.LLMCalls.WithLabelValues(kind, modelName, "failure").Inc()
		logx.Error().
			Str("kind", kind).
			Str("model", modelName).
			Dur("elapsed", elapsed).
			Err(err).
			Msg("LLM call failed")
		return "", errx.WrapLLM(err)
	}

	metrics.LLMCalls.WithLabelValues(kind, modelName, "success").Inc()
	recordUsage(kind, modelName, out, elapsed)
	return strings.TrimSpace(out.Content), nil
}

// recordUsage computes and logs usage cost for one call.
func recordUsage(kind, modelName string, out *schema.Message, elapsed time.Duration) {
	if out.ResponseMeta == nil || out.ResponseMeta.Usage == nil {
		logx.Debug().Str("kind", kind).Str("model", modelName).Dur("elapsed", elapsed).Msg("LLM call without usage")
		return
	}
	usage := out.ResponseMeta.Usage
	inC, outC, totalC := model.ComputeCost(usage, model.ResolvePricing(modelName))
	metrics.RecordLLMUsage(modelName, usage.PromptTokens, usage.CompletionTokens, totalC)
	logx.Debug().
		Str("kind", kind).
		Str("model", modelName).
		Dur("elapsed", elapsed).
		Int("prompt_tokens", usage.PromptTokens).
		Int("completion_tokens", usage.CompletionTokens).
		Int("total_tokens", usage.TotalTokens).
		Float64("input_cost_usd", inC).
		Float64("output_cost_usd", outC).
		Float64("total_cost_usd", totalC).
		Msg("LLM usage")
}

func tail(history []model.Turn, n int) []model.Turn {
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}

func historyMessages(turns []model.Turn) []*schema.Message {
	out := make([]*schema.Message, 0, len(turns))
	for _, t := range turns {
		if strings.TrimSpace(t.Content) == "" {
			continue
		}
		switch t.Role {
		case model.RoleAssistant:
			out = append(out, schema.AssistantMessage(t.Content, nil))
		default:
			out = append(out, schema.UserMessage(t.Content))
		}
	}
	return out
}
