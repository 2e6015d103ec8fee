package workflow

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/audience-andy/server/internal/agent/model"
	errx "github.com/audience-andy/server/internal/core/error"
	"github.com/audience-andy/server/internal/metrics"
	logx "github.com/audience-andy/server/pkg/logger"
)

const (
	greetingBrief   = "Hi there! I'm Audience Andy. Share a product URL with me, and I'll help you identify target audiences and marketing strategies for it."
	askForURLBrief  = "I'd be happy to analyze a product for you. To get started, please share the product URL you'd like me to analyze."
	canceledBrief   = "I've canceled the analysis. If you'd like to analyze a product, please share a URL and ask me to analyze it."
	notSureBrief    = "I'm not sure what to do next. If you'd like to analyze a product, please share a URL and ask me to analyze it. Or you can ask me a specific question about audience segmentation or marketing strategies."
	gatewayFallback = "I'm having trouble generating a response. Please try again."
)

// ToolExecutor runs registered tools by name.
type ToolExecutor interface {
	ExecuteTool(ctx context.Context, name string, params map[string]any) model.ToolResult
}

// Gateway narrates briefs and runs raw completions.
type Gateway interface {
	Narrate(ctx context.Context, req model.NarrationRequest) (string, error)
	Complete(ctx context.Context, req model.CompletionRequest) (string, error)
}

// stageOutcome is what a stage handler hands back to the driver.
type stageOutcome struct {
	brief string
	ok    bool
}

func advance(brief string) stageOutcome { return stageOutcome{brief: brief, ok: true} }
func halt(brief string) stageOutcome    { return stageOutcome{brief: brief} }

type stageHandler func(ctx context.Context) stageOutcome

// Orchestrator drives one conversation through the analysis pipeline.
// It is not safe for concurrent use.
type Orchestrator struct {
	tools    ToolExecutor
	gateway  Gateway
	state    *model.WorkflowState
	handlers map[model.Stage]stageHandler
}

func New(tools ToolExecutor, gateway Gateway) *Orchestrator {
	o := &Orchestrator{
		tools:   tools,
		gateway: gateway,
		state:   model.NewWorkflowState(),
	}
	o.handlers = map[model.Stage]stageHandler{
		model.StageURLAnalysis:          o.handleURLAnalysis,
		model.StageMarketResearch:       o.handleMarketResearch,
		model.StageCategoryMapping:      o.handleCategoryMapping,
		model.StageAudienceSegmentation: o.handleAudienceSegmentation,
		model.StageMarketingStrategy:    o.handleMarketingStrategy,
		model.StageFinalSummary:         o.handleFinalSummary,
	}
	return o
}

// Start resets the conversation and returns the greeting.
func (o *Orchestrator) Start(ctx context.Context) (string, error) {
	logx.Info().Msg("Starting new conversation")
	o.state.Stage = model.StageInitial
	o.state.History = []model.Turn{}
	return o.narrate(ctx, greetingBrief), nil
}

// ProcessMessage appends the user message, applies the transition rules and
// returns the narration. Only blank input is an error.
func (o *Orchestrator) ProcessMessage(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", errx.New(errx.ErrEmptyMessage, http.StatusBadRequest, errx.EmptyMessageMessage)
	}

	s := o.state
	logx.Info().
		Str("stage", s.Stage.String()).
		Bool("has_product", !s.Product.IsEmpty()).
		Bool("has_market", !s.Market.IsEmpty()).
		Bool("has_categories", !s.Category.IsEmpty()).
		Bool("has_final", !s.Final.IsEmpty()).
		Msg("Processing user message")

	s.History = append(s.History, model.Turn{Role: model.RoleUser, Content: text})
	url := findURL(text)
	intent := hasAnalysisIntent(text)

	switch {
	case s.Stage == model.StageInitial:
		if url != "" {
			// a bare URL is enough to start
			logx.Info().Str("url", url).Bool("intent", intent).Msg("URL detected, starting analysis")
			s.ClearData()
			s.SourceURL = url
			return o.drive(ctx, model.StageURLAnalysis), nil
		}
		if intent {
			return o.narrate(ctx, askForURLBrief), nil
		}
		return o.narrate(ctx, ""), nil

	case s.Stage == model.StageFinalSummary:
		if url != "" && intent {
			logx.Info().Str("url", url).Msg("New analysis requested, restarting workflow")
			s.ClearData()
			s.SourceURL = url
			return o.drive(ctx, model.StageURLAnalysis), nil
		}
		return o.narrate(ctx, ""), nil

	case s.Stage.IsPipeline():
		if isCancel(text) {
			logx.Info().Str("stage", s.Stage.String()).Msg("User canceled the workflow")
			s.Stage = model.StageInitial
			return o.narrate(ctx, canceledBrief), nil
		}
		next := s.Stage
		if s.Completed[s.Stage] {
			next = s.Stage.Next()
		} else if s.Stage == model.StageURLAnalysis && url != "" {
			s.SourceURL = url
		}
		logx.Info().Str("from", s.Stage.String()).Str("to", next.String()).Msg("Continuing workflow")
		return o.drive(ctx, next), nil
	}

	logx.Warn().Str("stage", s.Stage.String()).Msg("Reached default response handler")
	return o.narrate(ctx, notSureBrief), nil
}

// Status returns a snapshot of the workflow.
func (o *Orchestrator) Status() model.Status {
	s := o.state
	st := model.Status{
		Status:      "idle",
		HasActivity: len(s.History) > 0,
		Stage:       s.Stage,
	}
	if st.HasActivity {
		st.Status = "active"
	}
	if !s.Product.IsEmpty() {
		p := s.Product
		st.ProductData = &p
	}
	if !s.Market.IsEmpty() {
		m := s.Market
		st.MarketData = &m
	}
	if !s.Category.IsEmpty() {
		c := s.Category
		st.CategoryData = &c
	}
	if len(s.Final.AudienceSegments) > 0 {
		st.AudienceSegments = s.Final.AudienceSegments
	}
	if len(s.Final.MarketingStrategies) > 0 {
		st.Strategies = s.Final.MarketingStrategies
	}
	return st
}

// Reset clears the stage, the history and every data mapping.
func (o *Orchestrator) Reset() {
	logx.Info().Msg("Resetting workflow")
	o.state = model.NewWorkflowState()
}

// drive runs stages in order until one halts or final_summary is reached.
func (o *Orchestrator) drive(ctx context.Context, stage model.Stage) string {
	var parts []string
	for {
		o.state.Stage = stage
		narration, ok := o.runStage(ctx, stage)
		parts = append(parts, narration)
		if !ok || stage == model.StageFinalSummary {
			break
		}
		if err := ctx.Err(); err != nil {
			// resting on a completed stage; the next message advances
			logx.Warn().Str("stage", stage.String()).Err(err).Msg("Workflow interrupted")
			break
		}
		stage = stage.Next()
	}
	return strings.Join(parts, "\n\n")
}

// runStage runs one handler. A panic becomes an apology and the stage is left unchanged.
func (o *Orchestrator) runStage(ctx context.Context, stage model.Stage) (narration string, ok bool) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			logx.Error().
				Str("stage", stage.String()).
				Str("panic", fmt.Sprint(r)).
				Bytes("stack", debug.Stack()).
				Msg("Stage handler panicked")
			o.state.Stage = stage
			narration = o.narrate(ctx, fmt.Sprintf("I encountered an error during %s: %v. %s", stage.Label(), r, retryAdvice(stage)))
			ok = false
		}
		metrics.RecordStage(stage.String(), ok, time.Since(start).Seconds())
		logx.Info().Str("stage", stage.String()).Bool("ok", ok).Dur("elapsed", time.Since(start)).Msg("Stage finished")
	}()

	handler, found := o.handlers[stage]
	if !found {
		return o.narrate(ctx, notSureBrief), false
	}
	out := handler(ctx)
	if out.ok {
		o.state.Completed[stage] = true
	}
	return o.narrate(ctx, out.brief), out.ok
}

// narrate asks the gateway to voice the brief and records the reply in history.
func (o *Orchestrator) narrate(ctx context.Context, brief string) string {
	s := o.state
	req := model.NarrationRequest{
		Stage:   s.Stage,
		History: append([]model.Turn(nil), s.History...),
		Brief:   brief,
	}
	if s.Stage == model.StageFinalSummary && s.HasAnalysis() {
		req.Analysis = s.Analysis()
	}

	reply, err := o.gateway.Narrate(ctx, req)
	if err != nil || strings.TrimSpace(reply) == "" {
		logx.Error().Err(err).Str("stage", s.Stage.String()).Msg("Error getting AI response")
		reply = brief
		if strings.TrimSpace(reply) == "" {
			reply = gatewayFallback
		}
	}
	s.History = append(s.History, model.Turn{Role: model.RoleAssistant, Content: reply})
	return reply
}

func retryAdvice(stage model.Stage) string {
	switch stage {
	case model.StageURLAnalysis:
		return "Please try a different URL or try again later."
	case model.StageMarketResearch:
		return "Let's try again later with more specific information."
	case model.StageCategoryMapping:
		return "Let's try again with more detailed product information."
	case model.StageAudienceSegmentation:
		return "Let's try again with more detailed information about the product and its categories."
	case model.StageMarketingStrategy:
		return "Let's try again with more detailed information."
	case model.StageFinalSummary:
		return "Please ask about specific parts of the analysis you're interested in."
	}
	return "Please try again."
}
