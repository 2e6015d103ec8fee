package prompts

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/audience-andy/server/internal/agent/model"
)

//go:embed template/*.txt
var templates embed.FS

func load(name string) string {
	b, err := templates.ReadFile("template/" + name + ".txt")
	if err != nil {
		// embedded at build time; a missing file is a programming error
		panic(fmt.Sprintf("prompts: missing template %s: %v", name, err))
	}
	return string(b)
}

var stageSystem = func() map[model.Stage]string {
	m := make(map[model.Stage]string, len(model.Stages))
	for _, s := range model.Stages {
		m[s] = load(s.String())
	}
	return m
}()

var (
	reasoningSystem  = load("reasoning_system")
	reasoningUser    = load("reasoning_user")
	strategiesSystem = load("strategies_system")
	strategiesUser   = load("strategies_user")
)

// RenderStageSystem renders the system instruction for a stage and triggers prompt callbacks.
// In final_summary a non-nil analysis switches the instruction into Q&A mode.
func RenderStageSystem(ctx context.Context, stage model.Stage, analysis *model.AnalysisData) (string, error) {
	tplText, ok := stageSystem[stage]
	if !ok {
		tplText = stageSystem[model.StageInitial]
	}

	vars := map[string]any{
		"QAMode":       false,
		"AnalysisJSON": "",
	}
	if stage == model.StageFinalSummary && analysis != nil {
		b, err := json.MarshalIndent(analysis, "", "  ")
		if err != nil {
			return "", fmt.Errorf("stage prompt render: %w", err)
		}
		vars["QAMode"] = true
		vars["AnalysisJSON"] = string(b)
	}

	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(tplText),
	)
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return "", fmt.Errorf("stage prompt render: %w", err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("stage prompt render: empty result")
	}
	return msgs[0].Content, nil
}

// CategoryOption is one top-level category offered to the reasoning call.
type CategoryOption struct {
	Name          string                  `json:"name"`
	Description   string                  `json:"description"`
	Subcategories []model.SubcategoryInfo `json:"subcategories"`
}

// ReasoningInput carries everything the combined category reasoning call needs.
type ReasoningInput struct {
	Product   model.ProductData
	Keywords  []string
	Hints     []model.MatchedCategory
	Hierarchy []CategoryOption
}

// Exchange is a rendered system and user prompt pair.
type Exchange struct {
	System string
	User   string
}

// RenderReasoning renders the combined category selection and segmentation request.
func RenderReasoning(ctx context.Context, in ReasoningInput) (Exchange, error) {
	vars := map[string]any{
		"Title":         in.Product.Title,
		"Description":   in.Product.Description,
		"FeaturesJSON":  compactJSON(in.Product.Features, "[]"),
		"KeywordsJSON":  compactJSON(in.Keywords, "[]"),
		"HintsJSON":     "",
		"HierarchyJSON": indentJSON(in.Hierarchy, "[]"),
	}
	if len(in.Hints) > 0 {
		vars["HintsJSON"] = indentJSON(in.Hints, "")
	}
	return renderExchange(ctx, "reasoning", reasoningSystem, reasoningUser, vars)
}

// RenderStrategies renders the marketing strategies request.
func RenderStrategies(ctx context.Context, product model.ProductData, market model.MarketData, segments []model.AudienceSegment) (Exchange, error) {
	vars := map[string]any{
		"ProductJSON":  compactJSON(product, "{}"),
		"MarketJSON":   compactJSON(market, "{}"),
		"SegmentsJSON": compactJSON(segments, "[]"),
	}
	return renderExchange(ctx, "strategies", strategiesSystem, strategiesUser, vars)
}

func renderExchange(ctx context.Context, name, system, user string, vars map[string]any) (Exchange, error) {
	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(system),
		schema.UserMessage(user),
	)
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return Exchange{}, fmt.Errorf("%s prompt render: %w", name, err)
	}
	if len(msgs) != 2 || msgs[0] == nil || msgs[1] == nil {
		return Exchange{}, fmt.Errorf("%s prompt render: unexpected result", name)
	}
	return Exchange{System: msgs[0].Content, User: msgs[1].Content}, nil
}

func compactJSON(v any, empty string) string {
	b, err := json.Marshal(v)
	if err != nil || string(b) == "null" {
		return empty
	}
	return string(b)
}

func indentJSON(v any, empty string) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil || string(b) == "null" {
		return empty
	}
	return string(b)
}
