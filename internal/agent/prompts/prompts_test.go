package prompts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audience-andy/server/internal/agent/model"
)

func TestRenderStageSystemEveryStage(t *testing.T) {
	for _, stage := range model.Stages {
		out, err := RenderStageSystem(t.Context(), stage, nil)
		require.NoError(t, err, stage)
		assert.NotEmpty(t, out, stage)
		assert.NotContains(t, out, "{{", stage)
	}
}

func TestRenderStageSystemInitialIsConcise(t *testing.T) {
	out, err := RenderStageSystem(t.Context(), model.StageInitial, nil)
	require.NoError(t, err)
	assert.Contains(t, out, "Audience Andy")
	assert.Contains(t, out, "short and conversational")
}

func TestRenderStageSystemUnknownStageFallsBackToInitial(t *testing.T) {
	initial, err := RenderStageSystem(t.Context(), model.StageInitial, nil)
	require.NoError(t, err)
	out, err := RenderStageSystem(t.Context(), model.Stage("bogus"), nil)
	require.NoError(t, err)
	assert.Equal(t, initial, out)
}

func TestRenderStageSystemFinalSummaryQAMode(t *testing.T) {
	plain, err := RenderStageSystem(t.Context(), model.StageFinalSummary, nil)
	require.NoError(t, err)
	assert.NotContains(t, plain, "follow-up questions about the completed analysis")

	analysis := &model.AnalysisData{
		Product: model.ProductData{Title: "Aurora Headphones"},
		Market:  model.MarketData{Keywords: []string{"wireless", "anc"}},
	}
	qa, err := RenderStageSystem(t.Context(), model.StageFinalSummary, analysis)
	require.NoError(t, err)
	assert.Contains(t, qa, "follow-up questions about the completed analysis")
	assert.Contains(t, qa, `"title": "Aurora Headphones"`)
	assert.Contains(t, qa, `"wireless"`)

	// other stages ignore the analysis
	other, err := RenderStageSystem(t.Context(), model.StageMarketResearch, analysis)
	require.NoError(t, err)
	assert.NotContains(t, other, "Aurora Headphones")
}

func TestRenderReasoning(t *testing.T) {
	ex, err := RenderReasoning(t.Context(), ReasoningInput{
		Product: model.ProductData{
			Title:       "Trail Runner",
			Description: "A light shoe",
			Features:    []string{"breathable"},
		},
		Keywords: []string{"running"},
		Hierarchy: []CategoryOption{{
			Name:          "Interests",
			Description:   "Hobbies",
			Subcategories: []model.SubcategoryInfo{{Name: "Running"}},
		}},
	})
	require.NoError(t, err)
	assert.Contains(t, ex.System, "JSON")
	assert.Contains(t, ex.User, "Product: Trail Runner")
	assert.Contains(t, ex.User, `Features: ["breathable"]`)
	assert.Contains(t, ex.User, `Keywords: ["running"]`)
	assert.Contains(t, ex.User, `"name": "Interests"`)
	assert.Contains(t, ex.User, `"selected_categories"`)
	assert.NotContains(t, ex.User, "Rule-based category hints")
}

func TestRenderReasoningWithHintsAndEmptyLists(t *testing.T) {
	ex, err := RenderReasoning(t.Context(), ReasoningInput{
		Product: model.ProductData{Title: "Widget"},
		Hints:   []model.MatchedCategory{{Category: "Technology", Score: 4}},
	})
	require.NoError(t, err)
	assert.Contains(t, ex.User, "Features: []")
	assert.Contains(t, ex.User, "Keywords: []")
	assert.Contains(t, ex.User, "Rule-based category hints")
	assert.Contains(t, ex.User, `"category": "Technology"`)
}

func TestRenderStrategies(t *testing.T) {
	ex, err := RenderStrategies(t.Context(),
		model.ProductData{Title: "Widget"},
		model.MarketData{Keywords: []string{"gadget"}},
		[]model.AudienceSegment{{Name: "Tinkerers"}},
	)
	require.NoError(t, err)
	assert.Contains(t, ex.System, "marketing strategy expert")
	assert.Contains(t, ex.User, `"title":"Widget"`)
	assert.Contains(t, ex.User, `"gadget"`)
	assert.Contains(t, ex.User, `"name":"Tinkerers"`)
}
