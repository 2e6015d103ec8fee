package parsers

import (
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audience-andy/server/internal/agent/model"
	errx "github.com/audience-andy/server/internal/core/error"
)

const reasoningAnswer = `{
  "selected_categories": [
    {"category": " Technology ", "explanation": "Gadget",
     "selected_subcategories": [{"name": "Audio Equipment", "explanation": "Headphones"}, {"name": "  "}]},
    {"category": "", "explanation": "nameless"}
  ],
  "audience_segments": [
    {"name": "Audiophiles", "description": "Care about sound",
     "targeting_criteria": [
       {"type": "Interest", "category": "Technology", "subcategory": "Audio Equipment"},
       {"type": "Behaviour", "category": "Shopping", "value": "Premium buyers"},
       {"type": "demographic/age", "category": "Demographics", "value": "25-34"},
       {"type": "interest", "category": ""}
     ]},
    {"name": "", "description": "ignored"}
  ]
}`

func TestParseCategoryReasoning(t *testing.T) {
	out, err := ParseCategoryReasoning(reasoningAnswer)
	require.NoError(t, err)

	require.Len(t, out.SelectedCategories, 1)
	tech := out.SelectedCategories[0]
	assert.Equal(t, "Technology", tech.Category)
	assert.Equal(t, []model.SubcategoryRef{{Name: "Audio Equipment", Explanation: "Headphones"}}, tech.SelectedSubcategories)

	require.Len(t, out.AudienceSegments, 1)
	seg := out.AudienceSegments[0]
	assert.Equal(t, "Audiophiles", seg.Name)
	require.Len(t, seg.TargetingCriteria, 3)
	assert.Equal(t, model.CriterionInterest, seg.TargetingCriteria[0].Type)
	assert.Equal(t, model.CriterionBehavior, seg.TargetingCriteria[1].Type)
	assert.Equal(t, model.CriterionDemographic, seg.TargetingCriteria[2].Type)
}

func TestParseCategoryReasoningStripsFences(t *testing.T) {
	out, err := ParseCategoryReasoning("Here you go:\n```json\n" + reasoningAnswer + "\n```")
	require.NoError(t, err)
	assert.Len(t, out.SelectedCategories, 1)

	out, err = ParseCategoryReasoning("```json\n" + reasoningAnswer + "\n```")
	require.NoError(t, err)
	assert.Len(t, out.AudienceSegments, 1)
}

func TestParseCategoryReasoningEmptyFieldsAreEmptyLists(t *testing.T) {
	out, err := ParseCategoryReasoning(`{}`)
	require.NoError(t, err)
	assert.NotNil(t, out.SelectedCategories)
	assert.Empty(t, out.SelectedCategories)
	assert.NotNil(t, out.AudienceSegments)
	assert.Empty(t, out.AudienceSegments)
}

func TestParseCategoryReasoningCaps(t *testing.T) {
	var cats, subs []string
	for i := range 8 {
		subs = append(subs, fmt.Sprintf(`{"name":"Sub %d"}`, i))
	}
	for i := range 6 {
		cats = append(cats, fmt.Sprintf(`{"category":"Cat %d","selected_subcategories":[%s]}`, i, strings.Join(subs, ",")))
	}
	out, err := ParseCategoryReasoning(`{"selected_categories":[` + strings.Join(cats, ",") + `]}`)
	require.NoError(t, err)
	require.Len(t, out.SelectedCategories, maxCategories)
	for _, c := range out.SelectedCategories {
		assert.Len(t, c.SelectedSubcategories, maxSubcategories)
	}
}

func TestParseCategoryReasoningRejectsGarbage(t *testing.T) {
	for _, content := range []string{
		"",
		"I cannot help with that.",
		`{"selected_categories": [`,
		`{"selected_categories": "Technology"}`,
		"{" + strings.Repeat(" ", maxContentLen) + "}",
		"{\"a\":\"\xff\"}",
	} {
		out, err := ParseCategoryReasoning(content)
		require.Error(t, err)
		assert.Nil(t, out)
		status, msg := errx.StatusOf(err)
		assert.Equal(t, http.StatusBadGateway, status)
		assert.Equal(t, invalidJSONReason, msg)
	}
}
