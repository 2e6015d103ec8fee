package tools

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audience-andy/server/internal/agent/model"
)

const testTree = `{
  "categories": [
    {"name": "Technology", "description": "Consumer electronics",
     "subcategories": [
       {"name": "Audio Equipment", "description": "Headphones and speakers", "values": ["Headphones", "Bluetooth"]},
       {"name": "Computers", "description": "Laptops", "values": ["Laptop"]},
       {"name": "Wearables", "description": "", "values": ["Smartwatch"],
        "subcategories": [{"name": "Fitness Trackers", "values": ["Step Counter"]}]}
     ]},
    {"name": "Home", "description": "Household goods",
     "subcategories": [{"name": "Furniture", "values": ["Sofa"]}]},
    {"name": "Interests", "description": "Hobbies",
     "subcategories": [{"name": "Music", "values": ["Headphones", "Vinyl"]}]},
    {"name": "Behaviors", "description": "Purchase patterns"},
    {"name": "Demographics", "description": "Age and gender"}
  ]
}`

func writeTree(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tree.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func loadTestTree(t *testing.T) *CategoryTree {
	t.Helper()
	c := newCategoryTree([]string{filepath.Join(t.TempDir(), "missing.json"), writeTree(t, testTree)})
	require.True(t, c.IsAvailable(), c.InitError())
	return c
}

func decodeMatch(t *testing.T, res model.ToolResult) model.MatchResult {
	t.Helper()
	require.True(t, res.Success, res.Error)
	var out model.MatchResult
	require.NoError(t, res.Decode(&out))
	return out
}

func TestCategoryTreeEmptyInputReturnsAlphabeticalTopLevel(t *testing.T) {
	c := loadTestTree(t)
	for _, limit := range []int{1, 3, 10} {
		res, err := c.Execute(t.Context(), map[string]any{
			"product_description": "",
			"max_categories":      limit,
		})
		require.NoError(t, err)
		out := decodeMatch(t, res)

		want := []string{"Behaviors", "Demographics", "Home", "Interests", "Technology"}
		want = want[:min(limit, len(want))]
		got := make([]string, 0, len(out.MatchedCategories))
		for _, m := range out.MatchedCategories {
			got = append(got, m.Category)
			assert.Equal(t, 5, m.Score)
			assert.Empty(t, m.Subcategories)
		}
		assert.Equal(t, want, got)
	}
}

func TestCategoryTreeScoring(t *testing.T) {
	c := loadTestTree(t)
	matched := c.Match("Wireless bluetooth headphones for music lovers and every hobby", []string{"Noise cancelling", "Digital device"}, nil, 3, 5)
	require.NotEmpty(t, matched)

	assert.Equal(t, "Technology", matched[0].Category)
	// keywords "digital" and "device"
	assert.Equal(t, 4, matched[0].Score)
	require.NotEmpty(t, matched[0].Subcategories)
	audio := matched[0].Subcategories[0]
	assert.Equal(t, "Audio Equipment", audio.Name)
	assert.Equal(t, 4, audio.Score)
	assert.Equal(t, []string{"Headphones", "Bluetooth"}, audio.MatchedValues)

	var interests *model.MatchedCategory
	for i := range matched {
		if matched[i].Category == "Interests" {
			interests = &matched[i]
		}
	}
	require.NotNil(t, interests)
	require.Len(t, interests.Subcategories, 1)
	assert.Equal(t, 7, interests.Subcategories[0].Score)
}

func TestCategoryTreeNestedSubcategoriesKeepParent(t *testing.T) {
	c := loadTestTree(t)
	matched := c.Match("a simple step counter", nil, []string{"tech"}, 3, 5)
	require.NotEmpty(t, matched)
	require.Equal(t, "Technology", matched[0].Category)
	require.Len(t, matched[0].Subcategories, 1)
	wear := matched[0].Subcategories[0]
	assert.Equal(t, "Wearables", wear.Name)
	assert.Zero(t, wear.Score)
	require.Len(t, wear.Subcategories, 1)
	assert.Equal(t, "Fitness Trackers", wear.Subcategories[0].Name)
}

func TestCategoryTreeMatchIsDeterministic(t *testing.T) {
	c := loadTestTree(t)
	params := map[string]any{
		"product_description": "tech gadget for the home house music hobby",
		"product_features":    []any{"budget friendly", "age appropriate"},
		"max_categories":      5,
	}
	first, err := c.Execute(t.Context(), params)
	require.NoError(t, err)
	for range 20 {
		again, err := c.Execute(t.Context(), params)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestCategoryTreeTiesKeepTreeOrder(t *testing.T) {
	c := loadTestTree(t)
	// "tech" and "house" each score 2
	matched := c.Match("tech house", nil, nil, 5, 5)
	require.Len(t, matched, 2)
	assert.Equal(t, "Technology", matched[0].Category)
	assert.Equal(t, "Home", matched[1].Category)
}

func TestCategoryTreeFallbacks(t *testing.T) {
	c := loadTestTree(t)
	matched := c.Match("zzz qqq", nil, nil, 3, 5)
	require.Len(t, matched, 1)
	assert.Equal(t, "General Consumer Products", matched[0].Category)
	require.Len(t, matched[0].Subcategories, 1)
	assert.Equal(t, "Online Products", matched[0].Subcategories[0].Name)

	general := newCategoryTree([]string{writeTree(t, `{"categories":[
		{"name":"Sports"},
		{"name":"Everyday Consumer Goods","subcategories":[{"name":"Basics"}]}]}`)})
	require.True(t, general.IsAvailable())
	matched = general.Match("zzz qqq", nil, nil, 3, 5)
	require.Len(t, matched, 1)
	// consumer categories earn a base score instead of falling back
	assert.Equal(t, "Everyday Consumer Goods", matched[0].Category)
	assert.Equal(t, 1, matched[0].Score)
}

func TestCategoryTreeExploreModes(t *testing.T) {
	c := loadTestTree(t)

	res, err := c.Execute(t.Context(), map[string]any{"product_description": "", "mode": ModeExploreTopLevel})
	require.NoError(t, err)
	var top model.TopLevelResult
	require.NoError(t, res.Decode(&top))
	require.Len(t, top.Categories, 5)
	assert.Equal(t, "Behaviors", top.Categories[0].Name)
	assert.False(t, top.Categories[0].HasSubcategories)
	assert.True(t, top.Categories[4].HasSubcategories)

	res, err = c.Execute(t.Context(), map[string]any{"mode": ModeExploreSubcategories, "parent_category": "Technology"})
	require.NoError(t, err)
	var subs model.SubcategoryResult
	require.NoError(t, res.Decode(&subs))
	require.Len(t, subs.Subcategories, 3)
	assert.Equal(t, "Audio Equipment", subs.Subcategories[0].Name)
	assert.Equal(t, []string{"Headphones", "Bluetooth"}, subs.Subcategories[0].Values)
	assert.True(t, subs.Subcategories[2].HasSubcategories)
}

func TestCategoryTreeUnknownParentIsEmptySuccess(t *testing.T) {
	c := loadTestTree(t)
	res, err := c.Execute(t.Context(), map[string]any{
		"mode":            ModeExploreSubcategories,
		"parent_category": "NonexistentCategory",
	})
	require.NoError(t, err)
	require.True(t, res.Success)

	var subs model.SubcategoryResult
	require.NoError(t, res.Decode(&subs))
	assert.Empty(t, subs.Subcategories)
	assert.NotNil(t, res.Result["subcategories"])
}

func TestCategoryTreeModeErrors(t *testing.T) {
	c := loadTestTree(t)

	res, err := c.Execute(t.Context(), map[string]any{"mode": ModeExploreSubcategories})
	require.NoError(t, err)
	assert.False(t, res.Success)

	res, err = c.Execute(t.Context(), map[string]any{"mode": "guess"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "guess")
}

func TestCategoryTreeMissingFileIsPermanentInitError(t *testing.T) {
	c := newCategoryTree([]string{filepath.Join(t.TempDir(), "nope.json"), writeTree(t, "{not json")})
	assert.False(t, c.IsAvailable())
	assert.Contains(t, c.InitError(), "Failed to load marketing categories")

	r := NewRegistry()
	r.Add(c)
	res := r.ExecuteTool(t.Context(), CategoryTreeName, map[string]any{"product_description": "x"})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "Initialization error: Failed to load marketing categories")
}

func TestBundledCategoryTreeLoads(t *testing.T) {
	c := newCategoryTree([]string{filepath.Join("..", "..", "..", "data", categoryFileName)})
	require.True(t, c.IsAvailable(), c.InitError())
	assert.NotEmpty(t, c.TopLevel())
	assert.NotEmpty(t, c.Subcategories("Technology"))
}

func TestGenerateSegmentsFloor(t *testing.T) {
	cases := [][]model.MatchedCategory{
		nil,
		{{Category: "Sports", Score: 1}},
		{{Category: "Books", Score: 2, Subcategories: []model.ScoredSubcategory{{Name: "Fiction", Score: 1}}}},
	}
	for _, matched := range cases {
		assert.GreaterOrEqual(t, len(GenerateSegments(matched)), 3)
	}
}

func TestGenerateSegmentsShapes(t *testing.T) {
	segments := GenerateSegments([]model.MatchedCategory{{
		Category: "Technology",
		Score:    12,
		Subcategories: []model.ScoredSubcategory{
			{Name: "Audio Equipment", Score: 4, MatchedValues: []string{"Headphones"}},
			{Name: "Computers", Score: 2},
		},
	}})

	names := make([]string, 0, len(segments))
	for _, s := range segments {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"Audio Equipment Seekers", "Technology Enthusiasts", "Tech Early Adopters"}, names)

	primary := segments[1]
	require.Len(t, primary.TargetingCriteria, 4)
	assert.Equal(t, model.TargetingCriterion{
		Type: "interest", Category: "Technology", Subcategory: "Audio Equipment", Value: "Headphones",
	}, primary.TargetingCriteria[2])

	home := GenerateSegments([]model.MatchedCategory{{Category: "Home Decor"}})
	assert.Equal(t, "Home Improvement Enthusiasts", home[1].Name)
	assert.Equal(t, model.CriterionBehavior, home[1].TargetingCriteria[1].Type)
}
