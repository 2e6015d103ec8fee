package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/audience-andy/server/internal/agent/model"
	logx "github.com/audience-andy/server/pkg/logger"
)

const CategoryTreeName = "category_tree"

const (
	ModeMatch                = "match"
	ModeExploreTopLevel      = "explore_toplevel"
	ModeExploreSubcategories = "explore_subcategories"

	defaultMaxCategories    = 3
	defaultMaxSubcategories = 5
	categoryFileName        = "marketing_categories.json"
)

// categoryKeywords lists extra terms that hint at a top-level category.
var categoryKeywords = map[string][]string{
	"Demographics":         {"age", "gender", "education", "marital status", "ethnicity"},
	"Financial":            {"money", "income", "wealth", "finance", "investment", "budget"},
	"Home":                 {"house", "apartment", "residence", "property", "rent", "mortgage"},
	"Life Events":          {"wedding", "marriage", "engagement", "birthday", "anniversary", "graduation"},
	"Interests":            {"hobby", "passion", "activity", "entertainment", "leisure"},
	"Shopping and Fashion": {"clothes", "style", "trend", "retail", "purchase", "buy"},
	"Technology":           {"tech", "gadget", "device", "digital", "electronic", "computer"},
	"Behaviors":            {"habit", "pattern", "routine", "lifestyle", "behavior"},
}

type categoryNode struct {
	Name          string         `json:"name"`
	Description   string         `json:"description"`
	Values        []string       `json:"values,omitempty"`
	Subcategories []categoryNode `json:"subcategories,omitempty"`
}

type categoryTree struct {
	Categories []categoryNode `json:"categories"`
}

// CategoryTree matches products against the static marketing category tree.
// The tree is read once at construction and never mutated.
type CategoryTree struct {
	base
	tree   categoryTree
	source string
}

// NewCategoryTree loads the tree from the first readable candidate: the
// configured path, the working directory, ./data, then the same two names
// next to the executable.
func NewCategoryTree(cfg model.ToolsConfig) *CategoryTree {
	return newCategoryTree(categoryCandidates(cfg.CategoryTreePath))
}

func categoryCandidates(configured string) []string {
	var paths []string
	if configured != "" {
		paths = append(paths, configured)
	}
	paths = append(paths, categoryFileName, filepath.Join("data", categoryFileName))
	if exe, err := os.Executable(); err == nil {
		dir := filepath.Dir(exe)
		paths = append(paths, filepath.Join(dir, categoryFileName), filepath.Join(dir, "data", categoryFileName))
	}
	return paths
}

func newCategoryTree(candidates []string) *CategoryTree {
	c := &CategoryTree{
		base: base{
			name: CategoryTreeName,
			desc: "Navigates a tree of marketing categories to find the best match for a product",
			params: map[string]*schema.ParameterInfo{
				"product_description": {
					Type:     schema.String,
					Desc:     "Description of the product",
					Required: true,
				},
				"product_features": {
					Type:     schema.Array,
					Desc:     "List of product features",
					ElemInfo: &schema.ParameterInfo{Type: schema.String},
				},
				"product_keywords": {
					Type:     schema.Array,
					Desc:     "List of keywords from product",
					ElemInfo: &schema.ParameterInfo{Type: schema.String},
				},
				"max_categories": {
					Type: schema.Integer,
					Desc: "Maximum number of top-level categories to return",
				},
				"max_subcategories": {
					Type: schema.Integer,
					Desc: "Maximum number of subcategories per category",
				},
				"mode": {
					Type: schema.String,
					Desc: "'match' for automatic matching, 'explore_toplevel' for all top-level categories, 'explore_subcategories' for the children of parent_category",
					Enum: []string{ModeMatch, ModeExploreTopLevel, ModeExploreSubcategories},
				},
				"parent_category": {
					Type: schema.String,
					Desc: "Parent category to get subcategories for (explore_subcategories mode)",
				},
			},
			required: []string{"product_description"},
		},
	}

	for _, path := range candidates {
		tree, err := readCategoryTree(path)
		if err != nil {
			logx.Debug().Err(err).Str("path", path).Msg("Category tree candidate skipped")
			continue
		}
		c.tree = tree
		c.source = path
		logx.Info().Str("path", path).Int("categories", len(tree.Categories)).Msg("Loaded marketing categories")
		return c
	}

	c.initErr = "Failed to load marketing categories from any path. Marketing categories file not found."
	logx.Error().Strs("candidates", candidates).Msg(c.initErr)
	return c
}

func readCategoryTree(path string) (categoryTree, error) {
	var tree categoryTree
	b, err := os.ReadFile(path)
	if err != nil {
		return tree, err
	}
	if err := json.Unmarshal(b, &tree); err != nil {
		return tree, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(tree.Categories) == 0 {
		return tree, fmt.Errorf("%s has no categories", path)
	}
	return tree, nil
}

// Source is the path the tree was loaded from.
func (c *CategoryTree) Source() string { return c.source }

func (c *CategoryTree) Execute(_ context.Context, params map[string]any) (model.ToolResult, error) {
	if !c.IsAvailable() {
		return model.Failed(c.name, "Category tree tool is not available: "+c.initErr), nil
	}

	mode := strings.TrimSpace(getString(params, "mode"))
	if mode == "" {
		mode = ModeMatch
	}

	switch mode {
	case ModeExploreTopLevel:
		top := c.TopLevel()
		logx.Info().Int("categories", len(top)).Msg("Returning top-level categories")
		return model.Succeeded(c.name, model.TopLevelResult{
			Categories:       top,
			Mode:             ModeExploreTopLevel,
			AudienceSegments: []model.AudienceSegment{},
		}), nil

	case ModeExploreSubcategories:
		parent := strings.TrimSpace(getString(params, "parent_category"))
		if parent == "" {
			return model.Failed(c.name, "parent_category is required for explore_subcategories mode"), nil
		}
		subs := c.Subcategories(parent)
		logx.Info().Str("parent", parent).Int("subcategories", len(subs)).Msg("Returning subcategories")
		return model.Succeeded(c.name, model.SubcategoryResult{
			ParentCategory:   parent,
			Subcategories:    subs,
			Mode:             ModeExploreSubcategories,
			AudienceSegments: []model.AudienceSegment{},
		}), nil

	case ModeMatch:
		matched := c.Match(
			getString(params, "product_description"),
			getStrings(params, "product_features"),
			getStrings(params, "product_keywords"),
			getInt(params, "max_categories", defaultMaxCategories, 1, 50),
			getInt(params, "max_subcategories", defaultMaxSubcategories, 1, 50),
		)
		segments := GenerateSegments(matched)
		logx.Info().Int("categories", len(matched)).Int("segments", len(segments)).Msg("Category mapping completed")
		return model.Succeeded(c.name, model.MatchResult{
			MatchedCategories: matched,
			AudienceSegments:  segments,
			Mode:              ModeMatch,
		}), nil
	}

	return model.Failed(c.name, fmt.Sprintf("Unknown mode: %s", mode)), nil
}

// Match scores every top-level category against the product text and
// returns the best maxCategories, highest score first.
func (c *CategoryTree) Match(description string, features, keywords []string, maxCategories, maxSubcategories int) []model.MatchedCategory {
	if strings.TrimSpace(description) == "" && len(features) == 0 && len(keywords) == 0 {
		all := make([]model.MatchedCategory, 0, len(c.tree.Categories))
		for _, cat := range c.tree.Categories {
			all = append(all, model.MatchedCategory{
				Category:      cat.Name,
				Description:   cat.Description,
				Score:         5,
				Subcategories: []model.ScoredSubcategory{},
			})
		}
		sort.SliceStable(all, func(i, j int) bool { return all[i].Category < all[j].Category })
		return all[:min(maxCategories, len(all))]
	}

	parts := append([]string{description}, features...)
	parts = append(parts, keywords...)
	text := strings.ToLower(strings.Join(parts, " "))

	var scored []model.MatchedCategory
	for _, cat := range c.tree.Categories {
		score := scoreCategory(cat, text)
		if score > 0 {
			scored = append(scored, model.MatchedCategory{
				Category:      cat.Name,
				Description:   cat.Description,
				Score:         score,
				Subcategories: matchSubcategories(cat.Subcategories, text, maxSubcategories),
			})
		}
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })

	if len(scored) == 0 {
		scored = []model.MatchedCategory{c.fallbackCategory(text, maxSubcategories)}
	}
	if len(scored) > maxCategories {
		scored = scored[:maxCategories]
	}
	return scored
}

func scoreCategory(cat categoryNode, text string) int {
	name := strings.ToLower(cat.Name)
	score := 0
	if name != "" && strings.Contains(text, name) {
		score += 10
	}
	for _, word := range strings.Fields(name) {
		if len(word) > 3 && strings.Contains(text, word) {
			score += 3
		}
	}
	if desc := strings.ToLower(cat.Description); desc != "" && strings.Contains(text, desc) {
		score += 5
	}
	for _, kw := range categoryKeywords[cat.Name] {
		if strings.Contains(text, strings.ToLower(kw)) {
			score += 2
		}
	}
	if score == 0 && isGeneralName(name) {
		score = 1
	}
	return score
}

func isGeneralName(lowerName string) bool {
	return strings.Contains(lowerName, "general") ||
		strings.Contains(lowerName, "product") ||
		strings.Contains(lowerName, "consumer")
}

func matchSubcategories(nodes []categoryNode, text string, limit int) []model.ScoredSubcategory {
	out := []model.ScoredSubcategory{}
	for _, sub := range nodes {
		score := 0
		if name := strings.ToLower(sub.Name); name != "" && strings.Contains(text, name) {
			score += 5
		}
		if desc := strings.ToLower(sub.Description); desc != "" && strings.Contains(text, desc) {
			score += 3
		}
		var matchedValues []string
		for _, v := range sub.Values {
			if v != "" && strings.Contains(text, strings.ToLower(v)) {
				score += 2
				matchedValues = append(matchedValues, v)
			}
		}

		var nested []model.ScoredSubcategory
		if len(sub.Subcategories) > 0 {
			nested = matchSubcategories(sub.Subcategories, text, limit)
		}
		if score == 0 && len(nested) == 0 {
			continue
		}
		entry := model.ScoredSubcategory{
			Name:          sub.Name,
			Description:   sub.Description,
			Score:         score,
			MatchedValues: matchedValues,
		}
		if len(nested) > 0 {
			entry.Subcategories = nested
		}
		out = append(out, entry)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (c *CategoryTree) fallbackCategory(text string, maxSubcategories int) model.MatchedCategory {
	for _, cat := range c.tree.Categories {
		name := strings.ToLower(cat.Name)
		if strings.Contains(name, "general") || strings.Contains(name, "consumer") {
			desc := cat.Description
			if desc == "" {
				desc = "General products category"
			}
			return model.MatchedCategory{
				Category:      cat.Name,
				Description:   desc,
				Score:         1,
				Subcategories: matchSubcategories(cat.Subcategories, text, maxSubcategories),
			}
		}
	}
	logx.Warn().Msg("No category matches found, creating default category")
	return model.MatchedCategory{
		Category:    "General Consumer Products",
		Description: "Products intended for general consumer use",
		Score:       1,
		Subcategories: []model.ScoredSubcategory{{
			Name:        "Online Products",
			Description: "Products available for purchase online",
			Score:       1,
		}},
	}
}

// TopLevel lists every top-level category alphabetically.
func (c *CategoryTree) TopLevel() []model.TopLevelCategory {
	out := make([]model.TopLevelCategory, 0, len(c.tree.Categories))
	for _, cat := range c.tree.Categories {
		out = append(out, model.TopLevelCategory{
			Name:             cat.Name,
			Description:      cat.Description,
			HasSubcategories: len(cat.Subcategories) > 0,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Subcategories lists the direct children of parent alphabetically. An
// unknown parent yields an empty list.
func (c *CategoryTree) Subcategories(parent string) []model.SubcategoryInfo {
	out := []model.SubcategoryInfo{}
	for _, cat := range c.tree.Categories {
		if cat.Name != parent {
			continue
		}
		for _, sub := range cat.Subcategories {
			values := sub.Values
			if values == nil {
				values = []string{}
			}
			out = append(out, model.SubcategoryInfo{
				Name:             sub.Name,
				Description:      sub.Description,
				HasSubcategories: len(sub.Subcategories) > 0,
				Values:           values,
			})
		}
		break
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
