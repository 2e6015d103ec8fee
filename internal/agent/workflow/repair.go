package workflow

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/audience-andy/server/internal/agent/model"
	"github.com/audience-andy/server/internal/agent/tools"
)

// Repair rule names, one per field.
const (
	fieldProductTitle       = "product.title"
	fieldProductFeatures    = "product.features"
	fieldProductDescription = "product.description"
	fieldMarketCompetitors  = "market.competitors"
	fieldMarketKeywords     = "market.keywords"
	fieldCategorySelection  = "category.selection"
	fieldCategorySegments   = "category.segments"
	fieldFinalStrategies    = "final.strategies"
)

const (
	minSegments           = 3
	unknownProduct        = "Unknown Product"
	defaultFeature        = "Product available online"
	defaultCompetitor     = "Similar products in the market"
	defaultSelectionWhy   = "Most relevant category based on product description"
	defaultSubcategoryWhy = "Relevant to product features"
)

var fillerKeywords = []string{"online", "quality", "popular"}

// repairContext carries what some rules need beyond the state itself.
type repairContext struct {
	// fallbackCategory is the top scored category with its first subcategories.
	fallbackCategory *model.CategoryMatch
	// matchSegments are the rule-based segments of the category matcher.
	matchSegments []model.AudienceSegment
}

type repairRule struct {
	broken func(s *model.WorkflowState) bool
	fix    func(s *model.WorkflowState, rc repairContext)
}

var repairRules = map[string]repairRule{
	fieldProductTitle: {
		broken: func(s *model.WorkflowState) bool { return strings.TrimSpace(s.Product.Title) == "" },
		fix: func(s *model.WorkflowState, _ repairContext) {
			s.Product.Title = lastPathSegment(s.SourceURL)
		},
	},
	fieldProductFeatures: {
		broken: func(s *model.WorkflowState) bool { return len(s.Product.Features) == 0 },
		fix: func(s *model.WorkflowState, _ repairContext) {
			s.Product.Features = []string{defaultFeature}
		},
	},
	fieldProductDescription: {
		broken: func(s *model.WorkflowState) bool { return strings.TrimSpace(s.Product.Description) == "" },
		fix: func(s *model.WorkflowState, _ repairContext) {
			s.Product.Description = "Online product at " + s.SourceURL
		},
	},
	fieldMarketCompetitors: {
		broken: func(s *model.WorkflowState) bool { return len(s.Market.Competitors) == 0 },
		fix: func(s *model.WorkflowState, _ repairContext) {
			s.Market.Competitors = []string{defaultCompetitor}
		},
	},
	fieldMarketKeywords: {
		broken: func(s *model.WorkflowState) bool { return len(s.Market.Keywords) == 0 },
		fix: func(s *model.WorkflowState, _ repairContext) {
			kw := strings.Fields(s.Product.Title)
			if len(kw) < 3 {
				kw = append(kw, fillerKeywords...)
			}
			s.Market.Keywords = kw
		},
	},
	fieldCategorySelection: {
		broken: func(s *model.WorkflowState) bool { return len(s.Category.MatchedCategories) == 0 },
		fix: func(s *model.WorkflowState, rc repairContext) {
			if rc.fallbackCategory != nil {
				s.Category.MatchedCategories = []model.CategoryMatch{*rc.fallbackCategory}
			}
		},
	},
	fieldCategorySegments: {
		broken: func(s *model.WorkflowState) bool { return len(s.Category.AudienceSegments) < minSegments },
		fix: func(s *model.WorkflowState, rc repairContext) {
			segs := s.Category.AudienceSegments
			if len(segs) == 0 {
				segs = defaultSegments(s)
			}
			segs = topUpSegments(segs, rc.matchSegments)
			segs = topUpSegments(segs, tools.GenericSegments())
			s.Category.AudienceSegments = segs
		},
	},
	fieldFinalStrategies: {
		broken: func(s *model.WorkflowState) bool { return len(s.Final.MarketingStrategies) == 0 },
		fix: func(s *model.WorkflowState, _ repairContext) {
			s.Final.MarketingStrategies = []model.MarketingStrategy{genericStrategy(s)}
		},
	},
}

// stageRepairs lists the rules applied after each stage's tool calls, in order.
var stageRepairs = map[model.Stage][]string{
	model.StageURLAnalysis:       {fieldProductTitle, fieldProductFeatures, fieldProductDescription},
	model.StageMarketResearch:    {fieldMarketCompetitors, fieldMarketKeywords},
	model.StageCategoryMapping:   {fieldCategorySelection, fieldCategorySegments},
	model.StageMarketingStrategy: {fieldFinalStrategies},
}

// applyRepairs runs the named rules and returns the fields that were repaired.
func applyRepairs(s *model.WorkflowState, rc repairContext, fields ...string) []string {
	var repaired []string
	for _, f := range fields {
		rule, ok := repairRules[f]
		if !ok || !rule.broken(s) {
			continue
		}
		rule.fix(s, rc)
		repaired = append(repaired, f)
	}
	return repaired
}

func lastPathSegment(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return unknownProduct
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if last := parts[len(parts)-1]; last != "" {
		return last
	}
	return unknownProduct
}

func defaultSegments(s *model.WorkflowState) []model.AudienceSegment {
	title := s.Product.Title
	if title == "" {
		title = unknownProduct
	}
	category := "General Consumer Products"
	if len(s.Category.MatchedCategories) > 0 {
		category = s.Category.MatchedCategories[0].Category
	}
	return []model.AudienceSegment{
		{
			Name:        title + " Enthusiasts",
			Description: fmt.Sprintf("People interested in %s and similar products", title),
			TargetingCriteria: []model.TargetingCriterion{
				{Type: model.CriterionInterest, Category: category},
			},
		},
		{
			Name:        "Value Shoppers",
			Description: "Price-conscious consumers looking for quality products",
			TargetingCriteria: []model.TargetingCriterion{
				{Type: model.CriterionBehavior, Category: "Shopping Behavior", Value: "Price Comparison"},
			},
		},
	}
}

// topUpSegments appends extras with unseen names until the floor is reached.
func topUpSegments(segs, extras []model.AudienceSegment) []model.AudienceSegment {
	seen := make(map[string]bool, len(segs))
	for _, s := range segs {
		seen[strings.ToLower(s.Name)] = true
	}
	for _, e := range extras {
		if len(segs) >= minSegments {
			break
		}
		key := strings.ToLower(e.Name)
		if seen[key] {
			continue
		}
		seen[key] = true
		segs = append(segs, e)
	}
	return segs
}

func genericStrategy(s *model.WorkflowState) model.MarketingStrategy {
	audience := "your core audience"
	if len(s.Final.AudienceSegments) > 0 {
		audience = "the " + s.Final.AudienceSegments[0].Name + " segment"
	}
	title := s.Product.Title
	if title == "" {
		title = "the product"
	}
	return model.MarketingStrategy{
		ID: 1,
		Content: fmt.Sprintf("Reach %s with search and social media campaigns that lead with the key features of %s, "+
			"then retarget engaged visitors with reviews and limited-time offers.", audience, title),
	}
}
