package workflow

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/audience-andy/server/internal/agent/model"
	"github.com/audience-andy/server/internal/agent/parsers"
	"github.com/audience-andy/server/internal/agent/prompts"
	"github.com/audience-andy/server/internal/agent/tools"
	errx "github.com/audience-andy/server/internal/core/error"
	logx "github.com/audience-andy/server/pkg/logger"
)

const (
	scrapeDepth          = 2
	serpResultsCount     = 10
	maxCandidates        = 5
	matchMaxCategories   = 5
	matchMaxSubs         = 5
	fallbackSubs         = 2
	strategiesMaxTokens  = 1500
	reasoningTemperature = float32(0.3)
	strategyTemperature  = float32(0.7)
)

func (o *Orchestrator) handleURLAnalysis(ctx context.Context) stageOutcome {
	s := o.state
	if s.SourceURL == "" {
		logx.Warn().Msg("No valid URL found in message")
		return halt("I couldn't find a valid URL in your message. Please provide a product URL starting with http:// or https://.")
	}

	logx.Info().Str("url", s.SourceURL).Msg("Analyzing URL")
	res := o.tools.ExecuteTool(ctx, tools.ScraperName, map[string]any{"url": s.SourceURL, "depth": scrapeDepth})
	if !res.Success {
		logx.Error().Str("tool", tools.ScraperName).Str("error", res.Error).Msg("Error analyzing URL")
		return halt(fmt.Sprintf("I had trouble analyzing that product URL: %s. Please try a different URL or try again later.", res.Error))
	}

	var product model.ProductData
	if err := res.Decode(&product); err != nil {
		panic(fmt.Sprintf("decode product data: %v", err))
	}
	s.Product = product
	o.repair(model.StageURLAnalysis, repairContext{})

	return advance(productBrief(s.SourceURL, s.Product))
}

func (o *Orchestrator) handleMarketResearch(ctx context.Context) stageOutcome {
	s := o.state
	if s.Product.Title == "" {
		logx.Error().Msg("Product data missing or invalid for market research")
		return halt("I'm missing the necessary product information to conduct market research. " +
			"Let's go back and analyze the product URL again.")
	}

	res := o.tools.ExecuteTool(ctx, tools.SerpName, map[string]any{"query": s.Product.Title, "results_count": serpResultsCount})
	if !res.Success {
		logx.Error().Str("tool", tools.SerpName).Str("error", res.Error).Msg("Error in market research")
		return halt(fmt.Sprintf("I had trouble conducting market research: %s. Let's try again later or use a different approach.", res.Error))
	}

	var market model.MarketData
	if err := res.Decode(&market); err != nil {
		panic(fmt.Sprintf("decode market data: %v", err))
	}
	s.Market = market
	o.repair(model.StageMarketResearch, repairContext{})

	return advance(marketBrief(s.Product.Title, s.Market))
}

func (o *Orchestrator) handleCategoryMapping(ctx context.Context) stageOutcome {
	s := o.state
	if s.Product.IsEmpty() || s.Market.IsEmpty() {
		logx.Error().Msg("Missing required data for category mapping")
		return halt("I'm missing the necessary product or market information to perform category mapping. " +
			"Let's go back and make sure we have both product details and market research.")
	}

	// rule-based hints and segments; failure here is not fatal
	var match model.MatchResult
	matchRes := o.tools.ExecuteTool(ctx, tools.CategoryTreeName, map[string]any{
		"product_description": s.Product.Description,
		"product_features":    s.Product.Features,
		"product_keywords":    s.Market.Keywords,
		"mode":                tools.ModeMatch,
		"max_categories":      matchMaxCategories,
		"max_subcategories":   matchMaxSubs,
	})
	if !matchRes.Success {
		logx.Warn().Str("error", matchRes.Error).Msg("Category match failed, continuing without hints")
	} else if err := matchRes.Decode(&match); err != nil {
		logx.Warn().Err(err).Msg("Category match result could not be decoded")
	}

	topRes := o.tools.ExecuteTool(ctx, tools.CategoryTreeName, map[string]any{
		"product_description": s.Product.Description,
		"mode":                tools.ModeExploreTopLevel,
	})
	if !topRes.Success {
		logx.Error().Str("error", topRes.Error).Msg("Error getting categories")
		return halt(fmt.Sprintf("I had trouble exploring marketing categories: %s. Let's try a different approach.", topRes.Error))
	}
	var top model.TopLevelResult
	if err := topRes.Decode(&top); err != nil || len(top.Categories) == 0 {
		logx.Error().Err(err).Msg("No categories found")
		return halt("I couldn't find any marketing categories to explore. This is likely a technical issue. " +
			"Let's try a different approach to analyze your product.")
	}

	candidates := chooseCandidates(match.MatchedCategories, top.Categories, maxCandidates)
	hierarchy := o.fetchSubcategories(ctx, s.Product.Description, candidates)

	reasoning, err := o.reasonCategories(ctx, match.MatchedCategories, hierarchy)
	if err != nil {
		logx.Warn().Err(err).Msg("Using fallback rule-based category selection")
		reasoning = &model.CategoryReasoning{}
	}

	s.Category = model.CategoryData{
		MatchedCategories: make([]model.CategoryMatch, 0, len(reasoning.SelectedCategories)),
		AudienceSegments:  reasoning.AudienceSegments,
	}
	for _, c := range reasoning.SelectedCategories {
		s.Category.MatchedCategories = append(s.Category.MatchedCategories, model.CategoryMatch{
			Category:      c.Category,
			Explanation:   c.Explanation,
			Subcategories: c.SelectedSubcategories,
		})
	}
	o.repair(model.StageCategoryMapping, repairContext{
		fallbackCategory: fallbackSelection(match.MatchedCategories, hierarchy),
		matchSegments:    match.AudienceSegments,
	})

	return advance(categoryBrief(s.Category))
}

func (o *Orchestrator) handleAudienceSegmentation(_ context.Context) stageOutcome {
	s := o.state
	if s.Category.IsEmpty() {
		logx.Error().Msg("Missing category data for audience segmentation")
		return halt("I'm missing the necessary category information to generate audience segments. " +
			"Let's go back and make sure we have proper category mapping.")
	}
	segments := s.Category.AudienceSegments
	if len(segments) == 0 {
		logx.Error().Msg("No audience segments found in category data")
		return halt("I couldn't find audience segments in the category data. This is likely a technical issue. " +
			"Let's go back and redo the category mapping.")
	}
	for i, seg := range segments {
		logx.Debug().Int("index", i+1).Str("segment", seg.Name).Msg("Audience segment")
	}

	s.Final.AudienceSegments = append([]model.AudienceSegment(nil), segments...)
	return advance(segmentsBrief(s.Final.AudienceSegments))
}

func (o *Orchestrator) handleMarketingStrategy(ctx context.Context) stageOutcome {
	s := o.state
	if len(s.Final.AudienceSegments) == 0 {
		logx.Error().Msg("Missing audience segments for marketing strategy")
		return halt("I'm missing the audience segments needed to build marketing strategies. " +
			"Let's go back and make sure we have proper audience segmentation.")
	}

	ex, err := prompts.RenderStrategies(ctx, s.Product, s.Market, s.Final.AudienceSegments)
	if err != nil {
		panic(fmt.Sprintf("render strategies prompt: %v", err))
	}
	temp := strategyTemperature
	text, err := o.gateway.Complete(ctx, model.CompletionRequest{
		Kind:        model.CompletionStrategies,
		System:      ex.System,
		Prompt:      ex.User,
		Temperature: &temp,
		MaxTokens:   strategiesMaxTokens,
	})
	if err != nil {
		_, msg := errx.StatusOf(err)
		logx.Error().Err(err).Msg("Error generating marketing strategies")
		return halt(fmt.Sprintf("I encountered an error while generating marketing strategies: %s. "+
			"Let's try again with more detailed information.", msg))
	}

	s.Final.MarketingStrategies = parsers.ParseStrategies(text)
	o.repair(model.StageMarketingStrategy, repairContext{})
	logx.Info().Int("strategies", len(s.Final.MarketingStrategies)).Msg("Generated marketing strategies")

	return advance(strategiesBrief(s.Final.MarketingStrategies))
}

func (o *Orchestrator) handleFinalSummary(_ context.Context) stageOutcome {
	logx.Info().Str("product", o.state.Product.Title).Msg("Creating final summary")
	return advance(summaryBrief(o.state))
}

func (o *Orchestrator) repair(stage model.Stage, rc repairContext) {
	if repaired := applyRepairs(o.state, rc, stageRepairs[stage]...); len(repaired) > 0 {
		logx.Warn().Str("stage", stage.String()).Strs("fields", repaired).Msg("Applied repair rules")
	}
}

// chooseCandidates picks matched categories first, then the remaining ones alphabetically.
func chooseCandidates(matched []model.MatchedCategory, all []model.TopLevelCategory, limit int) []model.TopLevelCategory {
	byName := make(map[string]model.TopLevelCategory, len(all))
	for _, c := range all {
		byName[c.Name] = c
	}
	out := make([]model.TopLevelCategory, 0, limit)
	taken := map[string]bool{}
	for _, m := range matched {
		if len(out) == limit {
			return out
		}
		c, ok := byName[m.Category]
		if !ok || taken[c.Name] {
			continue
		}
		taken[c.Name] = true
		out = append(out, c)
	}

	rest := make([]model.TopLevelCategory, 0, len(all))
	for _, c := range all {
		if !taken[c.Name] {
			rest = append(rest, c)
		}
	}
	sort.SliceStable(rest, func(i, j int) bool { return rest[i].Name < rest[j].Name })
	for _, c := range rest {
		if len(out) == limit {
			break
		}
		out = append(out, c)
	}
	return out
}

// fetchSubcategories explores every candidate concurrently and merges the
// results in candidate order. A failed fetch keeps the category without children.
func (o *Orchestrator) fetchSubcategories(ctx context.Context, description string, candidates []model.TopLevelCategory) []prompts.CategoryOption {
	results := make([]prompts.CategoryOption, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range candidates {
		results[i] = prompts.CategoryOption{
			Name:          c.Name,
			Description:   c.Description,
			Subcategories: []model.SubcategoryInfo{},
		}
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					logx.Error().Str("category", c.Name).Msgf("subcategory fetch panicked: %v", r)
				}
			}()
			res := o.tools.ExecuteTool(gctx, tools.CategoryTreeName, map[string]any{
				"product_description": description,
				"mode":                tools.ModeExploreSubcategories,
				"parent_category":     c.Name,
			})
			if !res.Success {
				logx.Warn().Str("category", c.Name).Str("error", res.Error).Msg("Failed to get subcategories")
				return nil
			}
			var sub model.SubcategoryResult
			if err := res.Decode(&sub); err != nil {
				logx.Warn().Str("category", c.Name).Err(err).Msg("Subcategory result could not be decoded")
				return nil
			}
			if sub.Subcategories != nil {
				results[i].Subcategories = sub.Subcategories
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// reasonCategories makes the single combined selection and segmentation call.
func (o *Orchestrator) reasonCategories(ctx context.Context, hints []model.MatchedCategory, hierarchy []prompts.CategoryOption) (*model.CategoryReasoning, error) {
	s := o.state
	ex, err := prompts.RenderReasoning(ctx, prompts.ReasoningInput{
		Product:   s.Product,
		Keywords:  s.Market.Keywords,
		Hints:     hints,
		Hierarchy: hierarchy,
	})
	if err != nil {
		return nil, err
	}
	temp := reasoningTemperature
	text, err := o.gateway.Complete(ctx, model.CompletionRequest{
		Kind:        model.CompletionReasoning,
		System:      ex.System,
		Prompt:      ex.User,
		Temperature: &temp,
	})
	if err != nil {
		return nil, err
	}
	return parsers.ParseCategoryReasoning(text)
}

// fallbackSelection is the top scored category with its first subcategories.
func fallbackSelection(matched []model.MatchedCategory, hierarchy []prompts.CategoryOption) *model.CategoryMatch {
	var name string
	switch {
	case len(matched) > 0:
		name = matched[0].Category
	case len(hierarchy) > 0:
		name = hierarchy[0].Name
	default:
		return nil
	}

	sel := &model.CategoryMatch{
		Category:      name,
		Explanation:   defaultSelectionWhy,
		Subcategories: []model.SubcategoryRef{},
	}
	for _, h := range hierarchy {
		if h.Name != name {
			continue
		}
		for i, sub := range h.Subcategories {
			if i == fallbackSubs {
				break
			}
			sel.Subcategories = append(sel.Subcategories, model.SubcategoryRef{Name: sub.Name, Explanation: defaultSubcategoryWhy})
		}
	}
	if len(sel.Subcategories) == 0 && len(matched) > 0 {
		for i, sub := range matched[0].Subcategories {
			if i == fallbackSubs {
				break
			}
			sel.Subcategories = append(sel.Subcategories, model.SubcategoryRef{Name: sub.Name, Explanation: defaultSubcategoryWhy})
		}
	}
	return sel
}
