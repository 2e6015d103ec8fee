package workflow

import (
	"fmt"
	"strings"

	"github.com/audience-andy/server/internal/agent/model"
)

const (
	maxCriteriaShown     = 3
	maxSummaryFeatures   = 3
	maxSummaryCompetitor = 5
	maxSummaryKeywords   = 8
	maxSummaryCategories = 2
	maxSummarySubs       = 3
)

func productBrief(url string, p model.ProductData) string {
	var b strings.Builder
	fmt.Fprintf(&b, "I've analyzed the product at %s. Here's what I found:\n\n", url)
	fmt.Fprintf(&b, "Product: %s\n", orDefault(p.Title, "Unknown product"))
	fmt.Fprintf(&b, "Price: %s\n\n", orDefault(p.Price, "Price not found"))
	b.WriteString("Key features:\n")
	b.WriteString(formatList(p.Features))
	b.WriteString("\n\nDescription:\n")
	b.WriteString(orDefault(p.Description, "No description found"))
	b.WriteString("\n\nI'll now continue with market research for this product...")
	return b.String()
}

func marketBrief(title string, m model.MarketData) string {
	var b strings.Builder
	fmt.Fprintf(&b, "I've researched the market for %s. Here's what I found:\n\n", title)
	b.WriteString("Top competitors:\n")
	b.WriteString(formatList(m.Competitors))
	b.WriteString("\n\nRelated keywords:\n")
	b.WriteString(formatList(m.Keywords))
	b.WriteString("\n\nNow I'll proceed with mapping this product to marketing categories...")
	return b.String()
}

func categoryBrief(c model.CategoryData) string {
	var b strings.Builder
	b.WriteString("I've analyzed your product and identified these relevant marketing categories:\n\n")
	for _, cat := range c.MatchedCategories {
		fmt.Fprintf(&b, "## %s\n", cat.Category)
		if cat.Explanation != "" {
			fmt.Fprintf(&b, "%s\n", cat.Explanation)
		}
		b.WriteString("\n")
		if len(cat.Subcategories) > 0 {
			b.WriteString("Relevant subcategories:\n")
			for _, sub := range cat.Subcategories {
				if sub.Explanation != "" {
					fmt.Fprintf(&b, "- **%s**: %s\n", sub.Name, sub.Explanation)
				} else {
					fmt.Fprintf(&b, "- **%s**\n", sub.Name)
				}
			}
			b.WriteString("\n")
		}
	}
	b.WriteString("Now I'll generate audience segments based on these categories...")
	return b.String()
}

func segmentsBrief(segments []model.AudienceSegment) string {
	return "Based on my analysis, here are the recommended audience segments for this product:\n\n" +
		formatAudienceSegments(segments) +
		"\nNow I'll develop marketing strategies for these audience segments..."
}

func strategiesBrief(strategies []model.MarketingStrategy) string {
	return "Here are my recommended marketing strategies:\n\n" +
		formatMarketingStrategies(strategies) +
		"Now I'll create a comprehensive summary of the entire analysis..."
}

func summaryBrief(s *model.WorkflowState) string {
	p, m := s.Product, s.Market
	title := orDefault(p.Title, "the analyzed product")

	var b strings.Builder
	fmt.Fprintf(&b, "# Complete Analysis for %s\n\n", title)

	b.WriteString("## Product Overview\n")
	fmt.Fprintf(&b, "- **Name:** %s\n", orDefault(p.Title, "N/A"))
	fmt.Fprintf(&b, "- **Price:** %s\n", orDefault(p.Price, "N/A"))
	fmt.Fprintf(&b, "- **Key Features:** %s\n", joinHead(p.Features, maxSummaryFeatures))
	fmt.Fprintf(&b, "- **Description:** %s\n\n", orDefault(p.Description, "N/A"))

	b.WriteString("## Market Analysis\n")
	fmt.Fprintf(&b, "- **Top Competitors:** %s\n", joinHead(m.Competitors, maxSummaryCompetitor))
	fmt.Fprintf(&b, "- **Related Keywords:** %s\n", joinHead(m.Keywords, maxSummaryKeywords))
	fmt.Fprintf(&b, "- **Search Volume:** %s\n\n", orDefault(m.SearchVolume, "N/A"))

	b.WriteString("## Category Mapping\n")
	b.WriteString(summarizeCategories(s.Category.MatchedCategories))
	b.WriteString("\n## Audience Segments\n")
	b.WriteString(formatAudienceSegments(s.Final.AudienceSegments))
	b.WriteString("\n## Marketing Recommendations\n")
	b.WriteString(formatMarketingStrategies(s.Final.MarketingStrategies))

	b.WriteString("Thank you for using Audience Andy! You can now ask me questions about this analysis or any part of it " +
		"that you'd like me to elaborate on. Or if you'd like to analyze another product, just share a new URL.")
	return b.String()
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "None found"
	}
	lines := make([]string, 0, len(items))
	for _, it := range items {
		lines = append(lines, "- "+it)
	}
	return strings.Join(lines, "\n")
}

func formatAudienceSegments(segments []model.AudienceSegment) string {
	if len(segments) == 0 {
		return "No segments found\n"
	}
	var b strings.Builder
	for _, seg := range segments {
		fmt.Fprintf(&b, "- %s:\n", orDefault(seg.Name, "Unknown Segment"))
		fmt.Fprintf(&b, "  %s\n", orDefault(seg.Description, "No description"))
		if len(seg.TargetingCriteria) > 0 {
			b.WriteString("  Targeting criteria:\n")
			for i, c := range seg.TargetingCriteria {
				if i == maxCriteriaShown {
					break
				}
				fmt.Fprintf(&b, "    - %s\n", criterionText(c))
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

func criterionText(c model.TargetingCriterion) string {
	parts := []string{c.Category}
	if c.Subcategory != "" {
		parts = append(parts, c.Subcategory)
	}
	if c.Value != "" {
		parts = append(parts, c.Value)
	}
	return strings.Join(parts, " > ")
}

func formatMarketingStrategies(strategies []model.MarketingStrategy) string {
	if len(strategies) == 0 {
		return "No strategies available\n\n"
	}
	var b strings.Builder
	for _, st := range strategies {
		fmt.Fprintf(&b, "### Strategy %d\n%s\n\n", st.ID, orDefault(st.Content, "No details"))
	}
	return b.String()
}

func summarizeCategories(categories []model.CategoryMatch) string {
	if len(categories) == 0 {
		return "- No specific categories identified\n"
	}
	var b strings.Builder
	for i, c := range categories {
		if i == maxSummaryCategories {
			break
		}
		fmt.Fprintf(&b, "- **%s**", orDefault(c.Category, "Unknown"))
		if len(c.Subcategories) > 0 {
			names := make([]string, 0, maxSummarySubs)
			for j, s := range c.Subcategories {
				if j == maxSummarySubs {
					break
				}
				names = append(names, s.Name)
			}
			fmt.Fprintf(&b, " (%s)", strings.Join(names, ", "))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func joinHead(items []string, n int) string {
	if len(items) == 0 {
		return "N/A"
	}
	return strings.Join(items[:min(n, len(items))], ", ")
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
