package tools

import (
	"fmt"
	"strings"

	"github.com/audience-andy/server/internal/agent/model"
)

const minSegments = 3

// GenerateSegments synthesizes audience segments from matched categories.
// The result always holds at least three segments.
func GenerateSegments(matched []model.MatchedCategory) []model.AudienceSegment {
	segments := []model.AudienceSegment{}

	for _, m := range matched {
		category := m.Category
		primary := model.AudienceSegment{
			Name:        category + " Enthusiasts",
			Description: fmt.Sprintf("People interested in %s products and services", strings.ToLower(category)),
			TargetingCriteria: []model.TargetingCriterion{
				{Type: model.CriterionInterest, Category: category},
			},
		}

		for _, sub := range m.Subcategories {
			primary.TargetingCriteria = append(primary.TargetingCriteria, model.TargetingCriterion{
				Type: model.CriterionInterest, Category: category, Subcategory: sub.Name,
			})
			for _, v := range sub.MatchedValues {
				primary.TargetingCriteria = append(primary.TargetingCriteria, model.TargetingCriterion{
					Type: model.CriterionInterest, Category: category, Subcategory: sub.Name, Value: v,
				})
			}

			if sub.Score > 3 {
				segments = append(segments, model.AudienceSegment{
					Name: sub.Name + " Seekers",
					Description: fmt.Sprintf("Consumers specifically looking for %s in the %s category",
						strings.ToLower(sub.Name), strings.ToLower(category)),
					TargetingCriteria: []model.TargetingCriterion{
						{Type: model.CriterionInterest, Category: category, Subcategory: sub.Name},
						{Type: model.CriterionBehavior, Category: "Shopping Behavior", Value: "Product Research"},
					},
				})
			}
		}
		segments = append(segments, primary)
		segments = append(segments, bonusSegments(category)...)
	}

	if len(segments) < minSegments {
		segments = append(segments, GenericSegments()...)
	}
	return segments
}

func bonusSegments(category string) []model.AudienceSegment {
	var out []model.AudienceSegment
	if containsAny(category, "Technology", "Electronics") {
		out = append(out, model.AudienceSegment{
			Name:        "Tech Early Adopters",
			Description: "People who seek out the latest technology products and innovations",
			TargetingCriteria: []model.TargetingCriterion{
				{Type: model.CriterionInterest, Category: category},
				{Type: model.CriterionBehavior, Category: "Technology", Value: "Early Adopter"},
			},
		})
	}
	if containsAny(category, "Fashion", "Clothing", "Apparel") {
		out = append(out, model.AudienceSegment{
			Name:        "Fashion-Forward Consumers",
			Description: "Style-conscious consumers who follow trends and fashion innovations",
			TargetingCriteria: []model.TargetingCriterion{
				{Type: model.CriterionInterest, Category: category},
				{Type: model.CriterionDemographic, Category: "Shopping Behavior", Value: "Trend-Driven"},
			},
		})
	}
	if containsAny(category, "Home", "Furniture", "Decor") {
		out = append(out, model.AudienceSegment{
			Name:        "Home Improvement Enthusiasts",
			Description: "People actively enhancing or renovating their living spaces",
			TargetingCriteria: []model.TargetingCriterion{
				{Type: model.CriterionInterest, Category: category},
				// life events are targeted as behaviors
				{Type: model.CriterionBehavior, Category: "Home", Value: "Moving/Renovating"},
			},
		})
	}
	return out
}

// GenericSegments is the trio used to top up a short segment list.
func GenericSegments() []model.AudienceSegment {
	return []model.AudienceSegment{
		{
			Name:        "Value-Conscious Shoppers",
			Description: "Price-sensitive consumers who compare options before purchasing",
			TargetingCriteria: []model.TargetingCriterion{
				{Type: model.CriterionBehavior, Category: "Shopping Behavior", Value: "Price Comparison"},
				{Type: model.CriterionBehavior, Category: "Shopping Behavior", Value: "Coupon User"},
			},
		},
		{
			Name:        "Convenience Shoppers",
			Description: "Consumers who prioritize ease of purchase and quick delivery",
			TargetingCriteria: []model.TargetingCriterion{
				{Type: model.CriterionBehavior, Category: "Shopping Behavior", Value: "Online Shopper"},
				{Type: model.CriterionBehavior, Category: "Shopping Behavior", Value: "Fast Shipping"},
			},
		},
		{
			Name:        "Quality-Focused Consumers",
			Description: "Shoppers who prioritize product quality and durability over price",
			TargetingCriteria: []model.TargetingCriterion{
				{Type: model.CriterionBehavior, Category: "Shopping Behavior", Value: "Quality-Driven"},
				{Type: model.CriterionDemographic, Category: "Income", Value: "Above Average"},
			},
		},
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
