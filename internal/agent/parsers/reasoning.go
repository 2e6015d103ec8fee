package parsers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/audience-andy/server/internal/agent/model"
	errx "github.com/audience-andy/server/internal/core/error"
	logx "github.com/audience-andy/server/pkg/logger"
)

// basic safety limits to avoid pathological model output
const (
	maxContentLen     = 256 * 1024 // 256KB
	maxCategories     = 3
	maxSubcategories  = 5
	maxSegments       = 8
	maxCriteria       = 12
	maxErrSnippet     = 200
	invalidJSONReason = "language model returned invalid JSON"
)

// ParseCategoryReasoning extracts the combined category selection and
// segmentation answer. Fields the model got wrong are dropped, caps are
// enforced, and the caller decides what to do with empty lists.
func ParseCategoryReasoning(content string) (out *model.CategoryReasoning, err error) {
	// panic safety
	defer func() {
		if r := recover(); r != nil {
			logx.Error().Str("component", "reasoning_parser").Msgf("panic recovered: %v", r)
			err = errx.New(fmt.Errorf("reasoning parser panic"), http.StatusInternalServerError, errx.SystemErrorMessage)
			out = nil
		}
	}()

	if len(content) > maxContentLen {
		return nil, errx.New(fmt.Errorf("content of %d bytes exceeds %d", len(content), maxContentLen), http.StatusBadGateway, invalidJSONReason)
	}
	if !utf8.ValidString(content) {
		return nil, errx.New(fmt.Errorf("content is not valid utf8"), http.StatusBadGateway, invalidJSONReason)
	}

	body := extractJSONObject(content)
	if body == "" {
		return nil, errx.New(fmt.Errorf("no json object in %q", safeSnippet(content)), http.StatusBadGateway, invalidJSONReason)
	}

	var raw model.CategoryReasoning
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return nil, errx.New(fmt.Errorf("decode reasoning: %w", err), http.StatusBadGateway, invalidJSONReason)
	}

	out = &model.CategoryReasoning{
		SelectedCategories: []model.SelectedCategory{},
		AudienceSegments:   []model.AudienceSegment{},
	}
	for _, c := range raw.SelectedCategories {
		if len(out.SelectedCategories) >= maxCategories {
			break
		}
		name := strings.TrimSpace(c.Category)
		if name == "" {
			continue
		}
		sel := model.SelectedCategory{
			Category:              name,
			Explanation:           strings.TrimSpace(c.Explanation),
			SelectedSubcategories: []model.SubcategoryRef{},
		}
		for _, s := range c.SelectedSubcategories {
			if len(sel.SelectedSubcategories) >= maxSubcategories {
				break
			}
			if n := strings.TrimSpace(s.Name); n != "" {
				sel.SelectedSubcategories = append(sel.SelectedSubcategories, model.SubcategoryRef{
					Name:        n,
					Explanation: strings.TrimSpace(s.Explanation),
				})
			}
		}
		out.SelectedCategories = append(out.SelectedCategories, sel)
	}

	for _, s := range raw.AudienceSegments {
		if len(out.AudienceSegments) >= maxSegments {
			break
		}
		name := strings.TrimSpace(s.Name)
		if name == "" {
			continue
		}
		seg := model.AudienceSegment{
			Name:              name,
			Description:       strings.TrimSpace(s.Description),
			TargetingCriteria: []model.TargetingCriterion{},
		}
		for _, c := range s.TargetingCriteria {
			if len(seg.TargetingCriteria) >= maxCriteria {
				break
			}
			cat := strings.TrimSpace(c.Category)
			if cat == "" {
				continue
			}
			seg.TargetingCriteria = append(seg.TargetingCriteria, model.TargetingCriterion{
				Type:        criterionType(c.Type),
				Category:    cat,
				Subcategory: strings.TrimSpace(c.Subcategory),
				Value:       strings.TrimSpace(c.Value),
			})
		}
		out.AudienceSegments = append(out.AudienceSegments, seg)
	}
	return out, nil
}

// extractJSONObject strips markdown fences and returns the outermost object.
func extractJSONObject(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			// drop the language tag line
			s = s[nl+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

// criterionType folds whatever the model wrote into one of the three known types.
func criterionType(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	switch {
	case strings.HasPrefix(v, model.CriterionDemographic):
		return model.CriterionDemographic
	case strings.HasPrefix(v, model.CriterionBehavior), strings.HasPrefix(v, "behaviour"):
		return model.CriterionBehavior
	default:
		return model.CriterionInterest
	}
}

func safeSnippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxErrSnippet {
		return s
	}
	return s[:maxErrSnippet]
}
