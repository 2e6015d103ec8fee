package model

import (
	"encoding/json"
	"fmt"
)

// ToolResult is the envelope every tool invocation returns.
// A successful result carries no error; a failed one carries no result.
type ToolResult struct {
	Success  bool           `json:"success"`
	Result   map[string]any `json:"result"`
	Error    string         `json:"error,omitempty"`
	ToolName string         `json:"tool_name"`
}

// Succeeded builds a successful result. Typed payloads are normalised to a
// JSON-shaped map so callers only ever see plain data.
func Succeeded(toolName string, payload any) ToolResult {
	m, err := toMap(payload)
	if err != nil {
		return Failed(toolName, fmt.Sprintf("encode %s result: %v", toolName, err))
	}
	return ToolResult{Success: true, Result: m, ToolName: toolName}
}

// Failed builds a failed result.
func Failed(toolName, msg string) ToolResult {
	if msg == "" {
		msg = "unknown error"
	}
	return ToolResult{Success: false, Error: msg, ToolName: toolName}
}

// Valid reports whether the success/error invariant holds.
func (r ToolResult) Valid() bool {
	if r.Success {
		return r.Error == ""
	}
	return r.Result == nil && r.Error != ""
}

// Normalize forces the invariant, preferring the Success flag.
func (r ToolResult) Normalize(toolName string) ToolResult {
	if r.ToolName == "" {
		r.ToolName = toolName
	}
	if r.Success {
		r.Error = ""
		if r.Result == nil {
			r.Result = map[string]any{}
		}
		return r
	}
	r.Result = nil
	if r.Error == "" {
		r.Error = "unknown error"
	}
	return r
}

// Decode converts the result mapping into dst.
func (r ToolResult) Decode(dst any) error {
	if !r.Success {
		return fmt.Errorf("decode failed result from %s", r.ToolName)
	}
	b, err := json.Marshal(r.Result)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}

func toMap(payload any) (map[string]any, error) {
	switch v := payload.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return v, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	if m == nil {
		m = map[string]any{}
	}
	return m, nil
}

// ================ Category tool payloads ================

type ScoredSubcategory struct {
	Name          string              `json:"name"`
	Description   string              `json:"description"`
	Score         int                 `json:"score"`
	Subcategories []ScoredSubcategory `json:"subcategories,omitempty"`
	MatchedValues []string            `json:"matched_values,omitempty"`
}

type MatchedCategory struct {
	Category      string              `json:"category"`
	Description   string              `json:"description"`
	Score         int                 `json:"score"`
	Subcategories []ScoredSubcategory `json:"subcategories"`
}

type TopLevelCategory struct {
	Name             string `json:"name"`
	Description      string `json:"description"`
	HasSubcategories bool   `json:"has_subcategories"`
}

type SubcategoryInfo struct {
	Name             string   `json:"name"`
	Description      string   `json:"description"`
	HasSubcategories bool     `json:"has_subcategories"`
	Values           []string `json:"values"`
}

type MatchResult struct {
	MatchedCategories []MatchedCategory `json:"matched_categories"`
	AudienceSegments  []AudienceSegment `json:"audience_segments"`
	Mode              string            `json:"mode"`
}

type TopLevelResult struct {
	Categories       []TopLevelCategory `json:"categories"`
	Mode             string             `json:"mode"`
	AudienceSegments []AudienceSegment  `json:"audience_segments"`
}

type SubcategoryResult struct {
	ParentCategory   string            `json:"parent_category"`
	Subcategories    []SubcategoryInfo `json:"subcategories"`
	Mode             string            `json:"mode"`
	AudienceSegments []AudienceSegment `json:"audience_segments"`
}
