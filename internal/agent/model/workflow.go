package model

import (
	"fmt"
	"strings"
)

// Stage is one phase of the analysis pipeline.
type Stage string

const (
	StageInitial              Stage = "initial"
	StageURLAnalysis          Stage = "url_analysis"
	StageMarketResearch       Stage = "market_research"
	StageCategoryMapping      Stage = "category_mapping"
	StageAudienceSegmentation Stage = "audience_segmentation"
	StageMarketingStrategy    Stage = "marketing_strategy"
	StageFinalSummary         Stage = "final_summary"
)

// Stages lists every stage in pipeline order.
var Stages = []Stage{
	StageInitial,
	StageURLAnalysis,
	StageMarketResearch,
	StageCategoryMapping,
	StageAudienceSegmentation,
	StageMarketingStrategy,
	StageFinalSummary,
}

func (s Stage) String() string {
	return string(s)
}

// Next returns the stage that follows s. final_summary loops onto itself.
func (s Stage) Next() Stage {
	for i, st := range Stages {
		if st == s && i+1 < len(Stages) {
			return Stages[i+1]
		}
	}
	return StageFinalSummary
}

// IsPipeline reports whether s is one of the automatically advancing stages.
func (s Stage) IsPipeline() bool {
	switch s {
	case StageURLAnalysis, StageMarketResearch, StageCategoryMapping,
		StageAudienceSegmentation, StageMarketingStrategy:
		return true
	}
	return false
}

// Label is the wording used when talking to the user about the stage.
func (s Stage) Label() string {
	switch s {
	case StageURLAnalysis:
		return "URL analysis"
	case StageMarketResearch:
		return "market research"
	case StageCategoryMapping:
		return "category mapping"
	case StageAudienceSegmentation:
		return "audience segmentation"
	case StageMarketingStrategy:
		return "marketing strategy generation"
	case StageFinalSummary:
		return "the final summary"
	}
	return "our conversation"
}

// ParseStage converts a raw value into a known stage.
func ParseStage(v string) (Stage, error) {
	s := Stage(strings.ToLower(strings.TrimSpace(v)))
	for _, st := range Stages {
		if st == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown stage %q", v)
}

// Role of a history turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one entry of the conversation history.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type ProductData struct {
	Title          string            `json:"title"`
	Price          string            `json:"price"`
	Description    string            `json:"description"`
	Features       []string          `json:"features"`
	Images         []string          `json:"images"`
	Specifications map[string]string `json:"specifications"`
}

func (p ProductData) IsEmpty() bool {
	return p.Title == "" && p.Price == "" && p.Description == "" &&
		len(p.Features) == 0 && len(p.Images) == 0 && len(p.Specifications) == 0
}

type MarketData struct {
	Competitors  []string `json:"competitors"`
	Keywords     []string `json:"keywords"`
	SearchVolume string   `json:"search_volume"`
	Query        string   `json:"query"`
}

func (m MarketData) IsEmpty() bool {
	return len(m.Competitors) == 0 && len(m.Keywords) == 0 && m.SearchVolume == "" && m.Query == ""
}

// TargetingCriterion is one atomic audience-matching rule.
type TargetingCriterion struct {
	Type        string `json:"type"`
	Category    string `json:"category"`
	Subcategory string `json:"subcategory,omitempty"`
	Value       string `json:"value,omitempty"`
}

const (
	CriterionInterest    = "interest"
	CriterionDemographic = "demographic"
	CriterionBehavior    = "behavior"
)

type AudienceSegment struct {
	Name              string               `json:"name"`
	Description       string               `json:"description"`
	TargetingCriteria []TargetingCriterion `json:"targeting_criteria"`
}

type SubcategoryRef struct {
	Name        string `json:"name"`
	Explanation string `json:"explanation,omitempty"`
}

type CategoryMatch struct {
	Category      string           `json:"category"`
	Explanation   string           `json:"explanation,omitempty"`
	Subcategories []SubcategoryRef `json:"subcategories"`
}

type CategoryData struct {
	MatchedCategories []CategoryMatch   `json:"matched_categories"`
	AudienceSegments  []AudienceSegment `json:"audience_segments"`
}

func (c CategoryData) IsEmpty() bool {
	return len(c.MatchedCategories) == 0 && len(c.AudienceSegments) == 0
}

type MarketingStrategy struct {
	ID      int    `json:"id"`
	Content string `json:"content"`
}

type FinalResults struct {
	AudienceSegments    []AudienceSegment   `json:"audience_segments,omitempty"`
	MarketingStrategies []MarketingStrategy `json:"marketing_strategies,omitempty"`
}

func (f FinalResults) IsEmpty() bool {
	return len(f.AudienceSegments) == 0 && len(f.MarketingStrategies) == 0
}

// WorkflowState is owned exclusively by one orchestrator.
type WorkflowState struct {
	Stage     Stage
	History   []Turn
	SourceURL string
	Product   ProductData
	Market    MarketData
	Category  CategoryData
	Final     FinalResults
	// Completed tracks stages that succeeded in the current analysis cycle.
	Completed map[Stage]bool
}

func NewWorkflowState() *WorkflowState {
	return &WorkflowState{
		Stage:     StageInitial,
		History:   []Turn{},
		Completed: map[Stage]bool{},
	}
}

// ClearData drops every accumulated mapping but keeps stage and history.
func (s *WorkflowState) ClearData() {
	s.SourceURL = ""
	s.Product = ProductData{}
	s.Market = MarketData{}
	s.Category = CategoryData{}
	s.Final = FinalResults{}
	s.Completed = map[Stage]bool{}
}

// HasAnalysis reports whether there is anything worth grounding answers on.
func (s *WorkflowState) HasAnalysis() bool {
	return !s.Product.IsEmpty() && !s.Final.IsEmpty()
}

// Analysis returns a copy of the accumulated data.
func (s *WorkflowState) Analysis() *AnalysisData {
	return &AnalysisData{
		Product:  s.Product,
		Market:   s.Market,
		Category: s.Category,
		Final:    s.Final,
	}
}

// AnalysisData is the accumulated data handed to the gateway for Q&A.
type AnalysisData struct {
	Product  ProductData  `json:"product"`
	Market   MarketData   `json:"market"`
	Category CategoryData `json:"categories"`
	Final    FinalResults `json:"final_results"`
}

// Status is the externally visible snapshot of a workflow.
type Status struct {
	Status           string              `json:"status"`
	HasActivity      bool                `json:"has_activity"`
	Stage            Stage               `json:"workflow_stage"`
	ProductData      *ProductData        `json:"product_data,omitempty"`
	MarketData       *MarketData         `json:"market_data,omitempty"`
	CategoryData     *CategoryData       `json:"categories,omitempty"`
	AudienceSegments []AudienceSegment   `json:"audience_segments,omitempty"`
	Strategies       []MarketingStrategy `json:"strategies,omitempty"`
}

// ================ Gateway requests ================

// NarrationRequest asks the gateway to narrate a brief for the given stage.
type NarrationRequest struct {
	Stage    Stage
	History  []Turn
	Brief    string
	Analysis *AnalysisData
}

type CompletionKind string

const (
	CompletionReasoning  CompletionKind = "reasoning"
	CompletionStrategies CompletionKind = "strategies"
)

// CompletionRequest is a raw system+user exchange with the reasoning model.
type CompletionRequest struct {
	Kind        CompletionKind
	System      string
	Prompt      string
	Temperature *float32
	MaxTokens   int
}

// CategoryReasoning is the combined JSON answer of the category mapping call.
type CategoryReasoning struct {
	SelectedCategories []SelectedCategory `json:"selected_categories"`
	AudienceSegments   []AudienceSegment  `json:"audience_segments"`
}

type SelectedCategory struct {
	Category              string           `json:"category"`
	Explanation           string           `json:"explanation"`
	SelectedSubcategories []SubcategoryRef `json:"selected_subcategories"`
}
