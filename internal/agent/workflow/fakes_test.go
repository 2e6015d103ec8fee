package workflow

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/audience-andy/server/internal/agent/model"
	"github.com/audience-andy/server/internal/agent/tools"
)

type toolFunc func(params map[string]any) model.ToolResult

// fakeTools serves canned results and falls back to a real registry.
type fakeTools struct {
	mu       sync.Mutex
	canned   map[string]toolFunc
	calls    []string
	params   []map[string]any
	fallback *tools.Registry
}

func (f *fakeTools) ExecuteTool(ctx context.Context, name string, params map[string]any) model.ToolResult {
	f.mu.Lock()
	label := name
	if mode, ok := params["mode"].(string); ok {
		label += ":" + mode
	}
	f.calls = append(f.calls, label)
	f.params = append(f.params, params)
	fn := f.canned[name]
	f.mu.Unlock()

	if fn != nil {
		return fn(params)
	}
	if f.fallback != nil {
		return f.fallback.ExecuteTool(ctx, name, params)
	}
	return model.Failed(name, "Tool not found or not available: "+name)
}

func (f *fakeTools) set(name string, fn toolFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.canned[name] = fn
}

func (f *fakeTools) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeTools) lastParams(name string) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.calls) - 1; i >= 0; i-- {
		if strings.HasPrefix(f.calls[i], name) {
			return f.params[i]
		}
	}
	return nil
}

var widget = model.ProductData{
	Title:       "Widget Pro",
	Price:       "$19.99",
	Description: "A durable smart widget for the home office and music lovers",
	Features:    []string{"Bluetooth speaker", "Smart home ready"},
}

var widgetMarket = model.MarketData{
	Competitors:  []string{"Acme", "Globex"},
	Keywords:     []string{"widget", "smart", "gadget"},
	SearchVolume: "medium",
	Query:        "Widget Pro",
}

func scraperOK(params map[string]any) model.ToolResult {
	return model.Succeeded(tools.ScraperName, widget)
}

func serpOK(params map[string]any) model.ToolResult {
	return model.Succeeded(tools.SerpName, widgetMarket)
}

func failing(name, msg string) toolFunc {
	return func(map[string]any) model.ToolResult { return model.Failed(name, msg) }
}

// newFakeTools stubs the scraper and SERP analyzer and serves the bundled
// category tree through a real registry.
func newFakeTools(t *testing.T) *fakeTools {
	t.Helper()
	reg := tools.NewRegistry()
	tree := tools.NewCategoryTree(model.ToolsConfig{
		CategoryTreePath: filepath.Join("..", "..", "..", "data", "marketing_categories.json"),
	})
	require.True(t, tree.IsAvailable(), tree.InitError())
	reg.Add(tree)
	return &fakeTools{
		canned: map[string]toolFunc{
			tools.ScraperName: scraperOK,
			tools.SerpName:    serpOK,
		},
		fallback: reg,
	}
}

const reasoningJSON = `{
  "selected_categories": [
    {"category": "Technology", "explanation": "It is a connected gadget",
     "selected_subcategories": [{"name": "Smart Home", "explanation": "Works with assistants"}]}
  ],
  "audience_segments": [
    {"name": "Smart Home Builders", "description": "Automate everything",
     "targeting_criteria": [{"type": "interest", "category": "Technology", "subcategory": "Smart Home"}]},
    {"name": "Remote Workers", "description": "Home office upgraders",
     "targeting_criteria": [{"type": "behavior", "category": "Behaviors", "value": "Remote Work"}]}
  ]
}`

const strategiesText = "Strategy 1: Instagram reels for Smart Home Builders.\n\nStrategy 2: LinkedIn posts for Remote Workers."

// fakeGateway echoes briefs so tests can assert on what was narrated.
type fakeGateway struct {
	mu            sync.Mutex
	narrations    []model.NarrationRequest
	completions   []model.CompletionRequest
	narrateErr    error
	reasoning     string
	reasoningErr  error
	strategies    string
	strategiesErr error
	onNarrate     func(req model.NarrationRequest)
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{reasoning: reasoningJSON, strategies: strategiesText}
}

func (g *fakeGateway) Narrate(_ context.Context, req model.NarrationRequest) (string, error) {
	g.mu.Lock()
	g.narrations = append(g.narrations, req)
	hook, err := g.onNarrate, g.narrateErr
	g.mu.Unlock()
	if hook != nil {
		hook(req)
	}
	if err != nil {
		return "", err
	}
	if req.Brief == "" {
		return fmt.Sprintf("[%s] chat", req.Stage), nil
	}
	return fmt.Sprintf("[%s] %s", req.Stage, req.Brief), nil
}

func (g *fakeGateway) Complete(_ context.Context, req model.CompletionRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.completions = append(g.completions, req)
	switch req.Kind {
	case model.CompletionReasoning:
		return g.reasoning, g.reasoningErr
	case model.CompletionStrategies:
		return g.strategies, g.strategiesErr
	}
	return "", errors.New("unexpected completion kind")
}

func (g *fakeGateway) lastNarration() model.NarrationRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.narrations[len(g.narrations)-1]
}

func (g *fakeGateway) narratedStages() []model.Stage {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]model.Stage, 0, len(g.narrations))
	for _, n := range g.narrations {
		out = append(out, n.Stage)
	}
	return out
}

func (g *fakeGateway) resetLog() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.narrations = nil
	g.completions = nil
}

// newTestOrchestrator returns an orchestrator wired to fakes.
func newTestOrchestrator(t *testing.T) (*Orchestrator, *fakeTools, *fakeGateway) {
	t.Helper()
	ft := newFakeTools(t)
	gw := newFakeGateway()
	return New(ft, gw), ft, gw
}

// analyzed runs a full successful analysis.
func analyzed(t *testing.T) (*Orchestrator, *fakeTools, *fakeGateway) {
	t.Helper()
	o, ft, gw := newTestOrchestrator(t)
	_, err := o.ProcessMessage(t.Context(), "analyze https://example-shop.test/widget")
	require.NoError(t, err)
	require.Equal(t, model.StageFinalSummary, o.Status().Stage)
	return o, ft, gw
}

// realScraper points a real scraper at a server that must never be called.
func realScraper(t *testing.T) *tools.Registry {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected upstream call to %s", r.URL.Path)
	}))
	t.Cleanup(srv.Close)
	reg := tools.NewRegistry()
	reg.Add(tools.NewScraper(model.ToolsConfig{FirecrawlAPIKey: "fc-key", FirecrawlBaseURL: srv.URL}))
	return reg
}
