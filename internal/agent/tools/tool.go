package tools

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/audience-andy/server/internal/agent/model"
)

// Tool is a named analysis capability invoked through the Registry.
//
// Constructors never fail: dependency problems (missing keys, unreadable data
// files) are captured and reported through IsAvailable and InitError.
type Tool interface {
	Name() string
	Description() string
	Info() *schema.ToolInfo
	RequiredParameters() []string
	IsAvailable() bool
	InitError() string
	Execute(ctx context.Context, params map[string]any) (model.ToolResult, error)
}

// Factory builds a tool. A returned error marks the tool unavailable for the
// lifetime of the registry.
type Factory func() (Tool, error)

// Descriptor is the diagnostic view of a registered tool.
type Descriptor struct {
	Name               string                           `json:"name"`
	Description        string                           `json:"description"`
	Parameters         map[string]*schema.ParameterInfo `json:"parameters"`
	RequiredParameters []string                         `json:"required_parameters"`
	InitError          string                           `json:"initialization_error,omitempty"`
}

// base carries the fields every tool shares.
type base struct {
	name     string
	desc     string
	params   map[string]*schema.ParameterInfo
	initErr  string
	required []string
}

func (b *base) Name() string        { return b.name }
func (b *base) Description() string { return b.desc }
func (b *base) IsAvailable() bool   { return b.initErr == "" }
func (b *base) InitError() string   { return b.initErr }

func (b *base) RequiredParameters() []string {
	out := make([]string, len(b.required))
	copy(out, b.required)
	return out
}

func (b *base) Info() *schema.ToolInfo {
	return &schema.ToolInfo{
		Name:        b.name,
		Desc:        b.desc,
		ParamsOneOf: schema.NewParamsOneOfByParams(b.params),
	}
}

func (b *base) descriptor() Descriptor {
	return Descriptor{
		Name:               b.name,
		Description:        b.desc,
		Parameters:         b.params,
		RequiredParameters: b.RequiredParameters(),
		InitError:          b.initErr,
	}
}

// ================ Parameter helpers ================

func getString(params map[string]any, key string) string {
	switch v := params[key].(type) {
	case string:
		return v
	case nil:
		return ""
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

func getStrings(params map[string]any, key string) []string {
	switch v := params[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			} else if item != nil {
				out = append(out, fmt.Sprint(item))
			}
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	}
	return nil
}

// getInt reads an integer parameter, falling back to def and clamping into
// [lo, hi] when hi >= lo.
func getInt(params map[string]any, key string, def, lo, hi int) int {
	n := def
	switch v := params[key].(type) {
	case int:
		n = v
	case int32:
		n = int(v)
	case int64:
		n = int(v)
	case float64:
		n = int(v)
	case float32:
		n = int(v)
	case string:
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			n = parsed
		}
	}
	if hi >= lo {
		n = max(lo, min(n, hi))
	}
	return n
}

func missingParameters(t Tool, params map[string]any) []string {
	var missing []string
	for _, key := range t.RequiredParameters() {
		if v, ok := params[key]; !ok || v == nil {
			missing = append(missing, key)
		}
	}
	return missing
}
