package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/tool"

	"github.com/audience-andy/server/internal/agent/model"
	"github.com/audience-andy/server/internal/metrics"
	logx "github.com/audience-andy/server/pkg/logger"
)

const (
	statusInitialized = "initialized"
	unknownInitError  = "Unknown error"
)

// Registry owns tool construction and invocation. Tools are built lazily and
// exactly once; a tool that fails to build stays unavailable.
type Registry struct {
	mu         sync.Mutex
	order      []string
	factories  map[string]Factory
	built      map[string]bool
	instances  map[string]Tool
	initErrors map[string]string
	handlers   []einocb.Handler
}

type Option func(*Registry)

// WithCallbacks attaches eino callback handlers fired around each execution.
func WithCallbacks(handlers ...einocb.Handler) Option {
	return func(r *Registry) {
		r.handlers = append(r.handlers, handlers...)
	}
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		factories:  map[string]Factory{},
		built:      map[string]bool{},
		instances:  map[string]Tool{},
		initErrors: map[string]string{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a lazily built tool. Registering a name twice is a no-op.
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists || r.built[name] {
		logx.Warn().Str("tool", name).Msg("Tool already registered, ignoring duplicate")
		return
	}
	r.order = append(r.order, name)
	r.factories[name] = factory
}

// Add registers an already constructed tool. An unavailable tool is still
// indexed so its init error can be reported.
func (r *Registry) Add(t Tool) {
	if t == nil {
		return
	}
	name := t.Name()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists || r.built[name] {
		logx.Warn().Str("tool", name).Msg("Tool already registered, ignoring duplicate")
		return
	}
	r.order = append(r.order, name)
	r.built[name] = true
	r.store(name, t)
}

// Names returns registered tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Tool returns the named tool, building it on first use. When the tool is
// absent or unavailable the returned string explains why.
func (r *Registry) Tool(name string) (Tool, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.get(name)
}

func (r *Registry) get(name string) (Tool, string) {
	if !r.built[name] {
		factory, ok := r.factories[name]
		if !ok {
			return nil, "tool is not registered"
		}
		r.built[name] = true
		t, err := buildSafely(factory)
		if err != nil {
			logx.Error().Err(err).Str("tool", name).Msg("Tool construction failed")
			r.instances[name] = nil
			r.initErrors[name] = err.Error()
		} else {
			r.store(name, t)
		}
	}

	t := r.instances[name]
	if t == nil {
		reason := r.initErrors[name]
		if reason == "" {
			reason = unknownInitError
		}
		return nil, reason
	}
	return t, ""
}

// store caches t, or nil plus its init error when t is unavailable.
func (r *Registry) store(name string, t Tool) {
	if t == nil {
		r.instances[name] = nil
		r.initErrors[name] = "factory returned no tool"
		return
	}
	if !isAvailable(t) {
		reason := initError(t)
		logx.Warn().Str("tool", name).Str("reason", reason).Msg("Tool is not available")
		r.instances[name] = nil
		r.initErrors[name] = reason
		return
	}
	r.instances[name] = t
	delete(r.initErrors, name)
}

func buildSafely(factory Factory) (t Tool, err error) {
	defer func() {
		if p := recover(); p != nil {
			t, err = nil, fmt.Errorf("tool construction panicked: %v", p)
		}
	}()
	t, err = factory()
	if err == nil && t == nil {
		err = errors.New("factory returned no tool")
	}
	return t, err
}

func isAvailable(t Tool) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return t.IsAvailable()
}

func initError(t Tool) (reason string) {
	defer func() {
		if p := recover(); p != nil {
			reason = fmt.Sprint(p)
		}
	}()
	reason = t.InitError()
	if reason == "" {
		reason = unknownInitError
	}
	return reason
}

// ExecuteTool runs the named tool. It never panics and never returns a Go
// error: every failure is reported as an unsuccessful result.
func (r *Registry) ExecuteTool(ctx context.Context, name string, params map[string]any) model.ToolResult {
	if params == nil {
		params = map[string]any{}
	}

	t, reason := r.Tool(name)
	if t == nil {
		msg := fmt.Sprintf("Tool not found or not available: %s. Initialization error: %s", name, reason)
		logx.Error().Str("tool", name).Msg(msg)
		metrics.ToolExecutions.WithLabelValues(name, "unavailable").Inc()
		return model.Failed(name, msg)
	}

	if missing := missingParameters(t, params); len(missing) > 0 {
		msg := fmt.Sprintf("Missing required parameters for %s: %s", name, strings.Join(missing, ", "))
		logx.Warn().Str("tool", name).Strs("missing", missing).Msg("Tool call rejected")
		return model.Failed(name, msg)
	}

	ctx = r.initCallbacks(ctx, name)
	ctx = einocb.OnStart(ctx, &tool.CallbackInput{ArgumentsInJSON: encodeArgs(params)})

	start := time.Now()
	res := r.invoke(ctx, t, name, params)
	elapsed := time.Since(start)

	if res.Success {
		einocb.OnEnd(ctx, &tool.CallbackOutput{Response: summarize(res)})
	} else {
		einocb.OnError(ctx, errors.New(res.Error))
	}

	metrics.RecordTool(name, res.Success, elapsed.Seconds())
	logx.Debug().Str("tool", name).Bool("success", res.Success).Dur("elapsed", elapsed).Msg("Tool executed")
	return res
}

func (r *Registry) invoke(ctx context.Context, t Tool, name string, params map[string]any) (res model.ToolResult) {
	defer func() {
		if p := recover(); p != nil {
			logx.Error().Str("tool", name).Interface("panic", p).Msg("Tool panicked")
			res = model.Failed(name, fmt.Sprintf("Error executing tool %s: %v", name, p))
		}
	}()

	out, err := t.Execute(ctx, params)
	if err != nil {
		logx.Error().Err(err).Str("tool", name).Msg("Tool execution failed")
		return model.Failed(name, fmt.Sprintf("Error executing tool %s: %v", name, err))
	}
	return out.Normalize(name)
}

func (r *Registry) initCallbacks(ctx context.Context, name string) context.Context {
	if len(r.handlers) == 0 {
		return ctx
	}
	return einocb.InitCallbacks(ctx, &einocb.RunInfo{
		Name:      name,
		Type:      "AnalysisTool",
		Component: components.ComponentOfTool,
	}, r.handlers...)
}

// InitializationStatus builds every tool and reports "initialized" or the
// reason it is unavailable.
func (r *Registry) InitializationStatus() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]string, len(r.order))
	for _, name := range r.order {
		if _, reason := r.get(name); reason != "" {
			out[name] = reason
			continue
		}
		out[name] = statusInitialized
	}
	return out
}

// Descriptors lists every registered tool for diagnostics, sorted by name.
func (r *Registry) Descriptors() []Descriptor {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		t, reason := r.get(name)
		if t == nil {
			out = append(out, Descriptor{Name: name, InitError: reason})
			continue
		}
		out = append(out, describe(t))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

type describer interface {
	descriptor() Descriptor
}

func describe(t Tool) Descriptor {
	if d, ok := t.(describer); ok {
		return d.descriptor()
	}
	return Descriptor{
		Name:               t.Name(),
		Description:        t.Description(),
		RequiredParameters: t.RequiredParameters(),
		InitError:          t.InitError(),
	}
}

func encodeArgs(params map[string]any) string {
	b, err := json.Marshal(params)
	if err != nil {
		return fmt.Sprintf("%v", params)
	}
	return string(b)
}

func summarize(res model.ToolResult) string {
	b, err := json.Marshal(res.Result)
	if err != nil {
		return ""
	}
	const limit = 512
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
