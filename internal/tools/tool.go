package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Name is the closed set of tool names a plan may reference.
type Name string

const (
	ReadFile     Name = "read_file"
	RegexExtract Name = "regex_extract"
	RAGSearch    Name = "rag_search"
	DocGenerate  Name = "doc_generate"
	WebSearch    Name = "web_search"
	FetchURL     Name = "fetch_url"
)

// Result is the uniform outcome of a tool call. Failures are values, not
// errors: OK is false and Logs carries the reason.
type Result struct {
	OK     bool   `json:"ok"`
	Output any    `json:"output"`
	Logs   string `json:"logs"`
}

// Tool defines the interface for all agent capabilities.
type Tool interface {
	Name() Name
	Description() string
	Parameters() map[string]any // JSON Schema for the tool's inputs
	Invoke(ctx context.Context, input map[string]any) Result
}

// UnknownToolError is reported when a step names a tool that is not
// registered.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return "unknown tool " + e.Name
}

// ExecutionError wraps a failure raised while a tool was running.
type ExecutionError struct {
	Tool Name
	Err  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Tool, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Invoker is the slice of the registry the executor depends on.
type Invoker interface {
	Has(name string) bool
	Invoke(ctx context.Context, name string, input map[string]any) Result
}

// Registry manages the set of available tools. It is filled at startup and
// read-only afterwards.
type Registry struct {
	mu    sync.RWMutex
	tools map[Name]Tool
	order []Name
}

func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[Name]Tool)}
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name()]; !exists {
		r.order = append(r.order, t.Name())
	}
	r.tools[t.Name()] = t
}

func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[Name(name)]
	return t, ok
}

func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Tools returns the registered tools in registration order.
func (r *Registry) Tools() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.tools[n])
	}
	return out
}

// Invoke dispatches to the named tool. Unknown names and panics come back as
// failed results.
func (r *Registry) Invoke(ctx context.Context, name string, input map[string]any) (res Result) {
	t, ok := r.Get(name)
	if !ok {
		return Fail(&UnknownToolError{Name: name})
	}
	if input == nil {
		input = map[string]any{}
	}

	defer func() {
		if p := recover(); p != nil {
			res = Fail(&ExecutionError{Tool: t.Name(), Err: fmt.Errorf("panic: %v", p)})
		}
	}()
	return t.Invoke(ctx, input)
}

// Inventory renders the tool list for the planner prompt: name, purpose and
// input shape per line.
func (r *Registry) Inventory() string {
	var sb strings.Builder
	for _, t := range r.Tools() {
		fmt.Fprintf(&sb, "- %s: %s input=%s\n", t.Name(), t.Description(), InputShape(t.Parameters()))
	}
	return sb.String()
}

// InputShape condenses a JSON schema into {field:type, ...}, marking optional
// fields with a trailing '?'.
func InputShape(schema map[string]any) string {
	props, _ := schema["properties"].(map[string]any)
	required := map[string]bool{}
	switch req := schema["required"].(type) {
	case []string:
		for _, k := range req {
			required[k] = true
		}
	case []any:
		for _, k := range req {
			if s, ok := k.(string); ok {
				required[s] = true
			}
		}
	}

	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if required[keys[i]] != required[keys[j]] {
			return required[keys[i]]
		}
		return keys[i] < keys[j]
	})

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		typ := "any"
		if p, ok := props[k].(map[string]any); ok {
			if s, ok := p["type"].(string); ok {
				typ = s
			}
		}
		opt := ""
		if !required[k] {
			opt = "?"
		}
		parts = append(parts, fmt.Sprintf("%s%s:%s", k, opt, typ))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// OK builds a successful result.
func OK(output any, logs string) Result {
	return Result{OK: true, Output: output, Logs: logs}
}

// Fail builds a failed result from err.
func Fail(err error) Result {
	return Result{OK: false, Logs: err.Error()}
}

func stringArg(input map[string]any, key string) string {
	switch v := input[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func intArg(input map[string]any, key string, def int) int {
	switch v := input[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	case string:
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n
		}
	}
	return def
}
