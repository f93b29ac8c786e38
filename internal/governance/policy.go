package governance

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sync"

	"github.com/rahul/lexigpt/pkg/config"
)

// Effect defines the result of a policy evaluation.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Request contains the context of a tool call to be evaluated.
type Request struct {
	Tool      string
	Arguments string // JSON-encoded step input
	RunID     string
}

// NewRequest encodes a step input for evaluation.
func NewRequest(tool string, input map[string]any, runID string) Request {
	args, err := json.Marshal(input)
	if err != nil {
		args = []byte(fmt.Sprint(input))
	}
	return Request{Tool: tool, Arguments: string(args), RunID: runID}
}

// Result contains the outcome of a policy evaluation.
type Result struct {
	Effect Effect
	Reason string
}

func (r Result) Denied() bool {
	return r.Effect == EffectDeny
}

// PolicyEngine evaluates tool calls against a set of rules.
type PolicyEngine interface {
	Evaluate(ctx context.Context, req Request) (Result, error)
}

// SecretFilePattern matches paths of credential files a read_file step must
// never open.
const SecretFilePattern = `(?i)(^|[/\\"])(\.env|id_rsa|id_ed25519|credentials\.json)("|$)`

// DefaultPolicyEngine denies by tool name, by patterns over the encoded
// arguments of any tool, or by patterns scoped to one tool. Everything else
// is allowed.
type DefaultPolicyEngine struct {
	mu          sync.RWMutex
	DeniedTools map[string]bool
	DeniedRegex []*regexp.Regexp
	ToolRegex   map[string][]*regexp.Regexp
}

func NewDefaultPolicyEngine() *DefaultPolicyEngine {
	return &DefaultPolicyEngine{
		DeniedTools: make(map[string]bool),
		DeniedRegex: make([]*regexp.Regexp, 0),
		ToolRegex:   make(map[string][]*regexp.Regexp),
	}
}

// FromConfig builds the engine from the policy section of the config.
func FromConfig(cfg config.PolicyConfig) (*DefaultPolicyEngine, error) {
	e := NewDefaultPolicyEngine()
	for _, name := range cfg.DenyTools {
		e.DenyTool(name)
	}
	for _, pattern := range cfg.DenyArguments {
		if err := e.DenyArguments(pattern); err != nil {
			return nil, fmt.Errorf("policy pattern %q: %w", pattern, err)
		}
	}
	for tool, patterns := range cfg.DenyToolArguments {
		for _, pattern := range patterns {
			if err := e.DenyToolArguments(tool, pattern); err != nil {
				return nil, fmt.Errorf("policy pattern %q for %s: %w", pattern, tool, err)
			}
		}
	}
	if !cfg.AllowSecretReads {
		_ = e.DenyToolArguments("read_file", SecretFilePattern)
	}
	return e, nil
}

func (e *DefaultPolicyEngine) DenyTool(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.DeniedTools[name] = true
}

func (e *DefaultPolicyEngine) DenyArguments(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.DeniedRegex = append(e.DeniedRegex, re)
	return nil
}

// DenyToolArguments denies calls of tool whose encoded arguments match
// pattern.
func (e *DefaultPolicyEngine) DenyToolArguments(tool, pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ToolRegex[tool] = append(e.ToolRegex[tool], re)
	return nil
}

func (e *DefaultPolicyEngine) Evaluate(ctx context.Context, req Request) (Result, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.DeniedTools[req.Tool] {
		return Result{
			Effect: EffectDeny,
			Reason: fmt.Sprintf("tool '%s' is restricted by system policy", req.Tool),
		}, nil
	}

	for _, re := range e.DeniedRegex {
		if re.MatchString(req.Arguments) {
			return Result{
				Effect: EffectDeny,
				Reason: fmt.Sprintf("arguments match restricted pattern: %s", re.String()),
			}, nil
		}
	}

	for _, re := range e.ToolRegex[req.Tool] {
		if re.MatchString(req.Arguments) {
			return Result{
				Effect: EffectDeny,
				Reason: fmt.Sprintf("%s arguments match restricted pattern: %s", req.Tool, re.String()),
			}, nil
		}
	}

	return Result{
		Effect: EffectAllow,
		Reason: "approved by default policy",
	}, nil
}
