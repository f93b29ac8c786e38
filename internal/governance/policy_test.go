package governance

import (
	"context"
	"testing"

	"github.com/rahul/lexigpt/pkg/config"
)

func TestDefaultPolicyEngine_Evaluate(t *testing.T) {
	engine := NewDefaultPolicyEngine()
	ctx := context.Background()

	// Test Allow (Default)
	res1, err := engine.Evaluate(ctx, Request{Tool: "rag_search"})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if res1.Effect != EffectAllow {
		t.Errorf("Expected EffectAllow, got %s", res1.Effect)
	}

	// Test Deny
	engine.DenyTool("fetch_url")
	res2, err := engine.Evaluate(ctx, Request{Tool: "fetch_url"})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if !res2.Denied() {
		t.Errorf("Expected EffectDeny, got %s", res2.Effect)
	}
}

func TestPolicyDeniesArguments(t *testing.T) {
	engine, err := FromConfig(config.PolicyConfig{
		DenyTools:     []string{"web_search"},
		DenyArguments: []string{`"path":"/etc/`},
	})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		tool  string
		input map[string]any
		deny  bool
	}{
		{"denied tool", "web_search", map[string]any{"query": "x"}, true},
		{"denied path", "read_file", map[string]any{"path": "/etc/passwd"}, true},
		{"allowed path", "read_file", map[string]any{"path": "data/notice.txt"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := engine.Evaluate(context.Background(), NewRequest(tt.tool, tt.input, "run-1"))
			if err != nil {
				t.Fatal(err)
			}
			if res.Denied() != tt.deny {
				t.Errorf("Denied = %v, reason %q", res.Denied(), res.Reason)
			}
		})
	}
}

func TestFromConfigRejectsBadPattern(t *testing.T) {
	if _, err := FromConfig(config.PolicyConfig{DenyArguments: []string{"("}}); err == nil {
		t.Error("expected error for invalid pattern")
	}
}

func TestToolScopedPatterns(t *testing.T) {
	engine, err := FromConfig(config.PolicyConfig{
		DenyToolArguments: map[string][]string{"fetch_url": {`localhost|127\.0\.0\.1`}},
	})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		tool  string
		input map[string]any
		deny  bool
	}{
		{"scoped match", "fetch_url", map[string]any{"url": "http://127.0.0.1:8000/admin"}, true},
		{"other tool same text", "rag_search", map[string]any{"query": "localhost"}, false},
		{"env file", "read_file", map[string]any{"path": "data/.env"}, true},
		{"bare env file", "read_file", map[string]any{"path": ".env"}, true},
		{"ssh key", "read_file", map[string]any{"path": "/home/u/.ssh/id_rsa"}, true},
		{"similar name", "read_file", map[string]any{"path": "data/.envelope.txt"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := engine.Evaluate(context.Background(), NewRequest(tt.tool, tt.input, ""))
			if err != nil {
				t.Fatal(err)
			}
			if res.Denied() != tt.deny {
				t.Errorf("Denied = %v, reason %q", res.Denied(), res.Reason)
			}
		})
	}

	open, err := FromConfig(config.PolicyConfig{AllowSecretReads: true})
	if err != nil {
		t.Fatal(err)
	}
	res, _ := open.Evaluate(context.Background(), NewRequest("read_file", map[string]any{"path": ".env"}, ""))
	if res.Denied() {
		t.Errorf("secret reads allowed by config but denied: %q", res.Reason)
	}
}
