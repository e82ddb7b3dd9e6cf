package merge

import (
	"testing"

	"github.com/teradata-labs/loom-gateway/internal/store"
)

func strp(s string) *string { return &s }

func TestApplySystemPromptPrepend(t *testing.T) {
	messages := []ChatMessage{{Role: "user", Content: "hi"}}
	out := ApplySystemPrompt(store.SystemPromptPrepend, strp("AGENT"), messages)

	if len(out) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(out))
	}
	if out[0].Role != "system" || out[0].Content != "AGENT" {
		t.Fatalf("expected leading system message AGENT, got %+v", out[0])
	}
	if out[1] != messages[0] {
		t.Fatalf("expected user message preserved, got %+v", out[1])
	}
}

func TestApplySystemPromptOverwrite(t *testing.T) {
	messages := []ChatMessage{
		{Role: "system", Content: "CALLER"},
		{Role: "user", Content: "hi"},
	}
	out := ApplySystemPrompt(store.SystemPromptOverwrite, strp("AGENT"), messages)

	systemCount := 0
	for _, m := range out {
		if m.Role == "system" {
			systemCount++
			if m.Content != "AGENT" {
				t.Fatalf("expected overwritten system content AGENT, got %q", m.Content)
			}
		}
	}
	if systemCount != 1 {
		t.Fatalf("expected exactly one system message, got %d", systemCount)
	}
}

func TestApplySystemPromptIgnore(t *testing.T) {
	messages := []ChatMessage{{Role: "user", Content: "hi"}}
	out := ApplySystemPrompt(store.SystemPromptIgnore, strp("AGENT"), messages)
	if len(out) != 1 || out[0] != messages[0] {
		t.Fatalf("expected body untouched, got %+v", out)
	}
}

func TestApplySkillsMerge(t *testing.T) {
	agentSkills := []store.Skill{{Name: "a"}}
	callerTools := []Tool{{Name: "a"}, {Name: "b"}}

	out := ApplySkills(store.ListMergeMerge, agentSkills, callerTools)

	names := map[string]bool{}
	for _, t := range out {
		names[t.Name] = true
	}
	if !names["a"] || !names["b"] || len(out) != 2 {
		t.Fatalf("expected union {a, b}, got %+v", out)
	}
}

func TestApplyMCPEndpointsMergeAgentWins(t *testing.T) {
	agentEndpoints := []store.MCPEndpoint{{Name: "search", URL: "https://agent.example/search"}}
	callerEndpoints := []store.MCPEndpoint{{Name: "search", URL: "https://caller.example/search"}}

	out := ApplyMCPEndpoints(store.ListMergeMerge, agentEndpoints, callerEndpoints)
	if len(out) != 1 {
		t.Fatalf("expected single deduped endpoint, got %d", len(out))
	}
	if out[0].URL != "https://agent.example/search" {
		t.Fatalf("expected agent-supplied entry to win, got %q", out[0].URL)
	}
}
