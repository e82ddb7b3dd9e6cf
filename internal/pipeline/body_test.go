package pipeline

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/teradata-labs/loom-gateway/internal/merge"
	"github.com/teradata-labs/loom-gateway/internal/store"
)

func TestParseChatBodyPopsGatewayFields(t *testing.T) {
	body, err := parseChatBody([]byte(`{"model":"gpt-4o","conversation_id":"conv-1","partition_id":"part-1","stream":true}`))
	if err != nil {
		t.Fatalf("parseChatBody: %v", err)
	}

	conv := body.popString("conversation_id")
	part := body.popString("partition_id")
	if conv == nil || *conv != "conv-1" {
		t.Fatalf("expected conversation_id conv-1, got %v", conv)
	}
	if part == nil || *part != "part-1" {
		t.Fatalf("expected partition_id part-1, got %v", part)
	}
	if body.model() != "gpt-4o" {
		t.Fatalf("expected model gpt-4o, got %q", body.model())
	}
	if !body.stream() {
		t.Fatal("expected stream true")
	}

	raw, err := body.marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := out["conversation_id"]; ok {
		t.Fatal("expected conversation_id removed from outgoing body")
	}
}

func TestChatBodyMessagesRoundTrip(t *testing.T) {
	body, err := parseChatBody([]byte(`{"messages":[{"role":"user","content":"hi"},{"role":"assistant","content":"hello"}]}`))
	if err != nil {
		t.Fatalf("parseChatBody: %v", err)
	}
	msgs := body.messages()
	if len(msgs) != 2 || msgs[0].Role != "user" || msgs[0].Content != "hi" {
		t.Fatalf("unexpected messages: %+v", msgs)
	}

	body.setMessages([]merge.ChatMessage{{Role: "system", Content: "SYS"}, msgs[0]})
	if got := body.messages(); len(got) != 2 || got[0].Content != "SYS" {
		t.Fatalf("expected injected system message first, got %+v", got)
	}
}

func TestChatBodyToolsPreservesOpenAIShapeAndAgentWins(t *testing.T) {
	body, err := parseChatBody([]byte(`{"tools":[{"type":"function","function":{"name":"search","description":"caller def"}}]}`))
	if err != nil {
		t.Fatalf("parseChatBody: %v", err)
	}
	tools, defs := body.tools()
	if len(tools) != 1 || tools[0].Name != "search" {
		t.Fatalf("expected single tool named search, got %+v", tools)
	}

	agentSkills := []store.Skill{{Name: "search", Definition: json.RawMessage(`{"type":"function","function":{"name":"search","description":"agent def"}}`)}}
	body.setTools(tools, defs, agentSkills)

	raw, err := body.marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(raw), "agent def") {
		t.Fatalf("expected agent's definition to win on collision, got %s", raw)
	}
}

func TestChatBodySetToolsEmptyRemovesKey(t *testing.T) {
	body, err := parseChatBody([]byte(`{"tools":[{"name":"x"}]}`))
	if err != nil {
		t.Fatalf("parseChatBody: %v", err)
	}
	body.setTools(nil, nil, nil)
	raw, err := body.marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out map[string]any
	json.Unmarshal(raw, &out)
	if _, ok := out["tools"]; ok {
		t.Fatal("expected tools key removed when merged list is empty")
	}
}

func TestChatBodyAttachConversationMeta(t *testing.T) {
	body, err := parseChatBody([]byte(`{"model":"gpt-4o"}`))
	if err != nil {
		t.Fatalf("parseChatBody: %v", err)
	}
	conv := "conv-123"
	body.attachConversationMeta(&conv, nil)
	raw, err := body.marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(raw), `"conversation_id":"conv-123"`) {
		t.Fatalf("expected conversation_id attached, got %s", raw)
	}
}
