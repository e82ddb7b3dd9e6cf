package pipeline

import (
	"encoding/json"
	"fmt"

	"github.com/teradata-labs/loom-gateway/internal/merge"
	"github.com/teradata-labs/loom-gateway/internal/store"
)

// chatBody wraps the caller's parsed chat-completions request as a loose
// map, per spec §9's "dynamic-shape payloads" note: only the small typed
// subset (messages, model, stream, tools) is inspected and rewritten;
// everything else (temperature, top_p, user, ...) is carried through
// untouched.
type chatBody struct {
	raw map[string]any
}

// parseChatBody parses a caller request body into a chatBody.
func parseChatBody(data []byte) (*chatBody, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse chat completions body: %w", err)
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return &chatBody{raw: raw}, nil
}

// popString removes key from the body and returns its string value, or nil
// if absent/empty/not-a-string. Used for the gateway-specific
// conversation_id/partition_id fields (spec §4.7 step 2), which are never
// forwarded upstream as top-level keys of the original request.
func (b *chatBody) popString(key string) *string {
	v, ok := b.raw[key]
	if !ok {
		return nil
	}
	delete(b.raw, key)
	s, ok := v.(string)
	if !ok || s == "" {
		return nil
	}
	return &s
}

func (b *chatBody) model() string {
	s, _ := b.raw["model"].(string)
	return s
}

func (b *chatBody) stream() bool {
	v, _ := b.raw["stream"].(bool)
	return v
}

// messages returns the typed (role, content) view of the request's
// messages array (spec §9's typed subset).
func (b *chatBody) messages() []merge.ChatMessage {
	arr, _ := b.raw["messages"].([]any)
	out := make([]merge.ChatMessage, 0, len(arr))
	for _, item := range arr {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		role, _ := m["role"].(string)
		content, _ := m["content"].(string)
		out = append(out, merge.ChatMessage{Role: role, Content: content})
	}
	return out
}

// setMessages replaces the request's messages array with msgs.
func (b *chatBody) setMessages(msgs []merge.ChatMessage) {
	arr := make([]any, 0, len(msgs))
	for _, m := range msgs {
		arr = append(arr, map[string]any{"role": m.Role, "content": m.Content})
	}
	b.raw["messages"] = arr
}

// tools returns the caller's tools array as merge.Tool values (keyed by
// name) alongside the original raw tool definitions, so a later setTools
// call can reconstruct full tool objects rather than bare {"name": ...}
// stubs.
func (b *chatBody) tools() ([]merge.Tool, map[string]any) {
	arr, _ := b.raw["tools"].([]any)
	tools := make([]merge.Tool, 0, len(arr))
	defs := make(map[string]any, len(arr))
	for _, item := range arr {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		name := toolName(m)
		if name == "" {
			continue
		}
		tools = append(tools, merge.Tool{Name: name})
		defs[name] = m
	}
	return tools, defs
}

// toolName extracts a tool's dedup key, accepting both the spec's bare
// {"name": ...} shape and OpenAI's {"type":"function","function":{"name":...}}
// shape.
func toolName(m map[string]any) string {
	if n, ok := m["name"].(string); ok && n != "" {
		return n
	}
	if fn, ok := m["function"].(map[string]any); ok {
		if n, ok := fn["name"].(string); ok {
			return n
		}
	}
	return ""
}

// setTools replaces the request's tools array with tools, reconstructing
// each entry's full definition: the agent's skill definition wins on a
// name collision (spec §4.4), falling back to the caller's original
// definition, and finally to a bare {"name": ...} stub.
func (b *chatBody) setTools(tools []merge.Tool, callerDefs map[string]any, agentSkills []store.Skill) {
	if len(tools) == 0 {
		delete(b.raw, "tools")
		return
	}

	agentDefs := make(map[string]any, len(agentSkills))
	for _, s := range agentSkills {
		agentDefs[s.Name] = skillDefinition(s)
	}

	arr := make([]any, 0, len(tools))
	for _, t := range tools {
		if def, ok := agentDefs[t.Name]; ok {
			arr = append(arr, def)
			continue
		}
		if def, ok := callerDefs[t.Name]; ok {
			arr = append(arr, def)
			continue
		}
		arr = append(arr, map[string]any{"name": t.Name})
	}
	b.raw["tools"] = arr
}

// skillDefinition decodes a store.Skill's raw JSON definition, falling back
// to a bare {"name": ...} stub when no definition was stored.
func skillDefinition(s store.Skill) any {
	if len(s.Definition) == 0 {
		return map[string]any{"name": s.Name}
	}
	var v any
	if err := json.Unmarshal(s.Definition, &v); err == nil {
		return v
	}
	return map[string]any{"name": s.Name}
}

// attachConversationMeta sets the gateway-minted conversation/partition ids
// back onto the outgoing JSON body (spec §4.7 step 6's JSON branch).
func (b *chatBody) attachConversationMeta(conversationID, partitionID *string) {
	if conversationID != nil {
		b.raw["conversation_id"] = *conversationID
	}
	if partitionID != nil {
		b.raw["partition_id"] = *partitionID
	}
}

func (b *chatBody) marshal() ([]byte, error) {
	return json.Marshal(b.raw)
}
