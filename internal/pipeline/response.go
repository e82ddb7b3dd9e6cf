package pipeline

import (
	"encoding/json"
	"fmt"

	"github.com/teradata-labs/loom-gateway/internal/mcpclient"
)

// chatResponse is a loose view over a provider's JSON chat-completions
// response, used only to extract the typed subset named in spec §9:
// usage, choices[0].message.content, and choices[0].message.tool_calls.
type chatResponse struct {
	raw map[string]any
}

func parseChatResponse(data []byte) (*chatResponse, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse upstream response: %w", err)
	}
	return &chatResponse{raw: raw}, nil
}

type usageTokens struct {
	prompt, completion, total int
}

func (r *chatResponse) usage() usageTokens {
	u, ok := r.raw["usage"].(map[string]any)
	if !ok {
		return usageTokens{}
	}
	return usageTokens{
		prompt:     intField(u, "prompt_tokens"),
		completion: intField(u, "completion_tokens"),
		total:      intField(u, "total_tokens"),
	}
}

func intField(m map[string]any, key string) int {
	v, ok := m[key].(float64)
	if !ok {
		return 0
	}
	return int(v)
}

func (r *chatResponse) firstMessage() (map[string]any, bool) {
	choices, ok := r.raw["choices"].([]any)
	if !ok || len(choices) == 0 {
		return nil, false
	}
	c0, ok := choices[0].(map[string]any)
	if !ok {
		return nil, false
	}
	msg, ok := c0["message"].(map[string]any)
	return msg, ok
}

func (r *chatResponse) assistantContent() string {
	msg, ok := r.firstMessage()
	if !ok {
		return ""
	}
	s, _ := msg["content"].(string)
	return s
}

// toolCalls extracts the assistant message's tool_calls array, if any, as
// mcpclient.ToolCall values ready for the single-shot MCP round trip.
func (r *chatResponse) toolCalls() []mcpclient.ToolCall {
	msg, ok := r.firstMessage()
	if !ok {
		return nil
	}
	raw, ok := msg["tool_calls"].([]any)
	if !ok {
		return nil
	}
	out := make([]mcpclient.ToolCall, 0, len(raw))
	for _, item := range raw {
		tc, ok := item.(map[string]any)
		if !ok {
			continue
		}
		id, _ := tc["id"].(string)
		fn, _ := tc["function"].(map[string]any)
		name, _ := fn["name"].(string)
		var args json.RawMessage
		if argStr, ok := fn["arguments"].(string); ok {
			args = json.RawMessage(argStr)
		}
		out = append(out, mcpclient.ToolCall{ID: id, Name: name, Arguments: args})
	}
	return out
}
