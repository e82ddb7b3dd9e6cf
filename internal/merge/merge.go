// Package merge folds an agent's effective configuration into a
// caller-supplied chat-completions body under the policies of spec §4.4.
package merge

import (
	"github.com/teradata-labs/loom-gateway/internal/store"
)

// ChatMessage mirrors the small typed subset of an OpenAI-style message the
// gateway inspects (spec §9: only messages/model/stream/tool_calls/usage/
// choices[*].message.content are typed, everything else passes through
// opaque).
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Tool mirrors an OpenAI-tools-format tool definition, keyed by Name for
// dedup purposes.
type Tool struct {
	Name       string         `json:"name"`
	Definition map[string]any `json:"-"`
	Raw        map[string]any `json:"-"`
}

// ApplySystemPrompt folds the agent's system prompt into messages per
// policy (spec §4.4). Returns a new slice; the input is not mutated.
func ApplySystemPrompt(policy store.SystemPromptPolicy, agentPrompt *string, messages []ChatMessage) []ChatMessage {
	if policy == "" {
		policy = store.SystemPromptPrepend
	}
	if policy == store.SystemPromptIgnore || agentPrompt == nil {
		return messages
	}

	synthetic := ChatMessage{Role: "system", Content: *agentPrompt}

	switch policy {
	case store.SystemPromptOverwrite:
		out := make([]ChatMessage, 0, len(messages)+1)
		out = append(out, synthetic)
		for _, m := range messages {
			if m.Role != "system" {
				out = append(out, m)
			}
		}
		return out
	case store.SystemPromptAppend:
		out := make([]ChatMessage, 0, len(messages)+1)
		out = append(out, messages...)
		out = append(out, synthetic)
		return out
	case store.SystemPromptPrepend:
		fallthrough
	default:
		out := make([]ChatMessage, 0, len(messages)+1)
		out = append(out, synthetic)
		out = append(out, messages...)
		return out
	}
}

// ApplySkills folds the agent's skills into the caller's tools per policy.
// On merge, the agent-supplied definition wins on name collision.
func ApplySkills(policy store.ListMergePolicy, agentSkills []store.Skill, callerTools []Tool) []Tool {
	if policy == "" {
		policy = store.ListMergeMerge
	}
	switch policy {
	case store.ListMergeIgnore:
		return callerTools
	case store.ListMergeOverwrite:
		out := make([]Tool, 0, len(agentSkills))
		for _, s := range agentSkills {
			out = append(out, Tool{Name: s.Name})
		}
		return out
	case store.ListMergeMerge:
		fallthrough
	default:
		byName := make(map[string]Tool, len(callerTools)+len(agentSkills))
		order := make([]string, 0, len(callerTools)+len(agentSkills))
		for _, t := range callerTools {
			if _, exists := byName[t.Name]; !exists {
				order = append(order, t.Name)
			}
			byName[t.Name] = t
		}
		for _, s := range agentSkills {
			if _, exists := byName[s.Name]; !exists {
				order = append(order, s.Name)
			}
			byName[s.Name] = Tool{Name: s.Name} // agent's definition wins
		}
		out := make([]Tool, 0, len(order))
		for _, name := range order {
			out = append(out, byName[name])
		}
		return out
	}
}

// ApplyMCPEndpoints folds the agent's MCP endpoints into the caller-supplied
// set per policy. On merge, the agent-supplied entry wins on name collision
// (spec §4.4).
func ApplyMCPEndpoints(policy store.ListMergePolicy, agentEndpoints []store.MCPEndpoint, callerEndpoints []store.MCPEndpoint) []store.MCPEndpoint {
	if policy == "" {
		policy = store.ListMergeMerge
	}
	switch policy {
	case store.ListMergeIgnore:
		return callerEndpoints
	case store.ListMergeOverwrite:
		return agentEndpoints
	case store.ListMergeMerge:
		fallthrough
	default:
		byName := make(map[string]store.MCPEndpoint, len(callerEndpoints)+len(agentEndpoints))
		order := make([]string, 0, len(callerEndpoints)+len(agentEndpoints))
		for _, e := range callerEndpoints {
			if _, exists := byName[e.Name]; !exists {
				order = append(order, e.Name)
			}
			byName[e.Name] = e
		}
		for _, e := range agentEndpoints {
			if _, exists := byName[e.Name]; !exists {
				order = append(order, e.Name)
			}
			byName[e.Name] = e // agent's entry wins
		}
		out := make([]store.MCPEndpoint, 0, len(order))
		for _, name := range order {
			out = append(out, byName[name])
		}
		return out
	}
}
