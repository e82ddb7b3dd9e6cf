package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/teradata-labs/loom-gateway/internal/convo"
	"github.com/teradata-labs/loom-gateway/internal/provider"
	"github.com/teradata-labs/loom-gateway/internal/store"
)

// summaryFallbackModel is used when neither the agent's summary_model nor
// the caller's request model is set (spec §4.6 Open Questions: pinned
// but not version-bumped).
const summaryFallbackModel = "gpt-4o-mini"

const summaryPromptPrefix = "Summarize the conversation below in a concise paragraph, preserving key facts, decisions and open questions. Reply with the summary only.\n\n"

// summarize issues the single-turn summarisation sub-call of spec §4.6,
// model precedence: agent.SummaryModel, then the caller's request model,
// then summaryFallbackModel.
func (h *Handler) summarize(ctx context.Context, prov provider.Provider, agent *store.Agent, loaded *convo.LoadedContext, callerModel string) (string, error) {
	model := callerModel
	if agent.SummaryModel != nil && *agent.SummaryModel != "" {
		model = *agent.SummaryModel
	}
	if model == "" {
		model = summaryFallbackModel
	}

	body := map[string]any{
		"model":    model,
		"stream":   false,
		"messages": []map[string]any{{"role": "user", "content": summaryPromptPrefix + transcriptText(loaded)}},
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal summary request: %w", err)
	}

	resp, err := prov.Proxy(ctx, provider.Request{Method: http.MethodPost, Headers: http.Header{}, Body: raw})
	if err != nil {
		return "", fmt.Errorf("summary provider call: %w", err)
	}
	if resp.IsSSE() {
		_ = resp.Stream.Close()
		return "", fmt.Errorf("summary provider unexpectedly returned a streaming response")
	}
	if resp.Status < 200 || resp.Status >= 300 {
		return "", fmt.Errorf("summary provider returned status %d", resp.Status)
	}

	parsed, err := parseChatResponse(resp.Body)
	if err != nil {
		return "", err
	}
	content := parsed.assistantContent()
	if content == "" {
		return "", fmt.Errorf("summary provider returned empty content")
	}
	return content, nil
}

func transcriptText(loaded *convo.LoadedContext) string {
	var b strings.Builder
	if loaded.LatestSnapshotPlaintext != nil {
		b.WriteString("Prior summary: ")
		b.WriteString(*loaded.LatestSnapshotPlaintext)
		b.WriteString("\n")
	}
	for _, m := range loaded.Messages {
		b.WriteString(string(m.Role))
		b.WriteString(": ")
		b.WriteString(m.Text)
		b.WriteString("\n")
	}
	return b.String()
}
