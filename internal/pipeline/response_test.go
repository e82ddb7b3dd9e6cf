package pipeline

import "testing"

func TestParseChatResponseUsageAndContent(t *testing.T) {
	raw := []byte(`{
		"choices":[{"message":{"role":"assistant","content":"hi there"}}],
		"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}
	}`)
	resp, err := parseChatResponse(raw)
	if err != nil {
		t.Fatalf("parseChatResponse: %v", err)
	}
	if resp.assistantContent() != "hi there" {
		t.Fatalf("expected assistant content, got %q", resp.assistantContent())
	}
	u := resp.usage()
	if u.prompt != 10 || u.completion != 5 || u.total != 15 {
		t.Fatalf("unexpected usage: %+v", u)
	}
}

func TestParseChatResponseToolCalls(t *testing.T) {
	raw := []byte(`{"choices":[{"message":{"role":"assistant","tool_calls":[
		{"id":"call_1","function":{"name":"get_weather","arguments":"{\"city\":\"nyc\"}"}}
	]}}]}`)
	resp, err := parseChatResponse(raw)
	if err != nil {
		t.Fatalf("parseChatResponse: %v", err)
	}
	calls := resp.toolCalls()
	if len(calls) != 1 || calls[0].Name != "get_weather" || calls[0].ID != "call_1" {
		t.Fatalf("unexpected tool calls: %+v", calls)
	}
	if string(calls[0].Arguments) != `{"city":"nyc"}` {
		t.Fatalf("unexpected arguments: %s", calls[0].Arguments)
	}
}

func TestParseChatResponseNoChoicesYieldsNothing(t *testing.T) {
	resp, err := parseChatResponse([]byte(`{"usage":{}}`))
	if err != nil {
		t.Fatalf("parseChatResponse: %v", err)
	}
	if resp.assistantContent() != "" {
		t.Fatalf("expected empty content, got %q", resp.assistantContent())
	}
	if calls := resp.toolCalls(); calls != nil {
		t.Fatalf("expected no tool calls, got %+v", calls)
	}
}
