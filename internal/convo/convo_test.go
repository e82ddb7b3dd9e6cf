package convo

import "testing"

func TestEstimateTokens(t *testing.T) {
	cases := []struct {
		text string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
		{"abcdefgh", 2},
	}
	for _, c := range cases {
		if got := EstimateTokens(c.text); got != c.want {
			t.Fatalf("EstimateTokens(%q) = %d, want %d", c.text, got, c.want)
		}
	}
}

func TestNeedsSnapshot(t *testing.T) {
	if NeedsSnapshot(100, 4000) {
		t.Fatal("100 tokens should not trip a 4000 token limit")
	}
	if !NeedsSnapshot(4001, 4000) {
		t.Fatal("exceeding the limit must require a snapshot")
	}
	if NeedsSnapshot(4000, 4000) {
		t.Fatal("exactly at the limit must not require a snapshot (strictly greater-than)")
	}
}

func TestBuildInjectionMessagesWithSnapshot(t *testing.T) {
	summary := "previous conversation summary"
	ctx := LoadedContext{
		LatestSnapshotPlaintext: &summary,
		Messages: []ContextMessage{
			{Role: "user", Text: "hello"},
			{Role: "assistant", Text: "hi"},
		},
	}
	m := &Manager{}
	out := m.BuildInjectionMessages(ctx)
	if len(out) != 3 {
		t.Fatalf("expected 3 injection messages (1 synthetic system + 2 history), got %d", len(out))
	}
	if out[0].Role != "system" || out[0].Text != summary {
		t.Fatalf("expected first message to be the synthetic system summary, got %+v", out[0])
	}
	if out[1].Role != "user" || out[2].Role != "assistant" {
		t.Fatalf("expected history messages to retain their roles in order, got %+v", out[1:])
	}
}

func TestBuildInjectionMessagesNoSnapshot(t *testing.T) {
	ctx := LoadedContext{Messages: []ContextMessage{{Role: "user", Text: "hi"}}}
	m := &Manager{}
	out := m.BuildInjectionMessages(ctx)
	if len(out) != 1 || out[0].Role != "user" {
		t.Fatalf("with no snapshot, expected only the history message, got %+v", out)
	}
}
