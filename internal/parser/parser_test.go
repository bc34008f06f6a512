package parser

import (
	"testing"

	"github.com/pruett/fleet-sub000/internal/schema"
)

func TestParseLineBlank(t *testing.T) {
	cases := []string{"", "   ", "\t\n"}
	for _, c := range cases {
		if got := ParseLine(c, 0); got != nil {
			t.Errorf("ParseLine(%q) = %#v, want nil", c, got)
		}
	}
}

func TestParseLineInvalidJSON(t *testing.T) {
	got := ParseLine("{not json", 3)
	m, ok := got.(schema.Malformed)
	if !ok {
		t.Fatalf("got %T, want schema.Malformed", got)
	}
	if m.LineIndex != 3 {
		t.Errorf("LineIndex = %d, want 3", m.LineIndex)
	}
	if want := "Invalid JSON:"; len(m.Error) < len(want) || m.Error[:len(want)] != want {
		t.Errorf("Error = %q, want prefix %q", m.Error, want)
	}
}

func TestParseLineUnknownType(t *testing.T) {
	got := ParseLine(`{"type":"bogus"}`, 1)
	m, ok := got.(schema.Malformed)
	if !ok {
		t.Fatalf("got %T, want schema.Malformed", got)
	}
	if m.Error == "" {
		t.Fatal("expected non-empty error")
	}
}

func TestParseLineUserPrompt(t *testing.T) {
	raw := `{"type":"user","uuid":"u1","sessionId":"s1","timestamp":"2026-01-01T00:00:00Z","message":{"content":"Hello"}}`
	got := ParseLine(raw, 0)
	up, ok := got.(schema.UserPrompt)
	if !ok {
		t.Fatalf("got %T, want schema.UserPrompt", got)
	}
	if up.Text != "Hello" {
		t.Errorf("Text = %q, want Hello", up.Text)
	}
	if up.IsMeta {
		t.Error("IsMeta should default to false")
	}
	if up.Line() != 0 {
		t.Errorf("Line() = %d, want 0", up.Line())
	}
}

func TestParseLineUserToolResult(t *testing.T) {
	raw := `{"type":"user","uuid":"u2","sessionId":"s1","timestamp":"t","message":{"content":[{"tool_use_id":"tu1","content":"ok","is_error":false}]}}`
	got := ParseLine(raw, 2)
	tr, ok := got.(schema.UserToolResult)
	if !ok {
		t.Fatalf("got %T, want schema.UserToolResult", got)
	}
	if len(tr.Results) != 1 || tr.Results[0].ToolUseID != "tu1" {
		t.Errorf("Results = %#v", tr.Results)
	}
}

func TestParseLineAssistantBlockRequiresExactlyOne(t *testing.T) {
	raw := `{"type":"assistant","uuid":"u3","sessionId":"s1","timestamp":"t","message":{"id":"m1","model":"claude-x","content":[]}}`
	got := ParseLine(raw, 0)
	if _, ok := got.(schema.Malformed); !ok {
		t.Fatalf("got %T, want schema.Malformed for empty content", got)
	}

	raw2 := `{"type":"assistant","uuid":"u3","sessionId":"s1","timestamp":"t","message":{"id":"m1","model":"claude-x","content":[{"type":"text","text":"a"},{"type":"text","text":"b"}]}}`
	got2 := ParseLine(raw2, 0)
	if _, ok := got2.(schema.Malformed); !ok {
		t.Fatalf("got %T, want schema.Malformed for two blocks", got2)
	}
}

func TestParseLineAssistantBlockValid(t *testing.T) {
	raw := `{"type":"assistant","uuid":"u4","sessionId":"s1","timestamp":"t","message":{"id":"m1","model":"claude-opus-4-6","content":[{"type":"tool_use","id":"tu1","name":"Bash","input":{"cmd":"ls"}}],"usage":{"inputTokens":10,"outputTokens":5}}}`
	got := ParseLine(raw, 1)
	ab, ok := got.(schema.AssistantBlock)
	if !ok {
		t.Fatalf("got %T, want schema.AssistantBlock", got)
	}
	tb, ok := ab.ContentBlock.(schema.ToolUseBlock)
	if !ok {
		t.Fatalf("ContentBlock = %T, want schema.ToolUseBlock", ab.ContentBlock)
	}
	if tb.Name != "Bash" {
		t.Errorf("Name = %q, want Bash", tb.Name)
	}
	if ab.Usage.InputTokens != 10 || ab.Usage.OutputTokens != 5 {
		t.Errorf("Usage = %#v", ab.Usage)
	}
}

func TestParseLineSystemUnknownSubtype(t *testing.T) {
	got := ParseLine(`{"type":"system","subtype":"mystery"}`, 0)
	m, ok := got.(schema.Malformed)
	if !ok {
		t.Fatalf("got %T, want schema.Malformed", got)
	}
	if !contains(m.Error, "mystery") {
		t.Errorf("Error = %q, want to contain mystery", m.Error)
	}
}

func TestParseLineProgressUnknownDataType(t *testing.T) {
	got := ParseLine(`{"type":"progress","data":{"type":"mystery_progress"}}`, 0)
	m, ok := got.(schema.Malformed)
	if !ok {
		t.Fatalf("got %T, want schema.Malformed", got)
	}
	if !contains(m.Error, "mystery_progress") {
		t.Errorf("Error = %q, want to contain mystery_progress", m.Error)
	}
}

func TestParseLineLineIndexPreservedOnMalformed(t *testing.T) {
	got := ParseLine("not json at all", 42)
	m := got.(schema.Malformed)
	if m.LineIndex != 42 {
		t.Errorf("LineIndex = %d, want 42", m.LineIndex)
	}
	if m.Raw != "not json at all" {
		t.Errorf("Raw = %q", m.Raw)
	}
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
