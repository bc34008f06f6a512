package enrich

import (
	"testing"

	"github.com/pruett/fleet-sub000/internal/schema"
)

func userPrompt(line int, uuid, text string, isMeta bool) schema.UserPrompt {
	return schema.UserPrompt{
		Common: schema.Common{UUID: uuid, SessionID: "s1", LineIndex: line},
		Text:   text,
		IsMeta: isMeta,
	}
}

func assistantText(line int, uuid, messageID, model, text string, usage schema.TokenUsage, synthetic bool) schema.AssistantBlock {
	return schema.AssistantBlock{
		Common:       schema.Common{UUID: uuid, SessionID: "s1", LineIndex: line},
		MessageID:    messageID,
		Model:        model,
		ContentBlock: schema.TextBlock{Text: text},
		Usage:        usage,
		IsSynthetic:  synthetic,
	}
}

func assistantToolUse(line int, uuid, messageID, model, toolUseID, toolName string, usage schema.TokenUsage) schema.AssistantBlock {
	return schema.AssistantBlock{
		Common:       schema.Common{UUID: uuid, SessionID: "s1", LineIndex: line},
		MessageID:    messageID,
		Model:        model,
		ContentBlock: schema.ToolUseBlock{ID: toolUseID, Name: toolName, Input: map[string]any{}},
		Usage:        usage,
	}
}

// Every response's turnIndex must land within [0, len(turns)) once turns
// is non-empty, and responseCount sums to exactly len(responses).
func TestEnrichResponseCountInvariant(t *testing.T) {
	messages := []schema.ParsedMessage{
		userPrompt(0, "u1", "hi", false),
		assistantText(1, "a1", "m1", "claude-opus-4-6", "hello", schema.TokenUsage{InputTokens: 1, OutputTokens: 1}, false),
		assistantText(2, "a2", "m2", "claude-opus-4-6", "more", schema.TokenUsage{InputTokens: 1, OutputTokens: 1}, false),
	}
	session := Enrich(messages)
	if len(session.Turns) != 1 {
		t.Fatalf("len(Turns) = %d, want 1", len(session.Turns))
	}
	total := 0
	for _, turn := range session.Turns {
		total += turn.ResponseCount
	}
	if total != len(session.Responses) {
		t.Errorf("sum(ResponseCount) = %d, want %d", total, len(session.Responses))
	}
}

// Multiple assistant-blocks sharing a messageId dedup into one response,
// and usage comes from the LAST block, not a sum.
func TestEnrichResponseDedupUsesLastUsage(t *testing.T) {
	messages := []schema.ParsedMessage{
		userPrompt(0, "u1", "hi", false),
		assistantText(1, "a1", "m1", "claude-opus-4-6", "first block", schema.TokenUsage{InputTokens: 5, OutputTokens: 5}, false),
		assistantToolUse(2, "a2", "m1", "claude-opus-4-6", "tu1", "Bash", schema.TokenUsage{InputTokens: 9, OutputTokens: 20}),
	}
	session := Enrich(messages)
	if len(session.Responses) != 1 {
		t.Fatalf("len(Responses) = %d, want 1", len(session.Responses))
	}
	r := session.Responses[0]
	if len(r.Blocks) != 2 {
		t.Errorf("len(Blocks) = %d, want 2", len(r.Blocks))
	}
	if r.Usage.InputTokens != 9 || r.Usage.OutputTokens != 20 {
		t.Errorf("Usage = %#v, want last block's usage (9, 20)", r.Usage)
	}
}

// Tool call pairing: a tool_use block gets its matching tool_result
// attached, and the owning turn's toolUseCount increments once.
func TestEnrichToolCallPairing(t *testing.T) {
	messages := []schema.ParsedMessage{
		userPrompt(0, "u1", "run ls", false),
		assistantToolUse(1, "a1", "m1", "claude-opus-4-6", "tu1", "Bash", schema.TokenUsage{InputTokens: 1, OutputTokens: 1}),
		schema.UserToolResult{
			Common: schema.Common{UUID: "u2", SessionID: "s1", LineIndex: 2},
			Results: []schema.ToolResultItem{
				{ToolUseID: "tu1", Content: "file1\nfile2", IsError: false},
			},
		},
	}
	session := Enrich(messages)
	if len(session.ToolCalls) != 1 {
		t.Fatalf("len(ToolCalls) = %d, want 1", len(session.ToolCalls))
	}
	call := session.ToolCalls[0]
	if call.ToolResultBlock == nil {
		t.Fatal("ToolResultBlock is nil, want matched result")
	}
	if call.ToolResultBlock.Content != "file1\nfile2" {
		t.Errorf("ToolResultBlock.Content = %v", call.ToolResultBlock.Content)
	}
	if session.Turns[0].ToolUseCount != 1 {
		t.Errorf("Turns[0].ToolUseCount = %d, want 1", session.Turns[0].ToolUseCount)
	}
}

// Messages before the first non-meta user-prompt (or none at all) fall
// back to turn 0, never a negative index.
func TestEnrichMetaPromptFallsBackToTurnZero(t *testing.T) {
	messages := []schema.ParsedMessage{
		userPrompt(0, "meta1", "system init", true),
		assistantText(1, "a1", "m1", "claude-opus-4-6", "ack", schema.TokenUsage{InputTokens: 1, OutputTokens: 1}, false),
	}
	session := Enrich(messages)
	if len(session.Turns) != 0 {
		t.Fatalf("len(Turns) = %d, want 0 (meta prompt doesn't start a turn)", len(session.Turns))
	}
	if len(session.Responses) != 1 {
		t.Fatalf("len(Responses) = %d, want 1", len(session.Responses))
	}
	if *session.Responses[0].TurnIndex != 0 {
		t.Errorf("TurnIndex = %d, want 0", *session.Responses[0].TurnIndex)
	}
}

// TokenTotals.TotalTokens is input+output WITHOUT cache, even when cache
// fields are present and non-zero.
func TestEnrichTotalTokensExcludesCache(t *testing.T) {
	cacheCreate, cacheRead := 100, 200
	usage := schema.TokenUsage{
		InputTokens:              10,
		OutputTokens:             20,
		CacheCreationInputTokens: &cacheCreate,
		CacheReadInputTokens:     &cacheRead,
	}
	messages := []schema.ParsedMessage{
		userPrompt(0, "u1", "hi", false),
		assistantText(1, "a1", "m1", "claude-opus-4-6", "hello", usage, false),
	}
	session := Enrich(messages)
	if session.Totals.TotalTokens != 30 {
		t.Errorf("TotalTokens = %d, want 30 (10+20, no cache)", session.Totals.TotalTokens)
	}
	if session.Totals.CacheCreationInputTokens != 100 || session.Totals.CacheReadInputTokens != 200 {
		t.Errorf("cache totals = %d/%d, want 100/200", session.Totals.CacheCreationInputTokens, session.Totals.CacheReadInputTokens)
	}
}

// An unknown model contributes exactly zero cost.
func TestEnrichCostForUnknownModelIsZero(t *testing.T) {
	messages := []schema.ParsedMessage{
		userPrompt(0, "u1", "hi", false),
		assistantText(1, "a1", "m1", "some-future-model", "hello", schema.TokenUsage{InputTokens: 1_000_000, OutputTokens: 1_000_000}, false),
	}
	session := Enrich(messages)
	if session.Totals.EstimatedCostUsd != 0 {
		t.Errorf("EstimatedCostUsd = %v, want 0 for unknown model", session.Totals.EstimatedCostUsd)
	}
}

// A more specific prefix match (claude-opus-4-6) must not be shadowed by
// its shorter ancestor (claude-opus-4).
func TestEnrichOpusFourSixPricingNotShadowedByOpusFour(t *testing.T) {
	cost46 := computeCost(1_000_000, 0, 0, 0, "claude-opus-4-6")
	cost4 := computeCost(1_000_000, 0, 0, 0, "claude-opus-4")
	if cost46 == cost4 {
		t.Errorf("claude-opus-4-6 cost (%v) should differ from claude-opus-4 cost (%v)", cost46, cost4)
	}
	if cost46 != 18 {
		t.Errorf("claude-opus-4-6 cost = %v, want 18", cost46)
	}
}

// Context snapshots skip synthetic responses: only the non-synthetic
// response's usage (10 in / 5 out) feeds the cumulative counts, even
// though the synthetic one still counts toward the session totals.
func TestEnrichContextSnapshotsSkipSynthetic(t *testing.T) {
	messages := []schema.ParsedMessage{
		userPrompt(0, "u1", "hi", false),
		assistantText(1, "a1", "m1", "claude-opus-4-6", "retry notice", schema.TokenUsage{InputTokens: 50, OutputTokens: 50}, true),
		assistantText(2, "a2", "m2", "claude-opus-4-6", "real answer", schema.TokenUsage{InputTokens: 10, OutputTokens: 5}, false),
	}
	session := Enrich(messages)
	if len(session.ContextSnapshots) != 1 {
		t.Fatalf("len(ContextSnapshots) = %d, want 1 (synthetic response skipped)", len(session.ContextSnapshots))
	}
	snap := session.ContextSnapshots[0]
	if snap.CumulativeInputTokens != 10 || snap.CumulativeOutputTokens != 5 {
		t.Errorf("snapshot = %#v, want cumulative 10/5", snap)
	}
}

// Tool error samples never use Go's default stringification for a
// non-string content value; they fall back to a JSON serialization.
func TestEnrichErrorSampleSerializesNonStringContent(t *testing.T) {
	messages := []schema.ParsedMessage{
		userPrompt(0, "u1", "run it", false),
		assistantToolUse(1, "a1", "m1", "claude-opus-4-6", "tu1", "Bash", schema.TokenUsage{InputTokens: 1, OutputTokens: 1}),
		schema.UserToolResult{
			Common: schema.Common{UUID: "u2", SessionID: "s1", LineIndex: 2},
			Results: []schema.ToolResultItem{
				{ToolUseID: "tu1", Content: map[string]any{"code": float64(1)}, IsError: true},
			},
		},
	}
	session := Enrich(messages)
	if len(session.ToolStats) != 1 {
		t.Fatalf("len(ToolStats) = %d, want 1", len(session.ToolStats))
	}
	stat := session.ToolStats[0]
	if stat.ErrorCount != 1 || len(stat.ErrorSamples) != 1 {
		t.Fatalf("stat = %#v", stat)
	}
	if stat.ErrorSamples[0].ErrorText == "[object Object]" || stat.ErrorSamples[0].ErrorText == "" {
		t.Errorf("ErrorText = %q, want a JSON-serialized fallback", stat.ErrorSamples[0].ErrorText)
	}
}

// Subagent refs dedup by agentId on first sighting; duplicate
// progress-agent messages for the same id are ignored.
func TestEnrichSubagentDedup(t *testing.T) {
	totalDuration, totalTokens, totalToolUse := 1000, 500, 3
	messages := []schema.ParsedMessage{
		schema.ProgressAgent{LineIndex: 0, AgentID: "agent1", Prompt: "investigate", ParentToolUseID: "tu1"},
		schema.ProgressAgent{LineIndex: 1, AgentID: "agent1", Prompt: "investigate again", ParentToolUseID: "tu1"},
		schema.UserToolResult{
			Common: schema.Common{UUID: "u1", SessionID: "s1", LineIndex: 2},
			ToolUseResult: &schema.ToolUseResult{
				AgentID:           strPtr("agent1"),
				TotalDurationMs:   &totalDuration,
				TotalTokens:       &totalTokens,
				TotalToolUseCount: &totalToolUse,
			},
		},
	}
	session := Enrich(messages)
	if len(session.Subagents) != 1 {
		t.Fatalf("len(Subagents) = %d, want 1 (dedup by agentId)", len(session.Subagents))
	}
	ref := session.Subagents[0]
	if ref.Prompt != "investigate" {
		t.Errorf("Prompt = %q, want first-sighting value", ref.Prompt)
	}
	if ref.Stats == nil || ref.Stats.TotalTokens != 500 {
		t.Errorf("Stats = %#v", ref.Stats)
	}
}

func strPtr(s string) *string { return &s }

// Enrich never panics on malformed or hidden-kind messages interleaved
// with real ones, and they pass through Messages untouched without
// participating in derived structures.
func TestEnrichPassesThroughMalformed(t *testing.T) {
	messages := []schema.ParsedMessage{
		schema.Malformed{LineIndex: 0, Raw: "{broke", Error: "Invalid JSON: unexpected end of input"},
		userPrompt(1, "u1", "hi", false),
		assistantText(2, "a1", "m1", "claude-opus-4-6", "hello", schema.TokenUsage{InputTokens: 1, OutputTokens: 1}, false),
	}
	session := Enrich(messages)
	if len(session.Messages) != 3 {
		t.Fatalf("len(Messages) = %d, want 3", len(session.Messages))
	}
	if _, ok := session.Messages[0].(schema.Malformed); !ok {
		t.Errorf("Messages[0] = %T, want schema.Malformed", session.Messages[0])
	}
	if len(session.Turns) != 1 || len(session.Responses) != 1 {
		t.Errorf("Turns/Responses = %d/%d, want 1/1 (malformed line excluded)", len(session.Turns), len(session.Responses))
	}
}
