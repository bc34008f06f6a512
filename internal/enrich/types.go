// Package enrich implements the session enricher (component C): a pure
// fold from an ordered sequence of schema.ParsedMessage into the derived
// structures of spec §3.4 — turns, reconstituted responses, paired tool
// calls, totals, tool stats, subagent references, and context snapshots.
package enrich

import "github.com/pruett/fleet-sub000/internal/schema"

// Turn is one conversational round: a real (non-meta) user prompt plus
// everything up to the next one.
type Turn struct {
	TurnIndex     int
	PromptText    string
	PromptUUID    string
	DurationMs    *int
	ResponseCount int
	ToolUseCount  int
	IsMeta        bool
}

// ReconstitutedResponse groups the content blocks of a single assistant
// generation, deduplicated by MessageID.
type ReconstitutedResponse struct {
	MessageID      string
	Model          string
	Blocks         []schema.ContentBlock
	Usage          schema.TokenUsage
	IsSynthetic    bool
	TurnIndex      *int
	LineIndexStart int
	LineIndexEnd   int
}

// ToolResultRef is the matching tool_result half of a PairedToolCall.
type ToolResultRef struct {
	ToolUseID string
	Content   any
	IsError   bool
}

// PairedToolCall joins a tool_use content block with its (optional)
// tool_result item from a later user-tool-result message.
type PairedToolCall struct {
	ToolUseID       string
	ToolName        string
	Input           map[string]any
	ToolUseBlock    schema.ToolUseBlock
	ToolResultBlock *ToolResultRef
	TurnIndex       *int
}

// TokenTotals sums token usage and estimated cost across all deduplicated
// responses.
type TokenTotals struct {
	InputTokens              int
	OutputTokens             int
	TotalTokens              int
	CacheCreationInputTokens int
	CacheReadInputTokens     int
	EstimatedCostUsd         float64
	ToolUseCount             int
}

// ErrorSample is one failed tool invocation recorded against a ToolStat.
type ErrorSample struct {
	ToolUseID string
	ErrorText string
	TurnIndex *int
}

// ToolStat aggregates call/error counts for one tool name.
type ToolStat struct {
	ToolName     string
	CallCount    int
	ErrorCount   int
	ErrorSamples []ErrorSample
}

// SubagentStats is populated once the parent's tool_result reports the
// child agent has finished.
type SubagentStats struct {
	TotalDurationMs   int
	TotalTokens       int
	TotalToolUseCount int
}

// SubagentRef tracks one child agent spawned via a Task-like tool.
type SubagentRef struct {
	AgentID         string
	Prompt          string
	ParentToolUseID string
	Stats           *SubagentStats
}

// ContextSnapshot is the cumulative token usage after one non-synthetic
// response, used to plot context-window utilization over a session.
type ContextSnapshot struct {
	MessageID             string
	TurnIndex             *int
	CumulativeInputTokens  int
	CumulativeOutputTokens int
}

// EnrichedSession is the complete output of Enrich.
type EnrichedSession struct {
	Messages         []schema.ParsedMessage
	Turns            []Turn
	Responses        []ReconstitutedResponse
	ToolCalls        []PairedToolCall
	Totals           TokenTotals
	ToolStats        []ToolStat
	Subagents        []SubagentRef
	ContextSnapshots []ContextSnapshot
}

func intPtr(v int) *int { return &v }
