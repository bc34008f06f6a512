package enrich

import (
	"encoding/json"

	"github.com/pruett/fleet-sub000/internal/schema"
)

// Enrich folds an ordered sequence of parsed messages into an
// EnrichedSession. It is a pure function — callable from any goroutine,
// never mutates its input, never fails. Phases run in the order of
// spec §4.2.
func Enrich(messages []schema.ParsedMessage) EnrichedSession {
	lineToTurn, turns, promptUUIDToTurn := buildTurns(messages)
	_, responseOrder := reconstituteResponses(messages, lineToTurn, turns)
	toolCalls := pairToolCalls(messages, lineToTurn, turns)
	totals := computeTotals(responseOrder, toolCalls)
	toolStats := computeToolStats(toolCalls)
	subagents := computeSubagents(messages)
	snapshots := computeContextSnapshots(responseOrder)

	_ = promptUUIDToTurn
	return EnrichedSession{
		Messages:         messages,
		Turns:            turns,
		Responses:        responseOrder,
		ToolCalls:        toolCalls,
		Totals:           totals,
		ToolStats:        toolStats,
		Subagents:        subagents,
		ContextSnapshots: snapshots,
	}
}

// buildTurns implements §4.2.1.
func buildTurns(messages []schema.ParsedMessage) (map[int]int, []Turn, map[string]int) {
	lineToTurn := make(map[int]int, len(messages))
	promptUUIDToTurn := make(map[string]int)
	var turns []Turn

	currentTurnIndex := -1
	for _, msg := range messages {
		if up, ok := msg.(schema.UserPrompt); ok && !up.IsMeta {
			currentTurnIndex++
			turns = append(turns, Turn{
				TurnIndex:  currentTurnIndex,
				PromptText: up.Text,
				PromptUUID: up.UUID,
			})
			promptUUIDToTurn[up.UUID] = currentTurnIndex
		}
		idx := currentTurnIndex
		if idx < 0 {
			idx = 0
		}
		lineToTurn[msg.Line()] = idx
	}

	for _, msg := range messages {
		td, ok := msg.(schema.SystemTurnDuration)
		if !ok {
			continue
		}
		if turnIdx, found := promptUUIDToTurn[td.ParentUUID]; found {
			durationMs := td.DurationMs
			turns[turnIdx].DurationMs = &durationMs
		}
	}

	return lineToTurn, turns, promptUUIDToTurn
}

// reconstituteResponses implements §4.2.2. Returns both a map keyed by
// MessageID and the ordered slice in first-appearance order; Enrich uses
// only the slice.
func reconstituteResponses(messages []schema.ParsedMessage, lineToTurn map[int]int, turns []Turn) (map[string]*ReconstitutedResponse, []ReconstitutedResponse) {
	type group struct {
		blocks []schema.AssistantBlock
	}
	order := make([]string, 0)
	groups := make(map[string]*group)

	for _, msg := range messages {
		ab, ok := msg.(schema.AssistantBlock)
		if !ok {
			continue
		}
		g, exists := groups[ab.MessageID]
		if !exists {
			g = &group{}
			groups[ab.MessageID] = g
			order = append(order, ab.MessageID)
		}
		g.blocks = append(g.blocks, ab)
	}

	byID := make(map[string]*ReconstitutedResponse, len(order))
	ordered := make([]ReconstitutedResponse, 0, len(order))

	for _, id := range order {
		blocks := groups[id].blocks
		// Stable sort by LineIndex ascending; blocks typically already
		// arrive in order but sort defensively.
		for i := 1; i < len(blocks); i++ {
			for j := i; j > 0 && blocks[j].LineIndex < blocks[j-1].LineIndex; j-- {
				blocks[j], blocks[j-1] = blocks[j-1], blocks[j]
			}
		}

		first := blocks[0]
		last := blocks[len(blocks)-1]
		contentBlocks := make([]schema.ContentBlock, len(blocks))
		for i, b := range blocks {
			contentBlocks[i] = b.ContentBlock
		}

		turnIdx := lineToTurn[first.LineIndex]
		resp := ReconstitutedResponse{
			MessageID:      id,
			Model:          first.Model,
			Blocks:         contentBlocks,
			Usage:          last.Usage,
			IsSynthetic:    first.IsSynthetic,
			TurnIndex:      intPtr(turnIdx),
			LineIndexStart: first.LineIndex,
			LineIndexEnd:   last.LineIndex,
		}
		if turnIdx < len(turns) {
			turns[turnIdx].ResponseCount++
		}
		ordered = append(ordered, resp)
	}
	for i := range ordered {
		byID[ordered[i].MessageID] = &ordered[i]
	}
	return byID, ordered
}

// pairToolCalls implements §4.2.3.
func pairToolCalls(messages []schema.ParsedMessage, lineToTurn map[int]int, turns []Turn) []PairedToolCall {
	var calls []PairedToolCall
	index := make(map[string]int) // toolUseId -> index into calls

	for _, msg := range messages {
		ab, ok := msg.(schema.AssistantBlock)
		if !ok {
			continue
		}
		tu, ok := ab.ContentBlock.(schema.ToolUseBlock)
		if !ok {
			continue
		}
		turnIdx := lineToTurn[ab.LineIndex]
		calls = append(calls, PairedToolCall{
			ToolUseID:    tu.ID,
			ToolName:     tu.Name,
			Input:        tu.Input,
			ToolUseBlock: tu,
			TurnIndex:    intPtr(turnIdx),
		})
		index[tu.ID] = len(calls) - 1
		if turnIdx < len(turns) {
			turns[turnIdx].ToolUseCount++
		}
	}

	for _, msg := range messages {
		tr, ok := msg.(schema.UserToolResult)
		if !ok {
			continue
		}
		for _, item := range tr.Results {
			i, found := index[item.ToolUseID]
			if !found {
				continue
			}
			calls[i].ToolResultBlock = &ToolResultRef{
				ToolUseID: item.ToolUseID,
				Content:   item.Content,
				IsError:   item.IsError,
			}
		}
	}

	return calls
}

// computeTotals implements §4.2.4.
func computeTotals(responses []ReconstitutedResponse, toolCalls []PairedToolCall) TokenTotals {
	var t TokenTotals
	for _, r := range responses {
		t.InputTokens += r.Usage.InputTokens
		t.OutputTokens += r.Usage.OutputTokens
		t.CacheCreationInputTokens += r.Usage.CacheCreation()
		t.CacheReadInputTokens += r.Usage.CacheRead()
		t.EstimatedCostUsd += computeCost(
			r.Usage.InputTokens,
			r.Usage.OutputTokens,
			r.Usage.CacheCreation(),
			r.Usage.CacheRead(),
			r.Model,
		)
	}
	t.TotalTokens = t.InputTokens + t.OutputTokens
	t.ToolUseCount = len(toolCalls)
	return t
}

// computeToolStats implements §4.2.5.
func computeToolStats(toolCalls []PairedToolCall) []ToolStat {
	order := make([]string, 0)
	byName := make(map[string]*ToolStat)

	for _, call := range toolCalls {
		stat, ok := byName[call.ToolName]
		if !ok {
			stat = &ToolStat{ToolName: call.ToolName}
			byName[call.ToolName] = stat
			order = append(order, call.ToolName)
		}
		stat.CallCount++
		if call.ToolResultBlock != nil && call.ToolResultBlock.IsError {
			stat.ErrorCount++
			stat.ErrorSamples = append(stat.ErrorSamples, ErrorSample{
				ToolUseID: call.ToolUseID,
				ErrorText: errorText(call.ToolResultBlock.Content),
				TurnIndex: call.TurnIndex,
			})
		}
	}

	stats := make([]ToolStat, 0, len(order))
	for _, name := range order {
		stats = append(stats, *byName[name])
	}
	return stats
}

func errorText(content any) string {
	if s, ok := content.(string); ok {
		return s
	}
	b, err := json.Marshal(content)
	if err != nil {
		return ""
	}
	return string(b)
}

// computeSubagents implements §4.2.6.
func computeSubagents(messages []schema.ParsedMessage) []SubagentRef {
	order := make([]string, 0)
	byID := make(map[string]*SubagentRef)

	for _, msg := range messages {
		pa, ok := msg.(schema.ProgressAgent)
		if !ok {
			continue
		}
		if _, seen := byID[pa.AgentID]; seen {
			continue
		}
		ref := &SubagentRef{
			AgentID:         pa.AgentID,
			Prompt:          pa.Prompt,
			ParentToolUseID: pa.ParentToolUseID,
		}
		byID[pa.AgentID] = ref
		order = append(order, pa.AgentID)
	}

	for _, msg := range messages {
		tr, ok := msg.(schema.UserToolResult)
		if !ok || tr.ToolUseResult == nil || tr.ToolUseResult.AgentID == nil {
			continue
		}
		ref, ok := byID[*tr.ToolUseResult.AgentID]
		if !ok {
			continue
		}
		r := tr.ToolUseResult
		if r.TotalDurationMs != nil && r.TotalTokens != nil && r.TotalToolUseCount != nil {
			ref.Stats = &SubagentStats{
				TotalDurationMs:   *r.TotalDurationMs,
				TotalTokens:       *r.TotalTokens,
				TotalToolUseCount: *r.TotalToolUseCount,
			}
		}
	}

	refs := make([]SubagentRef, 0, len(order))
	for _, id := range order {
		refs = append(refs, *byID[id])
	}
	return refs
}

// computeContextSnapshots implements §4.2.7.
func computeContextSnapshots(responses []ReconstitutedResponse) []ContextSnapshot {
	var snapshots []ContextSnapshot
	cumInput, cumOutput := 0, 0
	for _, r := range responses {
		if r.IsSynthetic {
			continue
		}
		cumInput += r.Usage.InputTokens + r.Usage.CacheRead() + r.Usage.CacheCreation()
		cumOutput += r.Usage.OutputTokens
		snapshots = append(snapshots, ContextSnapshot{
			MessageID:              r.MessageID,
			TurnIndex:              r.TurnIndex,
			CumulativeInputTokens:  cumInput,
			CumulativeOutputTokens: cumOutput,
		})
	}
	return snapshots
}
