// Package parser decodes raw transcript lines into schema.ParsedMessage
// values. It is grounded on the line-by-line, tolerant-decode approach of
// the claude-insights-agent JSONL reader (RawEntry + type switch on
// "type"), adapted so that a decode failure produces a schema.Malformed
// value instead of being silently skipped — the parser never throws.
package parser

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pruett/fleet-sub000/internal/schema"
)

// rawRecord is the superset of fields any of the six top-level transcript
// record shapes might carry. Unused fields for a given "type" are left at
// their zero value.
type rawRecord struct {
	Type       string          `json:"type"`
	Subtype    string          `json:"subtype"`
	UUID       string          `json:"uuid"`
	ParentUUID *string         `json:"parentUuid"`
	SessionID  string          `json:"sessionId"`
	Timestamp  string          `json:"timestamp"`
	IsMeta     *bool           `json:"isMeta"`

	Message json.RawMessage `json:"message"`

	// user-tool-result metadata, sibling to Message.
	ToolUseResult json.RawMessage `json:"toolUseResult"`

	// assistant "api error" flag.
	IsAPIErrorMessage *bool `json:"isApiErrorMessage"`

	// file-history-snapshot.
	MessageID        string          `json:"messageId"`
	Snapshot         json.RawMessage `json:"snapshot"`
	IsSnapshotUpdate *bool           `json:"isSnapshotUpdate"`

	// system.
	DurationMs   *int `json:"durationMs"`
	Error        string `json:"error"`
	RetryInMs    *int `json:"retryInMs"`
	RetryAttempt *int `json:"retryAttempt"`
	MaxRetries   *int `json:"maxRetries"`
	Content      *string `json:"content"`

	// progress.
	Data json.RawMessage `json:"data"`

	// queue-operation.
	Operation string `json:"operation"`
}

type rawMessageEnvelope struct {
	ID      string          `json:"id"`
	Model   string          `json:"model"`
	Content json.RawMessage `json:"content"`
	Usage   *rawUsage       `json:"usage"`
}

type rawUsage struct {
	InputTokens              int     `json:"inputTokens"`
	OutputTokens             int     `json:"outputTokens"`
	CacheCreationInputTokens *int    `json:"cacheCreationInputTokens"`
	CacheReadInputTokens     *int    `json:"cacheReadInputTokens"`
	ServiceTier              *string `json:"serviceTier"`
}

func (u *rawUsage) toSchema() schema.TokenUsage {
	if u == nil {
		return schema.TokenUsage{}
	}
	return schema.TokenUsage{
		InputTokens:              u.InputTokens,
		OutputTokens:             u.OutputTokens,
		CacheCreationInputTokens: u.CacheCreationInputTokens,
		CacheReadInputTokens:     u.CacheReadInputTokens,
		ServiceTier:              u.ServiceTier,
	}
}

type rawToolResultItem struct {
	ToolUseID string          `json:"tool_use_id"`
	Content   any             `json:"content"`
	IsError   *bool           `json:"is_error"`
}

type rawToolUseResult struct {
	Status            *string   `json:"status"`
	Prompt            *string   `json:"prompt"`
	AgentID           *string   `json:"agentId"`
	TotalDurationMs   *int      `json:"totalDurationMs"`
	TotalTokens       *int      `json:"totalTokens"`
	TotalToolUseCount *int      `json:"totalToolUseCount"`
	Usage             *rawUsage `json:"usage"`
}

type rawContentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text"`
	Thinking  string          `json:"thinking"`
	Signature string          `json:"signature"`
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Input     map[string]any  `json:"input"`
}

type rawSnapshot struct {
	MessageID           string         `json:"messageId"`
	TrackedFileBackups  map[string]any `json:"trackedFileBackups"`
	Timestamp           string         `json:"timestamp"`
}

type rawProgressData struct {
	Type               string  `json:"type"`
	AgentID            string  `json:"agentId"`
	Prompt             string  `json:"prompt"`
	ParentToolUseID    string  `json:"parentToolUseID"`
	Output             string  `json:"output"`
	ElapsedTimeSeconds float64 `json:"elapsedTimeSeconds"`
	HookEvent          string  `json:"hookEvent"`
	HookName           string  `json:"hookName"`
	Command            string  `json:"command"`
}

// ParseLine implements the §4.1 algorithm. It returns nil only for a blank
// (or whitespace-only) line; every other input yields a ParsedMessage,
// falling back to schema.Malformed on any decoding or shape failure.
func ParseLine(rawLine string, lineIndex int) schema.ParsedMessage {
	trimmed := strings.TrimSpace(rawLine)
	if trimmed == "" {
		return nil
	}

	var rec rawRecord
	if err := json.Unmarshal([]byte(trimmed), &rec); err != nil {
		return malformed(rawLine, lineIndex, fmt.Sprintf("Invalid JSON: %v", err))
	}

	switch rec.Type {
	case "file-history-snapshot":
		return parseFileHistorySnapshot(rec, rawLine, lineIndex)
	case "user":
		return parseUser(rec, rawLine, lineIndex)
	case "assistant":
		return parseAssistant(rec, rawLine, lineIndex)
	case "system":
		return parseSystem(rec, rawLine, lineIndex)
	case "progress":
		return parseProgress(rec, rawLine, lineIndex)
	case "queue-operation":
		return parseQueueOperation(rec, rawLine, lineIndex)
	case "":
		return malformed(rawLine, lineIndex, "missing type field")
	default:
		return malformed(rawLine, lineIndex, fmt.Sprintf("unknown type %q", rec.Type))
	}
}

func malformed(raw string, lineIndex int, reason string) schema.Malformed {
	return schema.Malformed{LineIndex: lineIndex, Raw: raw, Error: reason}
}

func common(rec rawRecord, lineIndex int) schema.Common {
	return schema.Common{
		UUID:       rec.UUID,
		ParentUUID: rec.ParentUUID,
		SessionID:  rec.SessionID,
		Timestamp:  rec.Timestamp,
		LineIndex:  lineIndex,
	}
}

func parseFileHistorySnapshot(rec rawRecord, raw string, lineIndex int) schema.ParsedMessage {
	if rec.MessageID == "" || len(rec.Snapshot) == 0 {
		return malformed(raw, lineIndex, "file-history-snapshot missing messageId or snapshot")
	}
	var snap rawSnapshot
	if err := json.Unmarshal(rec.Snapshot, &snap); err != nil {
		return malformed(raw, lineIndex, fmt.Sprintf("invalid snapshot: %v", err))
	}
	update := rec.IsSnapshotUpdate != nil && *rec.IsSnapshotUpdate
	return schema.FileHistorySnapshot{
		LineIndex: lineIndex,
		MessageID: rec.MessageID,
		Snapshot: schema.Snapshot{
			MessageID:          snap.MessageID,
			TrackedFileBackups: snap.TrackedFileBackups,
			Timestamp:          snap.Timestamp,
		},
		IsSnapshotUpdate: update,
	}
}

// parseUser implements §4.1 step 7: string content -> user-prompt, array
// content -> user-tool-result.
func parseUser(rec rawRecord, raw string, lineIndex int) schema.ParsedMessage {
	if len(rec.Message) == 0 {
		return malformed(raw, lineIndex, "user record missing message")
	}
	var peek struct {
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(rec.Message, &peek); err != nil {
		return malformed(raw, lineIndex, fmt.Sprintf("invalid message: %v", err))
	}

	trimmedContent := strings.TrimSpace(string(peek.Content))
	switch {
	case strings.HasPrefix(trimmedContent, `"`):
		var text string
		if err := json.Unmarshal(peek.Content, &text); err != nil {
			return malformed(raw, lineIndex, fmt.Sprintf("invalid user prompt text: %v", err))
		}
		isMeta := rec.IsMeta != nil && *rec.IsMeta
		return schema.UserPrompt{
			Common: common(rec, lineIndex),
			Text:   text,
			IsMeta: isMeta,
		}
	case strings.HasPrefix(trimmedContent, `[`):
		var items []rawToolResultItem
		if err := json.Unmarshal(peek.Content, &items); err != nil {
			return malformed(raw, lineIndex, fmt.Sprintf("invalid tool result content: %v", err))
		}
		results := make([]schema.ToolResultItem, 0, len(items))
		for _, item := range items {
			isErr := item.IsError != nil && *item.IsError
			results = append(results, schema.ToolResultItem{
				ToolUseID: item.ToolUseID,
				Content:   item.Content,
				IsError:   isErr,
			})
		}
		var toolUseResult *schema.ToolUseResult
		if len(rec.ToolUseResult) > 0 {
			var r rawToolUseResult
			if err := json.Unmarshal(rec.ToolUseResult, &r); err != nil {
				return malformed(raw, lineIndex, fmt.Sprintf("invalid toolUseResult: %v", err))
			}
			var usage *schema.TokenUsage
			if r.Usage != nil {
				u := r.Usage.toSchema()
				usage = &u
			}
			toolUseResult = &schema.ToolUseResult{
				Status:            r.Status,
				Prompt:            r.Prompt,
				AgentID:           r.AgentID,
				TotalDurationMs:   r.TotalDurationMs,
				TotalTokens:       r.TotalTokens,
				TotalToolUseCount: r.TotalToolUseCount,
				Usage:             usage,
			}
		}
		return schema.UserToolResult{
			Common:        common(rec, lineIndex),
			Results:       results,
			ToolUseResult: toolUseResult,
		}
	default:
		return malformed(raw, lineIndex, "user message.content is neither string nor array")
	}
}

// parseAssistant implements §4.1 step 8: exactly one content block required.
func parseAssistant(rec rawRecord, raw string, lineIndex int) schema.ParsedMessage {
	if len(rec.Message) == 0 {
		return malformed(raw, lineIndex, "assistant record missing message")
	}
	var env rawMessageEnvelope
	if err := json.Unmarshal(rec.Message, &env); err != nil {
		return malformed(raw, lineIndex, fmt.Sprintf("invalid message: %v", err))
	}
	var blocks []rawContentBlock
	if err := json.Unmarshal(env.Content, &blocks); err != nil {
		return malformed(raw, lineIndex, fmt.Sprintf("invalid content array: %v", err))
	}
	if len(blocks) != 1 {
		return malformed(raw, lineIndex, fmt.Sprintf("assistant content must have exactly one block, got %d", len(blocks)))
	}
	block, err := toContentBlock(blocks[0])
	if err != nil {
		return malformed(raw, lineIndex, err.Error())
	}
	isSynthetic := rec.IsAPIErrorMessage != nil && *rec.IsAPIErrorMessage
	return schema.AssistantBlock{
		Common:       common(rec, lineIndex),
		MessageID:    env.ID,
		Model:        env.Model,
		ContentBlock: block,
		Usage:        env.Usage.toSchema(),
		IsSynthetic:  isSynthetic,
	}
}

func toContentBlock(b rawContentBlock) (schema.ContentBlock, error) {
	switch b.Type {
	case string(schema.BlockText):
		return schema.TextBlock{Text: b.Text}, nil
	case string(schema.BlockThinking):
		return schema.ThinkingBlock{Thinking: b.Thinking, Signature: b.Signature}, nil
	case string(schema.BlockToolUse):
		return schema.ToolUseBlock{ID: b.ID, Name: b.Name, Input: b.Input}, nil
	default:
		return nil, fmt.Errorf("unknown content block type %q", b.Type)
	}
}

// parseSystem implements §4.1 step 5.
func parseSystem(rec rawRecord, raw string, lineIndex int) schema.ParsedMessage {
	switch rec.Subtype {
	case "turn_duration":
		if rec.ParentUUID == nil || rec.DurationMs == nil {
			return malformed(raw, lineIndex, "system turn_duration missing parentUuid or durationMs")
		}
		return schema.SystemTurnDuration{
			LineIndex:  lineIndex,
			ParentUUID: *rec.ParentUUID,
			DurationMs: *rec.DurationMs,
		}
	case "api_error":
		return schema.SystemAPIError{
			LineIndex:    lineIndex,
			Error:        rec.Error,
			RetryInMs:    derefInt(rec.RetryInMs),
			RetryAttempt: derefInt(rec.RetryAttempt),
			MaxRetries:   derefInt(rec.MaxRetries),
		}
	case "local_command":
		if rec.Content == nil {
			return malformed(raw, lineIndex, "system local_command missing content")
		}
		return schema.SystemLocalCommand{LineIndex: lineIndex, Content: *rec.Content}
	default:
		return malformed(raw, lineIndex, fmt.Sprintf("unknown system subtype %q", rec.Subtype))
	}
}

// parseProgress implements §4.1 step 6.
func parseProgress(rec rawRecord, raw string, lineIndex int) schema.ParsedMessage {
	if len(rec.Data) == 0 {
		return malformed(raw, lineIndex, "progress record missing data")
	}
	var data rawProgressData
	if err := json.Unmarshal(rec.Data, &data); err != nil {
		return malformed(raw, lineIndex, fmt.Sprintf("invalid progress data: %v", err))
	}
	switch data.Type {
	case "agent_progress":
		return schema.ProgressAgent{
			LineIndex:       lineIndex,
			AgentID:         data.AgentID,
			Prompt:          data.Prompt,
			ParentToolUseID: data.ParentToolUseID,
		}
	case "bash_progress":
		return schema.ProgressBash{
			LineIndex:          lineIndex,
			Output:             data.Output,
			ElapsedTimeSeconds: data.ElapsedTimeSeconds,
		}
	case "hook_progress":
		return schema.ProgressHook{
			LineIndex: lineIndex,
			HookEvent: data.HookEvent,
			HookName:  data.HookName,
			Command:   data.Command,
		}
	default:
		return malformed(raw, lineIndex, fmt.Sprintf("unknown progress data type %q", data.Type))
	}
}

func parseQueueOperation(rec rawRecord, raw string, lineIndex int) schema.ParsedMessage {
	if rec.Operation == "" {
		return malformed(raw, lineIndex, "queue-operation missing operation")
	}
	return schema.QueueOperation{
		LineIndex: lineIndex,
		Operation: rec.Operation,
		Content:   rec.Content,
	}
}

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
