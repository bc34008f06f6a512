package schema

import "encoding/json"

// Kind discriminates the twelve parsed message variants of 3.3. Switch on
// Kind rather than type-asserting blindly; ParsedMessage is a closed set.
type Kind string

const (
	KindFileHistorySnapshot Kind = "file-history-snapshot"
	KindUserPrompt          Kind = "user-prompt"
	KindUserToolResult      Kind = "user-tool-result"
	KindAssistantBlock      Kind = "assistant-block"
	KindSystemTurnDuration  Kind = "system-turn-duration"
	KindSystemAPIError      Kind = "system-api-error"
	KindSystemLocalCommand  Kind = "system-local-command"
	KindProgressAgent       Kind = "progress-agent"
	KindProgressBash        Kind = "progress-bash"
	KindProgressHook        Kind = "progress-hook"
	KindQueueOperation      Kind = "queue-operation"
	KindMalformed           Kind = "malformed"
)

// ParsedMessage is the closed tagged sum described in spec §9's
// "Polymorphism over discriminated unions" note: one Kind, one concrete Go
// type per variant, a single LineIndex shared by all of them.
//
// Every variant also implements json.Marshaler so that relaying a batch of
// messages over the wire (internal/transport) serializes a "kind"
// discriminator alongside camelCase fields — clients switch on "kind" the
// same way Go code switches on Kind().
type ParsedMessage interface {
	Kind() Kind
	Line() int
}

// Common holds the fields spec §3.3 calls out as shared by user/assistant
// variants. It is embedded, not a marker interface, so each variant still
// gets its own concrete type for the exhaustive switch.
type Common struct {
	UUID       string  `json:"uuid"`
	ParentUUID *string `json:"parentUuid,omitempty"`
	SessionID  string  `json:"sessionId"`
	Timestamp  string  `json:"timestamp"`
	LineIndex  int      `json:"lineIndex"`
}

func (c Common) Line() int { return c.LineIndex }

// FileHistorySnapshot — 3.3.1. Carries no Common fields; it is not part of
// the user/assistant uuid/session lineage.
type FileHistorySnapshot struct {
	LineIndex        int      `json:"lineIndex"`
	MessageID        string   `json:"messageId"`
	Snapshot         Snapshot `json:"snapshot"`
	IsSnapshotUpdate bool     `json:"isSnapshotUpdate"`
}

type Snapshot struct {
	MessageID          string         `json:"messageId"`
	TrackedFileBackups map[string]any `json:"trackedFileBackups"`
	Timestamp          string         `json:"timestamp"`
}

func (FileHistorySnapshot) Kind() Kind  { return KindFileHistorySnapshot }
func (m FileHistorySnapshot) Line() int { return m.LineIndex }

func (m FileHistorySnapshot) MarshalJSON() ([]byte, error) {
	type alias FileHistorySnapshot
	return json.Marshal(struct {
		Kind Kind `json:"kind"`
		alias
	}{Kind: KindFileHistorySnapshot, alias: alias(m)})
}

// UserPrompt — 3.3.2.
type UserPrompt struct {
	Common
	Text   string `json:"text"`
	IsMeta bool   `json:"isMeta"`
}

func (UserPrompt) Kind() Kind { return KindUserPrompt }

func (m UserPrompt) MarshalJSON() ([]byte, error) {
	type alias UserPrompt
	return json.Marshal(struct {
		Kind Kind `json:"kind"`
		alias
	}{Kind: KindUserPrompt, alias: alias(m)})
}

// ToolResultItem is one entry of a user-tool-result's Results sequence.
type ToolResultItem struct {
	ToolUseID string `json:"toolUseId"`
	Content   any    `json:"content"`
	IsError   bool   `json:"isError"`
}

// ToolUseResult is the optional metadata envelope described in 3.3.3.
type ToolUseResult struct {
	Status            *string     `json:"status,omitempty"`
	Prompt            *string     `json:"prompt,omitempty"`
	AgentID           *string     `json:"agentId,omitempty"`
	TotalDurationMs   *int        `json:"totalDurationMs,omitempty"`
	TotalTokens       *int        `json:"totalTokens,omitempty"`
	TotalToolUseCount *int        `json:"totalToolUseCount,omitempty"`
	Usage             *TokenUsage `json:"usage,omitempty"`
}

// UserToolResult — 3.3.3.
type UserToolResult struct {
	Common
	Results       []ToolResultItem `json:"results"`
	ToolUseResult *ToolUseResult   `json:"toolUseResult,omitempty"`
}

func (UserToolResult) Kind() Kind { return KindUserToolResult }

func (m UserToolResult) MarshalJSON() ([]byte, error) {
	type alias UserToolResult
	return json.Marshal(struct {
		Kind Kind `json:"kind"`
		alias
	}{Kind: KindUserToolResult, alias: alias(m)})
}

// AssistantBlock — 3.3.4. One content block per line; multi-block
// responses are reconstituted later by the enricher, grouped on MessageID.
type AssistantBlock struct {
	Common
	MessageID    string       `json:"messageId"`
	Model        string       `json:"model"`
	ContentBlock ContentBlock `json:"contentBlock"`
	Usage        TokenUsage   `json:"usage"`
	IsSynthetic  bool         `json:"isSynthetic"`
}

func (AssistantBlock) Kind() Kind { return KindAssistantBlock }

func (m AssistantBlock) MarshalJSON() ([]byte, error) {
	type alias AssistantBlock
	return json.Marshal(struct {
		Kind Kind `json:"kind"`
		alias
	}{Kind: KindAssistantBlock, alias: alias(m)})
}

// SystemTurnDuration — 3.3.5.
type SystemTurnDuration struct {
	LineIndex  int    `json:"lineIndex"`
	ParentUUID string `json:"parentUuid"`
	DurationMs int    `json:"durationMs"`
}

func (SystemTurnDuration) Kind() Kind  { return KindSystemTurnDuration }
func (m SystemTurnDuration) Line() int { return m.LineIndex }

func (m SystemTurnDuration) MarshalJSON() ([]byte, error) {
	type alias SystemTurnDuration
	return json.Marshal(struct {
		Kind Kind `json:"kind"`
		alias
	}{Kind: KindSystemTurnDuration, alias: alias(m)})
}

// SystemAPIError — 3.3.6.
type SystemAPIError struct {
	LineIndex    int    `json:"lineIndex"`
	Error        string `json:"error"`
	RetryInMs    int    `json:"retryInMs"`
	RetryAttempt int    `json:"retryAttempt"`
	MaxRetries   int    `json:"maxRetries"`
}

func (SystemAPIError) Kind() Kind  { return KindSystemAPIError }
func (m SystemAPIError) Line() int { return m.LineIndex }

func (m SystemAPIError) MarshalJSON() ([]byte, error) {
	type alias SystemAPIError
	return json.Marshal(struct {
		Kind Kind `json:"kind"`
		alias
	}{Kind: KindSystemAPIError, alias: alias(m)})
}

// SystemLocalCommand — 3.3.7.
type SystemLocalCommand struct {
	LineIndex int    `json:"lineIndex"`
	Content   string `json:"content"`
}

func (SystemLocalCommand) Kind() Kind  { return KindSystemLocalCommand }
func (m SystemLocalCommand) Line() int { return m.LineIndex }

func (m SystemLocalCommand) MarshalJSON() ([]byte, error) {
	type alias SystemLocalCommand
	return json.Marshal(struct {
		Kind Kind `json:"kind"`
		alias
	}{Kind: KindSystemLocalCommand, alias: alias(m)})
}

// ProgressAgent — 3.3.8.
type ProgressAgent struct {
	LineIndex       int    `json:"lineIndex"`
	AgentID         string `json:"agentId"`
	Prompt          string `json:"prompt"`
	ParentToolUseID string `json:"parentToolUseId"`
}

func (ProgressAgent) Kind() Kind  { return KindProgressAgent }
func (m ProgressAgent) Line() int { return m.LineIndex }

func (m ProgressAgent) MarshalJSON() ([]byte, error) {
	type alias ProgressAgent
	return json.Marshal(struct {
		Kind Kind `json:"kind"`
		alias
	}{Kind: KindProgressAgent, alias: alias(m)})
}

// ProgressBash — 3.3.9.
type ProgressBash struct {
	LineIndex          int     `json:"lineIndex"`
	Output             string  `json:"output"`
	ElapsedTimeSeconds float64 `json:"elapsedTimeSeconds"`
}

func (ProgressBash) Kind() Kind  { return KindProgressBash }
func (m ProgressBash) Line() int { return m.LineIndex }

func (m ProgressBash) MarshalJSON() ([]byte, error) {
	type alias ProgressBash
	return json.Marshal(struct {
		Kind Kind `json:"kind"`
		alias
	}{Kind: KindProgressBash, alias: alias(m)})
}

// ProgressHook — 3.3.10.
type ProgressHook struct {
	LineIndex int    `json:"lineIndex"`
	HookEvent string `json:"hookEvent"`
	HookName  string `json:"hookName"`
	Command   string `json:"command"`
}

func (ProgressHook) Kind() Kind  { return KindProgressHook }
func (m ProgressHook) Line() int { return m.LineIndex }

func (m ProgressHook) MarshalJSON() ([]byte, error) {
	type alias ProgressHook
	return json.Marshal(struct {
		Kind Kind `json:"kind"`
		alias
	}{Kind: KindProgressHook, alias: alias(m)})
}

// QueueOperation — 3.3.11.
type QueueOperation struct {
	LineIndex int     `json:"lineIndex"`
	Operation string  `json:"operation"`
	Content   *string `json:"content,omitempty"`
}

func (QueueOperation) Kind() Kind  { return KindQueueOperation }
func (m QueueOperation) Line() int { return m.LineIndex }

func (m QueueOperation) MarshalJSON() ([]byte, error) {
	type alias QueueOperation
	return json.Marshal(struct {
		Kind Kind `json:"kind"`
		alias
	}{Kind: KindQueueOperation, alias: alias(m)})
}

// Malformed — 3.3.12. The parser's only failure representation; it never
// returns a Go error for a non-blank line.
type Malformed struct {
	LineIndex int    `json:"lineIndex"`
	Raw       string `json:"raw"`
	Error     string `json:"error"`
}

func (Malformed) Kind() Kind  { return KindMalformed }
func (m Malformed) Line() int { return m.LineIndex }

func (m Malformed) MarshalJSON() ([]byte, error) {
	type alias Malformed
	return json.Marshal(struct {
		Kind Kind `json:"kind"`
		alias
	}{Kind: KindMalformed, alias: alias(m)})
}
