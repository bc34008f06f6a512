// Package schema defines the wire-level types shared by the parser and
// enricher: content blocks, token usage, and the twelve parsed message
// variants that make up a transcript.
package schema

import "encoding/json"

// BlockKind discriminates the content block variants of 3.1.
type BlockKind string

const (
	BlockText     BlockKind = "text"
	BlockThinking BlockKind = "thinking"
	BlockToolUse  BlockKind = "tool_use"
)

// ContentBlock is one of TextBlock, ThinkingBlock, ToolUseBlock.
type ContentBlock interface {
	BlockKind() BlockKind
}

type TextBlock struct {
	Text string `json:"text"`
}

func (TextBlock) BlockKind() BlockKind { return BlockText }

// MarshalJSON injects the "type" discriminator relayed clients switch on.
func (b TextBlock) MarshalJSON() ([]byte, error) {
	type alias TextBlock
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{Type: string(BlockText), alias: alias(b)})
}

type ThinkingBlock struct {
	Thinking  string `json:"thinking"`
	Signature string `json:"signature"`
}

func (ThinkingBlock) BlockKind() BlockKind { return BlockThinking }

func (b ThinkingBlock) MarshalJSON() ([]byte, error) {
	type alias ThinkingBlock
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{Type: string(BlockThinking), alias: alias(b)})
}

type ToolUseBlock struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

func (ToolUseBlock) BlockKind() BlockKind { return BlockToolUse }

func (b ToolUseBlock) MarshalJSON() ([]byte, error) {
	type alias ToolUseBlock
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{Type: string(BlockToolUse), alias: alias(b)})
}

// TokenUsage mirrors 3.2. Optional fields are nil-able pointers so callers
// can distinguish "absent" from "zero".
type TokenUsage struct {
	InputTokens              int     `json:"inputTokens"`
	OutputTokens             int     `json:"outputTokens"`
	CacheCreationInputTokens *int    `json:"cacheCreationInputTokens,omitempty"`
	CacheReadInputTokens     *int    `json:"cacheReadInputTokens,omitempty"`
	ServiceTier              *string `json:"serviceTier,omitempty"`
}

// CacheCreation returns the cache-creation token count, or 0 if absent.
func (u TokenUsage) CacheCreation() int {
	if u.CacheCreationInputTokens == nil {
		return 0
	}
	return *u.CacheCreationInputTokens
}

// CacheRead returns the cache-read token count, or 0 if absent.
func (u TokenUsage) CacheRead() int {
	if u.CacheReadInputTokens == nil {
		return 0
	}
	return *u.CacheReadInputTokens
}
