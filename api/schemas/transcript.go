package schemas

// Role tags one conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// BlockType discriminates the content block union.
type BlockType string

const (
	BlockText         BlockType = "text"
	BlockAction       BlockType = "action"
	BlockActionResult BlockType = "action_result"
)

// ActionResult is what one executed action produced: a base64 PNG of the
// post-action page, or the error text when execution failed. Exactly one of
// the two is set.
type ActionResult struct {
	ImageB64 string `json:"image_b64,omitempty"`
	Error    string `json:"error,omitempty"`
}

// ContentBlock is one element of a turn's content. Type selects which fields
// carry meaning; CallID correlates an action request with its result across
// turns using the provider-issued identifier.
type ContentBlock struct {
	Type   BlockType     `json:"type"`
	Text   string        `json:"text,omitempty"`
	CallID string        `json:"call_id,omitempty"`
	Action *Action       `json:"action,omitempty"`
	Result *ActionResult `json:"result,omitempty"`
}

// TextBlock builds a free-text block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: text}
}

// ActionBlock builds an action request block.
func ActionBlock(callID string, action Action) ContentBlock {
	return ContentBlock{Type: BlockAction, CallID: callID, Action: &action}
}

// ResultBlock builds an action result block.
func ResultBlock(callID string, result ActionResult) ContentBlock {
	return ContentBlock{Type: BlockActionResult, CallID: callID, Result: &result}
}

// Message is one transcript turn. The transcript itself is an append-only
// []Message; the full sequence round-trips to the decision model every call.
type Message struct {
	Role   Role           `json:"role"`
	Blocks []ContentBlock `json:"blocks"`
}
