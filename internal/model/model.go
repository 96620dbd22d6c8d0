// File: internal/model/model.go

// Package model holds the decision-model clients. Every provider is exposed
// through the Decider interface: full transcript in, one assistant turn out.
package model

import (
	"context"
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrMissingAPIKey is returned by every client constructor when the selected
// provider has no API key configured.
var ErrMissingAPIKey = errors.New("model API key is required")

const (
	// ActionToolName is the single tool every provider exposes to the model.
	ActionToolName = "browser_action"

	actionToolDescription = "Perform one input operation on the live web page: " +
		"click, type, press keys, scroll, drag, move the mouse, wait, or take a " +
		"screenshot. Coordinates are viewport pixels with the origin at the top left."
)

// Request carries one decision call: the task's system prompt plus the full
// conversation transcript. The transcript round-trips whole on every call.
type Request struct {
	System     string
	Transcript []schemas.Message
}

// Response is the assistant's turn: ordered content blocks (free text and
// action requests) and the provider's stop reason. The stop reason is kept
// for logging only; completion is decided by the absence of action blocks.
type Response struct {
	Blocks     []schemas.ContentBlock
	StopReason string
}

// Decider is the vision-capable decision model behind the agent loop.
type Decider interface {
	Decide(ctx context.Context, req Request) (*Response, error)
}

// New builds the provider client selected by the configuration.
func New(ctx context.Context, cfg config.ModelConfig, logger *zap.Logger) (Decider, error) {
	switch cfg.Provider {
	case config.ProviderAnthropic:
		return NewAnthropicClient(cfg, logger)
	case config.ProviderGemini:
		return NewGeminiClient(ctx, cfg, logger)
	case config.ProviderOpenAI:
		return NewOpenAIClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown or unsupported model provider configured: %q. Supported: [%s, %s, %s]",
			cfg.Provider, config.ProviderAnthropic, config.ProviderGemini, config.ProviderOpenAI)
	}
}

// actionKindNames lists the action vocabulary for tool schema enums.
func actionKindNames() []string {
	return []string{
		string(schemas.ActionLeftClick),
		string(schemas.ActionRightClick),
		string(schemas.ActionMiddleClick),
		string(schemas.ActionDoubleClick),
		string(schemas.ActionTripleClick),
		string(schemas.ActionMouseMove),
		string(schemas.ActionLeftClickDrag),
		string(schemas.ActionType),
		string(schemas.ActionKey),
		string(schemas.ActionScroll),
		string(schemas.ActionWait),
		string(schemas.ActionScreenshot),
	}
}

// actionParameters is the JSON schema for the action tool. Anthropic and
// OpenAI consume it as-is; the Gemini client renders the same shape with the
// SDK's typed schema.
func actionParameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"kind": map[string]any{
				"type":        "string",
				"enum":        actionKindNames(),
				"description": "The input operation to perform.",
			},
			"coordinate": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "integer"},
				"description": "Target position as [x, y] viewport pixels.",
			},
			"start_coordinate": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "integer"},
				"description": "Drag origin as [x, y]; falls back to coordinate when absent.",
			},
			"text": map[string]any{
				"type":        "string",
				"description": "Literal text to type, emitted character by character.",
			},
			"key": map[string]any{
				"type":        "string",
				"description": "Key name or chord to press, e.g. \"return\" or \"ctrl+a\".",
			},
			"direction": map[string]any{
				"type":        "string",
				"enum":        []string{"up", "down", "left", "right"},
				"description": "Scroll direction.",
			},
			"amount": map[string]any{
				"type":        "integer",
				"description": "Scroll magnitude in wheel steps of 100 pixels; defaults to 3.",
			},
			"duration": map[string]any{
				"type":        "number",
				"description": "Seconds to wait; defaults to 1.",
			},
		},
		"required": []string{"kind"},
	}
}

// DecodeAction converts a raw tool-call payload into an Action.
func DecodeAction(raw []byte) (schemas.Action, error) {
	var action schemas.Action
	if err := json.Unmarshal(raw, &action); err != nil {
		return schemas.Action{}, fmt.Errorf("failed to decode action payload: %w", err)
	}
	if action.Kind == "" {
		return schemas.Action{}, fmt.Errorf("action payload is missing the required kind field")
	}
	return action, nil
}

// DecodeActionArgs is DecodeAction for providers that deliver arguments as a
// decoded map.
func DecodeActionArgs(args map[string]any) (schemas.Action, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return schemas.Action{}, fmt.Errorf("failed to re-encode action args: %w", err)
	}
	return DecodeAction(raw)
}
