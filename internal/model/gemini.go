// File: internal/model/gemini.go
package model

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/config"
	"github.com/xkilldash9x/formpilot/internal/metrics"
)

// GeminiClient implements Decider on the google.golang.org/genai SDK.
type GeminiClient struct {
	client  *genai.Client
	logger  *zap.Logger
	cfg     config.ModelConfig
	limiter *rate.Limiter
}

// NewGeminiClient initializes the client. The SDK performs no network work
// here, so construction is cheap enough to do per run.
func NewGeminiClient(ctx context.Context, cfg config.ModelConfig, logger *zap.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: %w", ErrMissingAPIKey)
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions.BaseURL = cfg.BaseURL
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClient{
		client:  client,
		logger:  logger.Named("model.gemini"),
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
	}, nil
}

// Decide sends the transcript through Models.GenerateContent and maps the
// candidate parts back onto transcript blocks.
func (c *GeminiClient) Decide(ctx context.Context, req Request) (*Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		c.logger.Warn("Context cancelled while waiting for rate limiter", zap.Error(err))
		return nil, err
	}

	contents := encodeGeminiContents(req.Transcript)

	genConfig := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: req.System}}},
		Temperature:       genai.Ptr[float32](c.cfg.Temperature),
		MaxOutputTokens:   int32(c.cfg.MaxTokens),
		Tools: []*genai.Tool{{
			FunctionDeclarations: []*genai.FunctionDeclaration{{
				Name:        ActionToolName,
				Description: actionToolDescription,
				Parameters:  geminiActionSchema(),
			}},
		}},
	}

	startTime := time.Now()
	resp, err := c.client.Models.GenerateContent(ctx, c.cfg.Model, contents, genConfig)
	duration := time.Since(startTime)
	if err != nil {
		return nil, fmt.Errorf("gemini generate content failed: %w", err)
	}

	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("gemini API returned no candidates")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return nil, fmt.Errorf("gemini API returned empty content parts (Reason: %s)", candidate.FinishReason)
	}

	blocks, err := decodeGeminiParts(candidate.Content.Parts)
	if err != nil {
		return nil, err
	}

	var promptTokens, completionTokens int64
	if resp.UsageMetadata != nil {
		promptTokens = int64(resp.UsageMetadata.PromptTokenCount)
		completionTokens = int64(resp.UsageMetadata.CandidatesTokenCount)
	}
	c.logger.Info("Model decision complete (Gemini)",
		zap.Duration("duration", duration),
		zap.String("stop_reason", string(candidate.FinishReason)),
		zap.Int64("prompt_tokens", promptTokens),
		zap.Int64("completion_tokens", completionTokens),
	)
	metrics.Default().RecordModelCall(string(config.ProviderGemini), c.cfg.Model, duration, promptTokens, completionTokens)

	return &Response{Blocks: blocks, StopReason: string(candidate.FinishReason)}, nil
}

// encodeGeminiContents maps transcript turns onto genai contents. Roles are
// the wire values the Gemini API expects: "user" and "model".
func encodeGeminiContents(transcript []schemas.Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(transcript))
	for _, msg := range transcript {
		role := "user"
		if msg.Role == schemas.RoleAssistant {
			role = "model"
		}

		var parts []*genai.Part
		for _, b := range msg.Blocks {
			switch b.Type {
			case schemas.BlockText:
				parts = append(parts, &genai.Part{Text: b.Text})
			case schemas.BlockAction:
				args, err := actionToArgs(b.Action)
				if err != nil {
					continue
				}
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
					ID:   b.CallID,
					Name: ActionToolName,
					Args: args,
				}})
			case schemas.BlockActionResult:
				parts = append(parts, encodeGeminiResult(b)...)
			}
		}

		contents = append(contents, &genai.Content{Role: role, Parts: parts})
	}
	return contents
}

// encodeGeminiResult renders one action result. Function responses cannot
// carry vision input, so screenshots ride along as an inline image part in
// the same turn.
func encodeGeminiResult(b schemas.ContentBlock) []*genai.Part {
	if b.Result != nil && b.Result.Error != "" {
		return []*genai.Part{{FunctionResponse: &genai.FunctionResponse{
			ID:       b.CallID,
			Name:     ActionToolName,
			Response: map[string]any{"error": b.Result.Error},
		}}}
	}

	parts := []*genai.Part{{FunctionResponse: &genai.FunctionResponse{
		ID:       b.CallID,
		Name:     ActionToolName,
		Response: map[string]any{"result": "action executed, screenshot attached"},
	}}}

	if b.Result != nil && b.Result.ImageB64 != "" {
		if raw, err := base64.StdEncoding.DecodeString(b.Result.ImageB64); err == nil {
			parts = append(parts, &genai.Part{InlineData: &genai.Blob{
				MIMEType: "image/png",
				Data:     raw,
			}})
		}
	}
	return parts
}

func decodeGeminiParts(parts []*genai.Part) ([]schemas.ContentBlock, error) {
	blocks := make([]schemas.ContentBlock, 0, len(parts))
	for _, part := range parts {
		if part == nil {
			continue
		}
		if part.Text != "" {
			blocks = append(blocks, schemas.TextBlock(part.Text))
		}
		if part.FunctionCall != nil {
			action, err := DecodeActionArgs(part.FunctionCall.Args)
			if err != nil {
				return nil, fmt.Errorf("function call %s: %w", part.FunctionCall.Name, err)
			}
			// Gemini does not always issue call IDs; results still need one
			// to correlate across turns.
			callID := part.FunctionCall.ID
			if callID == "" {
				callID = uuid.NewString()
			}
			blocks = append(blocks, schemas.ActionBlock(callID, action))
		}
	}
	return blocks, nil
}

// geminiActionSchema renders actionParameters with the SDK's typed schema.
func geminiActionSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"kind": {
				Type:        genai.TypeString,
				Enum:        actionKindNames(),
				Description: "The input operation to perform.",
			},
			"coordinate": {
				Type:        genai.TypeArray,
				Items:       &genai.Schema{Type: genai.TypeInteger},
				Description: "Target position as [x, y] viewport pixels.",
			},
			"start_coordinate": {
				Type:        genai.TypeArray,
				Items:       &genai.Schema{Type: genai.TypeInteger},
				Description: "Drag origin as [x, y]; falls back to coordinate when absent.",
			},
			"text": {
				Type:        genai.TypeString,
				Description: "Literal text to type, emitted character by character.",
			},
			"key": {
				Type:        genai.TypeString,
				Description: "Key name or chord to press, e.g. \"return\" or \"ctrl+a\".",
			},
			"direction": {
				Type:        genai.TypeString,
				Enum:        []string{"up", "down", "left", "right"},
				Description: "Scroll direction.",
			},
			"amount": {
				Type:        genai.TypeInteger,
				Description: "Scroll magnitude in wheel steps of 100 pixels; defaults to 3.",
			},
			"duration": {
				Type:        genai.TypeNumber,
				Description: "Seconds to wait; defaults to 1.",
			},
		},
		Required: []string{"kind"},
	}
}

// actionToArgs re-encodes an action as the map shape function calls carry.
func actionToArgs(action *schemas.Action) (map[string]any, error) {
	if action == nil {
		return nil, fmt.Errorf("action block carries no action")
	}
	raw, err := json.Marshal(action)
	if err != nil {
		return nil, err
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, err
	}
	return args, nil
}
