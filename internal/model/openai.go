// File: internal/model/openai.go
package model

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/config"
	"github.com/xkilldash9x/formpilot/internal/metrics"
)

// OpenAIClient implements Decider on the official openai-go SDK.
//
// Chat Completions requires tool results to reference typed tool_calls on
// prior assistant messages, so replaying our transcript verbatim would mean
// reconstructing those unions turn by turn. Past turns are flattened to text
// instead (the SDK-verified pattern for agent history), with screenshots
// attached as data-URL image parts; only the current response's tool calls
// are consumed in typed form.
type OpenAIClient struct {
	client  *openai.Client
	logger  *zap.Logger
	cfg     config.ModelConfig
	limiter *rate.Limiter
}

// NewOpenAIClient initializes the client.
func NewOpenAIClient(cfg config.ModelConfig, logger *zap.Logger) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: %w", ErrMissingAPIKey)
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := openai.NewClient(opts...)

	return &OpenAIClient{
		client:  &client,
		logger:  logger.Named("model.openai"),
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
	}, nil
}

// Decide sends the transcript through the Chat Completions API.
func (c *OpenAIClient) Decide(ctx context.Context, req Request) (*Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		c.logger.Warn("Context cancelled while waiting for rate limiter", zap.Error(err))
		return nil, err
	}

	startTime := time.Now()
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:               c.cfg.Model,
		Messages:            encodeOpenAIMessages(req),
		Tools:               openAITools(),
		Temperature:         openai.Opt[float64](float64(c.cfg.Temperature)),
		MaxCompletionTokens: openai.Opt[int64](int64(c.cfg.MaxTokens)),
	})
	duration := time.Since(startTime)
	if err != nil {
		return nil, fmt.Errorf("openai chat completion failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai API returned no choices")
	}

	choice := resp.Choices[0]
	blocks := make([]schemas.ContentBlock, 0, 1+len(choice.Message.ToolCalls))
	if choice.Message.Content != "" {
		blocks = append(blocks, schemas.TextBlock(choice.Message.Content))
	}
	for _, tc := range choice.Message.ToolCalls {
		action, err := DecodeAction([]byte(tc.Function.Arguments))
		if err != nil {
			return nil, fmt.Errorf("tool call %s: %w", tc.ID, err)
		}
		blocks = append(blocks, schemas.ActionBlock(tc.ID, action))
	}

	c.logger.Info("Model decision complete (OpenAI)",
		zap.Duration("duration", duration),
		zap.String("stop_reason", string(choice.FinishReason)),
		zap.Int64("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int64("completion_tokens", resp.Usage.CompletionTokens),
	)
	metrics.Default().RecordModelCall(string(config.ProviderOpenAI), c.cfg.Model, duration,
		resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

	return &Response{Blocks: blocks, StopReason: string(choice.FinishReason)}, nil
}

func encodeOpenAIMessages(req Request) []openai.ChatCompletionMessageParamUnion {
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(req.System),
	}

	for _, msg := range req.Transcript {
		if msg.Role == schemas.RoleAssistant {
			messages = append(messages, openai.AssistantMessage(flattenAssistantTurn(msg.Blocks)))
			continue
		}
		if parts := encodeOpenAIUserParts(msg.Blocks); len(parts) > 0 {
			messages = append(messages, openai.UserMessage(parts))
		}
	}
	return messages
}

// flattenAssistantTurn renders an assistant turn (commentary plus any action
// requests) as plain text for the replayed history.
func flattenAssistantTurn(blocks []schemas.ContentBlock) string {
	var sb strings.Builder
	for _, b := range blocks {
		switch b.Type {
		case schemas.BlockText:
			sb.WriteString(b.Text)
			sb.WriteByte('\n')
		case schemas.BlockAction:
			raw, err := json.Marshal(b.Action)
			if err != nil {
				continue
			}
			fmt.Fprintf(&sb, "requested action %s: %s\n", b.CallID, raw)
		}
	}
	return strings.TrimSpace(sb.String())
}

func encodeOpenAIUserParts(blocks []schemas.ContentBlock) []openai.ChatCompletionContentPartUnionParam {
	var parts []openai.ChatCompletionContentPartUnionParam
	for _, b := range blocks {
		switch b.Type {
		case schemas.BlockText:
			parts = append(parts, openai.TextContentPart(b.Text))
		case schemas.BlockActionResult:
			if b.Result == nil {
				continue
			}
			if b.Result.Error != "" {
				parts = append(parts, openai.TextContentPart(
					fmt.Sprintf("action %s failed: %s", b.CallID, b.Result.Error)))
				continue
			}
			parts = append(parts,
				openai.TextContentPart(fmt.Sprintf("action %s executed; post-action screenshot:", b.CallID)),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL: "data:image/png;base64," + b.Result.ImageB64,
				}),
			)
		}
	}
	return parts
}

func openAITools() []openai.ChatCompletionToolUnionParam {
	return []openai.ChatCompletionToolUnionParam{
		openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        ActionToolName,
			Description: openai.String(actionToolDescription),
			Parameters:  openai.FunctionParameters(actionParameters()),
		}),
	}
}
