// File: internal/model/anthropic.go
package model

import (
	"bytes"
	"context"
	encjson "encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/config"
	"github.com/xkilldash9x/formpilot/internal/metrics"
)

const (
	defaultAnthropicEndpoint = "https://api.anthropic.com/v1/messages"
	anthropicVersion         = "2023-06-01"
)

// AnthropicClient implements Decider against the Anthropic Messages API.
// There is no official Go SDK, so this is a plain HTTP client with retries.
type AnthropicClient struct {
	apiKey         string
	endpoint       string
	httpClient     *http.Client
	logger         *zap.Logger
	cfg            config.ModelConfig
	limiter        *rate.Limiter
	backoffFactory func() backoff.BackOff
}

// -- Anthropic API request/response structures (internal to this file) --

type anthropicImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// anthropicContentBlock is the union block of the Messages API. Type selects
// which of the remaining fields are populated.
type anthropicContentBlock struct {
	Type string `json:"type"`

	// type == "text"
	Text string `json:"text,omitempty"`

	// type == "tool_use"
	ID    string             `json:"id,omitempty"`
	Name  string             `json:"name,omitempty"`
	Input encjson.RawMessage `json:"input,omitempty"`

	// type == "tool_result"
	ToolUseID string                  `json:"tool_use_id,omitempty"`
	Content   []anthropicContentBlock `json:"content,omitempty"`
	IsError   bool                    `json:"is_error,omitempty"`

	// type == "image"
	Source *anthropicImageSource `json:"source,omitempty"`
}

type anthropicMessage struct {
	Role    string                  `json:"role"`
	Content []anthropicContentBlock `json:"content"`
}

type anthropicTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float32            `json:"temperature"`
	System      string             `json:"system,omitempty"`
	Tools       []anthropicTool    `json:"tools,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content    []anthropicContentBlock `json:"content"`
	StopReason string                  `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// NewAnthropicClient initializes the client.
func NewAnthropicClient(cfg config.ModelConfig, logger *zap.Logger) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: %w", ErrMissingAPIKey)
	}

	endpoint := defaultAnthropicEndpoint
	if cfg.BaseURL != "" {
		endpoint = strings.TrimSuffix(cfg.BaseURL, "/") + "/v1/messages"
	}

	return &AnthropicClient{
		apiKey:   cfg.APIKey,
		endpoint: endpoint,
		cfg:      cfg,
		httpClient: &http.Client{
			Timeout: cfg.APITimeout,
		},
		logger:  logger.Named("model.anthropic"),
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		backoffFactory: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.MaxElapsedTime = 2 * time.Minute
			b.MaxInterval = 30 * time.Second
			return b
		},
	}, nil
}

// Decide sends the transcript to the Messages API and returns the assistant
// turn, retrying transient failures.
func (c *AnthropicClient) Decide(ctx context.Context, req Request) (*Response, error) {
	payload := c.buildRequestPayload(req)

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	var out *Response

	operation := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			c.logger.Warn("Context cancelled while waiting for rate limiter", zap.Error(err))
			return backoff.Permanent(err)
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create HTTP request: %w", err))
		}

		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("x-api-key", c.apiKey)
		httpReq.Header.Set("anthropic-version", anthropicVersion)

		startTime := time.Now()
		resp, err := c.httpClient.Do(httpReq)
		duration := time.Since(startTime)

		if err != nil {
			c.logger.Warn("Network error during model request, retrying...", zap.Error(err))
			return fmt.Errorf("failed to execute HTTP request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			return c.handleAPIError(resp.StatusCode, respBody)
		}

		var responsePayload anthropicResponse
		if err := json.Unmarshal(respBody, &responsePayload); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode response payload: %w", err))
		}

		blocks, err := decodeAnthropicBlocks(responsePayload.Content)
		if err != nil {
			return backoff.Permanent(err)
		}

		c.logger.Info("Model decision complete (Anthropic)",
			zap.Duration("duration", duration),
			zap.String("stop_reason", responsePayload.StopReason),
			zap.Int("prompt_tokens", responsePayload.Usage.InputTokens),
			zap.Int("completion_tokens", responsePayload.Usage.OutputTokens),
		)
		metrics.Default().RecordModelCall(string(config.ProviderAnthropic), c.cfg.Model, duration,
			int64(responsePayload.Usage.InputTokens), int64(responsePayload.Usage.OutputTokens))

		out = &Response{Blocks: blocks, StopReason: responsePayload.StopReason}
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(c.backoffFactory(), ctx)); err != nil {
		return nil, err
	}

	return out, nil
}

func (c *AnthropicClient) buildRequestPayload(req Request) anthropicRequest {
	messages := make([]anthropicMessage, 0, len(req.Transcript))
	for _, msg := range req.Transcript {
		messages = append(messages, anthropicMessage{
			Role:    string(msg.Role),
			Content: encodeAnthropicBlocks(msg.Blocks),
		})
	}

	return anthropicRequest{
		Model:       c.cfg.Model,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
		System:      req.System,
		Tools: []anthropicTool{{
			Name:        ActionToolName,
			Description: actionToolDescription,
			InputSchema: actionParameters(),
		}},
		Messages: messages,
	}
}

func (c *AnthropicClient) handleAPIError(statusCode int, body []byte) error {
	c.logger.Error("Anthropic API returned error status", zap.Int("status", statusCode), zap.String("response", string(body)))
	err := fmt.Errorf("anthropic API error: status %d, body: %s", statusCode, string(body))

	switch statusCode {
	// 529 is the dedicated "overloaded" status the Messages API returns under load.
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, 529:
		return err // Transient errors, retry.
	default:
		return backoff.Permanent(err) // Permanent errors.
	}
}

func encodeAnthropicBlocks(blocks []schemas.ContentBlock) []anthropicContentBlock {
	out := make([]anthropicContentBlock, 0, len(blocks))
	for _, b := range blocks {
		switch b.Type {
		case schemas.BlockText:
			out = append(out, anthropicContentBlock{Type: "text", Text: b.Text})
		case schemas.BlockAction:
			input, err := json.Marshal(b.Action)
			if err != nil {
				continue
			}
			out = append(out, anthropicContentBlock{Type: "tool_use", ID: b.CallID, Name: ActionToolName, Input: input})
		case schemas.BlockActionResult:
			out = append(out, encodeAnthropicResult(b))
		}
	}
	return out
}

func encodeAnthropicResult(b schemas.ContentBlock) anthropicContentBlock {
	block := anthropicContentBlock{Type: "tool_result", ToolUseID: b.CallID}
	if b.Result == nil {
		return block
	}
	if b.Result.Error != "" {
		block.IsError = true
		block.Content = []anthropicContentBlock{{Type: "text", Text: b.Result.Error}}
		return block
	}
	block.Content = []anthropicContentBlock{{
		Type:   "image",
		Source: &anthropicImageSource{Type: "base64", MediaType: "image/png", Data: b.Result.ImageB64},
	}}
	return block
}

func decodeAnthropicBlocks(content []anthropicContentBlock) ([]schemas.ContentBlock, error) {
	blocks := make([]schemas.ContentBlock, 0, len(content))
	for _, block := range content {
		switch block.Type {
		case "text":
			blocks = append(blocks, schemas.TextBlock(block.Text))
		case "tool_use":
			action, err := DecodeAction(block.Input)
			if err != nil {
				return nil, fmt.Errorf("tool call %s: %w", block.ID, err)
			}
			blocks = append(blocks, schemas.ActionBlock(block.ID, action))
		}
	}
	return blocks, nil
}
