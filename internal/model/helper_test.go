package model

import (
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/formpilot/internal/config"
)

// setupTestLogger creates a zap logger backed by an observer core so tests
// can assert on emitted entries.
func setupTestLogger(t *testing.T) (*zap.Logger, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.InfoLevel)
	return zap.New(core), logs
}

// getValidModelConfig returns a ModelConfig suitable for tests. The rate
// limit is high so retry tests are not throttled.
func getValidModelConfig() config.ModelConfig {
	return config.ModelConfig{
		Provider:    config.ProviderAnthropic,
		Model:       "test-model",
		APIKey:      "test-api-key",
		MaxTokens:   512,
		Temperature: 0.3,
		APITimeout:  5 * time.Second,
		RateLimit:   100,
		RateBurst:   5,
	}
}
