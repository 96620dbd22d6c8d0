package server

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"sync"
	"testing"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/agent"
	"github.com/xkilldash9x/formpilot/internal/config"
	"github.com/xkilldash9x/formpilot/internal/model"
	"github.com/xkilldash9x/formpilot/internal/session"
)

// fakeSurface accepts every input and reports a fixed final page text.
type fakeSurface struct {
	pageText string
}

func (f fakeSurface) Navigate(context.Context, string) error      { return nil }
func (f fakeSurface) Screenshot(context.Context) (string, error)  { return "iVBORtest", nil }
func (f fakeSurface) VisibleText(context.Context) (string, error) { return f.pageText, nil }
func (f fakeSurface) Click(context.Context, float64, float64, input.MouseButton, int) error {
	return nil
}
func (f fakeSurface) MoveMouse(context.Context, float64, float64) error                 { return nil }
func (f fakeSurface) Drag(context.Context, float64, float64, float64, float64) error   { return nil }
func (f fakeSurface) TypeText(context.Context, string) error                           { return nil }
func (f fakeSurface) PressKey(context.Context, string) error                           { return nil }
func (f fakeSurface) Scroll(context.Context, float64, float64, float64, float64) error { return nil }
func (f fakeSurface) Close()                                                           {}

// scriptedDecider always answers with the same text-only turn, which ends
// each row after a single iteration.
type scriptedDecider struct {
	mu         sync.Mutex
	calls      int
	commentary string
}

func (d *scriptedDecider) Decide(context.Context, model.Request) (*model.Response, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	return &model.Response{
		Blocks:     []schemas.ContentBlock{schemas.TextBlock(d.commentary)},
		StopReason: "end_turn",
	}, nil
}

func (d *scriptedDecider) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func testServerConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Addr:              "127.0.0.1:0",
			MaxUploadBytes:    1 << 20,
			MaxConcurrentRuns: 2,
			ShutdownTimeout:   time.Second,
		},
		Browser: config.BrowserConfig{ViewportWidth: 1280, ViewportHeight: 800},
		Model: config.ModelConfig{
			Provider: config.ProviderAnthropic,
			Model:    "test-model",
			APIKey:   "default-key",
		},
		Agent: config.AgentConfig{
			MaxIterations: 5,
			DefaultWait:   time.Millisecond,
		},
		Session: config.SessionConfig{Capacity: 16, TTL: time.Hour},
	}
}

// newTestServer builds a server over a fake page and a scripted decider so
// handler tests never need a browser or a model endpoint.
func newTestServer(t *testing.T, decider model.Decider, surface agent.Surface) *Server {
	t.Helper()

	srv := New(testServerConfig(), zap.NewNop(), session.NewStore(16, time.Hour),
		agent.ProviderFunc(func(context.Context) (agent.Surface, error) {
			return surface, nil
		}))
	srv.newDecider = func(context.Context, config.ModelConfig, *zap.Logger) (model.Decider, error) {
		return decider, nil
	}
	return srv
}

// multipartBody renders a batch upload request body.
func multipartBody(t *testing.T, fields map[string]string, filename, csvData string) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = io.WriteString(fw, csvData)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}
