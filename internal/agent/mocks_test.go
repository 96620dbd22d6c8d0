package agent

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/config"
	"github.com/xkilldash9x/formpilot/internal/model"
)

func testAgentConfig() config.AgentConfig {
	return config.AgentConfig{
		MaxIterations: 25,
		SettleDelay:   0,
		InterRowDelay: 0,
		DefaultWait:   10 * time.Millisecond,
		ReleaseGrace:  0,
	}
}

// -- Page Surface Mock --

// MockSurface mocks the Surface interface the executor and loop drive.
type MockSurface struct {
	mock.Mock
}

// Navigate mocks page navigation.
func (m *MockSurface) Navigate(ctx context.Context, url string) error {
	args := m.Called(ctx, url)
	return args.Error(0)
}

// Screenshot mocks the base64 PNG capture.
func (m *MockSurface) Screenshot(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

// VisibleText mocks the rendered-text read.
func (m *MockSurface) VisibleText(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

// Click mocks a pointer press at a coordinate.
func (m *MockSurface) Click(ctx context.Context, x, y float64, button input.MouseButton, count int) error {
	args := m.Called(ctx, x, y, button, count)
	return args.Error(0)
}

// MoveMouse mocks a pointer move.
func (m *MockSurface) MoveMouse(ctx context.Context, x, y float64) error {
	args := m.Called(ctx, x, y)
	return args.Error(0)
}

// Drag mocks a press-move-release sequence.
func (m *MockSurface) Drag(ctx context.Context, fromX, fromY, toX, toY float64) error {
	args := m.Called(ctx, fromX, fromY, toX, toY)
	return args.Error(0)
}

// TypeText mocks literal text input.
func (m *MockSurface) TypeText(ctx context.Context, text string) error {
	args := m.Called(ctx, text)
	return args.Error(0)
}

// PressKey mocks a named key press.
func (m *MockSurface) PressKey(ctx context.Context, name string) error {
	args := m.Called(ctx, name)
	return args.Error(0)
}

// Scroll mocks a wheel event at a coordinate.
func (m *MockSurface) Scroll(ctx context.Context, x, y, deltaX, deltaY float64) error {
	args := m.Called(ctx, x, y, deltaX, deltaY)
	return args.Error(0)
}

// Close mocks releasing the page.
func (m *MockSurface) Close() {
	m.Called()
}

// stubSurface accepts every input without recording anything. Used where the
// surface is incidental, such as fuzzing the dispatch path.
type stubSurface struct{}

func (stubSurface) Navigate(context.Context, string) error      { return nil }
func (stubSurface) Screenshot(context.Context) (string, error)  { return "", nil }
func (stubSurface) VisibleText(context.Context) (string, error) { return "", nil }
func (stubSurface) Click(context.Context, float64, float64, input.MouseButton, int) error {
	return nil
}
func (stubSurface) MoveMouse(context.Context, float64, float64) error                 { return nil }
func (stubSurface) Drag(context.Context, float64, float64, float64, float64) error   { return nil }
func (stubSurface) TypeText(context.Context, string) error                           { return nil }
func (stubSurface) PressKey(context.Context, string) error                           { return nil }
func (stubSurface) Scroll(context.Context, float64, float64, float64, float64) error { return nil }
func (stubSurface) Close()                                                           {}

// -- Decision Model Mock --

// MockDecider mocks the model.Decider interface behind the loop.
type MockDecider struct {
	mock.Mock
}

// Decide mocks one decision call.
func (m *MockDecider) Decide(ctx context.Context, req model.Request) (*model.Response, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Response), args.Error(1)
}

// -- Event Sink Capture --

// captureSink records every emitted event for later assertions.
type captureSink struct {
	mu     sync.Mutex
	events []schemas.Event
}

func (s *captureSink) Emit(event schemas.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *captureSink) all() []schemas.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]schemas.Event(nil), s.events...)
}

func (s *captureSink) types() []schemas.EventType {
	events := s.all()
	types := make([]schemas.EventType, len(events))
	for i, e := range events {
		types[i] = e.Type
	}
	return types
}

func (s *captureSink) count(t schemas.EventType) int {
	n := 0
	for _, e := range s.all() {
		if e.Type == t {
			n++
		}
	}
	return n
}

// first returns the earliest event of the given type.
func (s *captureSink) first(t schemas.EventType) (schemas.Event, bool) {
	for _, e := range s.all() {
		if e.Type == t {
			return e, true
		}
	}
	return schemas.Event{}, false
}
