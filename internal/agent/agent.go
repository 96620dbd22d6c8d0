// Package agent drives the decision model against a live browser page. The
// executor translates model-requested actions into page input, the loop feeds
// post-action screenshots back to the model, and the runners wrap that loop
// for single tasks and CSV batches.
package agent

import (
	"context"

	"github.com/chromedp/cdproto/input"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/browser"
)

// Surface is the page handle the agent drives. *browser.Page implements it;
// tests substitute mocks.
type Surface interface {
	Navigate(ctx context.Context, url string) error
	Screenshot(ctx context.Context) (string, error)
	VisibleText(ctx context.Context) (string, error)
	Click(ctx context.Context, x, y float64, button input.MouseButton, count int) error
	MoveMouse(ctx context.Context, x, y float64) error
	Drag(ctx context.Context, fromX, fromY, toX, toY float64) error
	TypeText(ctx context.Context, text string) error
	PressKey(ctx context.Context, name string) error
	Scroll(ctx context.Context, x, y, deltaX, deltaY float64) error
	Close()
}

var _ Surface = (*browser.Page)(nil)

// PageProvider hands out page surfaces. The browser manager is the real
// provider; orchestrators own the returned surface until they Close it.
type PageProvider interface {
	AcquirePage(ctx context.Context) (Surface, error)
}

// ProviderFunc adapts a function to the PageProvider interface.
type ProviderFunc func(ctx context.Context) (Surface, error)

// AcquirePage calls f.
func (f ProviderFunc) AcquirePage(ctx context.Context) (Surface, error) {
	return f(ctx)
}

// Sink receives progress events as a run advances. Emission happens from the
// single run goroutine; implementations own their delivery guarantees.
type Sink interface {
	Emit(event schemas.Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(event schemas.Event)

// Emit calls f.
func (f SinkFunc) Emit(event schemas.Event) {
	f(event)
}
