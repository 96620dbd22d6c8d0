package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/input"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/config"
	"github.com/xkilldash9x/formpilot/internal/metrics"
)

// Wheel events move this many pixels per scroll step.
const scrollStepPixels = 100

// Scroll requests without an amount use this many steps.
const defaultScrollAmount = 3

// handlerFunc performs one kind of action against the page surface.
type handlerFunc func(ctx context.Context, surface Surface, action schemas.Action) error

// Executor dispatches model-requested actions to the page. It returns once
// the input is issued; settle delays and screenshots belong to the loop.
type Executor struct {
	logger   *zap.Logger
	cfg      config.AgentConfig
	handlers map[schemas.ActionKind]handlerFunc
}

// NewExecutor creates an executor with the full action vocabulary registered.
func NewExecutor(cfg config.AgentConfig, logger *zap.Logger) *Executor {
	e := &Executor{
		logger: logger.Named("executor"),
		cfg:    cfg,
	}
	e.registerHandlers()
	return e
}

func (e *Executor) registerHandlers() {
	e.handlers = map[schemas.ActionKind]handlerFunc{
		schemas.ActionLeftClick:     clickHandler(input.Left, 1),
		schemas.ActionRightClick:    clickHandler(input.Right, 1),
		schemas.ActionMiddleClick:   clickHandler(input.Middle, 1),
		schemas.ActionDoubleClick:   clickHandler(input.Left, 2),
		schemas.ActionTripleClick:   clickHandler(input.Left, 3),
		schemas.ActionMouseMove:     handleMouseMove,
		schemas.ActionLeftClickDrag: handleDrag,
		schemas.ActionType:          handleType,
		schemas.ActionKey:           handleKey,
		schemas.ActionScroll:        handleScroll,
		schemas.ActionWait:          e.handleWait,
		schemas.ActionScreenshot:    handleScreenshot,
	}
}

// Execute dispatches one action. Unknown kinds are logged and skipped so a
// single bad request cannot sink an otherwise working run.
func (e *Executor) Execute(ctx context.Context, surface Surface, action schemas.Action) error {
	handler, ok := e.handlers[action.Kind]
	if !ok {
		e.logger.Warn("Ignoring unknown action kind", zap.String("kind", string(action.Kind)))
		return nil
	}

	e.logger.Debug("Dispatching action", zap.String("kind", string(action.Kind)))
	metrics.Default().RecordAction(string(action.Kind))
	return handler(ctx, surface, action)
}

// point reads the action's target coordinate.
func point(action schemas.Action) (float64, float64, error) {
	if action.Coordinate == nil {
		return 0, 0, fmt.Errorf("%s requires a coordinate", action.Kind)
	}
	return float64(action.Coordinate.X()), float64(action.Coordinate.Y()), nil
}

func clickHandler(button input.MouseButton, count int) handlerFunc {
	return func(ctx context.Context, surface Surface, action schemas.Action) error {
		x, y, err := point(action)
		if err != nil {
			return err
		}
		return surface.Click(ctx, x, y, button, count)
	}
}

func handleMouseMove(ctx context.Context, surface Surface, action schemas.Action) error {
	x, y, err := point(action)
	if err != nil {
		return err
	}
	return surface.MoveMouse(ctx, x, y)
}

func handleDrag(ctx context.Context, surface Surface, action schemas.Action) error {
	toX, toY, err := point(action)
	if err != nil {
		return err
	}
	fromX, fromY := toX, toY
	if action.StartCoordinate != nil {
		fromX = float64(action.StartCoordinate.X())
		fromY = float64(action.StartCoordinate.Y())
	}
	return surface.Drag(ctx, fromX, fromY, toX, toY)
}

func handleType(ctx context.Context, surface Surface, action schemas.Action) error {
	return surface.TypeText(ctx, action.Text)
}

func handleKey(ctx context.Context, surface Surface, action schemas.Action) error {
	if action.Key == "" {
		return fmt.Errorf("key action requires a key name")
	}
	return surface.PressKey(ctx, action.Key)
}

func handleScroll(ctx context.Context, surface Surface, action schemas.Action) error {
	var x, y float64
	if action.Coordinate != nil {
		x = float64(action.Coordinate.X())
		y = float64(action.Coordinate.Y())
	}
	deltaX, deltaY := scrollDelta(action.Direction, action.Amount)
	return surface.Scroll(ctx, x, y, deltaX, deltaY)
}

// handleWait suspends for the requested duration, or the configured default
// when the model gave none.
func (e *Executor) handleWait(ctx context.Context, _ Surface, action schemas.Action) error {
	d := e.cfg.DefaultWait
	if action.Duration > 0 {
		d = time.Duration(action.Duration * float64(time.Second))
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// handleScreenshot is a no-op. The loop owns capture because it must also
// deliver the image back to the model.
func handleScreenshot(context.Context, Surface, schemas.Action) error {
	return nil
}

// scrollDelta converts a scroll request into wheel deltas. Positive deltaY
// scrolls the document down; an unrecognized direction scrolls nothing.
func scrollDelta(direction schemas.ScrollDirection, amount int) (deltaX, deltaY float64) {
	if amount <= 0 {
		amount = defaultScrollAmount
	}
	magnitude := float64(amount * scrollStepPixels)

	switch direction {
	case schemas.ScrollUp:
		return 0, -magnitude
	case schemas.ScrollDown:
		return 0, magnitude
	case schemas.ScrollLeft:
		return -magnitude, 0
	case schemas.ScrollRight:
		return magnitude, 0
	default:
		return 0, 0
	}
}
