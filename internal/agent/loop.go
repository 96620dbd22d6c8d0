package agent

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/config"
	"github.com/xkilldash9x/formpilot/internal/model"
)

// Loop drives one task against one page until the model stops requesting
// actions or the iteration ceiling is reached.
type Loop struct {
	decider  model.Decider
	executor *Executor
	surface  Surface
	sink     Sink
	logger   *zap.Logger
	cfg      config.AgentConfig
}

// LoopResult reports how one task run ended.
type LoopResult struct {
	// Success is true when the model concluded on its own, false when the
	// iteration budget ran out first.
	Success    bool
	Iterations int
	// Commentary collects the model's free-text remarks in emission order
	// for reference extraction.
	Commentary []string
}

// NewLoop wires a loop around an owned page surface.
func NewLoop(decider model.Decider, executor *Executor, surface Surface, sink Sink, cfg config.AgentConfig, logger *zap.Logger) *Loop {
	return &Loop{
		decider:  decider,
		executor: executor,
		surface:  surface,
		sink:     sink,
		logger:   logger.Named("loop"),
		cfg:      cfg,
	}
}

// Run executes the request/act/observe cycle for one task. The transcript
// starts with the task prompt; each turn appends the assistant's blocks and,
// while actions keep coming, one user turn carrying their results.
func (l *Loop) Run(ctx context.Context, system, task string, rowIndex int) (*LoopResult, error) {
	// Every run ends with one more capture, however it ends, so the stream
	// always carries the final page state.
	defer l.finalScreenshot(ctx, rowIndex)

	transcript := []schemas.Message{
		{Role: schemas.RoleUser, Blocks: []schemas.ContentBlock{schemas.TextBlock(task)}},
	}
	result := &LoopResult{}

	for iteration := 1; iteration <= l.cfg.MaxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result.Iterations = iteration
		l.sink.Emit(schemas.NewIterationEvent(iteration, l.cfg.MaxIterations, rowIndex))

		resp, err := l.decider.Decide(ctx, model.Request{System: system, Transcript: transcript})
		if err != nil {
			return nil, fmt.Errorf("model decision failed on iteration %d: %w", iteration, err)
		}
		transcript = append(transcript, schemas.Message{Role: schemas.RoleAssistant, Blocks: resp.Blocks})

		var actionResults []schemas.ContentBlock
		for _, block := range resp.Blocks {
			switch block.Type {
			case schemas.BlockText:
				if block.Text == "" {
					continue
				}
				result.Commentary = append(result.Commentary, block.Text)
				l.sink.Emit(schemas.NewClaudeTextEvent(block.Text, rowIndex))
			case schemas.BlockAction:
				if block.Action == nil {
					continue
				}
				actionResults = append(actionResults, l.performAction(ctx, block, rowIndex))
			}
		}

		// No action request means the model considers the task finished,
		// whatever its stop reason says.
		if len(actionResults) == 0 {
			l.logger.Debug("Model requested no actions; task complete.",
				zap.Int("iterations", iteration),
				zap.String("stop_reason", resp.StopReason),
			)
			result.Success = true
			break
		}

		transcript = append(transcript, schemas.Message{Role: schemas.RoleUser, Blocks: actionResults})
	}

	if !result.Success {
		l.logger.Warn("Iteration budget exhausted before the model concluded.",
			zap.Int("max_iterations", l.cfg.MaxIterations))
	}
	return result, nil
}

// performAction executes one requested action and wraps the outcome as the
// action result the model sees next turn. Failures are fed back as error
// text; they never abort the run.
func (l *Loop) performAction(ctx context.Context, block schemas.ContentBlock, rowIndex int) schemas.ContentBlock {
	action := *block.Action
	l.sink.Emit(schemas.NewActionEvent(action, rowIndex))

	// The screenshot kind skips dispatch and settle; capture below serves it.
	if action.Kind != schemas.ActionScreenshot {
		if err := l.executor.Execute(ctx, l.surface, action); err != nil {
			l.logger.Warn("Action failed; feeding the error back to the model.",
				zap.String("kind", string(action.Kind)), zap.Error(err))
			l.sink.Emit(schemas.NewErrorEvent(err.Error(), rowIndex))
			return schemas.ResultBlock(block.CallID, schemas.ActionResult{Error: err.Error()})
		}
		l.settle(ctx)
	}

	image, err := l.surface.Screenshot(ctx)
	if err != nil {
		l.logger.Warn("Post-action screenshot failed.", zap.Error(err))
		l.sink.Emit(schemas.NewErrorEvent(err.Error(), rowIndex))
		return schemas.ResultBlock(block.CallID, schemas.ActionResult{Error: fmt.Sprintf("screenshot failed: %s", err)})
	}

	l.sink.Emit(schemas.NewScreenshotEvent(image, rowIndex, false))
	return schemas.ResultBlock(block.CallID, schemas.ActionResult{ImageB64: image})
}

// settle gives the page time to react before the next capture.
func (l *Loop) settle(ctx context.Context) {
	if l.cfg.SettleDelay <= 0 {
		return
	}
	select {
	case <-time.After(l.cfg.SettleDelay):
	case <-ctx.Done():
	}
}

func (l *Loop) finalScreenshot(ctx context.Context, rowIndex int) {
	image, err := l.surface.Screenshot(ctx)
	if err != nil {
		l.logger.Warn("Final screenshot failed.", zap.Error(err))
		return
	}
	l.sink.Emit(schemas.NewScreenshotEvent(image, rowIndex, true))
}
