package agent

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/internal/config"
	"github.com/xkilldash9x/formpilot/internal/extract"
	"github.com/xkilldash9x/formpilot/internal/model"
)

// RowResult reports one completed form-fill task.
type RowResult struct {
	Success    bool
	Iterations int
	Reference  string
}

// Runner executes a single form-fill task end to end: navigate, drive the
// loop, extract the reference code.
type Runner struct {
	decider   model.Decider
	executor  *Executor
	extractor *extract.Extractor
	system    string
	cfg       config.AgentConfig
	sink      Sink
	logger    *zap.Logger
}

// NewRunner wires a runner. The system prompt is fixed per run because it
// carries the viewport geometry.
func NewRunner(decider model.Decider, extractor *extract.Extractor, system string, cfg config.AgentConfig, sink Sink, logger *zap.Logger) *Runner {
	return &Runner{
		decider:   decider,
		executor:  NewExecutor(cfg, logger),
		extractor: extractor,
		system:    system,
		cfg:       cfg,
		sink:      sink,
		logger:    logger.Named("runner"),
	}
}

// RunRow navigates fresh and drives the loop for one row. The surface is
// borrowed from the caller, which keeps ownership across rows.
func (r *Runner) RunRow(ctx context.Context, surface Surface, url string, headers []string, row map[string]string, rowIndex int) (*RowResult, error) {
	if err := surface.Navigate(ctx, url); err != nil {
		return nil, fmt.Errorf("navigation to %s failed: %w", url, err)
	}

	loop := NewLoop(r.decider, r.executor, surface, r.sink, r.cfg, r.logger)
	outcome, err := loop.Run(ctx, r.system, TaskPrompt(headers, row), rowIndex)
	if err != nil {
		return nil, err
	}

	// Best effort: extraction still works from commentary alone when the
	// final page text cannot be read.
	pageText, err := surface.VisibleText(ctx)
	if err != nil {
		r.logger.Warn("Could not read final page text.", zap.Error(err))
		pageText = ""
	}
	reference := r.extractor.Extract(pageText, outcome.Commentary)

	r.logger.Info("Row task finished.",
		zap.Int("row", rowIndex),
		zap.Bool("success", outcome.Success),
		zap.Int("iterations", outcome.Iterations),
		zap.String("reference", reference),
	)

	return &RowResult{
		Success:    outcome.Success,
		Iterations: outcome.Iterations,
		Reference:  reference,
	}, nil
}
