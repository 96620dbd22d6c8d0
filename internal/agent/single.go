package agent

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/config"
	"github.com/xkilldash9x/formpilot/internal/metrics"
)

// Single drives one ad-hoc task for the WebSocket path: the same loop and
// event vocabulary as a batch row, but with status/done framing instead of
// row bookkeeping.
type Single struct {
	pages  PageProvider
	runner *Runner
	cfg    config.AgentConfig
	sink   Sink
	logger *zap.Logger
}

// NewSingle wires a single-run orchestrator.
func NewSingle(pages PageProvider, runner *Runner, cfg config.AgentConfig, sink Sink, logger *zap.Logger) *Single {
	return &Single{
		pages:  pages,
		runner: runner,
		cfg:    cfg,
		sink:   sink,
		logger: logger.Named("single"),
	}
}

// Run executes one task described by loose field/value pairs. Fields are
// enumerated alphabetically since a JSON object carries no column order. The
// outcome is also returned for callers that are not watching the sink.
func (s *Single) Run(ctx context.Context, url string, fields map[string]string) (*RowResult, error) {
	metrics.Default().RunStarted()
	defer metrics.Default().RunFinished()

	s.sink.Emit(schemas.NewStatusEvent("Acquiring browser instance..."))
	page, err := s.pages.AcquirePage(ctx)
	if err != nil {
		err = fmt.Errorf("browser acquisition failed: %w", err)
		s.logger.Error("Run could not start.", zap.Error(err))
		s.sink.Emit(schemas.NewErrorEvent(err.Error(), 0))
		s.sink.Emit(schemas.NewDoneEvent(false, 0, err))
		return nil, err
	}
	defer releaseSurface(page, s.cfg.ReleaseGrace)

	headers := make([]string, 0, len(fields))
	for name := range fields {
		headers = append(headers, name)
	}
	sort.Strings(headers)

	s.sink.Emit(schemas.NewStatusEvent("Starting form automation..."))
	outcome, err := s.runner.RunRow(ctx, page, url, headers, fields, 0)
	if err != nil {
		s.logger.Error("Run failed.", zap.Error(err))
		s.sink.Emit(schemas.NewErrorEvent(err.Error(), 0))
		s.sink.Emit(schemas.NewDoneEvent(false, 0, err))
		metrics.Default().RecordRow(metrics.OutcomeError, 0)
		return nil, err
	}

	s.sink.Emit(schemas.NewStatusEvent(fmt.Sprintf("Reference code: %s", outcome.Reference)))
	s.sink.Emit(schemas.NewDoneEvent(outcome.Success, outcome.Iterations, nil))
	metrics.Default().RecordRow(rowOutcome(outcome.Success), outcome.Iterations)
	return outcome, nil
}
