package agent

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/config"
	"github.com/xkilldash9x/formpilot/internal/metrics"
	"github.com/xkilldash9x/formpilot/internal/session"
)

// Batch walks a dataset through the runner one row at a time on a single
// owned page, recording references into the session store as it goes.
type Batch struct {
	pages  PageProvider
	runner *Runner
	store  *session.Store
	cfg    config.AgentConfig
	sink   Sink
	logger *zap.Logger
}

// NewBatch wires a batch orchestrator.
func NewBatch(pages PageProvider, runner *Runner, store *session.Store, cfg config.AgentConfig, sink Sink, logger *zap.Logger) *Batch {
	return &Batch{
		pages:  pages,
		runner: runner,
		store:  store,
		cfg:    cfg,
		sink:   sink,
		logger: logger.Named("batch"),
	}
}

// Run processes every dataset row sequentially. All reporting flows through
// the sink and the session store; callers close the stream when Run returns.
func (b *Batch) Run(ctx context.Context, url, sessionID string, ds *schemas.Dataset) {
	metrics.Default().RunStarted()
	defer metrics.Default().RunFinished()

	total := len(ds.Rows)
	b.sink.Emit(schemas.NewBatchStartEvent(total, ds.Headers))
	b.store.Put(sessionID, schemas.NewResultTable(ds))

	page, err := b.pages.AcquirePage(ctx)
	if err != nil {
		err = fmt.Errorf("browser acquisition failed: %w", err)
		b.logger.Error("Batch could not start.", zap.String("session_id", sessionID), zap.Error(err))
		b.sink.Emit(schemas.NewErrorEvent(err.Error(), 0))
		b.sink.Emit(schemas.NewBatchDoneEvent(total, sessionID, err))
		return
	}
	defer releaseSurface(page, b.cfg.ReleaseGrace)

	b.logger.Info("Batch started.",
		zap.String("session_id", sessionID),
		zap.String("url", url),
		zap.Int("rows", total),
	)

	var batchErr error
	for i, row := range ds.Rows {
		rowIndex := i + 1
		b.sink.Emit(schemas.NewRowStartEvent(rowIndex, total, row))

		outcome, err := b.runner.RunRow(ctx, page, url, ds.Headers, row, rowIndex)
		if err != nil {
			b.logger.Error("Row failed.", zap.Int("row", rowIndex), zap.Error(err))
			b.updateReference(sessionID, i, schemas.ReferenceError)
			b.sink.Emit(schemas.NewRowErrorEvent(rowIndex, err.Error()))
			metrics.Default().RecordRow(metrics.OutcomeError, 0)
		} else {
			b.updateReference(sessionID, i, outcome.Reference)
			b.sink.Emit(schemas.NewRowDoneEvent(rowIndex, outcome.Success, outcome.Iterations, outcome.Reference))
			metrics.Default().RecordRow(rowOutcome(outcome.Success), outcome.Iterations)
		}

		if ctx.Err() != nil {
			batchErr = ctx.Err()
			b.logger.Warn("Batch interrupted.", zap.Int("completed_rows", rowIndex), zap.Error(batchErr))
			break
		}
		if i < total-1 {
			b.pause(ctx)
		}
	}

	b.sink.Emit(schemas.NewBatchDoneEvent(total, sessionID, batchErr))
	b.logger.Info("Batch finished.", zap.String("session_id", sessionID), zap.Error(batchErr))
}

func (b *Batch) updateReference(sessionID string, rowIndex int, reference string) {
	if err := b.store.UpdateReference(sessionID, rowIndex, reference); err != nil {
		b.logger.Warn("Could not record reference.",
			zap.String("session_id", sessionID),
			zap.Int("row", rowIndex),
			zap.Error(err),
		)
	}
}

// pause inserts the inter-row delay. Skipped after the last row.
func (b *Batch) pause(ctx context.Context) {
	if b.cfg.InterRowDelay <= 0 {
		return
	}
	select {
	case <-time.After(b.cfg.InterRowDelay):
	case <-ctx.Done():
	}
}

func rowOutcome(success bool) string {
	if success {
		return metrics.OutcomeSuccess
	}
	return metrics.OutcomeFailed
}

// releaseSurface closes the page after a short grace period so in-flight
// screenshot I/O settles before the tab goes away.
func releaseSurface(surface Surface, grace time.Duration) {
	if grace > 0 {
		time.Sleep(grace)
	}
	surface.Close()
}
