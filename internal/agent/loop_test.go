package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/model"
)

func newTestLoop(decider model.Decider, surface Surface, sink Sink) *Loop {
	cfg := testAgentConfig()
	return NewLoop(decider, NewExecutor(cfg, zap.NewNop()), surface, sink, cfg, zap.NewNop())
}

func textResponse(text string) *model.Response {
	return &model.Response{
		Blocks:     []schemas.ContentBlock{schemas.TextBlock(text)},
		StopReason: "end_turn",
	}
}

func actionResponse(callID string, action schemas.Action) *model.Response {
	return &model.Response{
		Blocks:     []schemas.ContentBlock{schemas.ActionBlock(callID, action)},
		StopReason: "tool_use",
	}
}

func TestLoopRun_ModelConcludesImmediately(t *testing.T) {
	surface := new(MockSurface)
	surface.On("Screenshot", mock.Anything).Return("FINAL_IMG", nil).Once()

	decider := new(MockDecider)
	decider.On("Decide", mock.Anything, mock.Anything).
		Return(textResponse("The form is already filled. Reference: AB12CD34"), nil).Once()

	sink := &captureSink{}
	result, err := newTestLoop(decider, surface, sink).Run(context.Background(), "system", "task", 1)

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.Iterations)
	require.Len(t, result.Commentary, 1)
	assert.Contains(t, result.Commentary[0], "AB12CD34")

	require.Equal(t, []schemas.EventType{
		schemas.EventIteration,
		schemas.EventClaudeText,
		schemas.EventScreenshot,
	}, sink.types())

	final := sink.all()[2]
	assert.Equal(t, true, final.Data["final"])
	assert.Equal(t, "FINAL_IMG", final.Data["image"])

	decider.AssertExpectations(t)
	surface.AssertExpectations(t)
}

func TestLoopRun_BudgetExhaustion(t *testing.T) {
	surface := new(MockSurface)
	surface.On("Click", mock.Anything, 10.0, 10.0, mock.Anything, 1).Return(nil)
	surface.On("Screenshot", mock.Anything).Return("IMG", nil)

	click := schemas.Action{Kind: schemas.ActionLeftClick, Coordinate: coord(10, 10)}
	decider := new(MockDecider)
	decider.On("Decide", mock.Anything, mock.Anything).Return(actionResponse("c", click), nil)

	sink := &captureSink{}
	result, err := newTestLoop(decider, surface, sink).Run(context.Background(), "system", "task", 1)

	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, 25, result.Iterations)

	assert.Equal(t, 25, sink.count(schemas.EventIteration))
	assert.Equal(t, 25, sink.count(schemas.EventAction))
	// One capture per action plus the closing one.
	assert.Equal(t, 26, sink.count(schemas.EventScreenshot))

	decider.AssertNumberOfCalls(t, "Decide", 25)
	surface.AssertNumberOfCalls(t, "Screenshot", 26)
}

func TestLoopRun_ActionErrorFedBack(t *testing.T) {
	surface := new(MockSurface)
	surface.On("TypeText", mock.Anything, "hi").Return(errors.New("input dead")).Once()
	surface.On("Screenshot", mock.Anything).Return("FINAL_IMG", nil).Once()

	var secondRequest model.Request
	typeAction := schemas.Action{Kind: schemas.ActionType, Text: "hi"}

	decider := new(MockDecider)
	decider.On("Decide", mock.Anything, mock.Anything).
		Return(actionResponse("call_1", typeAction), nil).Once()
	decider.On("Decide", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			secondRequest = args.Get(1).(model.Request)
		}).
		Return(textResponse("The input is broken, stopping here."), nil).Once()

	sink := &captureSink{}
	result, err := newTestLoop(decider, surface, sink).Run(context.Background(), "system", "task", 1)

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.Iterations)

	// The failure travels back to the model as the action's result block.
	require.Len(t, secondRequest.Transcript, 3)
	resultTurn := secondRequest.Transcript[2]
	assert.Equal(t, schemas.RoleUser, resultTurn.Role)
	require.Len(t, resultTurn.Blocks, 1)
	block := resultTurn.Blocks[0]
	assert.Equal(t, schemas.BlockActionResult, block.Type)
	assert.Equal(t, "call_1", block.CallID)
	require.NotNil(t, block.Result)
	assert.Contains(t, block.Result.Error, "input dead")

	assert.Equal(t, 1, sink.count(schemas.EventError))
	// The failed action produced no capture; only the closing one exists.
	assert.Equal(t, 1, sink.count(schemas.EventScreenshot))

	decider.AssertExpectations(t)
	surface.AssertExpectations(t)
}

func TestLoopRun_TextAndActionInOneTurn(t *testing.T) {
	surface := new(MockSurface)
	surface.On("Click", mock.Anything, 10.0, 20.0, mock.Anything, 1).Return(nil).Once()
	surface.On("Screenshot", mock.Anything).Return("IMG", nil).Times(2)

	click := schemas.Action{Kind: schemas.ActionLeftClick, Coordinate: coord(10, 20)}
	decider := new(MockDecider)
	decider.On("Decide", mock.Anything, mock.Anything).
		Return(&model.Response{
			Blocks: []schemas.ContentBlock{
				schemas.TextBlock("Clicking the submit button."),
				schemas.ActionBlock("c1", click),
			},
			StopReason: "tool_use",
		}, nil).Once()
	decider.On("Decide", mock.Anything, mock.Anything).
		Return(textResponse("Submitted."), nil).Once()

	sink := &captureSink{}
	result, err := newTestLoop(decider, surface, sink).Run(context.Background(), "system", "task", 1)

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.Iterations)
	assert.Equal(t, []string{"Clicking the submit button.", "Submitted."}, result.Commentary)

	assert.Equal(t, 2, sink.count(schemas.EventClaudeText))
	assert.Equal(t, 1, sink.count(schemas.EventAction))

	decider.AssertExpectations(t)
	surface.AssertExpectations(t)
}

func TestLoopRun_DecisionErrorAborts(t *testing.T) {
	surface := new(MockSurface)
	surface.On("Screenshot", mock.Anything).Return("IMG", nil).Once()

	decider := new(MockDecider)
	decider.On("Decide", mock.Anything, mock.Anything).
		Return(nil, errors.New("model exploded")).Once()

	sink := &captureSink{}
	result, err := newTestLoop(decider, surface, sink).Run(context.Background(), "system", "task", 1)

	require.Error(t, err)
	assert.Nil(t, result)
	assert.Contains(t, err.Error(), "model decision failed on iteration 1")
	assert.Contains(t, err.Error(), "model exploded")

	// Even an aborted run closes with a final capture.
	assert.Equal(t, 1, sink.count(schemas.EventScreenshot))
	event, ok := sink.first(schemas.EventScreenshot)
	require.True(t, ok)
	assert.Equal(t, true, event.Data["final"])
}

func TestLoopRun_CancelledContext(t *testing.T) {
	surface := new(MockSurface)
	surface.On("Screenshot", mock.Anything).Return("", errors.New("page gone")).Once()

	decider := new(MockDecider)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sink := &captureSink{}
	result, err := newTestLoop(decider, surface, sink).Run(ctx, "system", "task", 1)

	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, result)
	assert.Empty(t, sink.all())
	decider.AssertNumberOfCalls(t, "Decide", 0)
}

func TestLoopRun_SettlesBeforeCapture(t *testing.T) {
	surface := new(MockSurface)
	surface.On("Click", mock.Anything, 1.0, 1.0, mock.Anything, 1).Return(nil).Once()
	surface.On("Screenshot", mock.Anything).Return("IMG", nil).Times(2)

	click := schemas.Action{Kind: schemas.ActionLeftClick, Coordinate: coord(1, 1)}
	decider := new(MockDecider)
	decider.On("Decide", mock.Anything, mock.Anything).Return(actionResponse("c", click), nil).Once()
	decider.On("Decide", mock.Anything, mock.Anything).Return(textResponse("Done."), nil).Once()

	cfg := testAgentConfig()
	cfg.SettleDelay = 15 * time.Millisecond
	loop := NewLoop(decider, NewExecutor(cfg, zap.NewNop()), surface, &captureSink{}, cfg, zap.NewNop())

	start := time.Now()
	_, err := loop.Run(context.Background(), "system", "task", 1)

	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
}
