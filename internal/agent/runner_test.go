package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/internal/extract"
)

func newTestRunner(decider *MockDecider, sink Sink) *Runner {
	return NewRunner(decider, extract.New(), SystemPrompt(1280, 800), testAgentConfig(), sink, zap.NewNop())
}

func TestRunnerRunRow_NavigationFailure(t *testing.T) {
	surface := new(MockSurface)
	surface.On("Navigate", mock.Anything, "https://forms.example.com").
		Return(errors.New("dns lookup failed")).Once()

	decider := new(MockDecider)
	runner := newTestRunner(decider, &captureSink{})

	result, err := runner.RunRow(context.Background(), surface, "https://forms.example.com",
		[]string{"name"}, map[string]string{"name": "Ada"}, 1)

	require.Error(t, err)
	assert.Nil(t, result)
	assert.Contains(t, err.Error(), "navigation to https://forms.example.com failed")
	assert.Contains(t, err.Error(), "dns lookup failed")
	decider.AssertNumberOfCalls(t, "Decide", 0)
	surface.AssertExpectations(t)
}

func TestRunnerRunRow_PageTextWinsOverCommentary(t *testing.T) {
	surface := new(MockSurface)
	surface.On("Navigate", mock.Anything, mock.Anything).Return(nil).Once()
	surface.On("Screenshot", mock.Anything).Return("IMG", nil).Once()
	surface.On("VisibleText", mock.Anything).Return("Thank you! Ticket: ZZ99XX77", nil).Once()

	decider := new(MockDecider)
	decider.On("Decide", mock.Anything, mock.Anything).
		Return(textResponse("Submitted. Confirmation: AAA11111"), nil).Once()

	runner := newTestRunner(decider, &captureSink{})
	result, err := runner.RunRow(context.Background(), surface, "https://forms.example.com",
		[]string{"name"}, map[string]string{"name": "Ada"}, 1)

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "ZZ99XX77", result.Reference)
	surface.AssertExpectations(t)
}

func TestRunnerRunRow_CommentaryFallbackWhenPageUnreadable(t *testing.T) {
	surface := new(MockSurface)
	surface.On("Navigate", mock.Anything, mock.Anything).Return(nil).Once()
	surface.On("Screenshot", mock.Anything).Return("IMG", nil).Once()
	surface.On("VisibleText", mock.Anything).Return("", errors.New("target crashed")).Once()

	decider := new(MockDecider)
	decider.On("Decide", mock.Anything, mock.Anything).
		Return(textResponse("All done. Reference: REF123ABC"), nil).Once()

	runner := newTestRunner(decider, &captureSink{})
	result, err := runner.RunRow(context.Background(), surface, "https://forms.example.com",
		[]string{"name"}, map[string]string{"name": "Ada"}, 1)

	require.NoError(t, err)
	assert.Equal(t, "REF123ABC", result.Reference)
	surface.AssertExpectations(t)
}
