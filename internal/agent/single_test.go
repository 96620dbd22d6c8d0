package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/model"
)

func TestSingleRun_Success(t *testing.T) {
	surface := new(MockSurface)
	surface.On("Navigate", mock.Anything, batchTestURL).Return(nil).Once()
	surface.On("Screenshot", mock.Anything).Return("IMG", nil).Once()
	surface.On("VisibleText", mock.Anything).Return("", nil).Once()
	surface.On("Close").Return().Once()

	var firstRequest model.Request
	decider := new(MockDecider)
	decider.On("Decide", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			firstRequest = args.Get(1).(model.Request)
		}).
		Return(textResponse("Submitted. Confirmation: AAA11111"), nil).Once()

	sink := &captureSink{}
	single := NewSingle(staticProvider(surface), newTestRunner(decider, sink), testAgentConfig(), sink, zap.NewNop())

	outcome, err := single.Run(context.Background(), batchTestURL, map[string]string{
		"zip":  "12345",
		"name": "Ada",
	})
	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.Equal(t, "AAA11111", outcome.Reference)

	// A JSON object has no column order, so fields enumerate alphabetically.
	require.NotEmpty(t, firstRequest.Transcript)
	task := firstRequest.Transcript[0].Blocks[0].Text
	assert.Contains(t, task, "- name: Ada\n- zip: 12345\n")

	types := sink.types()
	assert.Equal(t, schemas.EventStatus, types[0])
	done := sink.all()[len(types)-1]
	require.Equal(t, schemas.EventDone, done.Type)
	assert.Equal(t, true, done.Data["success"])
	assert.Equal(t, 1, done.Data["iterations"])
	_, hasErr := done.Data["error"]
	assert.False(t, hasErr)

	acquiring, ok := sink.first(schemas.EventStatus)
	require.True(t, ok)
	assert.Equal(t, "Acquiring browser instance...", acquiring.Data["message"])
	assert.Equal(t, 1, sink.count(schemas.EventDone))

	// The extracted code lands on the stream as a status message.
	var sawReference bool
	for _, e := range sink.all() {
		if e.Type == schemas.EventStatus && e.Data["message"] == "Reference code: AAA11111" {
			sawReference = true
		}
	}
	assert.True(t, sawReference)

	surface.AssertExpectations(t)
	decider.AssertExpectations(t)
}

func TestSingleRun_TaskFailure(t *testing.T) {
	surface := new(MockSurface)
	surface.On("Navigate", mock.Anything, batchTestURL).Return(errors.New("nav crash")).Once()
	surface.On("Close").Return().Once()

	sink := &captureSink{}
	single := NewSingle(staticProvider(surface), newTestRunner(new(MockDecider), sink), testAgentConfig(), sink, zap.NewNop())

	outcome, err := single.Run(context.Background(), batchTestURL, map[string]string{"name": "Ada"})
	require.Error(t, err)
	assert.Nil(t, outcome)

	assert.Equal(t, 1, sink.count(schemas.EventError))
	done, ok := sink.first(schemas.EventDone)
	require.True(t, ok)
	assert.Equal(t, false, done.Data["success"])
	assert.Contains(t, done.Data["error"], "nav crash")

	surface.AssertExpectations(t)
}

func TestSingleRun_AcquisitionFailure(t *testing.T) {
	provider := ProviderFunc(func(context.Context) (Surface, error) {
		return nil, errors.New("chrome missing")
	})

	sink := &captureSink{}
	single := NewSingle(provider, newTestRunner(new(MockDecider), sink), testAgentConfig(), sink, zap.NewNop())

	outcome, err := single.Run(context.Background(), batchTestURL, map[string]string{"name": "Ada"})
	require.Error(t, err)
	assert.Nil(t, outcome)

	done, ok := sink.first(schemas.EventDone)
	require.True(t, ok)
	assert.Equal(t, false, done.Data["success"])
	assert.Contains(t, done.Data["error"], "browser acquisition failed")
}
