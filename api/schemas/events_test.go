package schemas_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

func TestEventConstructors(t *testing.T) {
	t.Run("RowIndexIncludedWhenPositive", func(t *testing.T) {
		ev := schemas.NewIterationEvent(3, 25, 2)
		assert.Equal(t, schemas.EventIteration, ev.Type)
		assert.Equal(t, 2, ev.Data["row_index"])
		assert.Equal(t, 3, ev.Data["current"])
		assert.Equal(t, 25, ev.Data["max"])
		assert.False(t, ev.Timestamp.IsZero())
	})

	t.Run("RowIndexOmittedOutsideRowContext", func(t *testing.T) {
		ev := schemas.NewClaudeTextEvent("filling the name field", 0)
		_, ok := ev.Data["row_index"]
		assert.False(t, ok)
		assert.Equal(t, "filling the name field", ev.Data["text"])
	})

	t.Run("BatchDoneFoldsError", func(t *testing.T) {
		ev := schemas.NewBatchDoneEvent(3, "sess-1", errors.New("browser died"))
		assert.Equal(t, schemas.EventBatchDone, ev.Type)
		assert.Equal(t, "browser died", ev.Data["error"])

		clean := schemas.NewBatchDoneEvent(3, "sess-1", nil)
		_, ok := clean.Data["error"]
		assert.False(t, ok)
	})

	t.Run("ScreenshotCarriesFinalFlag", func(t *testing.T) {
		ev := schemas.NewScreenshotEvent("aW1n", 1, true)
		assert.Equal(t, true, ev.Data["final"])
		assert.Equal(t, "aW1n", ev.Data["image"])
		assert.Equal(t, 1, ev.Data["row_index"])
	})

	t.Run("ActionEventCarriesKindAndPayload", func(t *testing.T) {
		action := schemas.Action{Kind: schemas.ActionType, Text: "hello"}
		ev := schemas.NewActionEvent(action, 0)
		assert.Equal(t, schemas.ActionType, ev.Data["kind"])
		assert.Equal(t, action, ev.Data["action"])
	})
}

func TestContentBlockBuilders(t *testing.T) {
	text := schemas.TextBlock("done")
	assert.Equal(t, schemas.BlockText, text.Type)
	assert.Equal(t, "done", text.Text)

	action := schemas.ActionBlock("call_1", schemas.Action{Kind: schemas.ActionWait})
	assert.Equal(t, schemas.BlockAction, action.Type)
	assert.Equal(t, "call_1", action.CallID)
	require.NotNil(t, action.Action)
	assert.Equal(t, schemas.ActionWait, action.Action.Kind)

	result := schemas.ResultBlock("call_1", schemas.ActionResult{Error: "element not clickable"})
	assert.Equal(t, schemas.BlockActionResult, result.Type)
	require.NotNil(t, result.Result)
	assert.Equal(t, "element not clickable", result.Result.Error)
}

func TestNewResultTable(t *testing.T) {
	ds := &schemas.Dataset{
		Headers:  []string{"name", "email"},
		Rows:     []map[string]string{{"name": "A", "email": "b@x.com"}},
		Filename: "contacts.csv",
	}

	table := schemas.NewResultTable(ds)
	require.Len(t, table.Rows, 1)
	assert.Equal(t, ds.Headers, table.Headers)
	assert.Equal(t, "contacts.csv", table.Filename)
	assert.Equal(t, "A", table.Rows[0].Fields["name"])
	assert.Empty(t, table.Rows[0].Reference)
}

func TestCoordinateAccessors(t *testing.T) {
	c := schemas.Coordinate{640, 360}
	assert.Equal(t, 640, c.X())
	assert.Equal(t, 360, c.Y())
}
