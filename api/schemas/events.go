package schemas

import "time"

// EventType tags a progress event on the stream.
type EventType string

const (
	EventBatchStart EventType = "batch-start"
	EventRowStart   EventType = "row-start"
	EventIteration  EventType = "iteration"
	EventClaudeText EventType = "claude-text"
	EventAction     EventType = "action"
	EventScreenshot EventType = "screenshot"
	EventError      EventType = "error"
	EventRowDone    EventType = "row-done"
	EventRowError   EventType = "row-error"
	EventBatchDone  EventType = "batch-done"

	// Single-row path only.
	EventStatus EventType = "status"
	EventDone   EventType = "done"
)

// Event is one tagged progress message, timestamped at emission and sent
// outward over the streaming channel. Never persisted.
type Event struct {
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"ts"`
	Data      map[string]any `json:"data,omitempty"`
}

func newEvent(t EventType, data map[string]any) Event {
	return Event{Type: t, Timestamp: time.Now().UTC(), Data: data}
}

// Row indices in event payloads are 1-based; 0 means "not in a row context"
// and the field is omitted.
func withRow(data map[string]any, rowIndex int) map[string]any {
	if rowIndex > 0 {
		data["row_index"] = rowIndex
	}
	return data
}

// NewBatchStartEvent announces a batch run.
func NewBatchStartEvent(rowCount int, headers []string) Event {
	return newEvent(EventBatchStart, map[string]any{
		"row_count": rowCount,
		"headers":   headers,
	})
}

// NewRowStartEvent announces one row beginning, with its input data.
func NewRowStartEvent(rowIndex, total int, row map[string]string) Event {
	return newEvent(EventRowStart, map[string]any{
		"row_index": rowIndex,
		"total":     total,
		"row":       row,
	})
}

// NewIterationEvent reports agent-loop progress within a row.
func NewIterationEvent(current, max, rowIndex int) Event {
	return newEvent(EventIteration, withRow(map[string]any{
		"current": current,
		"max":     max,
	}, rowIndex))
}

// NewClaudeTextEvent carries free-text commentary from the decision model.
func NewClaudeTextEvent(text string, rowIndex int) Event {
	return newEvent(EventClaudeText, withRow(map[string]any{
		"text": text,
	}, rowIndex))
}

// NewActionEvent carries the action kind plus the full action payload.
func NewActionEvent(action Action, rowIndex int) Event {
	return newEvent(EventAction, withRow(map[string]any{
		"kind":   action.Kind,
		"action": action,
	}, rowIndex))
}

// NewScreenshotEvent carries one base64 PNG; final marks the run-closing capture.
func NewScreenshotEvent(imageB64 string, rowIndex int, final bool) Event {
	return newEvent(EventScreenshot, withRow(map[string]any{
		"image": imageB64,
		"final": final,
	}, rowIndex))
}

// NewErrorEvent reports a non-fatal error on the stream.
func NewErrorEvent(message string, rowIndex int) Event {
	return newEvent(EventError, withRow(map[string]any{
		"message": message,
	}, rowIndex))
}

// NewRowDoneEvent reports one row's outcome.
func NewRowDoneEvent(rowIndex int, success bool, iterations int, reference string) Event {
	return newEvent(EventRowDone, map[string]any{
		"row_index":  rowIndex,
		"success":    success,
		"iterations": iterations,
		"reference":  reference,
	})
}

// NewRowErrorEvent reports one row failing as a whole.
func NewRowErrorEvent(rowIndex int, message string) Event {
	return newEvent(EventRowError, map[string]any{
		"row_index": rowIndex,
		"message":   message,
	})
}

// NewBatchDoneEvent closes a batch stream; err is folded in when non-nil.
func NewBatchDoneEvent(total int, sessionID string, err error) Event {
	data := map[string]any{
		"total":      total,
		"session_id": sessionID,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	return newEvent(EventBatchDone, data)
}

// NewStatusEvent carries a single-row progress message.
func NewStatusEvent(message string) Event {
	return newEvent(EventStatus, map[string]any{"message": message})
}

// NewDoneEvent closes a single-row stream.
func NewDoneEvent(success bool, iterations int, err error) Event {
	data := map[string]any{
		"success":    success,
		"iterations": iterations,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	return newEvent(EventDone, data)
}
