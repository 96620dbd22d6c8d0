package schemas

// ActionKind identifies one UI input operation the decision model can request.
type ActionKind string

const (
	ActionLeftClick     ActionKind = "left_click"
	ActionRightClick    ActionKind = "right_click"
	ActionMiddleClick   ActionKind = "middle_click"
	ActionDoubleClick   ActionKind = "double_click"
	ActionTripleClick   ActionKind = "triple_click"
	ActionMouseMove     ActionKind = "mouse_move"
	ActionLeftClickDrag ActionKind = "left_click_drag"
	ActionType          ActionKind = "type"
	ActionKey           ActionKind = "key"
	ActionScroll        ActionKind = "scroll"
	ActionWait          ActionKind = "wait"
	ActionScreenshot    ActionKind = "screenshot"
)

// ScrollDirection selects the wheel axis and sign for a scroll action.
type ScrollDirection string

const (
	ScrollUp    ScrollDirection = "up"
	ScrollDown  ScrollDirection = "down"
	ScrollLeft  ScrollDirection = "left"
	ScrollRight ScrollDirection = "right"
)

// Coordinate is a pixel position as the model emits it: [x, y].
type Coordinate [2]int

// X returns the horizontal component.
func (c Coordinate) X() int { return c[0] }

// Y returns the vertical component.
func (c Coordinate) Y() int { return c[1] }

// Action is one structured action request. Kind is required; every other
// field is meaningful only for the kinds that declare it and is ignored
// otherwise, never required.
type Action struct {
	Kind ActionKind `json:"kind"`
	// Coordinate is the target position for pointer kinds and the drag end.
	Coordinate *Coordinate `json:"coordinate,omitempty"`
	// StartCoordinate is the drag origin; falls back to Coordinate when absent.
	StartCoordinate *Coordinate `json:"start_coordinate,omitempty"`
	// Text is the literal string to type.
	Text string `json:"text,omitempty"`
	// Key is a key name or alias ("return", "ctrl+a", ...).
	Key string `json:"key,omitempty"`
	// Direction and Amount shape a scroll; Amount defaults to 3 step units.
	Direction ScrollDirection `json:"direction,omitempty"`
	Amount    int             `json:"amount,omitempty"`
	// Duration is the wait time in seconds; defaults to 1 when absent.
	Duration float64 `json:"duration,omitempty"`
}
