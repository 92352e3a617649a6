package action

import "strings"

// Known action names. Tools may return anything; these are the ones the
// downstream automation layer knows how to perform.
const (
	TypeClick    = "Click"
	TypeDrag     = "Drag"
	TypeWait     = "Wait"
	TypeKeyPress = "KeyPress"
	TypeType     = "Type"
)

// DefaultDuration is the action duration (seconds) used when a tool omits it.
const DefaultDuration = 1.0

// Vector2 is a point in normalized 0..1 screen space.
type Vector2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Response is the canonical action description returned for every request.
// All fields are always populated, either from tool output or defaults.
type Response struct {
	Thought        string  `json:"thought"`
	ActionType     string  `json:"actionType"`
	ScreenPosition Vector2 `json:"screenPosition"`
	TargetPosition Vector2 `json:"targetPosition"`
	KeyName        string  `json:"keyName"`
	TextToType     string  `json:"textToType"`
	Duration       float64 `json:"duration"`
}

// Default returns a Wait response with every field at its default value.
func Default() Response {
	return Response{
		Thought:    noThought,
		ActionType: TypeWait,
		Duration:   DefaultDuration,
	}
}

// IsError reports whether the response was produced by ErrorResponse.
func (r Response) IsError() bool {
	return r.ActionType == TypeWait && strings.HasPrefix(r.Thought, errorPrefix)
}
