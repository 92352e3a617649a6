package action

import (
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

const noThought = "No thought provided."

var knownTypes = map[string]string{
	"click":    TypeClick,
	"drag":     TypeDrag,
	"wait":     TypeWait,
	"keypress": TypeKeyPress,
	"type":     TypeType,
}

// Normalize maps loosely shaped tool output onto Response. Field aliases are
// tried in order (thought|reason|explanation, actionType|action,
// screenPosition|position); anything missing or mistyped keeps its default.
// Coordinates are passed through unscaled.
func Normalize(m map[string]any) Response {
	r := Default()
	if m == nil {
		return r
	}

	if s, ok := firstString(m, "thought", "reason", "explanation"); ok {
		r.Thought = s
	}
	if s, ok := firstString(m, "actionType", "action"); ok {
		r.ActionType = canonicalType(s)
	}
	for _, key := range []string{"screenPosition", "position"} {
		if v, ok := m[key]; ok {
			if p, ok := toVector(v); ok {
				r.ScreenPosition = p
				break
			}
		}
	}
	if p, ok := toVector(m["targetPosition"]); ok {
		r.TargetPosition = p
	}
	if s, ok := m["keyName"].(string); ok {
		r.KeyName = s
	}
	if s, ok := m["textToType"].(string); ok {
		r.TextToType = s
	}
	if d, ok := toFloat(m["duration"]); ok {
		r.Duration = d
	}
	return r
}

func firstString(m map[string]any, keys ...string) (string, bool) {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && strings.TrimSpace(s) != "" {
			return s, true
		}
	}
	return "", false
}

// canonicalType fixes the casing of known action names; unknown names pass through.
func canonicalType(s string) string {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer("_", "", "-", "", " ", "").Replace(key)
	if c, ok := knownTypes[key]; ok {
		return c
	}
	return strings.TrimSpace(s)
}

func toVector(v any) (Vector2, bool) {
	switch p := v.(type) {
	case map[string]any:
		x, okx := toFloat(pick(p, "x", "X"))
		y, oky := toFloat(pick(p, "y", "Y"))
		if okx || oky {
			return Vector2{X: x, Y: y}, true
		}
	case []any:
		if len(p) >= 2 {
			x, okx := toFloat(p[0])
			y, oky := toFloat(p[1])
			if okx && oky {
				return Vector2{X: x, Y: y}, true
			}
		}
	case Vector2:
		return p, true
	}
	return Vector2{}, false
}

func pick(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v
		}
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case jsoniter.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}
