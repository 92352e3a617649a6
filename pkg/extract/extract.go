// Package extract pulls a JSON object out of noisy tool output: terminal
// escape sequences, log lines, markdown fences and string-encoded nesting.
package extract

import (
	"strings"

	"github.com/charmbracelet/x/ansi"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// nestedKey is the field some CLIs use to wrap the model's own JSON answer.
const nestedKey = "response"

// Extract returns the JSON object contained in v.
//
// Structured input (map[string]any) is returned unchanged. Text input is
// stripped of ANSI sequences and the span from the first '{' to the last '}'
// is parsed. A span that does not parse as a whole yields no object, so a
// truncated answer never surfaces one of its nested objects.
// If the object carries a string "response" field, that string is extracted
// once more (one level only) and the inner object preferred on success; an
// object-valued "response" is preferred directly.
//
// Extract never panics and reports failure with ok == false.
func Extract(v any) (m map[string]any, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			m, ok = nil, false
		}
	}()

	switch t := v.(type) {
	case map[string]any:
		return t, true
	case string:
		return fromText(t, false)
	case []byte:
		return fromText(string(t), false)
	}
	return nil, false
}

// StripANSI removes terminal control sequences and carriage returns.
func StripANSI(s string) string {
	return strings.ReplaceAll(ansi.Strip(s), "\r", "")
}

func fromText(s string, nested bool) (map[string]any, bool) {
	clean := StripANSI(s)

	m, ok := parseSpan(clean)
	if !ok {
		return nil, false
	}
	if nested {
		return m, true
	}

	switch inner := m[nestedKey].(type) {
	case string:
		if im, ok := fromText(inner, true); ok {
			return im, true
		}
	case map[string]any:
		return inner, true
	}
	return m, true
}

func parseSpan(s string) (map[string]any, bool) {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return nil, false
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s[start:end+1]), &m); err != nil || m == nil {
		return nil, false
	}
	return m, true
}
