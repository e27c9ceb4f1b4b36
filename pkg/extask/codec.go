package extask

import (
	"bytes"
	"encoding/json"
	"strconv"
)

var null = []byte("null")

// Decode returns the textual value of the variable called name. An absent,
// null or unreadable variable yields def, or "" when def is omitted. Decode
// never fails: task variables are optional in the engine and a missing one
// must not sink the whole task.
func (v Variables) Decode(name string, def ...string) string {
	fallback := ""
	if len(def) > 0 {
		fallback = def[0]
	}
	if v == nil {
		return fallback
	}
	variable, ok := v[name]
	if !ok || variable == nil {
		return fallback
	}
	text, ok := variable.Text()
	if !ok {
		return fallback
	}
	return text
}

// Has reports whether name carries a non-null value.
func (v Variables) Has(name string) bool {
	if v == nil {
		return false
	}
	_, ok := v[name].Text()
	return ok
}

// Text renders the value as text. Strings are unquoted, numbers keep their
// JSON spelling, booleans become "true"/"false", objects and arrays are
// returned as compact JSON. ok is false for absent, null or malformed values.
func (v *Variable) Text() (string, bool) {
	if v == nil {
		return "", false
	}
	raw := bytes.TrimSpace(v.Value)
	if len(raw) == 0 || bytes.Equal(raw, null) {
		return "", false
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false
		}
		return s, true
	case 't', 'f':
		b, err := strconv.ParseBool(string(raw))
		if err != nil {
			return "", false
		}
		return strconv.FormatBool(b), true
	case '{', '[':
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return "", false
		}
		return buf.String(), true
	default:
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return "", false
		}
		return n.String(), true
	}
}
