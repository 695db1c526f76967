package model

import (
	"bytes"
	"fmt"

	json "github.com/goccy/go-json"
)

// Text is a JSON scalar read as text. FIX gateways send identifiers and
// timestamps as strings or as bare numbers depending on the producer, so
// both are accepted. Objects and arrays are still a decode error.
type Text string

func (t Text) String() string { return string(t) }

// UnmarshalJSON unquotes strings, keeps number and boolean literals as
// written and clears the field on null.
func (t *Text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		*t = ""
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = Text(s)
	case b[0] == '{' || b[0] == '[':
		return fmt.Errorf("expected string or number, got %s", kindOf(b[0]))
	default:
		*t = Text(b)
	}
	return nil
}

// MarshalJSON always emits a JSON string.
func (t Text) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(t))
}

func kindOf(c byte) string {
	if c == '{' {
		return "object"
	}
	return "array"
}
