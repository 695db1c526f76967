package model

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

// Numeric is a JSON scalar kept as its raw text. Producers send amounts both
// as numbers and as numeric strings, so conversion happens when a value is
// actually needed and a bad value never fails the surrounding decode.
// The empty Numeric means the field was absent or null.
type Numeric string

// NumericFromFloat formats f without loss.
func NumericFromFloat(f float64) Numeric {
	return Numeric(strconv.FormatFloat(f, 'f', -1, 64))
}

// NumericFromDecimal formats d with exactly two decimal places.
func NumericFromDecimal(d decimal.Decimal) Numeric {
	return Numeric(d.StringFixed(2))
}

// Present reports whether the field carried a value.
func (n Numeric) Present() bool { return n != "" }

// Float64 converts the value. Missing values return ErrMissingValue;
// non-numeric, NaN and infinite values return ErrNotNumeric.
func (n Numeric) Float64() (float64, error) {
	s := strings.TrimSpace(string(n))
	if s == "" {
		return 0, ErrMissingValue
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %q", ErrNotNumeric, s)
	}
	return f, nil
}

// Or returns the converted value, or def when it is missing or not numeric.
func (n Numeric) Or(def float64) float64 {
	f, err := n.Float64()
	if err != nil {
		return def
	}
	return f
}

// Decimal converts the value to a decimal.Decimal, keeping the digits as
// written where the text is a plain decimal literal.
func (n Numeric) Decimal() (decimal.Decimal, error) {
	f, err := n.Float64()
	if err != nil {
		return decimal.Zero, err
	}
	if d, err := decimal.NewFromString(strings.TrimSpace(string(n))); err == nil {
		return d, nil
	}
	return decimal.NewFromFloat(f), nil
}

// UnmarshalJSON accepts any JSON value. Strings are unquoted, null clears the
// field and everything else keeps its literal text.
func (n *Numeric) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		*n = ""
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*n = Numeric(s)
	default:
		*n = Numeric(b)
	}
	return nil
}

// MarshalJSON emits numbers for numeric values, null for missing ones and the
// raw text as a string otherwise.
func (n Numeric) MarshalJSON() ([]byte, error) {
	if n == "" {
		return []byte("null"), nil
	}
	if f, err := n.Float64(); err == nil {
		return strconv.AppendFloat(nil, f, 'f', -1, 64), nil
	}
	return json.Marshal(string(n))
}
