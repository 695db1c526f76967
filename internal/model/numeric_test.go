package model

import (
	"errors"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumeric_Float64(t *testing.T) {
	tests := []struct {
		in      Numeric
		want    float64
		wantErr error
	}{
		{"150.25", 150.25, nil},
		{" 42 ", 42, nil},
		{"-0.5", -0.5, nil},
		{"0", 0, nil},
		{"", 0, ErrMissingValue},
		{"   ", 0, ErrMissingValue},
		{"abc", 0, ErrNotNumeric},
		{"NaN", 0, ErrNotNumeric},
		{"+Inf", 0, ErrNotNumeric},
		{"true", 0, ErrNotNumeric},
	}
	for _, tt := range tests {
		got, err := tt.in.Float64()
		if tt.wantErr != nil {
			assert.True(t, errors.Is(err, tt.wantErr), "%q: expected %v, got %v", tt.in, tt.wantErr, err)
			continue
		}
		require.NoError(t, err, "%q", tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestNumeric_UnmarshalAcceptsNumbersAndStrings(t *testing.T) {
	var v struct {
		A Numeric `json:"a"`
		B Numeric `json:"b"`
		C Numeric `json:"c"`
		D Numeric `json:"d"`
		E Numeric `json:"e"`
	}
	err := json.Unmarshal([]byte(`{"a":150.5,"b":"160.00","c":null,"d":"n/a","e":true}`), &v)
	require.NoError(t, err)

	assert.Equal(t, Numeric("150.5"), v.A)
	assert.Equal(t, Numeric("160.00"), v.B)
	assert.False(t, v.C.Present())
	assert.Equal(t, Numeric("n/a"), v.D)
	assert.Equal(t, Numeric("true"), v.E)
	assert.Equal(t, 160.0, v.B.Or(-1))
	assert.Equal(t, -1.0, v.D.Or(-1))
}

func TestNumeric_Marshal(t *testing.T) {
	out, err := json.Marshal(struct {
		A Numeric `json:"a"`
		B Numeric `json:"b"`
		C Numeric `json:"c"`
	}{A: "16000.00", B: "", C: "n/a"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":16000,"b":null,"c":"n/a"}`, string(out))
}

func TestNumericFromDecimal_TwoPlaces(t *testing.T) {
	assert.Equal(t, Numeric("1000.00"), NumericFromDecimal(decimal.NewFromInt(1000)))
	assert.Equal(t, Numeric("-0.50"), NumericFromDecimal(decimal.RequireFromString("-0.5")))
	assert.Equal(t, Numeric("149.995"), NumericFromFloat(149.995))
}

func TestNumeric_DecimalKeepsWrittenDigits(t *testing.T) {
	a, err := Numeric("0.1").Decimal()
	require.NoError(t, err)
	b, err := Numeric(" 0.2 ").Decimal()
	require.NoError(t, err)
	assert.True(t, a.Add(b).Equal(decimal.RequireFromString("0.3")), "got %s", a.Add(b))

	big, err := Numeric("12345678901234.56").Decimal()
	require.NoError(t, err)
	assert.Equal(t, "12345678901234.56", big.String())

	hex, err := Numeric("0x10").Decimal()
	require.NoError(t, err)
	assert.True(t, hex.Equal(decimal.NewFromInt(16)))

	_, err = Numeric("n/a").Decimal()
	assert.ErrorIs(t, err, ErrNotNumeric)
	_, err = Numeric("").Decimal()
	assert.ErrorIs(t, err, ErrMissingValue)
}

func TestErrorChains(t *testing.T) {
	qerr := &InvalidQuoteError{Field: &InvalidFieldError{
		Kind: KindQuote, Key: "AAPL", Field: "price", Value: "abc", Err: ErrNotNumeric,
	}}
	var ferr *InvalidFieldError
	require.True(t, errors.As(qerr, &ferr))
	assert.Equal(t, "price", ferr.Field)
	assert.ErrorIs(t, qerr, ErrNotNumeric)
	assert.Contains(t, qerr.Error(), "AAPL")

	derr := &DecodeError{Channel: "positions:updates", Layer: 3, Err: errors.New("string")}
	assert.Contains(t, derr.Error(), "layer 3")

	oerr := &OutboundRequestError{Method: "POST", URL: "http://x/y", Status: 502, Body: "bad gateway"}
	assert.Contains(t, oerr.Error(), "502")
}
