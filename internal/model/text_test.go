package model

import (
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestText_UnmarshalScalars(t *testing.T) {
	var v struct {
		A Text `json:"a"`
		B Text `json:"b"`
		C Text `json:"c"`
		D Text `json:"d"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"ORD-1","b":12345,"c":null,"d":1.5e3}`), &v))
	assert.Equal(t, Text("ORD-1"), v.A)
	assert.Equal(t, Text("12345"), v.B)
	assert.Equal(t, Text(""), v.C)
	assert.Equal(t, Text("1.5e3"), v.D)
}

func TestText_RejectsContainers(t *testing.T) {
	var v struct {
		A Text `json:"a"`
	}
	assert.Error(t, json.Unmarshal([]byte(`{"a":[1]}`), &v))
	assert.Error(t, json.Unmarshal([]byte(`{"a":{"x":1}}`), &v))
}

func TestText_MarshalsAsString(t *testing.T) {
	out, err := json.Marshal(struct {
		ID Text `json:"id"`
	}{ID: "12345"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"12345"}`, string(out))
}
