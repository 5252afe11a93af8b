package jsonutil

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFlexibleStringValue(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"string", `"Top importers"`, "Top importers"},
		{"integer", `2024`, "2024"},
		{"float", `1.5`, "1.5"},
		{"bool", `true`, "true"},
		{"null", `null`, ""},
		{"empty", ``, ""},
		{"object fallback", `{"a":1}`, `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FlexibleStringValue(json.RawMessage(tt.raw)))
		})
	}
}

func TestFlexibleBoolValue(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{`true`, true},
		{`false`, false},
		{`"true"`, true},
		{`"Yes"`, true},
		{`"false"`, false},
		{`1`, true},
		{`0`, false},
		{`null`, false},
		{``, false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, FlexibleBoolValue(json.RawMessage(tt.raw)))
		})
	}
}
