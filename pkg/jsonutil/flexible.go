package jsonutil

import (
	"encoding/json"
	"strconv"
	"strings"
)

// FlexibleStringValue decodes a model-produced scalar as a string. Models
// sometimes emit numbers or booleans where a string was asked for.
// Null and missing values decode to "".
func FlexibleStringValue(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		if n == float64(int64(n)) {
			return strconv.FormatInt(int64(n), 10)
		}
		return strconv.FormatFloat(n, 'g', -1, 64)
	}

	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return strconv.FormatBool(b)
	}

	return string(raw)
}

// FlexibleBoolValue decodes a model-produced scalar as a bool, accepting
// true/false, "true"/"yes"/"1" strings and non-zero numbers.
func FlexibleBoolValue(raw json.RawMessage) bool {
	if len(raw) == 0 || string(raw) == "null" {
		return false
	}

	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}

	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n != 0
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "true", "yes", "y", "1":
			return true
		}
	}
	return false
}
