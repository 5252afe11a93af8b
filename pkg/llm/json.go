package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/ekaya-inc/exim-agent/pkg/apperrors"
	"github.com/ekaya-inc/exim-agent/pkg/models"
)

// thinkTagPattern matches a leading <think>...</think> block some models emit.
var thinkTagPattern = regexp.MustCompile(`(?s)^[\s]*<think>.*?</think>[\s]*`)

// fencedJSONPattern matches the first ```json fenced object.
var fencedJSONPattern = regexp.MustCompile("(?is)```json\\s*(\\{.*?\\})\\s*```")

// ExtractJSON returns the JSON object text in a completion. A ```json fenced
// block wins; otherwise the first balanced {...} anywhere in the text is
// used. Returns apperrors.ErrNoJSON when neither is present.
func ExtractJSON(response string) (string, error) {
	cleaned := thinkTagPattern.ReplaceAllString(response, "")

	if m := fencedJSONPattern.FindStringSubmatch(cleaned); m != nil {
		return m[1], nil
	}

	if obj, ok := extractBalancedObject(cleaned); ok {
		return obj, nil
	}

	return "", apperrors.ErrNoJSON
}

// extractBalancedObject finds the first brace-balanced object, skipping
// braces inside JSON strings.
func extractBalancedObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start == -1 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]

		if escaped {
			escaped = false
			continue
		}
		if c == '\\' && inString {
			escaped = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		switch c {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}

	return "", false
}

// ParseQuerySpec extracts and decodes the query-synthesis object.
func ParseQuerySpec(response string) (*models.GeneratedQuerySpec, error) {
	raw, err := ExtractJSON(response)
	if err != nil {
		return nil, err
	}

	var spec models.GeneratedQuerySpec
	if err := json.Unmarshal([]byte(raw), &spec); err != nil {
		return nil, fmt.Errorf("unmarshal query spec: %w", err)
	}
	return &spec, nil
}
