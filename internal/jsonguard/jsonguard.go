// Package jsonguard extracts JSON from free-form LLM text. Models wrap JSON
// in prose or markdown fences despite prompt instructions; parse failure
// here is a trust signal routed to needs_review, never an exception.
package jsonguard

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
)

var fenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// ParseSafe extracts a JSON value from raw LLM output. Strategies, first
// success wins:
//
//  1. parse the trimmed full text directly
//  2. parse the contents of the first fenced code block
//  3. parse the substring from the first '{' to the last '}'
//
// All failure paths return a descriptive error; ParseSafe never panics.
func ParseSafe(raw string) (any, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, eris.New("jsonguard: empty response")
	}

	var data any
	if err := json.Unmarshal([]byte(trimmed), &data); err == nil {
		return data, nil
	}

	if m := fenceRe.FindStringSubmatch(trimmed); m != nil {
		if err := json.Unmarshal([]byte(strings.TrimSpace(m[1])), &data); err == nil {
			return data, nil
		}
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(trimmed[start:end+1]), &data); err == nil {
			return data, nil
		}
	}

	return nil, eris.New("jsonguard: no parseable JSON found in response")
}

// ParseObject is ParseSafe narrowed to a JSON object, which is what every
// pipeline envelope must be.
func ParseObject(raw string) (map[string]any, error) {
	data, err := ParseSafe(raw)
	if err != nil {
		return nil, err
	}
	obj, ok := data.(map[string]any)
	if !ok {
		return nil, eris.New("jsonguard: response is valid JSON but not an object")
	}
	return obj, nil
}
