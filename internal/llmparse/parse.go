// Package llmparse extracts structured JSON payloads from free-form LLM
// output. Models routinely wrap the requested JSON in explanatory prose; the
// bracket scan tolerates that surrounding text without attempting to repair
// malformed JSON inside the payload.
package llmparse

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseError reports that an LLM response could not be parsed into the
// structure a pipeline stage expects. Raw carries the full response for
// diagnostics.
type ParseError struct {
	Stage string
	Raw   string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: failed to parse LLM response: %v", e.Stage, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Extract locates the JSON payload embedded in raw: the start boundary is
// the first '{' or '[' (whichever comes first), the end boundary the last
// '}' or ']' (whichever comes last). The interior is returned verbatim; a
// malformed interior is the caller's problem to surface, not to fix.
func Extract(stage, raw string) (string, error) {
	start := -1
	for _, ch := range []string{"{", "["} {
		if idx := strings.Index(raw, ch); idx >= 0 && (start < 0 || idx < start) {
			start = idx
		}
	}
	if start < 0 {
		return "", &ParseError{Stage: stage, Raw: raw, Err: fmt.Errorf("no JSON found")}
	}

	end := -1
	for _, ch := range []string{"}", "]"} {
		if idx := strings.LastIndex(raw, ch); idx > end {
			end = idx
		}
	}
	if end < start {
		return "", &ParseError{Stage: stage, Raw: raw, Err: fmt.Errorf("mismatched JSON")}
	}

	return raw[start : end+1], nil
}

// Decode extracts the JSON payload from raw and unmarshals it into v. Any
// failure comes back as a *ParseError tagged with the stage name.
func Decode(stage, raw string, v any) error {
	payload, err := Extract(stage, raw)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(payload), v); err != nil {
		return &ParseError{Stage: stage, Raw: raw, Err: err}
	}
	return nil
}
