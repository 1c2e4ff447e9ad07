// Package jsonx extracts and decodes structured JSON out of free-text LLM
// completions. Grounded on the teacher's tool-call argument handling in
// internal/llm/openai/schema.go (AdaptMessages' ToolCalls carry raw JSON
// arguments that get json.Unmarshal'd by callers) generalized to the case
// where a provider returns prose with an embedded JSON object instead of
// a structured tool call — the classify/grade/CRAG/hallucination/answer
// steps (§4.4) and the analyze/citations steps (§4.2) all need this.
package jsonx

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Extract locates the first balanced top-level JSON value (object or
// array) in s and returns its raw text. It tolerates surrounding prose
// and markdown code fences, which models commonly add despite
// instructions not to.
func Extract(s string) (string, error) {
	s = stripFences(s)
	start := -1
	var open, close byte
	for i := 0; i < len(s); i++ {
		if s[i] == '{' || s[i] == '[' {
			start = i
			open = s[i]
			if open == '{' {
				close = '}'
			} else {
				close = ']'
			}
			break
		}
	}
	if start == -1 {
		return "", fmt.Errorf("jsonx: no JSON value found")
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return s[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("jsonx: unbalanced JSON value")
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	lines := strings.Split(s, "\n")
	if len(lines) < 2 {
		return s
	}
	lines = lines[1:]
	if len(lines) > 0 && strings.HasPrefix(strings.TrimSpace(lines[len(lines)-1]), "```") {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// Decode extracts the first JSON value from s and unmarshals it into out.
func Decode(s string, out any) error {
	raw, err := Extract(s)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("jsonx: decode: %w", err)
	}
	return nil
}

// DecodeWithRepair calls decode(text) and, on failure, invokes repair once
// with a stricter instruction appended to the original prompt context via
// retry, giving the model one chance to fix malformed output before the
// caller falls back to its own failure handling. retry receives the
// failed raw text and the decode error, and should return the model's
// second attempt.
func DecodeWithRepair(first string, out any, retry func(failed string, decodeErr error) (string, error)) error {
	if err := Decode(first, out); err == nil {
		return nil
	} else if retry == nil {
		return err
	} else {
		second, rerr := retry(first, err)
		if rerr != nil {
			return rerr
		}
		return Decode(second, out)
	}
}
