package llm

import (
	"errors"
	"regexp"
	"strings"
)

// ErrNoJSONObject is returned when a response contains no '{' ... '}' span.
var ErrNoJSONObject = errors.New("no JSON object found in response")

// thinkTagPattern matches <think>...</think> tags that may appear at the start of LLM responses.
var thinkTagPattern = regexp.MustCompile(`(?s)^[\s]*<think>.*?</think>[\s]*`)

// StripThinking removes a leading <think>...</think> block from a response.
func StripThinking(response string) string {
	return thinkTagPattern.ReplaceAllString(response, "")
}

// LocateJSONObject returns the text between the first '{' and the last '}'
// of a response, after stripping reasoning tags. Prose before and after the
// object is tolerated. The span is not validated as JSON.
func LocateJSONObject(response string) (string, error) {
	cleaned := StripThinking(response)

	start := strings.IndexByte(cleaned, '{')
	end := strings.LastIndexByte(cleaned, '}')
	if start < 0 || end < start {
		return "", ErrNoJSONObject
	}
	return cleaned[start : end+1], nil
}
