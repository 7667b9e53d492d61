package generation

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	// fencedBlockPattern matches the body of a markdown code fence, with or without a language tag.
	fencedBlockPattern = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*\\n?(.*?)\\s*```")

	// trailingCommaPattern matches a comma directly before a closing bracket.
	trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)
)

// ExtractJSON returns the JSON document embedded in completion content.
// Content that is already valid JSON is returned unchanged; otherwise
// markdown fences and surrounding prose are stripped and trailing commas
// removed. It returns "" when no object or array is found.
func ExtractJSON(content string) string {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return ""
	}
	if json.Valid([]byte(trimmed)) {
		return trimmed
	}

	if m := fencedBlockPattern.FindStringSubmatch(trimmed); len(m) > 1 {
		trimmed = strings.TrimSpace(m[1])
	}

	raw := outermostSpan(trimmed)
	if raw == "" {
		return ""
	}
	return trailingCommaPattern.ReplaceAllString(raw, "$1")
}

// outermostSpan returns the text from the first '{' or '[' to the last
// matching closer.
func outermostSpan(s string) string {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return ""
	}
	closer := byte('}')
	if s[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end < start {
		return ""
	}
	return s[start : end+1]
}
