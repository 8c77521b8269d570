package llm

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Pre-compiled regex patterns for JSON extraction from LLM responses.
var (
	// labeledFencePattern matches JSON inside ```json fenced blocks.
	labeledFencePattern = regexp.MustCompile("(?s)```json\\s*\\n?(.*?)```")
	// genericFencePattern matches any fenced block.
	genericFencePattern = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*\\n?(.*?)```")
	// trailingCommaPattern matches trailing commas before ] or }.
	trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)
)

// ExtractJSON extracts the JSON payload from an LLM response string.
// Precedence: the first ```json fenced block, then the first generic fenced
// block, then the whole trimmed text. The result is cleaned of line comments
// and trailing commas, which models commonly emit.
func ExtractJSON(content string) string {
	raw := strings.TrimSpace(content)

	if matches := labeledFencePattern.FindStringSubmatch(content); len(matches) > 1 {
		raw = strings.TrimSpace(matches[1])
	} else if matches := genericFencePattern.FindStringSubmatch(content); len(matches) > 1 {
		raw = strings.TrimSpace(matches[1])
	}

	if raw == "" {
		return ""
	}
	return cleanJSON(raw)
}

// DecodeJSON extracts and unmarshals the JSON payload from an LLM response.
// Callers supply a deterministic fallback on error; decode failures must
// never abort orchestration logic.
func DecodeJSON(content string, v any) error {
	raw := ExtractJSON(content)
	return json.Unmarshal([]byte(raw), v)
}

// cleanJSON removes JavaScript-style comments and trailing commas from JSON.
func cleanJSON(raw string) string {
	// Remove // comments that are NOT inside JSON string values.
	lines := strings.Split(raw, "\n")
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		cleaned = append(cleaned, stripLineComment(line))
	}
	result := strings.Join(cleaned, "\n")

	// Remove trailing commas before } or ]
	result = trailingCommaPattern.ReplaceAllString(result, "$1")

	return result
}

// stripLineComment removes a // comment from a JSON line, respecting string values.
// For example:
//
//	"path/to/file.js",          // This is a comment  → "path/to/file.js",
//	"url": "http://example.com" // comment             → "url": "http://example.com"
//	"url": "http://example.com"                        → "url": "http://example.com" (no change)
func stripLineComment(line string) string {
	// Fast path: no // at all
	if !strings.Contains(line, "//") {
		return line
	}

	// Walk the line character by character, tracking whether we're inside a string.
	inString := false
	escaped := false
	for i := 0; i < len(line); i++ {
		ch := line[i]
		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' && inString {
			escaped = true
			continue
		}
		if ch == '"' {
			inString = !inString
			continue
		}
		if !inString && ch == '/' && i+1 < len(line) && line[i+1] == '/' {
			// Found a comment outside a string — strip from here
			trimmed := strings.TrimRight(line[:i], " \t")
			return trimmed
		}
	}
	return line
}
