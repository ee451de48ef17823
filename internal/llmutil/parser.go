// internal/llmutil/parser.go
package llmutil

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	// Backticks are written as \x60 because Go raw strings cannot contain them.

	// fencedJSONRegex extracts the body of the first ``` or ```json block holding an object or array.
	fencedJSONRegex = regexp.MustCompile("(?s)\x60\x60\x60(?:json|JSON)?\\s*([\\[{].*?[\\]}])\\s*\x60\x60\x60")
	// codeBlockRegex extracts content wrapped in a fence with any language tag.
	codeBlockRegex = regexp.MustCompile("(?s)\x60\x60\x60[a-zA-Z]*\\s*(.*?)\\s*\x60\x60\x60")
	// fenceLineRegex matches a bare or tagged fence marker.
	fenceLineRegex = regexp.MustCompile("\x60\x60\x60[a-zA-Z]*")
	boldRegex      = regexp.MustCompile(`\*\*(.+?)\*\*`)
	emRegex        = regexp.MustCompile(`\*([^*\n]+?)\*`)
	blankRunRegex  = regexp.MustCompile(`\n\s*\n+`)
)

// ParseJSONResponse parses an LLM response into T. It accepts bare JSON, JSON
// inside a markdown fence, or JSON embedded in conversational text.
func ParseJSONResponse[T any](response string) (*T, error) {
	candidate := ExtractJSON(response)

	var result T
	if err := json.Unmarshal([]byte(candidate), &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal LLM JSON response: %w. Extracted JSON (truncated): %s", err, TruncateChars(candidate, 500))
	}
	return &result, nil
}

// ExtractJSON returns the most plausible JSON document inside response, or the
// trimmed response itself when nothing better is found.
func ExtractJSON(response string) string {
	response = strings.TrimSpace(response)
	if m := fencedJSONRegex.FindStringSubmatch(response); len(m) > 1 {
		return m[1]
	}
	if strings.HasPrefix(response, "{") || strings.HasPrefix(response, "[") {
		return response
	}

	// Prefer whichever structure opens first, so an array of objects is not
	// mistaken for its first element.
	pairs := [][2]string{{"{", "}"}, {"[", "]"}}
	obj, arr := strings.Index(response, "{"), strings.Index(response, "[")
	if arr != -1 && (obj == -1 || arr < obj) {
		pairs[0], pairs[1] = pairs[1], pairs[0]
	}
	fallback := ""
	for _, p := range pairs {
		start, end := strings.Index(response, p[0]), strings.LastIndex(response, p[1])
		if start == -1 || end <= start {
			continue
		}
		candidate := response[start : end+1]
		if json.Valid([]byte(candidate)) {
			return candidate
		}
		if fallback == "" {
			fallback = candidate
		}
	}
	if fallback != "" {
		return fallback
	}
	return response
}

// FirstCodeBlock returns the content of the first fenced block and true, or
// the input and false when there is no fence.
func FirstCodeBlock(s string) (string, bool) {
	if m := codeBlockRegex.FindStringSubmatch(s); len(m) > 1 {
		return m[1], true
	}
	return s, false
}

// CleanResponse strips code fences and markdown emphasis, collapses blank lines and trims.
func CleanResponse(s string) string {
	s = fenceLineRegex.ReplaceAllString(s, "")
	s = boldRegex.ReplaceAllString(s, "$1")
	s = emRegex.ReplaceAllString(s, "$1")
	s = blankRunRegex.ReplaceAllString(s, "\n")
	return strings.TrimSpace(s)
}

// TruncateChars keeps the first n runes of s and appends "..." when anything was cut.
func TruncateChars(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "..."
}
