package parser

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	fenceOpen  = regexp.MustCompile("^```\\w*\\n?")
	fenceClose = regexp.MustCompile("\\n?```$")
)

// CleanJSON extracts a JSON document from a model response that may carry
// markdown fences or surrounding prose. When nothing valid is found the
// trimmed input is returned unchanged.
func CleanJSON(raw string) string {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, "```") {
		text = fenceOpen.ReplaceAllString(text, "")
		text = fenceClose.ReplaceAllString(text, "")
		text = strings.TrimSpace(text)
	}
	if json.Valid([]byte(text)) {
		return text
	}

	for _, pair := range [][2]byte{{'[', ']'}, {'{', '}'}} {
		if candidate, ok := balanced(text, pair[0], pair[1]); ok {
			return candidate
		}
	}
	return text
}

// balanced returns the first bracket-balanced span starting at open, skipping
// brackets inside string literals.
func balanced(text string, open, close byte) (string, bool) {
	start := strings.IndexByte(text, open)
	if start == -1 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
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
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				candidate := text[start : i+1]
				if json.Valid([]byte(candidate)) {
					return candidate, true
				}
				return "", false
			}
		}
	}
	return "", false
}
