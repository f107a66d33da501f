package generator

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrBadPayload reports that no chapter-shaped JSON object could be recovered
// from the model's raw output.
var ErrBadPayload = errors.New("no chapter object found in model output")

var (
	fencePattern    = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
	thinkingPattern = regexp.MustCompile(`(?s)<think(?:ing)?>.*?</think(?:ing)?>`)
	thoughtPattern  = regexp.MustCompile(`(?s)<thought>.*?</thought>`)
)

// ExtractChapterObject recovers a single JSON object from raw model output.
// Models wrap payloads in markdown fences, prepend reasoning text, or cut off
// trailing brackets; extraction tries progressively more forgiving strategies
// before giving up with ErrBadPayload.
func ExtractChapterObject(raw string) (map[string]any, error) {
	cleaned := strings.TrimSpace(raw)
	if cleaned == "" {
		return nil, ErrBadPayload
	}
	cleaned = thinkingPattern.ReplaceAllString(cleaned, "")
	cleaned = thoughtPattern.ReplaceAllString(cleaned, "")

	var candidates []string
	for _, m := range fencePattern.FindAllStringSubmatch(cleaned, -1) {
		candidates = append(candidates, strings.TrimSpace(m[1]))
	}
	candidates = append(candidates, cleaned)

	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		if obj, ok := parseObject(candidate); ok {
			return obj, nil
		}
		if span := firstBalancedObject(candidate); span != "" {
			if obj, ok := parseObject(span); ok {
				return obj, nil
			}
		}
		if repaired := closeOpenBrackets(candidate); repaired != candidate {
			if obj, ok := parseObject(repaired); ok {
				return obj, nil
			}
		}
	}
	return nil, ErrBadPayload
}

func parseObject(candidate string) (map[string]any, bool) {
	candidate = strings.TrimSpace(candidate)
	if !strings.HasPrefix(candidate, "{") {
		return nil, false
	}
	if !gjson.Valid(candidate) {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(candidate), &obj); err != nil {
		return nil, false
	}
	return obj, true
}

// firstBalancedObject scans for the first string-aware balanced {...} span.
func firstBalancedObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
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
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

// closeOpenBrackets appends the closers a truncated payload is missing. Only
// brackets outside strings are counted.
func closeOpenBrackets(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return s
	}
	s = s[start:]

	var stack []byte
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
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
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 && stack[len(stack)-1] == c {
				stack = stack[:len(stack)-1]
			}
		}
	}
	if len(stack) == 0 && !inString {
		return s
	}
	var b strings.Builder
	b.WriteString(strings.TrimRight(s, " \t\r\n,"))
	if inString {
		b.WriteByte('"')
	}
	for i := len(stack) - 1; i >= 0; i-- {
		b.WriteByte(stack[i])
	}
	return b.String()
}
