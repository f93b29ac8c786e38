package agent

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// ErrNoJSON is returned when no strategy yields a decodable JSON value.
var ErrNoJSON = errors.New("no JSON found in response")

// extractor pulls a JSON candidate out of a model response.
type extractor struct {
	name    string
	extract func(raw string) (string, bool)
}

// extractors run in order; the first candidate that decodes wins.
var extractors = []extractor{
	{"direct", extractDirect},
	{"json_fence", extractJSONFence},
	{"any_fence", extractAnyFence},
	{"brace_scan", extractBalanced},
}

var (
	jsonFenceRe = regexp.MustCompile("(?is)```json\\s*(.*?)```")
	anyFenceRe  = regexp.MustCompile("(?s)```[A-Za-z0-9_-]*[ \\t]*\\n?(.*?)```")
)

func extractDirect(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	return s, s != "" && json.Valid([]byte(s))
}

func extractJSONFence(raw string) (string, bool) {
	m := jsonFenceRe.FindStringSubmatch(raw)
	if m == nil {
		return "", false
	}
	s := strings.TrimSpace(m[1])
	return s, json.Valid([]byte(s))
}

func extractAnyFence(raw string) (string, bool) {
	for _, m := range anyFenceRe.FindAllStringSubmatch(raw, -1) {
		body := strings.TrimSpace(m[1])
		if !strings.Contains(body, "{") || !strings.Contains(body, "}") {
			continue
		}
		if json.Valid([]byte(body)) {
			return body, true
		}
		if s, ok := extractBalanced(body); ok {
			return s, true
		}
	}
	return "", false
}

// extractBalanced scans from the first '{' to its matching '}', counting depth
// outside of JSON strings and honouring backslash escapes.
func extractBalanced(raw string) (string, bool) {
	start := strings.IndexByte(raw, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		c := raw[i]
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
				s := raw[start : i+1]
				return s, json.Valid([]byte(s))
			}
		}
	}
	return "", false
}

// DecodeJSON decodes the first JSON candidate found in raw into a T.
func DecodeJSON[T any](raw string) (T, error) {
	var zero T
	err := ErrNoJSON
	for _, ex := range extractors {
		candidate, ok := ex.extract(raw)
		if !ok {
			continue
		}
		var v T
		if uerr := json.Unmarshal([]byte(candidate), &v); uerr != nil {
			err = uerr
			continue
		}
		return v, nil
	}
	return zero, err
}
