package tools

import (
	"context"
	"fmt"
	"regexp"
)

// RegexTool implements regex_extract. Patterns run in multi-line mode; with
// capture groups each match is the list of its groups.
type RegexTool struct{}

func NewRegexTool() *RegexTool {
	return &RegexTool{}
}

func (r *RegexTool) Name() Name {
	return RegexExtract
}

func (r *RegexTool) Description() string {
	return "Apply a regular expression to text and return all matches."
}

func (r *RegexTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"text": map[string]any{
				"type":        "string",
				"description": "The text to search",
			},
			"pattern": map[string]any{
				"type":        "string",
				"description": "RE2 regular expression",
			},
		},
		"required": []string{"text", "pattern"},
	}
}

func (r *RegexTool) Invoke(ctx context.Context, input map[string]any) Result {
	text := stringArg(input, "text")
	pattern := stringArg(input, "pattern")

	re, err := regexp.Compile("(?m)" + pattern)
	if err != nil {
		return Fail(fmt.Errorf("regex error: %w", err))
	}

	matches := []any{}
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		switch len(m) {
		case 1:
			matches = append(matches, m[0])
		case 2:
			matches = append(matches, m[1])
		default:
			groups := make([]string, len(m)-1)
			copy(groups, m[1:])
			matches = append(matches, groups)
		}
	}
	return OK(matches, fmt.Sprintf("%d matches", len(matches)))
}
