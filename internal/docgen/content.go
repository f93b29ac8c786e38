package docgen

import (
	"fmt"
	"sort"
)

// BlockKind identifies one content block of a generated document.
type BlockKind string

const (
	Heading1  BlockKind = "h1"
	Heading2  BlockKind = "h2"
	Paragraph BlockKind = "p"
	Bullets   BlockKind = "bullet"
	Table     BlockKind = "table"
	Image     BlockKind = "image"
)

// Block is a normalised content block. Text is set for headings and
// paragraphs, Items for bullet lists and Rows for tables. Image blocks carry
// the decoded bytes with their format and pixel size.
type Block struct {
	Kind  BlockKind
	Text  string
	Items []string
	Rows  [][]string

	Data          []byte
	Format        string
	Width, Height int
}

// ParseContent normalises the loose JSON content list, e.g.
// [{"h1":"Title"},{"bullet":["a","b"]},{"table":[["A","B"],["1","2"]]}].
// Unknown block keys are skipped; "ul" is an alias for "bullet". An "image"
// that cannot be loaded is skipped too.
func ParseContent(content []any) ([]Block, error) {
	blocks := make([]Block, 0, len(content))
	for i, raw := range content {
		m, ok := raw.(map[string]any)
		if !ok {
			if s, isString := raw.(string); isString {
				blocks = append(blocks, Block{Kind: Paragraph, Text: s})
				continue
			}
			return nil, fmt.Errorf("content block %d: expected object, got %T", i, raw)
		}

		switch {
		case m["h1"] != nil:
			blocks = append(blocks, Block{Kind: Heading1, Text: toText(m["h1"])})
		case m["h2"] != nil:
			blocks = append(blocks, Block{Kind: Heading2, Text: toText(m["h2"])})
		case m["p"] != nil:
			blocks = append(blocks, Block{Kind: Paragraph, Text: toText(m["p"])})
		case m["bullet"] != nil:
			blocks = append(blocks, Block{Kind: Bullets, Items: toStrings(m["bullet"])})
		case m["ul"] != nil:
			blocks = append(blocks, Block{Kind: Bullets, Items: toStrings(m["ul"])})
		case m["table"] != nil:
			rows, err := toRows(m["table"])
			if err != nil {
				return nil, fmt.Errorf("content block %d: %w", i, err)
			}
			if len(rows) > 0 {
				blocks = append(blocks, Block{Kind: Table, Rows: rows})
			}
		case m["image"] != nil:
			if img, ok := loadImage(toText(m["image"])); ok {
				blocks = append(blocks, img)
			}
		}
	}
	return blocks, nil
}

// FieldsTable renders a field map as a two-column table content list, sorted
// by field name so output is stable.
func FieldsTable(fields map[string]any) []any {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rows := []any{[]any{"Field", "Value"}}
	for _, k := range keys {
		rows = append(rows, []any{k, toText(fields[k])})
	}
	return []any{map[string]any{"table": rows}}
}

func toText(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	default:
		return fmt.Sprint(t)
	}
}

func toStrings(v any) []string {
	switch t := v.(type) {
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			out = append(out, toText(item))
		}
		return out
	case []string:
		return t
	case string:
		return []string{t}
	default:
		return nil
	}
}

func toRows(v any) ([][]string, error) {
	switch t := v.(type) {
	case [][]string:
		return t, nil
	case []any:
		rows := make([][]string, 0, len(t))
		for _, r := range t {
			cells := toStrings(r)
			if cells == nil {
				return nil, fmt.Errorf("table row must be a list, got %T", r)
			}
			rows = append(rows, cells)
		}
		return rows, nil
	default:
		return nil, fmt.Errorf("table must be a list of rows, got %T", v)
	}
}
