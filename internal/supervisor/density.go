package supervisor

import (
	"strings"
	"unicode/utf8"
)

// Minimum density a chapter must reach before it is accepted. Character
// counts are runes, so CJK prose is counted per character and not per byte.
const (
	MinNonHeadingBlocks = 2
	MinBodyChars        = 600
	MinNarrativeChars   = 300
)

// Density is the measured bulk of one chapter payload.
type Density struct {
	BodyChars        int
	NarrativeChars   int
	NonHeadingBlocks int
}

// Measure walks the chapter's block tree and estimates how much actual
// content it carries. Structural noise (headings, rules, toc, widgets) is
// excluded; tables count toward body but not narrative so a wall of cells
// cannot stand in for prose.
func Measure(chapter map[string]any) Density {
	blocks, _ := chapter["blocks"].([]any)
	d := Density{
		BodyChars:      bodyChars(blocks),
		NarrativeChars: narrativeChars(blocks),
	}
	for _, raw := range blocks {
		b, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		switch b["type"] {
		case "heading", "hr", "toc":
		default:
			d.NonHeadingBlocks++
		}
	}
	return d
}

// CheckDensity returns a SparseContentError when chapter falls below any of
// the minimums, nil otherwise.
func CheckDensity(chapter map[string]any) error {
	d := Measure(chapter)
	if d.NonHeadingBlocks < MinNonHeadingBlocks || d.BodyChars < MinBodyChars || d.NarrativeChars < MinNarrativeChars {
		return &SparseContentError{
			Payload:        chapter,
			BodyChars:      d.BodyChars,
			NarrativeChars: d.NarrativeChars,
			Blocks:         d.NonHeadingBlocks,
		}
	}
	return nil
}

func bodyChars(node any) int {
	switch n := node.(type) {
	case nil:
		return 0
	case []any:
		total := 0
		for _, item := range n {
			total += bodyChars(item)
		}
		return total
	case string:
		return runeLen(n)
	case map[string]any:
		switch n["type"] {
		case "heading", "hr", "toc", "widget":
			return 0
		case "paragraph":
			return paragraphChars(n)
		case "list":
			items, _ := n["items"].([]any)
			return bodyChars(items)
		case "blockquote", "callout", "engineQuote":
			return bodyChars(n["blocks"])
		case "table":
			total := 0
			rows, _ := n["rows"].([]any)
			for _, rawRow := range rows {
				row, ok := rawRow.(map[string]any)
				if !ok {
					continue
				}
				cells, _ := row["cells"].([]any)
				for _, rawCell := range cells {
					cell, ok := rawCell.(map[string]any)
					if !ok {
						continue
					}
					total += bodyChars(cell["blocks"])
				}
			}
			return total
		}
		if nested, ok := n["blocks"].([]any); ok {
			return bodyChars(nested)
		}
		return textChars(n)
	default:
		return 0
	}
}

func narrativeChars(node any) int {
	switch n := node.(type) {
	case nil:
		return 0
	case []any:
		total := 0
		for _, item := range n {
			total += narrativeChars(item)
		}
		return total
	case string:
		return runeLen(n)
	case map[string]any:
		switch n["type"] {
		case "paragraph":
			return paragraphChars(n)
		case "list":
			items, _ := n["items"].([]any)
			return narrativeChars(items)
		case "callout", "blockquote", "engineQuote":
			return narrativeChars(n["blocks"])
		case nil:
			// anonymous list items carry nested blocks without a type
			if nested, ok := n["blocks"].([]any); ok {
				return narrativeChars(nested)
			}
		}
		return 0
	default:
		return 0
	}
}

func paragraphChars(block map[string]any) int {
	if inlines, ok := block["inlines"].([]any); ok {
		total := 0
		for _, raw := range inlines {
			run, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			if text, ok := run["text"].(string); ok {
				total += runeLen(text)
			}
		}
		return total
	}
	if text, ok := block["text"].(string); ok {
		return runeLen(text)
	}
	return textChars(block)
}

// textChars sums every "text" string reachable in the node, a coarse estimate
// for block types with no dedicated rule (kpiGrid, swotTable, figure).
func textChars(node any) int {
	switch n := node.(type) {
	case []any:
		total := 0
		for _, item := range n {
			total += textChars(item)
		}
		return total
	case map[string]any:
		total := 0
		for key, value := range n {
			if key == "text" {
				if s, ok := value.(string); ok {
					total += runeLen(s)
					continue
				}
			}
			total += textChars(value)
		}
		return total
	default:
		return 0
	}
}

func runeLen(s string) int {
	return utf8.RuneCountInString(strings.TrimSpace(s))
}
