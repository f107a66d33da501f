package contract

import (
	"fmt"
	"sort"
	"strings"
)

// Guidance renders the contract as prompt text for the generation
// collaborator, so the model is instructed against exactly the vocabulary the
// validator will enforce.
func Guidance() string {
	var b strings.Builder

	b.WriteString("Return a single JSON object for one chapter with the required fields ")
	b.WriteString(strings.Join(RequiredChapterFields, ", "))
	b.WriteString(". blocks must be a non-empty array.\n\n")

	b.WriteString("Allowed block types: ")
	for i, bt := range AllBlockTypes {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(string(bt))
	}
	b.WriteString("\nAllowed inline marks: ")
	for i, mt := range AllMarkTypes {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(string(mt))
	}
	b.WriteString("\n\n")

	b.WriteString("Field rules:\n")
	b.WriteString("- heading: level (1-6), text, anchor are required.\n")
	b.WriteString("- paragraph: non-empty inlines; each inline run has text and optional marks.\n")
	b.WriteString(fmt.Sprintf("- list: listType one of %s; items is a non-empty array of block arrays.\n",
		joinSet(ListTypes)))
	b.WriteString("- table: non-empty rows; each row has non-empty cells; each cell has non-empty blocks.\n")
	b.WriteString(fmt.Sprintf("- swotTable: at least one of %s; item impact must be one of %s, longer commentary goes in the detail field.\n",
		strings.Join(SwotQuadrants, "/"), joinSet(SwotImpactRatings)))
	b.WriteString(fmt.Sprintf("- pestTable: at least one of %s; item trend must be one of %s, longer commentary goes in the detail field.\n",
		strings.Join(PestQuadrants, "/"), joinSet(PestTrendRatings)))
	b.WriteString("- blockquote: non-empty blocks.\n")
	b.WriteString("- engineQuote: engine is insight/media/query, title must be the matching agent name")
	for _, engine := range []string{"insight", "media", "query"} {
		b.WriteString(fmt.Sprintf(" (%s -> %q)", engine, EngineAgentTitles[engine]))
	}
	b.WriteString("; children are paragraph blocks whose marks are limited to bold/italic.\n")
	b.WriteString(fmt.Sprintf("- callout: tone one of %s; non-empty blocks.\n", joinSet(CalloutTones)))
	b.WriteString("- code: content required. math: latex required. figure: img.src required.\n")
	b.WriteString("- kpiGrid: non-empty items, each with label and value.\n")
	b.WriteString("- widget: widgetId, widgetType, and either data or dataRef.\n")

	return b.String()
}

func joinSet(set map[string]bool) string {
	values := make([]string, 0, len(set))
	for v := range set {
		values = append(values, v)
	}
	sort.Strings(values)
	return strings.Join(values, "/")
}
