// Package validator recursively checks candidate chapter payloads against the
// contract. Chapters arrive as decoded JSON (map[string]any) straight from an
// untrusted generator, so every field access is preceded by a shape check;
// Validate never panics on malformed input. A single pass accumulates every
// defect as a path-qualified error string instead of stopping at the first.
package validator

import (
	"fmt"
	"strings"

	"reportforge/internal/contract"
)

// Validate checks one chapter payload. It returns (true, nil) iff zero errors
// were accumulated.
func Validate(chapter any) (bool, []string) {
	var errs []string

	ch, ok := chapter.(map[string]any)
	if !ok {
		return false, []string{"chapter must be an object"}
	}

	for _, field := range contract.RequiredChapterFields {
		if _, present := ch[field]; !present {
			errs = append(errs, fmt.Sprintf("missing chapter.%s", field))
		}
	}

	blocks, ok := ch["blocks"].([]any)
	if !ok || len(blocks) == 0 {
		errs = append(errs, "chapter.blocks must be a non-empty array")
		return false, errs
	}

	for idx, block := range blocks {
		validateBlock(block, fmt.Sprintf("blocks[%d]", idx), &errs)
	}

	return len(errs) == 0, errs
}

// validateBlock dispatches on the type tag. The switch is exhaustive over the
// closed block union; a new contract variant fails here until it gets a case.
func validateBlock(block any, path string, errs *[]string) {
	b, ok := block.(map[string]any)
	if !ok {
		*errs = append(*errs, fmt.Sprintf("%s must be an object", path))
		return
	}

	typ, _ := b["type"].(string)
	if !contract.IsBlockType(typ) {
		*errs = append(*errs, fmt.Sprintf("%s.type not supported: %v", path, b["type"]))
		return
	}

	switch contract.BlockType(typ) {
	case contract.BlockHeading:
		validateHeading(b, path, errs)
	case contract.BlockParagraph:
		validateParagraph(b, path, errs, nil)
	case contract.BlockList:
		validateList(b, path, errs)
	case contract.BlockTable:
		validateTable(b, path, errs)
	case contract.BlockSwotTable:
		validateQuadrantTable(b, path, errs, contract.SwotQuadrants, "impact", contract.SwotImpactRatings)
	case contract.BlockPestTable:
		validateQuadrantTable(b, path, errs, contract.PestQuadrants, "trend", contract.PestTrendRatings)
	case contract.BlockBlockquote:
		validateChildBlocks(b, path, errs)
	case contract.BlockEngineQuote:
		validateEngineQuote(b, path, errs)
	case contract.BlockCallout:
		validateCallout(b, path, errs)
	case contract.BlockKPIGrid:
		validateKPIGrid(b, path, errs)
	case contract.BlockWidget:
		validateWidget(b, path, errs)
	case contract.BlockCode:
		if _, present := b["content"]; !present {
			*errs = append(*errs, fmt.Sprintf("%s.content missing", path))
		}
	case contract.BlockMath:
		if _, present := b["latex"]; !present {
			*errs = append(*errs, fmt.Sprintf("%s.latex missing", path))
		}
	case contract.BlockFigure:
		validateFigure(b, path, errs)
	case contract.BlockHR, contract.BlockTOC:
		// No required fields beyond the type tag.
	}
}

func validateHeading(b map[string]any, path string, errs *[]string) {
	level, ok := intField(b["level"])
	if !ok || level < 1 || level > 6 {
		*errs = append(*errs, fmt.Sprintf("%s.level must be an integer between 1 and 6", path))
	}
	if _, present := b["text"]; !present {
		*errs = append(*errs, fmt.Sprintf("%s.text missing", path))
	}
	if anchor, _ := b["anchor"].(string); anchor == "" {
		*errs = append(*errs, fmt.Sprintf("%s.anchor must be a non-empty string", path))
	}
}

// validateParagraph checks the inline runs; allowedMarks narrows the mark
// vocabulary when non-nil (used by engineQuote children).
func validateParagraph(b map[string]any, path string, errs *[]string, allowedMarks map[contract.MarkType]bool) {
	inlines, ok := b["inlines"].([]any)
	if !ok || len(inlines) == 0 {
		*errs = append(*errs, fmt.Sprintf("%s.inlines must be a non-empty array", path))
		return
	}
	for idx, run := range inlines {
		validateInlineRun(run, fmt.Sprintf("%s.inlines[%d]", path, idx), errs, allowedMarks)
	}
}

func validateList(b map[string]any, path string, errs *[]string) {
	listType, _ := b["listType"].(string)
	if !contract.ListTypes[listType] {
		*errs = append(*errs, fmt.Sprintf("%s.listType invalid: %v", path, b["listType"]))
	}
	items, ok := b["items"].([]any)
	if !ok || len(items) == 0 {
		*errs = append(*errs, fmt.Sprintf("%s.items must be a non-empty array", path))
		return
	}
	for i, item := range items {
		blocks, ok := item.([]any)
		if !ok {
			*errs = append(*errs, fmt.Sprintf("%s.items[%d] must be a block array", path, i))
			continue
		}
		for j, sub := range blocks {
			validateBlock(sub, fmt.Sprintf("%s.items[%d][%d]", path, i, j), errs)
		}
	}
}

func validateTable(b map[string]any, path string, errs *[]string) {
	rows, ok := b["rows"].([]any)
	if !ok || len(rows) == 0 {
		*errs = append(*errs, fmt.Sprintf("%s.rows must be a non-empty array", path))
		return
	}
	for r, rowAny := range rows {
		row, ok := rowAny.(map[string]any)
		var cells []any
		if ok {
			cells, _ = row["cells"].([]any)
		}
		if len(cells) == 0 {
			*errs = append(*errs, fmt.Sprintf("%s.rows[%d].cells must be a non-empty array", path, r))
			continue
		}
		for c, cellAny := range cells {
			cell, ok := cellAny.(map[string]any)
			if !ok {
				*errs = append(*errs, fmt.Sprintf("%s.rows[%d].cells[%d] must be an object", path, r, c))
				continue
			}
			blocks, ok := cell["blocks"].([]any)
			if !ok || len(blocks) == 0 {
				*errs = append(*errs, fmt.Sprintf("%s.rows[%d].cells[%d].blocks must be a non-empty array", path, r, c))
				continue
			}
			for i, sub := range blocks {
				validateBlock(sub, fmt.Sprintf("%s.rows[%d].cells[%d].blocks[%d]", path, r, c, i), errs)
			}
		}
	}
}

// validateQuadrantTable covers swotTable and pestTable, which share the
// at-least-one-quadrant shape and differ only in quadrant names and the
// enumerated rating field.
func validateQuadrantTable(b map[string]any, path string, errs *[]string, quadrants []string, ratingField string, ratings map[string]bool) {
	present := false
	for _, name := range quadrants {
		if _, has := b[name]; has {
			present = true
			break
		}
	}
	if !present {
		*errs = append(*errs, fmt.Sprintf("%s requires at least one of %v", path, quadrants))
	}
	for _, name := range quadrants {
		raw, has := b[name]
		if !has {
			continue
		}
		entries, ok := raw.([]any)
		if !ok {
			*errs = append(*errs, fmt.Sprintf("%s.%s must be an array", path, name))
			continue
		}
		for idx, entry := range entries {
			validateQuadrantItem(entry, fmt.Sprintf("%s.%s[%d]", path, name, idx), errs, ratingField, ratings)
		}
	}
}

// validateQuadrantItem accepts a plain string or an object carrying a
// descriptive-text field. The rating field is restricted to its fixed value
// set; free-form commentary must live in detail, never in the rating.
func validateQuadrantItem(item any, path string, errs *[]string, ratingField string, ratings map[string]bool) {
	if s, ok := item.(string); ok {
		if s == "" {
			*errs = append(*errs, fmt.Sprintf("%s must not be an empty string", path))
		}
		return
	}
	obj, ok := item.(map[string]any)
	if !ok {
		*errs = append(*errs, fmt.Sprintf("%s must be a string or an object", path))
		return
	}

	hasText := false
	for _, field := range contract.ItemTextFields {
		if s, ok := obj[field].(string); ok && s != "" {
			hasText = true
			break
		}
	}
	if !hasText {
		*errs = append(*errs, fmt.Sprintf("%s missing a descriptive text field (one of %v)", path, contract.ItemTextFields))
	}

	if rating, has := obj[ratingField]; has {
		s, ok := rating.(string)
		if !ok || !ratings[s] {
			*errs = append(*errs, fmt.Sprintf("%s.%s must be one of the fixed ratings, got: %v; put commentary in the detail field", path, ratingField, rating))
		}
	}
}

func validateChildBlocks(b map[string]any, path string, errs *[]string) {
	blocks, ok := b["blocks"].([]any)
	if !ok || len(blocks) == 0 {
		*errs = append(*errs, fmt.Sprintf("%s.blocks must be a non-empty array", path))
		return
	}
	for idx, sub := range blocks {
		validateBlock(sub, fmt.Sprintf("%s.blocks[%d]", path, idx), errs)
	}
}

func validateEngineQuote(b map[string]any, path string, errs *[]string) {
	engineRaw, _ := b["engine"].(string)
	expectedTitle, knownEngine := contract.EngineAgentTitles[strings.ToLower(engineRaw)]
	if !knownEngine {
		*errs = append(*errs, fmt.Sprintf("%s.engine invalid: %v", path, b["engine"]))
	}

	title, hasTitle := b["title"]
	switch {
	case !hasTitle:
		*errs = append(*errs, fmt.Sprintf("%s.title missing", path))
	case knownEngine:
		if s, ok := title.(string); !ok || s != expectedTitle {
			*errs = append(*errs, fmt.Sprintf("%s.title must match the engine's agent name: %s", path, expectedTitle))
		}
	}

	blocks, ok := b["blocks"].([]any)
	if !ok || len(blocks) == 0 {
		*errs = append(*errs, fmt.Sprintf("%s.blocks must be a non-empty array", path))
		return
	}
	for idx, subAny := range blocks {
		subPath := fmt.Sprintf("%s.blocks[%d]", path, idx)
		sub, ok := subAny.(map[string]any)
		if !ok {
			*errs = append(*errs, fmt.Sprintf("%s must be an object", subPath))
			continue
		}
		if typ, _ := sub["type"].(string); contract.BlockType(typ) != contract.BlockParagraph {
			*errs = append(*errs, fmt.Sprintf("%s.type only paragraph is allowed", subPath))
			continue
		}
		validateParagraph(sub, subPath, errs, contract.EngineQuoteMarks)
	}
}

func validateCallout(b map[string]any, path string, errs *[]string) {
	tone, _ := b["tone"].(string)
	if !contract.CalloutTones[tone] {
		*errs = append(*errs, fmt.Sprintf("%s.tone invalid: %v", path, b["tone"]))
	}
	validateChildBlocks(b, path, errs)
}

func validateKPIGrid(b map[string]any, path string, errs *[]string) {
	items, ok := b["items"].([]any)
	if !ok || len(items) == 0 {
		*errs = append(*errs, fmt.Sprintf("%s.items must be a non-empty array", path))
		return
	}
	for idx, itemAny := range items {
		item, ok := itemAny.(map[string]any)
		if !ok {
			*errs = append(*errs, fmt.Sprintf("%s.items[%d] must be an object", path, idx))
			continue
		}
		if _, has := item["label"]; !has {
			*errs = append(*errs, fmt.Sprintf("%s.items[%d] requires label and value", path, idx))
			continue
		}
		if _, has := item["value"]; !has {
			*errs = append(*errs, fmt.Sprintf("%s.items[%d] requires label and value", path, idx))
		}
	}
}

func validateWidget(b map[string]any, path string, errs *[]string) {
	if _, has := b["widgetId"]; !has {
		*errs = append(*errs, fmt.Sprintf("%s.widgetId missing", path))
	}
	if _, has := b["widgetType"]; !has {
		*errs = append(*errs, fmt.Sprintf("%s.widgetType missing", path))
	}
	_, hasData := b["data"]
	_, hasRef := b["dataRef"]
	if !hasData && !hasRef {
		*errs = append(*errs, fmt.Sprintf("%s requires one of data or dataRef", path))
	}
}

func validateFigure(b map[string]any, path string, errs *[]string) {
	img, ok := b["img"].(map[string]any)
	if !ok {
		*errs = append(*errs, fmt.Sprintf("%s.img must be an object", path))
		return
	}
	if _, has := img["src"]; !has {
		*errs = append(*errs, fmt.Sprintf("%s.img.src missing", path))
	}
}

// validateInlineRun checks a paragraph inline run and its marks.
func validateInlineRun(run any, path string, errs *[]string, allowedMarks map[contract.MarkType]bool) {
	r, ok := run.(map[string]any)
	if !ok {
		*errs = append(*errs, fmt.Sprintf("%s must be an object", path))
		return
	}
	if _, present := r["text"]; !present {
		*errs = append(*errs, fmt.Sprintf("%s.text missing", path))
	}
	raw, present := r["marks"]
	if !present || raw == nil {
		return
	}
	marks, ok := raw.([]any)
	if !ok {
		*errs = append(*errs, fmt.Sprintf("%s.marks must be an array", path))
		return
	}
	for idx, markAny := range marks {
		mark, ok := markAny.(map[string]any)
		if !ok {
			*errs = append(*errs, fmt.Sprintf("%s.marks[%d] must be an object", path, idx))
			continue
		}
		typ, _ := mark["type"].(string)
		if !contract.IsMarkType(typ) {
			*errs = append(*errs, fmt.Sprintf("%s.marks[%d].type not supported: %v", path, idx, mark["type"]))
			continue
		}
		if allowedMarks != nil && !allowedMarks[contract.MarkType(typ)] {
			*errs = append(*errs, fmt.Sprintf("%s.marks[%d].type only bold/italic are allowed", path, idx))
		}
	}
}

// intField accepts both native ints and the float64 values JSON decoding
// produces, rejecting non-integral floats.
func intField(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n == float64(int(n)) {
			return int(n), true
		}
	}
	return 0, false
}
