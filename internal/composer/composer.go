// Package composer stitches validated chapter payloads into one Document IR.
// It is the only component allowed to assign final anchors; renderers consume
// its output without re-validating structure.
package composer

import (
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"reportforge/internal/contract"
)

// Document is the single IR artifact consumed by the downstream renderers.
// It is created once per run and treated as immutable afterwards.
type Document struct {
	Version     string           `json:"version"`
	ReportID    string           `json:"reportId"`
	Metadata    map[string]any   `json:"metadata"`
	ThemeTokens map[string]any   `json:"themeTokens"`
	Chapters    []map[string]any `json:"chapters"`
	Assets      map[string]any   `json:"assets"`
}

// Composer merges finalized chapters into a document. Safe for reuse across
// runs: the anchor-dedup set lives inside each BuildDocument call, never on
// the composer itself.
type Composer struct {
	logger *zap.Logger
}

// New creates a composer. A nil logger disables logging.
func New(logger *zap.Logger) *Composer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Composer{logger: logger}
}

// BuildDocument sorts the chapters, assigns document-unique anchors and
// normalized orders, and emits the Document. anchorOverrides is the optional
// layout-supplied chapterId -> anchor map; it takes precedence over both the
// metadata toc entries and each chapter's self-declared anchor.
func (c *Composer) BuildDocument(reportID string, metadata map[string]any, chapters []map[string]any, anchorOverrides map[string]string) Document {
	if metadata == nil {
		metadata = map[string]any{}
	}

	tocAnchors := tocAnchorMap(metadata)
	for id, anchor := range anchorOverrides {
		tocAnchors[id] = anchor
	}

	ordered := append([]map[string]any{}, chapters...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return orderOf(ordered[i]) < orderOf(ordered[j])
	})

	seen := map[string]bool{}
	for idx, chapter := range ordered {
		n := idx + 1

		chapterID, _ := chapter["chapterId"].(string)
		if chapterID == "" {
			chapterID = fmt.Sprintf("S%d", n)
			chapter["chapterId"] = chapterID
		}

		anchor := tocAnchors[chapterID]
		if anchor == "" {
			anchor, _ = chapter["anchor"].(string)
		}
		if anchor == "" {
			anchor = fmt.Sprintf("section-%d", n)
		}
		chapter["anchor"] = uniqueAnchor(anchor, seen)

		// index*10 leaves room for later manual reordering.
		chapter["order"] = n * 10

		if placeholder, _ := chapter["errorPlaceholder"].(bool); placeholder {
			ensureHeadingBlock(chapter)
		}
	}

	meta := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		meta[k] = v
	}
	if _, has := meta["generatedAt"]; !has {
		meta["generatedAt"] = time.Now().UTC().Format(time.RFC3339)
	}

	themeTokens, _ := metadata["themeTokens"].(map[string]any)
	if themeTokens == nil {
		themeTokens = map[string]any{}
	}
	assets, _ := metadata["assets"].(map[string]any)
	if assets == nil {
		assets = map[string]any{}
	}

	c.logger.Info("document composed",
		zap.String("report", reportID),
		zap.Int("chapters", len(ordered)))

	return Document{
		Version:     contract.Version,
		ReportID:    reportID,
		Metadata:    meta,
		ThemeTokens: themeTokens,
		Chapters:    ordered,
		Assets:      assets,
	}
}

// uniqueAnchor appends -2, -3, ... until the anchor is unused within this
// document.
func uniqueAnchor(anchor string, seen map[string]bool) string {
	base := anchor
	for counter := 2; seen[anchor]; counter++ {
		anchor = fmt.Sprintf("%s-%d", base, counter)
	}
	seen[anchor] = true
	return anchor
}

// tocAnchorMap extracts chapterId -> anchor from metadata.toc.customEntries.
func tocAnchorMap(metadata map[string]any) map[string]string {
	anchors := map[string]string{}
	toc, _ := metadata["toc"].(map[string]any)
	if toc == nil {
		return anchors
	}
	entries, _ := toc["customEntries"].([]any)
	for _, entryAny := range entries {
		entry, ok := entryAny.(map[string]any)
		if !ok {
			continue
		}
		chapterID, _ := entry["chapterId"].(string)
		anchor, _ := entry["anchor"].(string)
		if chapterID != "" && anchor != "" {
			anchors[chapterID] = anchor
		}
	}
	return anchors
}

// ensureHeadingBlock guarantees error-placeholder chapters still expose a
// heading, so table-of-contents generation never sees an empty outline.
func ensureHeadingBlock(chapter map[string]any) {
	blocks, _ := chapter["blocks"].([]any)
	for _, blockAny := range blocks {
		block, ok := blockAny.(map[string]any)
		if !ok {
			continue
		}
		if typ, _ := block["type"].(string); contract.BlockType(typ) == contract.BlockHeading {
			return
		}
	}

	text, _ := chapter["title"].(string)
	if text == "" {
		text, _ = chapter["anchor"].(string)
	}
	heading := map[string]any{
		"type":   string(contract.BlockHeading),
		"level":  2,
		"text":   text,
		"anchor": chapter["anchor"],
	}
	chapter["blocks"] = append([]any{heading}, blocks...)
}

func orderOf(chapter map[string]any) float64 {
	switch v := chapter["order"].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}
