// Package contract is the single authoritative definition of the chapter IR:
// the closed set of block and inline-mark variants, the enumerated value sets
// each variant accepts, and the field rules shared by generation guidance,
// validation, and rendering. No other package may hard-code a block-type
// string; everything dispatches on the constants defined here.
package contract

// Version is the IR schema version stamped into every composed document.
const Version = "1.0"

// BlockType identifies one variant of the closed block union.
type BlockType string

const (
	BlockHeading    BlockType = "heading"
	BlockParagraph  BlockType = "paragraph"
	BlockList       BlockType = "list"
	BlockTable      BlockType = "table"
	BlockSwotTable  BlockType = "swotTable"
	BlockPestTable  BlockType = "pestTable"
	BlockBlockquote BlockType = "blockquote"
	BlockEngineQuote BlockType = "engineQuote"
	BlockHR         BlockType = "hr"
	BlockCode       BlockType = "code"
	BlockMath       BlockType = "math"
	BlockFigure     BlockType = "figure"
	BlockCallout    BlockType = "callout"
	BlockKPIGrid    BlockType = "kpiGrid"
	BlockWidget     BlockType = "widget"
	BlockTOC        BlockType = "toc"
)

// MarkType identifies one variant of the closed inline-mark vocabulary.
type MarkType string

const (
	MarkBold        MarkType = "bold"
	MarkItalic      MarkType = "italic"
	MarkUnderline   MarkType = "underline"
	MarkStrike      MarkType = "strike"
	MarkCode        MarkType = "code"
	MarkLink        MarkType = "link"
	MarkColor       MarkType = "color"
	MarkFont        MarkType = "font"
	MarkHighlight   MarkType = "highlight"
	MarkSubscript   MarkType = "subscript"
	MarkSuperscript MarkType = "superscript"
	MarkMath        MarkType = "math"
)

// AllBlockTypes lists every member of the closed block union, in the order
// the schema documents them.
var AllBlockTypes = []BlockType{
	BlockHeading,
	BlockParagraph,
	BlockList,
	BlockTable,
	BlockSwotTable,
	BlockPestTable,
	BlockBlockquote,
	BlockEngineQuote,
	BlockHR,
	BlockCode,
	BlockMath,
	BlockFigure,
	BlockCallout,
	BlockKPIGrid,
	BlockWidget,
	BlockTOC,
}

// AllMarkTypes lists every member of the inline-mark vocabulary.
var AllMarkTypes = []MarkType{
	MarkBold,
	MarkItalic,
	MarkUnderline,
	MarkStrike,
	MarkCode,
	MarkLink,
	MarkColor,
	MarkFont,
	MarkHighlight,
	MarkSubscript,
	MarkSuperscript,
	MarkMath,
}

// RequiredChapterFields are the top-level fields every chapter payload must
// carry before its blocks are even inspected.
var RequiredChapterFields = []string{"chapterId", "title", "anchor", "order", "blocks"}

// ListTypes enumerates the legal listType values of a list block.
var ListTypes = map[string]bool{
	"ordered": true,
	"bullet":  true,
	"task":    true,
}

// CalloutTones enumerates the legal tone values of a callout block.
var CalloutTones = map[string]bool{
	"info":    true,
	"warning": true,
	"success": true,
	"danger":  true,
}

// SwotQuadrants names the four SWOT quadrant arrays; a swotTable must carry
// at least one of them.
var SwotQuadrants = []string{"strengths", "weaknesses", "opportunities", "threats"}

// PestQuadrants names the four PEST quadrant arrays; a pestTable must carry
// at least one of them.
var PestQuadrants = []string{"political", "economic", "social", "technological"}

// SwotImpactRatings is the fixed rating vocabulary of a SWOT item's impact
// field. Free-form commentary belongs in the item's detail field, never here.
var SwotImpactRatings = map[string]bool{
	"低":  true,
	"中低": true,
	"中":  true,
	"中高": true,
	"高":  true,
	"极高": true,
}

// PestTrendRatings is the fixed rating vocabulary of a PEST item's trend
// field; like SWOT impact, it never carries free text.
var PestTrendRatings = map[string]bool{
	"正面利好": true,
	"负面影响": true,
	"中性":   true,
	"不确定":  true,
	"持续观察": true,
}

// ItemTextFields are the fields, in priority order, any of which may carry a
// SWOT/PEST item's descriptive text when the item is an object.
var ItemTextFields = []string{"title", "label", "text", "detail", "description"}

// EngineAgentTitles maps each engineQuote source id to the fixed title an
// engineQuote block must carry for that source.
var EngineAgentTitles = map[string]string{
	"insight": "Insight Agent",
	"media":   "Media Agent",
	"query":   "Query Agent",
}

// EngineQuoteMarks restricts inline marks inside an engineQuote's paragraph
// children.
var EngineQuoteMarks = map[MarkType]bool{
	MarkBold:   true,
	MarkItalic: true,
}

// IsBlockType reports whether s names a member of the closed block union.
func IsBlockType(s string) bool {
	switch BlockType(s) {
	case BlockHeading, BlockParagraph, BlockList, BlockTable, BlockSwotTable,
		BlockPestTable, BlockBlockquote, BlockEngineQuote, BlockHR, BlockCode,
		BlockMath, BlockFigure, BlockCallout, BlockKPIGrid, BlockWidget, BlockTOC:
		return true
	}
	return false
}

// IsMarkType reports whether s names a member of the inline-mark vocabulary.
func IsMarkType(s string) bool {
	switch MarkType(s) {
	case MarkBold, MarkItalic, MarkUnderline, MarkStrike, MarkCode, MarkLink,
		MarkColor, MarkFont, MarkHighlight, MarkSubscript, MarkSuperscript, MarkMath:
		return true
	}
	return false
}
