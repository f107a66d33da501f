// Package template slices a Markdown report template into the ordered chapter
// plans the supervisor generates against. Generation is per chapter, so the
// template must become a structured queue before the first model call.
package template

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

const orderStep = 10

// ChapterPlan describes one chapter the supervisor must produce.
type ChapterPlan struct {
	ChapterID string   `json:"chapterId"`
	Title     string   `json:"title"`
	Slug      string   `json:"slug"`
	Order     int      `json:"order"`
	Depth     int      `json:"depth"`
	Outline   []string `json:"outline"`
}

// Slice parses a Markdown template into chapter plans. Headings up to level 2
// open a new chapter; deeper headings and list items become the current
// chapter's outline. When the template yields no chapters a single fallback
// skeleton is returned so a run can never start with zero chapters.
func Slice(templateMD string) []ChapterPlan {
	var plans []ChapterPlan
	usedSlugs := map[string]bool{}

	md := goldmark.New()
	source := []byte(templateMD)
	doc := md.Parser().Parse(text.NewReader(source))

	var current *ChapterPlan
	ast.Walk(doc, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n := node.(type) {
		case *ast.Heading:
			title := strings.TrimSpace(nodeText(n, source))
			if title == "" {
				return ast.WalkSkipChildren, nil
			}
			if n.Level <= 2 {
				if current != nil {
					plans = append(plans, *current)
				}
				idx := len(plans) + 1
				current = &ChapterPlan{
					ChapterID: fmt.Sprintf("S%d", idx),
					Title:     title,
					Slug:      uniqueSlug(Slugify(title), usedSlugs),
					Order:     idx * orderStep,
					Depth:     n.Level,
				}
			} else if current != nil {
				current.Outline = append(current.Outline, title)
			}
			return ast.WalkSkipChildren, nil
		case *ast.ListItem:
			if current == nil {
				return ast.WalkContinue, nil
			}
			entry := strings.TrimSpace(firstLine(nodeText(n, source)))
			if entry != "" {
				current.Outline = append(current.Outline, entry)
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	if current != nil {
		plans = append(plans, *current)
	}

	if len(plans) == 0 {
		return []ChapterPlan{fallbackPlan()}
	}
	return plans
}

func fallbackPlan() ChapterPlan {
	return ChapterPlan{
		ChapterID: "S1",
		Title:     "1.0 综合分析",
		Slug:      "section-1-0",
		Order:     orderStep,
		Depth:     1,
		Outline:   []string{"1.1 摘要", "1.2 数据亮点", "1.3 风险提示"},
	}
}

// Slugify lowercases and keeps letters, digits, and CJK characters, joining
// runs of everything else with a single hyphen.
func Slugify(s string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		return "section"
	}
	return slug
}

func uniqueSlug(slug string, used map[string]bool) string {
	candidate := slug
	for counter := 2; used[candidate]; counter++ {
		candidate = fmt.Sprintf("%s-%d", slug, counter)
	}
	used[candidate] = true
	return candidate
}

// nodeText collects the raw text content beneath a node.
func nodeText(node ast.Node, source []byte) string {
	var b strings.Builder
	ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if t, ok := n.(*ast.Text); ok {
			b.Write(t.Segment.Value(source))
		}
		return ast.WalkContinue, nil
	})
	return b.String()
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
