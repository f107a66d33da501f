package composer

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chapter(id, anchor string, order int) map[string]any {
	return map[string]any{
		"chapterId": id,
		"title":     "Chapter " + id,
		"anchor":    anchor,
		"order":     order,
		"blocks": []any{
			map[string]any{"type": "heading", "level": 2, "text": "Chapter " + id, "anchor": anchor},
		},
	}
}

func TestBuildDocumentOrdering(t *testing.T) {
	c := New(nil)
	chapters := []map[string]any{
		chapter("S3", "c", 30),
		chapter("S1", "a", 10),
		chapter("S2", "b", 20),
	}

	doc := c.BuildDocument("r1", nil, chapters, nil)

	require.Len(t, doc.Chapters, 3)
	ids := []string{}
	orders := []int{}
	for _, ch := range doc.Chapters {
		ids = append(ids, ch["chapterId"].(string))
		orders = append(orders, ch["order"].(int))
	}
	assert.Equal(t, []string{"S1", "S2", "S3"}, ids)
	assert.Equal(t, []int{10, 20, 30}, orders)
	assert.Equal(t, "1.0", doc.Version)
	assert.Equal(t, "r1", doc.ReportID)
	assert.NotEmpty(t, doc.Metadata["generatedAt"])
}

func TestBuildDocumentDefaultsChapterID(t *testing.T) {
	c := New(nil)
	chapters := []map[string]any{
		{"title": "Anonymous", "order": 5, "blocks": []any{}},
	}
	doc := c.BuildDocument("r1", nil, chapters, nil)
	require.Len(t, doc.Chapters, 1)
	assert.Equal(t, "S1", doc.Chapters[0]["chapterId"])
	assert.Equal(t, "section-1", doc.Chapters[0]["anchor"])
	assert.Equal(t, 10, doc.Chapters[0]["order"])
}

func TestBuildDocumentAnchorDeduplication(t *testing.T) {
	c := New(nil)
	chapters := []map[string]any{
		chapter("S1", "x", 10),
		chapter("S2", "x", 20),
		chapter("S3", "x", 30),
		chapter("S4", "x", 40),
	}
	doc := c.BuildDocument("r1", nil, chapters, nil)

	anchors := []string{}
	for _, ch := range doc.Chapters {
		anchors = append(anchors, ch["anchor"].(string))
	}
	if diff := cmp.Diff([]string{"x", "x-2", "x-3", "x-4"}, anchors); diff != "" {
		t.Fatalf("anchor mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildDocumentAnchorPriority(t *testing.T) {
	c := New(nil)
	metadata := map[string]any{
		"toc": map[string]any{
			"customEntries": []any{
				map[string]any{"chapterId": "S1", "anchor": "toc-wins"},
			},
		},
	}
	chapters := []map[string]any{
		chapter("S1", "self-anchor", 10),
		chapter("S2", "kept", 20),
	}
	doc := c.BuildDocument("r1", metadata, chapters, nil)
	assert.Equal(t, "toc-wins", doc.Chapters[0]["anchor"])
	assert.Equal(t, "kept", doc.Chapters[1]["anchor"])
}

func TestBuildDocumentExplicitOverridesBeatTOC(t *testing.T) {
	c := New(nil)
	metadata := map[string]any{
		"toc": map[string]any{
			"customEntries": []any{
				map[string]any{"chapterId": "S1", "anchor": "from-toc"},
			},
		},
	}
	doc := c.BuildDocument("r1", metadata,
		[]map[string]any{chapter("S1", "self", 10)},
		map[string]string{"S1": "from-layout"})
	assert.Equal(t, "from-layout", doc.Chapters[0]["anchor"])
}

func TestBuildDocumentPlaceholderGetsHeading(t *testing.T) {
	c := New(nil)
	chapters := []map[string]any{
		{
			"chapterId":        "S1",
			"title":            "Failed chapter",
			"order":            10,
			"errorPlaceholder": true,
			"blocks": []any{
				map[string]any{"type": "paragraph", "inlines": []any{map[string]any{"text": "stub"}}},
			},
		},
	}
	doc := c.BuildDocument("r1", nil, chapters, nil)

	blocks := doc.Chapters[0]["blocks"].([]any)
	require.NotEmpty(t, blocks)
	heading := blocks[0].(map[string]any)
	assert.Equal(t, "heading", heading["type"])
	assert.Equal(t, "Failed chapter", heading["text"])
	assert.Equal(t, doc.Chapters[0]["anchor"], heading["anchor"])
}

func TestBuildDocumentPreservesMetadataAndTheme(t *testing.T) {
	c := New(nil)
	metadata := map[string]any{
		"title":       "Annual Report",
		"generatedAt": "2026-01-02T03:04:05Z",
		"themeTokens": map[string]any{"primary": "#0a84ff"},
		"assets":      map[string]any{"logo": "assets/logo.png"},
	}
	doc := c.BuildDocument("r1", metadata, nil, nil)
	assert.Equal(t, "2026-01-02T03:04:05Z", doc.Metadata["generatedAt"])
	assert.Equal(t, "#0a84ff", doc.ThemeTokens["primary"])
	assert.Equal(t, "assets/logo.png", doc.Assets["logo"])
	assert.Equal(t, "Annual Report", doc.Metadata["title"])
}

func TestBuildDocumentFreshAnchorSetPerCall(t *testing.T) {
	c := New(nil)
	first := c.BuildDocument("r1", nil, []map[string]any{chapter("S1", "x", 10)}, nil)
	second := c.BuildDocument("r2", nil, []map[string]any{chapter("S1", "x", 10)}, nil)
	assert.Equal(t, "x", first.Chapters[0]["anchor"])
	assert.Equal(t, "x", second.Chapters[0]["anchor"])
}
