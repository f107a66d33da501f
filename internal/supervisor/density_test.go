package supervisor

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, raw string) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &out))
	return out
}

func TestMeasureCountsRunesNotBytes(t *testing.T) {
	chapter := map[string]any{
		"blocks": []any{
			map[string]any{
				"type":    "paragraph",
				"inlines": []any{map[string]any{"text": strings.Repeat("市", 100)}},
			},
		},
	}
	d := Measure(chapter)
	assert.Equal(t, 100, d.BodyChars)
	assert.Equal(t, 100, d.NarrativeChars)
	assert.Equal(t, 1, d.NonHeadingBlocks)
}

func TestMeasureSkipsStructuralBlocks(t *testing.T) {
	chapter := decode(t, `{
		"blocks": [
			{"type": "heading", "level": 2, "text": "标题标题标题", "anchor": "a"},
			{"type": "hr"},
			{"type": "toc", "items": [{"text": "should not count"}]},
			{"type": "widget", "widgetType": "chart", "data": {"text": "nope"}},
			{"type": "paragraph", "inlines": [{"text": "十个字十个字十个字十"}]}
		]
	}`)
	d := Measure(chapter)
	assert.Equal(t, 10, d.BodyChars)
	assert.Equal(t, 10, d.NarrativeChars)
	// hr and toc do not count as content blocks, widget does
	assert.Equal(t, 2, d.NonHeadingBlocks)
}

func TestTablesCountBodyButNotNarrative(t *testing.T) {
	chapter := decode(t, `{
		"blocks": [
			{"type": "table", "rows": [
				{"cells": [{"blocks": [{"type": "paragraph", "inlines": [{"text": "单元格内容共八字"}]}]}]}
			]}
		]
	}`)
	d := Measure(chapter)
	assert.Equal(t, 8, d.BodyChars)
	assert.Equal(t, 0, d.NarrativeChars)
}

func TestNestedQuoteNarrative(t *testing.T) {
	chapter := decode(t, `{
		"blocks": [
			{"type": "callout", "tone": "info", "blocks": [
				{"type": "paragraph", "inlines": [{"text": "提示内容共七字"}]}
			]}
		]
	}`)
	d := Measure(chapter)
	assert.Equal(t, 7, d.NarrativeChars)
}

func TestCheckDensityThresholds(t *testing.T) {
	thin := chapterPayload(100)
	err := CheckDensity(thin)
	var sparse *SparseContentError
	require.ErrorAs(t, err, &sparse)
	assert.Equal(t, 100, sparse.BodyChars)
	assert.Equal(t, 2, sparse.Blocks)
	assert.NotNil(t, sparse.Payload)

	assert.NoError(t, CheckDensity(chapterPayload(700)))
}

func TestCheckDensityMissingBlocks(t *testing.T) {
	err := CheckDensity(map[string]any{"chapterId": "S1"})
	var sparse *SparseContentError
	require.ErrorAs(t, err, &sparse)
	assert.Zero(t, sparse.BodyChars)
	assert.Zero(t, sparse.Blocks)
}
