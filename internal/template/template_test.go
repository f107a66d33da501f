package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSliceHeadings(t *testing.T) {
	md := `# 1.0 Executive Summary

Some intro prose.

## 2.0 Market Landscape

### 2.1 Supply side
### 2.2 Demand side

## 3.0 Risks
`
	plans := Slice(md)
	require.Len(t, plans, 3)

	assert.Equal(t, "S1", plans[0].ChapterID)
	assert.Equal(t, "1.0 Executive Summary", plans[0].Title)
	assert.Equal(t, 10, plans[0].Order)

	assert.Equal(t, "S2", plans[1].ChapterID)
	assert.Equal(t, 20, plans[1].Order)
	assert.Equal(t, []string{"2.1 Supply side", "2.2 Demand side"}, plans[1].Outline)

	assert.Equal(t, "S3", plans[2].ChapterID)
	assert.Equal(t, 30, plans[2].Order)
	assert.Empty(t, plans[2].Outline)
}

func TestSliceListOutline(t *testing.T) {
	md := `## Findings

- key driver one
- key driver two
`
	plans := Slice(md)
	require.Len(t, plans, 1)
	assert.Equal(t, []string{"key driver one", "key driver two"}, plans[0].Outline)
}

func TestSliceFallbackSkeleton(t *testing.T) {
	plans := Slice("just prose, no headings at all")
	require.Len(t, plans, 1)
	assert.Equal(t, "S1", plans[0].ChapterID)
	assert.Equal(t, "section-1-0", plans[0].Slug)
	assert.NotEmpty(t, plans[0].Outline)
}

func TestSliceDuplicateTitlesGetUniqueSlugs(t *testing.T) {
	md := "## Overview\n\n## Overview\n"
	plans := Slice(md)
	require.Len(t, plans, 2)
	assert.Equal(t, "overview", plans[0].Slug)
	assert.Equal(t, "overview-2", plans[1].Slug)
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "market-overview", Slugify("Market Overview"))
	assert.Equal(t, "2-1-supply-side", Slugify("2.1 Supply side"))
	assert.Equal(t, "section", Slugify("!!!"))
	assert.Equal(t, "风险提示", Slugify("风险提示"))
}
