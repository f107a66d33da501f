package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	return s
}

func chapterPayload(id string, order int) map[string]any {
	return map[string]any{
		"chapterId": id,
		"title":     "Chapter " + id,
		"anchor":    "anchor-" + id,
		"order":     order,
		"blocks": []any{
			map[string]any{"type": "heading", "level": 2, "text": "Chapter " + id, "anchor": "anchor-" + id},
		},
	}
}

func TestStartSessionWritesManifest(t *testing.T) {
	s := newTestStore(t)
	run, err := s.StartSession("run-1", map[string]any{"title": "Quarterly"})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(run.Dir, "manifest.json"))
	require.NoError(t, err)

	var manifest Manifest
	require.NoError(t, json.Unmarshal(data, &manifest))
	assert.Equal(t, "run-1", manifest.ReportID)
	assert.Equal(t, "Quarterly", manifest.Metadata["title"])
	assert.Empty(t, manifest.Chapters)
	assert.NotEmpty(t, manifest.CreatedAt)
}

func TestStartSessionGeneratesReportID(t *testing.T) {
	s := newTestStore(t)
	run, err := s.StartSession("", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, run.ReportID)
}

func TestBeginChapterLayout(t *testing.T) {
	s := newTestStore(t)
	run, err := s.StartSession("run-1", nil)
	require.NoError(t, err)

	dir, err := run.BeginChapter(ChapterMeta{ChapterID: "S1", Title: "Intro", Slug: "intro section", Order: 5})
	require.NoError(t, err)
	assert.Equal(t, "005-intro-section", filepath.Base(dir))

	manifest := run.Manifest()
	require.Len(t, manifest.Chapters, 1)
	entry := manifest.Chapters[0]
	assert.Equal(t, StatusStreaming, entry.Status)
	assert.Equal(t, "005-intro-section/stream.raw", entry.Files["raw"])
	assert.Empty(t, entry.Files["json"])
}

func TestCaptureStream(t *testing.T) {
	s := newTestStore(t)
	run, err := s.StartSession("run-1", nil)
	require.NoError(t, err)
	dir, err := run.BeginChapter(ChapterMeta{ChapterID: "S1", Title: "Intro", Order: 1})
	require.NoError(t, err)

	f, err := run.CaptureStream(dir)
	require.NoError(t, err)
	_, err = f.WriteString("partial model output")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	data, err := os.ReadFile(filepath.Join(dir, "stream.raw"))
	require.NoError(t, err)
	assert.Equal(t, "partial model output", string(data))
}

func TestPersistChapterUpsertsManifest(t *testing.T) {
	s := newTestStore(t)
	run, err := s.StartSession("run-1", nil)
	require.NoError(t, err)
	meta := ChapterMeta{ChapterID: "S1", Title: "Intro", Slug: "intro", Order: 1}

	_, err = run.BeginChapter(meta)
	require.NoError(t, err)

	// First persist fails validation, second succeeds; both target the same
	// chapterId and must leave exactly one entry.
	_, err = run.PersistChapter(meta, chapterPayload("S1", 1), []string{"blocks[0].inlines must be a non-empty array"})
	require.NoError(t, err)
	path, err := run.PersistChapter(meta, chapterPayload("S1", 1), nil)
	require.NoError(t, err)

	manifest := run.Manifest()
	require.Len(t, manifest.Chapters, 1)
	entry := manifest.Chapters[0]
	assert.Equal(t, StatusReady, entry.Status)
	assert.Empty(t, entry.Errors)
	assert.Equal(t, "001-intro/chapter.json", entry.Files["json"])

	payloads, err := run.LoadChapters()
	require.NoError(t, err)
	require.Len(t, payloads, 1)
	assert.Equal(t, "S1", payloads[0]["chapterId"])

	// No temp files left behind by the atomic write.
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp-")
	}
}

func TestPersistChapterInvalidStatus(t *testing.T) {
	s := newTestStore(t)
	run, err := s.StartSession("run-1", nil)
	require.NoError(t, err)

	errs := []string{"missing chapter.anchor", "blocks[0].type not supported: carousel"}
	_, err = run.PersistChapter(ChapterMeta{ChapterID: "S2", Title: "Body", Order: 2}, chapterPayload("S2", 2), errs)
	require.NoError(t, err)

	manifest := run.Manifest()
	require.Len(t, manifest.Chapters, 1)
	assert.Equal(t, StatusInvalid, manifest.Chapters[0].Status)
	assert.Equal(t, errs, manifest.Chapters[0].Errors)
}

func TestManifestSortedByOrder(t *testing.T) {
	s := newTestStore(t)
	run, err := s.StartSession("run-1", nil)
	require.NoError(t, err)

	for _, order := range []int{30, 10, 20} {
		meta := ChapterMeta{ChapterID: "S" + string(rune('0'+order/10)), Title: "T", Order: order}
		_, err := run.PersistChapter(meta, chapterPayload(meta.ChapterID, order), nil)
		require.NoError(t, err)
	}

	manifest := run.Manifest()
	require.Len(t, manifest.Chapters, 3)
	assert.Equal(t, []int{10, 20, 30}, []int{
		manifest.Chapters[0].Order,
		manifest.Chapters[1].Order,
		manifest.Chapters[2].Order,
	})
}

func TestLoadChaptersSortsByPayloadOrder(t *testing.T) {
	s := newTestStore(t)
	run, err := s.StartSession("run-1", nil)
	require.NoError(t, err)

	// Directory names would list S9 before S1; the declared order field must
	// win over listing order.
	_, err = run.PersistChapter(ChapterMeta{ChapterID: "S9", Title: "Last", Slug: "aaa", Order: 1}, chapterPayload("S9", 90), nil)
	require.NoError(t, err)
	_, err = run.PersistChapter(ChapterMeta{ChapterID: "S1", Title: "First", Slug: "zzz", Order: 2}, chapterPayload("S1", 10), nil)
	require.NoError(t, err)

	payloads, err := run.LoadChapters()
	require.NoError(t, err)
	require.Len(t, payloads, 2)
	assert.Equal(t, "S1", payloads[0]["chapterId"])
	assert.Equal(t, "S9", payloads[1]["chapterId"])
}

func TestLoadChaptersSkipsUnparsableFiles(t *testing.T) {
	s := newTestStore(t)
	run, err := s.StartSession("run-1", nil)
	require.NoError(t, err)

	_, err = run.PersistChapter(ChapterMeta{ChapterID: "S1", Title: "Good", Order: 1}, chapterPayload("S1", 10), nil)
	require.NoError(t, err)

	brokenDir := filepath.Join(run.Dir, "002-broken")
	require.NoError(t, os.MkdirAll(brokenDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(brokenDir, "chapter.json"), []byte("{not json"), 0o644))

	payloads, err := run.LoadChapters()
	require.NoError(t, err)
	require.Len(t, payloads, 1)
	assert.Equal(t, "S1", payloads[0]["chapterId"])
}

func TestLoadChaptersExcludesInvalidEntries(t *testing.T) {
	s := newTestStore(t)
	run, err := s.StartSession("run-1", nil)
	require.NoError(t, err)

	_, err = run.PersistChapter(ChapterMeta{ChapterID: "S2", Title: "Good", Slug: "good", Order: 2}, chapterPayload("S2", 20), nil)
	require.NoError(t, err)
	// an invalid chapter file on disk must not reach the composed document
	_, err = run.PersistChapter(ChapterMeta{ChapterID: "S1", Title: "Bad", Slug: "bad", Order: 1}, map[string]any{}, []string{"chapter.blocks must be a non-empty array"})
	require.NoError(t, err)

	payloads, err := run.LoadChapters()
	require.NoError(t, err)
	require.Len(t, payloads, 1)
	assert.Equal(t, "S2", payloads[0]["chapterId"])
}

func TestMarkChapterInvalidWritesNoChapterFile(t *testing.T) {
	s := newTestStore(t)
	run, err := s.StartSession("run-1", nil)
	require.NoError(t, err)

	meta := ChapterMeta{ChapterID: "S1", Title: "Doomed", Slug: "doomed", Order: 1}
	require.NoError(t, run.MarkChapterInvalid(meta, []string{"could not be generated"}))

	_, err = os.Stat(filepath.Join(run.Dir, "001-doomed", "chapter.json"))
	assert.True(t, os.IsNotExist(err))

	m := run.Manifest()
	require.Len(t, m.Chapters, 1)
	assert.Equal(t, StatusInvalid, m.Chapters[0].Status)
	assert.Equal(t, []string{"could not be generated"}, m.Chapters[0].Errors)

	payloads, err := run.LoadChapters()
	require.NoError(t, err)
	assert.Empty(t, payloads)
}

func TestOpenRunReloadsManifest(t *testing.T) {
	base := t.TempDir()
	s, err := New(base, zap.NewNop())
	require.NoError(t, err)

	run, err := s.StartSession("run-1", map[string]any{"title": "T"})
	require.NoError(t, err)
	_, err = run.PersistChapter(ChapterMeta{ChapterID: "S1", Title: "Intro", Order: 1}, chapterPayload("S1", 10), nil)
	require.NoError(t, err)

	reopened, err := s.OpenRun("run-1")
	require.NoError(t, err)
	manifest := reopened.Manifest()
	assert.Equal(t, "run-1", manifest.ReportID)
	require.Len(t, manifest.Chapters, 1)
	assert.Equal(t, StatusReady, manifest.Chapters[0].Status)
}

func TestWatchRunSeesManifestRewrite(t *testing.T) {
	s := newTestStore(t)
	run, err := s.StartSession("run-1", nil)
	require.NoError(t, err)

	watcher, err := run.WatchRun()
	require.NoError(t, err)
	defer watcher.Close()

	_, err = run.PersistChapter(ChapterMeta{ChapterID: "S1", Title: "Intro", Order: 1}, chapterPayload("S1", 10), nil)
	require.NoError(t, err)

	select {
	case reportID := <-watcher.Events:
		assert.Equal(t, "run-1", reportID)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a manifest rewrite event")
	}
}

func TestSanitizeSlug(t *testing.T) {
	assert.Equal(t, "a-b-c", sanitizeSlug("a b/c"))
	assert.Equal(t, "section", sanitizeSlug(""))
}
