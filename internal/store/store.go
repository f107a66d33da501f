// Package store persists chapter payloads for one report run and maintains
// the per-run manifest. Layout contract: one run directory per report, chapter
// subdirectories named {order:03d}-{slug}, each holding the raw streaming
// capture and the finalized chapter.json, with a single manifest.json at the
// run root. The manifest is rewritten in full on every upsert.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Status is the lifecycle state of a chapter in the manifest.
type Status string

const (
	StatusStreaming Status = "streaming"
	StatusReady     Status = "ready"
	StatusInvalid   Status = "invalid"
)

const (
	manifestFile = "manifest.json"
	chapterFile  = "chapter.json"
	rawFile      = "stream.raw"
)

// ManifestEntry tracks one chapter's status and file locations.
type ManifestEntry struct {
	ChapterID string            `json:"chapterId"`
	Slug      string            `json:"slug"`
	Title     string            `json:"title"`
	Order     int               `json:"order"`
	Status    Status            `json:"status"`
	Files     map[string]string `json:"files"`
	Errors    []string          `json:"errors"`
	UpdatedAt string            `json:"updatedAt"`
}

// Manifest is the per-run index consumed by debugging and observability
// tooling.
type Manifest struct {
	ReportID  string          `json:"reportId"`
	CreatedAt string          `json:"createdAt"`
	Metadata  map[string]any  `json:"metadata"`
	Chapters  []ManifestEntry `json:"chapters"`
}

// ChapterMeta identifies a chapter for storage purposes.
type ChapterMeta struct {
	ChapterID string
	Title     string
	Slug      string
	Order     int
}

// Store owns the base directory under which run directories are created.
type Store struct {
	baseDir string
	logger  *zap.Logger
}

// Run is the ownership boundary for one report's output directory. All
// manifest read-modify-write goes through the run's mutex; callers from
// multiple goroutines are safe, lost updates are not possible.
type Run struct {
	ReportID string
	Dir      string

	mu       sync.Mutex
	manifest *Manifest
	logger   *zap.Logger
}

// New creates a store rooted at baseDir. A nil logger disables logging.
func New(baseDir string, logger *zap.Logger) (*Store, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("store: base directory required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store root: %w", err)
	}
	return &Store{baseDir: baseDir, logger: logger}, nil
}

// StartSession creates the run directory and an empty manifest for one
// report. An empty reportID gets a generated one.
func (s *Store) StartSession(reportID string, metadata map[string]any) (*Run, error) {
	if reportID == "" {
		reportID = uuid.NewString()
	}
	dir := filepath.Join(s.baseDir, reportID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}

	run := &Run{
		ReportID: reportID,
		Dir:      dir,
		manifest: &Manifest{
			ReportID:  reportID,
			CreatedAt: time.Now().UTC().Format(time.RFC3339),
			Metadata:  metadata,
			Chapters:  []ManifestEntry{},
		},
		logger: s.logger,
	}
	if err := run.writeManifest(); err != nil {
		return nil, err
	}
	s.logger.Info("run session started",
		zap.String("report", reportID),
		zap.String("dir", dir))
	return run, nil
}

// OpenRun attaches to an existing run directory, reloading its manifest from
// disk. Used to stitch a run in a separate process from the one that
// generated it.
func (s *Store) OpenRun(reportID string) (*Run, error) {
	dir := filepath.Join(s.baseDir, reportID)
	data, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest for run %s: %w", reportID, err)
	}
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse manifest for run %s: %w", reportID, err)
	}
	return &Run{ReportID: reportID, Dir: dir, manifest: &manifest, logger: s.logger}, nil
}

// BeginChapter creates the chapter subdirectory and registers a streaming
// manifest entry pointing at the raw capture file.
func (r *Run) BeginChapter(meta ChapterMeta) (string, error) {
	dir, err := r.chapterDir(meta)
	if err != nil {
		return "", err
	}
	entry := ManifestEntry{
		ChapterID: meta.ChapterID,
		Slug:      sanitizeSlug(slugOf(meta)),
		Title:     meta.Title,
		Order:     meta.Order,
		Status:    StatusStreaming,
		Files:     map[string]string{"raw": r.relative(filepath.Join(dir, rawFile))},
		Errors:    []string{},
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if err := r.upsert(entry); err != nil {
		return "", err
	}
	r.logger.Debug("chapter streaming",
		zap.String("report", r.ReportID),
		zap.String("chapter", meta.ChapterID),
		zap.String("dir", dir))
	return dir, nil
}

// CaptureStream opens the raw capture file for a chapter directory. The
// handle is only for observability capture of in-progress generation text;
// nothing reads it back. Callers must Close it on every exit path.
func (r *Run) CaptureStream(chapterDir string) (*os.File, error) {
	path := filepath.Join(chapterDir, rawFile)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create chapter directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open stream capture: %w", err)
	}
	return f, nil
}

// PersistChapter writes the final chapter JSON atomically and upserts the
// manifest entry to ready (no errors) or invalid (errors attached). A second
// persist for the same chapterId replaces the prior entry.
func (r *Run) PersistChapter(meta ChapterMeta, payload map[string]any, errs []string) (string, error) {
	dir, err := r.chapterDir(meta)
	if err != nil {
		return "", err
	}
	finalPath := filepath.Join(dir, chapterFile)

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal chapter %s: %w", meta.ChapterID, err)
	}
	if err := atomicWrite(finalPath, data); err != nil {
		return "", fmt.Errorf("failed to write chapter %s: %w", meta.ChapterID, err)
	}

	status := StatusReady
	if len(errs) > 0 {
		status = StatusInvalid
	}
	entry := ManifestEntry{
		ChapterID: meta.ChapterID,
		Slug:      sanitizeSlug(slugOf(meta)),
		Title:     meta.Title,
		Order:     meta.Order,
		Status:    status,
		Files: map[string]string{
			"raw":  r.relative(filepath.Join(dir, rawFile)),
			"json": r.relative(finalPath),
		},
		Errors:    append([]string{}, errs...),
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if err := r.upsert(entry); err != nil {
		return "", err
	}
	r.logger.Info("chapter persisted",
		zap.String("report", r.ReportID),
		zap.String("chapter", meta.ChapterID),
		zap.String("status", string(status)),
		zap.Int("errors", len(errs)))
	return finalPath, nil
}

// MarkChapterInvalid records a terminal failure in the manifest without
// writing a chapter file. The failure trail lives in the entry's errors; only
// the raw capture remains on disk, so LoadChapters can never pick up a
// placeholder payload for this chapter.
func (r *Run) MarkChapterInvalid(meta ChapterMeta, errs []string) error {
	dir, err := r.chapterDir(meta)
	if err != nil {
		return err
	}
	entry := ManifestEntry{
		ChapterID: meta.ChapterID,
		Slug:      sanitizeSlug(slugOf(meta)),
		Title:     meta.Title,
		Order:     meta.Order,
		Status:    StatusInvalid,
		Files:     map[string]string{"raw": r.relative(filepath.Join(dir, rawFile))},
		Errors:    append([]string{}, errs...),
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if err := r.upsert(entry); err != nil {
		return err
	}
	r.logger.Warn("chapter marked invalid",
		zap.String("report", r.ReportID),
		zap.String("chapter", meta.ChapterID),
		zap.Strings("errors", errs))
	return nil
}

// LoadChapters reads every finalized chapter payload back from disk. Files
// that fail to parse are skipped, not fatal, and directories whose manifest
// entry is invalid are excluded so a failed chapter never reaches the
// composed document. The result is sorted by each payload's own order field;
// directory listing order alone is not trusted.
func (r *Run) LoadChapters() ([]map[string]any, error) {
	entries, err := os.ReadDir(r.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list run directory: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	r.mu.Lock()
	invalid := make(map[string]bool)
	for _, entry := range r.manifest.Chapters {
		if entry.Status == StatusInvalid {
			invalid[fmt.Sprintf("%03d-%s", entry.Order, entry.Slug)] = true
		}
	}
	r.mu.Unlock()

	var payloads []map[string]any
	for _, name := range names {
		if invalid[name] {
			r.logger.Warn("skipping invalid chapter",
				zap.String("report", r.ReportID),
				zap.String("dir", name))
			continue
		}
		path := filepath.Join(r.Dir, name, chapterFile)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var payload map[string]any
		if err := json.Unmarshal(data, &payload); err != nil {
			r.logger.Warn("skipping unparsable chapter file",
				zap.String("path", path),
				zap.Error(err))
			continue
		}
		payloads = append(payloads, payload)
	}

	sort.SliceStable(payloads, func(i, j int) bool {
		return orderOf(payloads[i]) < orderOf(payloads[j])
	})
	return payloads, nil
}

// Manifest returns a copy of the current manifest snapshot.
func (r *Run) Manifest() Manifest {
	r.mu.Lock()
	defer r.mu.Unlock()
	snapshot := *r.manifest
	snapshot.Chapters = append([]ManifestEntry{}, r.manifest.Chapters...)
	return snapshot
}

// upsert replaces any existing entry for the same chapterId, keeps the list
// sorted by order, and rewrites the manifest in full.
func (r *Run) upsert(entry ManifestEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	chapters := r.manifest.Chapters[:0]
	for _, existing := range r.manifest.Chapters {
		if existing.ChapterID != entry.ChapterID {
			chapters = append(chapters, existing)
		}
	}
	chapters = append(chapters, entry)
	sort.SliceStable(chapters, func(i, j int) bool {
		return chapters[i].Order < chapters[j].Order
	})
	r.manifest.Chapters = chapters
	return r.writeManifestLocked()
}

func (r *Run) writeManifest() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writeManifestLocked()
}

func (r *Run) writeManifestLocked() error {
	data, err := json.MarshalIndent(r.manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := atomicWrite(filepath.Join(r.Dir, manifestFile), data); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

// chapterDir derives the stable {order:03d}-{slug} subdirectory. Zero-padded
// order makes lexicographic listing equal document order.
func (r *Run) chapterDir(meta ChapterMeta) (string, error) {
	folder := fmt.Sprintf("%03d-%s", meta.Order, sanitizeSlug(slugOf(meta)))
	dir := filepath.Join(r.Dir, folder)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create chapter directory: %w", err)
	}
	return dir, nil
}

func (r *Run) relative(path string) string {
	rel, err := filepath.Rel(r.Dir, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}

func slugOf(meta ChapterMeta) string {
	if meta.Slug != "" {
		return meta.Slug
	}
	if meta.ChapterID != "" {
		return meta.ChapterID
	}
	return "section"
}

// sanitizeSlug strips characters that would break the directory name.
func sanitizeSlug(slug string) string {
	slug = strings.ReplaceAll(slug, " ", "-")
	slug = strings.ReplaceAll(slug, "/", "-")
	slug = strings.ReplaceAll(slug, string(filepath.Separator), "-")
	if slug == "" {
		return "section"
	}
	return slug
}

// atomicWrite writes data to a temp file in the target's directory and
// renames it into place, so no reader ever observes a partial file.
func atomicWrite(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

func orderOf(payload map[string]any) float64 {
	switch v := payload["order"].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}
