// Package supervisor drives chapter generation through a bounded retry loop.
// Every model output is untrusted until it has survived extraction, contract
// validation and a density check; the supervisor classifies each failure and
// decides between retrying, degrading to the best sparse candidate, and
// giving up.
package supervisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"reportforge/internal/generator"
	"reportforge/internal/store"
	"reportforge/internal/template"
	"reportforge/internal/validator"
)

// Attempts below this floor never trigger the sparse fallback; a thin chapter
// gets at least this many chances to grow before being published with a
// warning.
const sparseMinAttempts = 3

const sparseWarningText = "本章LLM生成的内容字数可能过低，必要时可以尝试重新运行程序。"

// Status values carried on chapter lifecycle events.
type EventStatus string

const (
	StatusRunning   EventStatus = "running"
	StatusRetrying  EventStatus = "retrying"
	StatusCompleted EventStatus = "completed"
	StatusError     EventStatus = "error"
)

// Reason values classify why an attempt failed.
type Reason string

const (
	ReasonStructure     Reason = "structure_error"
	ReasonValidation    Reason = "validation"
	ReasonContentSparse Reason = "content_sparse"
	ReasonContentFilter Reason = "content_filter"
)

// Event is one chapter lifecycle notification.
type Event struct {
	ChapterID string
	Title     string
	Status    EventStatus
	Attempt   int
	Reason    Reason
	Error     string
	Errors    []string
	Warning   string
}

// Notifier receives lifecycle events. It must not block.
type Notifier func(Event)

// Source produces one chapter attempt. The generator's ChapterWriter
// satisfies this.
type Source interface {
	Generate(ctx context.Context, plan template.ChapterPlan, prompt string, capture io.Writer) (map[string]any, string, error)
}

// Config bounds the retry loop.
type Config struct {
	// MaxAttempts is the configured retry ceiling. Values below the sparse
	// fallback floor are raised to it.
	MaxAttempts int
}

// Supervisor owns the retry state machine for one run.
type Supervisor struct {
	source Source
	run    *store.Run
	cfg    Config
	notify Notifier
	logger *zap.Logger
}

// New wires a supervisor. run may be nil when persistence is not wanted, and
// notify may be nil when nobody listens.
func New(source Source, run *store.Run, cfg Config, notify Notifier, logger *zap.Logger) *Supervisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Supervisor{source: source, run: run, cfg: cfg, notify: notify, logger: logger}
}

func (s *Supervisor) emit(ev Event) {
	if s.notify != nil {
		s.notify(ev)
	}
}

// GenerateChapter runs the full attempt loop for one planned chapter and
// returns the persisted payload. On success the chapter is stored as ready;
// when every attempt stays sparse the best candidate is published with a
// reader-facing warning; otherwise the terminal error is a
// GenerationFailedError and the chapter is stored as invalid.
func (s *Supervisor) GenerateChapter(ctx context.Context, plan template.ChapterPlan, sharedContext string) (map[string]any, error) {
	ceiling := s.cfg.MaxAttempts
	if ceiling < sparseMinAttempts {
		ceiling = sparseMinAttempts
	}

	meta := store.ChapterMeta{ChapterID: plan.ChapterID, Title: plan.Title, Slug: plan.Slug, Order: plan.Order}
	var chapterDir string
	if s.run != nil {
		dir, err := s.run.BeginChapter(meta)
		if err != nil {
			return nil, fmt.Errorf("failed to begin chapter %s: %w", plan.ChapterID, err)
		}
		chapterDir = dir
	}

	s.emit(Event{ChapterID: plan.ChapterID, Title: plan.Title, Status: StatusRunning})

	basePrompt := generator.ChapterPrompt(plan, sharedContext)
	prompt := basePrompt

	var bestSparse map[string]any
	bestScore := -1
	var lastErr error

	for attempt := 1; attempt <= ceiling; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		payload, err := s.attempt(ctx, plan, prompt, chapterDir)
		if err == nil {
			if _, perr := s.persist(meta, payload, nil); perr != nil {
				return nil, perr
			}
			s.emit(Event{ChapterID: plan.ChapterID, Title: plan.Title, Status: StatusCompleted, Attempt: attempt})
			return payload, nil
		}

		var sparse *SparseContentError
		var invalid *ValidationError
		var structural *StructureError
		var policy *ContentPolicyError

		switch {
		case errors.As(err, &sparse):
			if sparse.Payload != nil && sparse.BodyChars > bestScore {
				bestSparse = deepCopy(sparse.Payload)
				bestScore = sparse.BodyChars
			}
			willFallback := attempt >= ceiling && attempt >= sparseMinAttempts && bestSparse != nil
			status := StatusError
			if attempt < ceiling || willFallback {
				status = StatusRetrying
			}
			ev := Event{ChapterID: plan.ChapterID, Title: plan.Title, Status: status, Attempt: attempt,
				Reason: ReasonContentSparse, Error: err.Error()}
			if willFallback {
				ev.Warning = "content_sparse_fallback_pending"
			}
			s.emit(ev)
			if willFallback {
				s.logger.Warn("publishing best sparse candidate",
					zap.String("chapter", plan.ChapterID),
					zap.Int("bodyChars", bestScore))
				payload := finalizeSparseChapter(bestSparse)
				if _, perr := s.persist(meta, payload, nil); perr != nil {
					return nil, perr
				}
				s.emit(Event{ChapterID: plan.ChapterID, Title: plan.Title, Status: StatusCompleted,
					Attempt: attempt, Warning: "content_sparse_fallback"})
				return payload, nil
			}
		case errors.As(err, &invalid):
			status := StatusError
			if attempt < ceiling {
				status = StatusRetrying
			}
			s.emit(Event{ChapterID: plan.ChapterID, Title: plan.Title, Status: status, Attempt: attempt,
				Reason: ReasonValidation, Error: err.Error(), Errors: invalid.Errors})
		case errors.As(err, &structural):
			status := StatusError
			if attempt < ceiling {
				status = StatusRetrying
			}
			s.emit(Event{ChapterID: plan.ChapterID, Title: plan.Title, Status: status, Attempt: attempt,
				Reason: ReasonStructure, Error: err.Error()})
		case errors.As(err, &policy):
			status := StatusError
			if attempt < ceiling {
				status = StatusRetrying
			}
			s.emit(Event{ChapterID: plan.ChapterID, Title: plan.Title, Status: status, Attempt: attempt,
				Reason: ReasonContentFilter, Error: err.Error()})
		default:
			// transport or context fault, not worth burning attempts on
			s.emit(Event{ChapterID: plan.ChapterID, Title: plan.Title, Status: StatusError,
				Attempt: attempt, Error: err.Error()})
			return nil, fmt.Errorf("failed to generate chapter %s: %w", plan.ChapterID, err)
		}

		s.logger.Warn("chapter attempt failed",
			zap.String("chapter", plan.ChapterID),
			zap.Int("attempt", attempt),
			zap.Int("ceiling", ceiling),
			zap.Error(err))

		lastErr = err
		prompt = generator.RetryPrompt(basePrompt, attempt, err.Error())
	}

	failure := &GenerationFailedError{Chapter: plan.ChapterID, Attempts: ceiling, Err: lastErr}
	errLines := []string{failure.Error()}
	var invalid *ValidationError
	if errors.As(lastErr, &invalid) {
		errLines = append(errLines, invalid.Errors...)
	}
	// manifest-only: no chapter file may exist for a failed chapter, or a
	// later compose would stitch it in
	if s.run != nil {
		if perr := s.run.MarkChapterInvalid(meta, errLines); perr != nil {
			s.logger.Error("failed to record invalid chapter", zap.String("chapter", plan.ChapterID), zap.Error(perr))
		}
	}
	return nil, failure
}

// attempt runs one model call and classifies everything that can go wrong
// with its output.
func (s *Supervisor) attempt(ctx context.Context, plan template.ChapterPlan, prompt, chapterDir string) (map[string]any, error) {
	var capture io.Writer
	if s.run != nil && chapterDir != "" {
		f, err := s.run.CaptureStream(chapterDir)
		if err != nil {
			s.logger.Warn("stream capture unavailable", zap.String("chapter", plan.ChapterID), zap.Error(err))
		} else {
			defer f.Close()
			capture = f
		}
	}

	payload, _, err := s.source.Generate(ctx, plan, prompt, capture)
	if err != nil {
		if errors.Is(err, generator.ErrBadPayload) {
			return nil, &StructureError{Reason: "no JSON object in model output", Err: err}
		}
		if matched, ok := isModerationRefusal(err); ok {
			return nil, &ContentPolicyError{Matched: matched, Err: err}
		}
		return nil, err
	}
	if missing := missingShapeField(payload); missing != "" {
		return nil, &StructureError{Reason: fmt.Sprintf("payload missing %s", missing)}
	}
	if ok, issues := validator.Validate(payload); !ok {
		return nil, &ValidationError{Errors: issues}
	}
	if err := CheckDensity(payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func (s *Supervisor) persist(meta store.ChapterMeta, payload map[string]any, errs []string) (string, error) {
	if s.run == nil {
		return "", nil
	}
	path, err := s.run.PersistChapter(meta, payload, errs)
	if err != nil {
		return "", fmt.Errorf("failed to persist chapter %s: %w", meta.ChapterID, err)
	}
	return path, nil
}

// missingShapeField reports the first basic chapter field the payload lacks
// entirely. A payload without any of these never came close to the contract
// and is treated as a structure failure, not a validation one.
func missingShapeField(payload map[string]any) string {
	for _, field := range []string{"chapterId", "title", "blocks"} {
		if _, ok := payload[field]; !ok {
			return field
		}
	}
	return ""
}

// finalizeSparseChapter marks the fallback payload and inserts the reader
// warning right after the first heading (or at the top when there is none).
func finalizeSparseChapter(chapter map[string]any) map[string]any {
	safe := deepCopy(chapter)
	if safe == nil {
		safe = map[string]any{}
	}

	warning := map[string]any{
		"type": "paragraph",
		"inlines": []any{
			map[string]any{
				"text":  sparseWarningText,
				"marks": []any{map[string]any{"type": "italic"}},
			},
		},
		"meta": map[string]any{"role": "content-sparse-warning"},
	}

	blocks, _ := safe["blocks"].([]any)
	if len(blocks) == 0 {
		safe["blocks"] = []any{warning}
	} else {
		at := 0
		for i, raw := range blocks {
			if b, ok := raw.(map[string]any); ok && b["type"] == "heading" {
				at = i + 1
				break
			}
		}
		blocks = append(blocks[:at], append([]any{warning}, blocks[at:]...)...)
		safe["blocks"] = blocks
	}

	if meta, ok := safe["meta"].(map[string]any); ok {
		meta["contentSparseWarning"] = true
	} else {
		safe["meta"] = map[string]any{"contentSparseWarning": true}
	}
	return safe
}

// deepCopy round-trips through JSON; payloads arrive from json.Unmarshal so
// every value is representable.
func deepCopy(payload map[string]any) map[string]any {
	if payload == nil {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return map[string]any{}
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]any{}
	}
	return out
}
