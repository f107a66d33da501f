package generator

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"reportforge/internal/template"
)

// ChapterWriter drives one model call per attempt and turns the raw response
// into an untrusted chapter payload.
type ChapterWriter struct {
	client  LLMClient
	timeout time.Duration
	logger  *zap.Logger
}

// NewChapterWriter wires a writer to a backend client. A positive timeout
// bounds each model call; zero leaves the caller's context in charge.
func NewChapterWriter(client LLMClient, timeout time.Duration, logger *zap.Logger) *ChapterWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChapterWriter{client: client, timeout: timeout, logger: logger}
}

// Generate runs a single model call for the planned chapter. The full raw
// response is mirrored to capture before any parsing happens, so a stream log
// survives even when extraction fails. The returned payload is untrusted and
// must be validated by the caller.
func (w *ChapterWriter) Generate(ctx context.Context, plan template.ChapterPlan, userPrompt string, capture io.Writer) (map[string]any, string, error) {
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}
	raw, err := w.client.Complete(ctx, SystemPrompt(), userPrompt)
	if err != nil {
		return nil, "", fmt.Errorf("failed to complete chapter %s: %w", plan.ChapterID, err)
	}
	if capture != nil {
		if _, werr := io.WriteString(capture, raw); werr != nil {
			w.logger.Warn("failed to capture raw stream",
				zap.String("chapterId", plan.ChapterID),
				zap.Error(werr))
		}
	}
	w.logger.Debug("model response received",
		zap.String("chapterId", plan.ChapterID),
		zap.Int("rawChars", len(raw)))

	payload, err := ExtractChapterObject(raw)
	if err != nil {
		return nil, raw, err
	}
	return payload, raw, nil
}
