package supervisor

import (
	"fmt"
	"strings"
)

// StructureError reports that an attempt produced no usable chapter object at
// all: empty output, unparsable JSON, or a payload missing the basic chapter
// shape.
type StructureError struct {
	Reason string
	Err    error
}

func (e *StructureError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("chapter structure unusable: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("chapter structure unusable: %s", e.Reason)
}

func (e *StructureError) Unwrap() error { return e.Err }

// ValidationError carries the full path-qualified issue list from a failed
// contract validation.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "chapter failed validation"
	}
	return fmt.Sprintf("chapter failed validation (%d issues): %s", len(e.Errors), e.Errors[0])
}

// SparseContentError reports a structurally valid chapter whose body is too
// thin to publish. The payload rides along so the caller can keep the best
// candidate for fallback.
type SparseContentError struct {
	Payload        map[string]any
	BodyChars      int
	NarrativeChars int
	Blocks         int
}

func (e *SparseContentError) Error() string {
	return fmt.Sprintf("chapter body too thin: %d content blocks, %d body chars, %d narrative chars",
		e.Blocks, e.BodyChars, e.NarrativeChars)
}

// ContentPolicyError marks a backend refusal triggered by content moderation.
type ContentPolicyError struct {
	Matched string
	Err     error
}

func (e *ContentPolicyError) Error() string {
	return fmt.Sprintf("content policy refusal (%s): %v", e.Matched, e.Err)
}

func (e *ContentPolicyError) Unwrap() error { return e.Err }

// GenerationFailedError is the terminal failure after the retry budget is
// spent without a publishable chapter.
type GenerationFailedError struct {
	Chapter  string
	Attempts int
	Err      error
}

func (e *GenerationFailedError) Error() string {
	return fmt.Sprintf("chapter %s could not be generated after %d attempts: %v", e.Chapter, e.Attempts, e.Err)
}

func (e *GenerationFailedError) Unwrap() error { return e.Err }

// moderationSignals are the provider error fragments that mean the request
// tripped a safety filter rather than a transport fault. Matched
// case-insensitively.
var moderationSignals = []string{
	"inappropriate content",
	"content violation",
	"content moderation",
	"model-studio/error-code",
}

// isModerationRefusal reports whether err looks like a safety-filter
// rejection worth retrying with a fresh attempt.
func isModerationRefusal(err error) (string, bool) {
	if err == nil {
		return "", false
	}
	msg := strings.ToLower(err.Error())
	for _, signal := range moderationSignals {
		if strings.Contains(msg, signal) {
			return signal, true
		}
	}
	return "", false
}
