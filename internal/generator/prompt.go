package generator

import (
	"fmt"
	"strings"

	"reportforge/internal/contract"
	"reportforge/internal/template"
)

// SystemPrompt is the fixed instruction set sent with every chapter request.
// It embeds the block/inline vocabulary so the model knows the only shapes
// the renderer accepts.
func SystemPrompt() string {
	var b strings.Builder
	b.WriteString("You are a report chapter writer. You produce exactly one JSON object per request and nothing else.\n")
	b.WriteString("No markdown fences, no commentary before or after the JSON.\n\n")
	b.WriteString(contract.Guidance())
	return b.String()
}

// ChapterPrompt renders the per-chapter user prompt from the sliced template
// plan and the shared report context.
func ChapterPrompt(plan template.ChapterPlan, sharedContext string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write the chapter %q (chapterId=%s, order=%d).\n", plan.Title, plan.ChapterID, plan.Order)
	if len(plan.Outline) > 0 {
		b.WriteString("The chapter must cover this outline:\n")
		for _, item := range plan.Outline {
			fmt.Fprintf(&b, "- %s\n", item)
		}
	}
	if strings.TrimSpace(sharedContext) != "" {
		b.WriteString("\nShared report context:\n")
		b.WriteString(sharedContext)
		b.WriteString("\n")
	}
	b.WriteString("\nReturn a single JSON object with the required chapter fields:")
	b.WriteString(" " + strings.Join(contract.RequiredChapterFields, ", ") + ".\n")
	fmt.Fprintf(&b, "Set chapterId to %q, anchor to %q and order to %d.\n", plan.ChapterID, plan.Slug, plan.Order)
	return b.String()
}

// RetryPrompt appends the previous attempt's failure so the model can correct
// itself instead of repeating the same mistake.
func RetryPrompt(base string, attempt int, failure string) string {
	var b strings.Builder
	b.WriteString(base)
	fmt.Fprintf(&b, "\nAttempt %d failed: %s\n", attempt, failure)
	b.WriteString("Fix the problem and return the corrected JSON object.\n")
	return b.String()
}
