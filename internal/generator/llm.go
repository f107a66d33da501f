// Package generator wraps the external text-generation collaborator. It
// builds chapter prompts from the contract, invokes a model backend, and
// turns raw model output into a chapter-shaped payload. Payloads returned
// here are untrusted; the validator is the only safety guarantee.
package generator

import "context"

// LLMClient abstracts a model backend so it can be swapped or mocked.
type LLMClient interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Settings carries backend configuration shared by the concrete clients.
type Settings struct {
	Provider string // gemini, openai
	Model    string
	APIKey   string
	BaseURL  string
}
