package ai

import "context"

// CompletionService is the narrow contract the reply pipeline consumes.
// Implement this interface to add new AI providers (Gemini, Ollama, etc.).
// The pipeline owns its prompts; providers only execute them.
type CompletionService interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ProviderType represents the AI provider type
type ProviderType string

const (
	ProviderGemini ProviderType = "gemini"
	ProviderOllama ProviderType = "ollama"
	ProviderAuto   ProviderType = "auto"
)
