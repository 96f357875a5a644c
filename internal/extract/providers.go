package extract

import (
	"log/slog"

	"github.com/haulstack/invoice-ingest/internal/config"
	"github.com/haulstack/invoice-ingest/internal/llm/gemini"
	"github.com/haulstack/invoice-ingest/internal/llm/ollama"
	"github.com/haulstack/invoice-ingest/internal/llm/openai"
)

// FromConfig builds the orchestrator over every provider the deployment has
// credentials for, preferring the one named in AI_PROVIDER.
func FromConfig(cfg *config.Config, logger *slog.Logger) (*Orchestrator, error) {
	providers := []Provider{
		gemini.NewClient(gemini.Config{APIKey: cfg.GeminiAPIKey}, logger),
		openai.NewClient(openai.Config{APIKey: cfg.OpenAIAPIKey, Model: cfg.OpenAIModel}, logger),
		ollama.NewClient(ollama.Config{BaseURL: cfg.OllamaBaseURL, Model: cfg.OllamaModel}, logger),
	}
	return NewOrchestrator(providers, cfg.AIProvider, logger)
}
