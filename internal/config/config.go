package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config application configuration
type Config struct {
	// Database
	DatabasePath string `env:"DATABASE_PATH" envDefault:"./data/invoices.db"`

	// Server
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`

	// Attachment storage
	StorageDir string `env:"STORAGE_DIR" envDefault:"./storage"`

	// Security
	EncryptionKey string `env:"ENCRYPTION_KEY,required"`

	// Mailbox
	IMAPDialTimeout time.Duration `env:"IMAP_DIAL_TIMEOUT" envDefault:"30s"`

	// AI providers
	AIProvider    string `env:"AI_PROVIDER" envDefault:"gemini"`
	GeminiAPIKey  string `env:"GEMINI_API_KEY"`
	OpenAIAPIKey  string `env:"OPENAI_API_KEY"`
	OpenAIModel   string `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	OllamaBaseURL string `env:"OLLAMA_BASE_URL"`
	OllamaModel   string `env:"OLLAMA_MODEL" envDefault:"llama3"`

	// Text extraction binaries
	Pdftotext string `env:"PDFTOTEXT_BIN" envDefault:"pdftotext"`
	Pdftoppm  string `env:"PDFTOPPM_BIN" envDefault:"pdftoppm"`
	Tesseract string `env:"TESSERACT_BIN" envDefault:"tesseract"`
	OCRDPI    int    `env:"OCR_DPI" envDefault:"300"`

	// Batch pipeline
	BatchLimit         int           `env:"BATCH_LIMIT" envDefault:"100"`
	EmailDelay         time.Duration `env:"EMAIL_DELAY" envDefault:"5s"`
	DownloadRetries    int           `env:"DOWNLOAD_RETRIES" envDefault:"3"`
	DownloadRetryDelay time.Duration `env:"DOWNLOAD_RETRY_DELAY" envDefault:"2s"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"` // "json" or "text"
}

// HasAnyProvider reports whether at least one extraction provider is configured.
func (c *Config) HasAnyProvider() bool {
	return c.OllamaBaseURL != "" || c.GeminiAPIKey != "" || c.OpenAIAPIKey != ""
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Validate encryption key length (32 bytes for AES-256)
	if len(cfg.EncryptionKey) != 32 {
		return nil, fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes, got %d", len(cfg.EncryptionKey))
	}

	return cfg, nil
}
