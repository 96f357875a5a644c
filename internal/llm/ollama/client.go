package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/haulstack/invoice-ingest/internal/llm"
)

type Config struct {
	BaseURL     string
	Model       string
	HTTPTimeout time.Duration
}

// Client extracts invoice fields through a local Ollama server. It is the
// no-credentials fallback when neither hosted provider is configured.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.Model == "" {
		cfg.Model = "llama3"
	}
	if cfg.HTTPTimeout <= 0 {
		// Local models can be slow on cold start.
		cfg.HTTPTimeout = 5 * time.Minute
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.HTTPTimeout},
		logger: logger,
	}
}

func (c *Client) Name() string { return "ollama" }

// Available reports whether a server base URL is configured.
func (c *Client) Available() bool { return c.cfg.BaseURL != "" }

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Format   string        `json:"format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
}

func (c *Client) ExtractFields(ctx context.Context, text string) (llm.InvoiceFields, []byte, error) {
	req := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: llm.SchemaPrompt},
			{Role: "user", Content: "INVOICE TEXT:\n" + text},
		},
		Stream: false,
		Format: "json",
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/api/chat"
	respBody, err := llm.SendJSON(ctx, c.http, url, req, nil, c.logger)
	if err != nil {
		return llm.InvoiceFields{}, nil, fmt.Errorf("ollama chat: %w", err)
	}

	var resp chatResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return llm.InvoiceFields{}, nil, fmt.Errorf("decode ollama response: %w", err)
	}
	if resp.Message.Content == "" {
		return llm.InvoiceFields{}, nil, fmt.Errorf("ollama returned empty reply")
	}
	return llm.DecodeResponse(resp.Message.Content)
}
