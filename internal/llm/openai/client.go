package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/haulstack/invoice-ingest/internal/llm"
)

const defaultBaseURL = "https://api.openai.com/v1"

type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	HTTPTimeout time.Duration
}

// Client extracts invoice fields through the OpenAI chat completions API
// with JSON-mode output.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 120 * time.Second
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.HTTPTimeout},
		logger: logger,
	}
}

func (c *Client) Name() string { return "openai" }

// Available reports whether the client is configured with credentials.
func (c *Client) Available() bool { return c.cfg.APIKey != "" }

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	ResponseFormat *respFormat   `json:"response_format,omitempty"`
	Temperature    float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type respFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *Client) ExtractFields(ctx context.Context, text string) (llm.InvoiceFields, []byte, error) {
	req := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: llm.SchemaPrompt},
			{Role: "user", Content: "INVOICE TEXT:\n" + text},
		},
		ResponseFormat: &respFormat{Type: "json_object"},
		Temperature:    0,
	}
	headers := map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}

	respBody, err := llm.SendJSON(ctx, c.http, c.cfg.BaseURL+"/chat/completions", req, headers, c.logger)
	if err != nil {
		return llm.InvoiceFields{}, nil, fmt.Errorf("openai chat completion: %w", err)
	}

	var resp chatResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return llm.InvoiceFields{}, nil, fmt.Errorf("decode openai response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return llm.InvoiceFields{}, nil, fmt.Errorf("openai returned no choices")
	}
	return llm.DecodeResponse(resp.Choices[0].Message.Content)
}
