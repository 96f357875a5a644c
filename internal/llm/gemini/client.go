package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/haulstack/invoice-ingest/internal/llm"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// DefaultModels is the rotation order used when none is configured. The
// cheapest model goes first; on rate limits or transient upstream errors
// the client rotates through the rest before pausing.
var DefaultModels = []string{
	"gemini-2.5-flash-lite",
	"gemini-2.5-flash",
	"gemini-3-flash-preview",
}

const (
	defaultMaxAttempts = 15
	defaultCyclePause  = 10 * time.Second
	defaultSwitchPause = 1 * time.Second
)

type Config struct {
	APIKey      string
	BaseURL     string
	Models      []string
	MaxAttempts int
	CyclePause  time.Duration
	SwitchPause time.Duration
	HTTPTimeout time.Duration
}

// Client extracts invoice fields through the Gemini generateContent API,
// rotating across models when the current one is rate limited or unavailable.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger

	// generate and sleep are swappable in tests.
	generate func(ctx context.Context, model, prompt string) (string, error)
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if len(cfg.Models) == 0 {
		cfg.Models = DefaultModels
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.CyclePause <= 0 {
		cfg.CyclePause = defaultCyclePause
	}
	if cfg.SwitchPause <= 0 {
		cfg.SwitchPause = defaultSwitchPause
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 120 * time.Second
	}
	c := &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.HTTPTimeout},
		logger: logger,
	}
	c.generate = c.generateContent
	c.sleep = sleepCtx
	return c
}

func (c *Client) Name() string { return "gemini" }

// Available reports whether the client is configured with credentials.
func (c *Client) Available() bool { return c.cfg.APIKey != "" }

// ExtractFields prompts the current model with the invoice text and decodes
// the JSON reply. Rate limits and transient upstream failures rotate to the
// next model; a full failed rotation triggers the long pause before the list
// is retried from the top. Any other error aborts immediately.
func (c *Client) ExtractFields(ctx context.Context, text string) (llm.InvoiceFields, []byte, error) {
	prompt := llm.SchemaPrompt + "\n\nINVOICE TEXT:\n" + text
	state := newCycleState(len(c.cfg.Models), c.cfg.MaxAttempts)

	for {
		model := c.cfg.Models[state.current()]
		reply, err := c.generate(ctx, model, prompt)
		if err == nil {
			return llm.DecodeResponse(reply)
		}
		if !llm.IsRetryable(err) {
			return llm.InvoiceFields{}, nil, fmt.Errorf("gemini model %s: %w", model, err)
		}

		fullCycle, more := state.fail()
		if !more {
			return llm.InvoiceFields{}, nil, fmt.Errorf("gemini: all models exhausted after %d attempts: %w", c.cfg.MaxAttempts, err)
		}
		pause := c.cfg.SwitchPause
		if fullCycle {
			pause = c.cfg.CyclePause
		}
		c.logger.Warn("gemini.model.retry",
			"model", model,
			"next_model", c.cfg.Models[state.current()],
			"pause", pause,
			"error", err)
		if err := c.sleep(ctx, pause); err != nil {
			return llm.InvoiceFields{}, nil, err
		}
	}
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func (c *Client) generateContent(ctx context.Context, model, prompt string) (string, error) {
	url := fmt.Sprintf("%s/models/%s:generateContent", c.cfg.BaseURL, model)
	reqBody := generateRequest{Contents: []content{{Parts: []part{{Text: prompt}}}}}
	headers := map[string]string{"x-goog-api-key": c.cfg.APIKey}

	respBody, err := llm.SendJSON(ctx, c.http, url, reqBody, headers, c.logger)
	if err != nil {
		return "", err
	}

	var resp generateResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("decode gemini response: %w", err)
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini returned no candidates")
	}
	return resp.Candidates[0].Content.Parts[0].Text, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
