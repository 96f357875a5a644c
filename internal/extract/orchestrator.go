package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/haulstack/invoice-ingest/internal/llm"
)

// ErrNoProviders means no AI provider has credentials configured.
var ErrNoProviders = errors.New("no extraction provider configured")

// Provider is an AI backend the orchestrator can route extraction to.
type Provider interface {
	llm.ProviderClient
	// Available reports whether the provider has the configuration it
	// needs to accept requests.
	Available() bool
}

// Result carries the extracted fields plus which provider produced them.
// FellBack is set when the preferred provider was skipped or failed and a
// lower-priority one answered instead.
type Result struct {
	Fields   llm.InvoiceFields
	RawJSON  []byte
	Provider string
	FellBack bool
}

// AllProvidersError aggregates the failure of every attempted provider.
type AllProvidersError struct {
	Failures map[string]error
}

func (e *AllProvidersError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for name, err := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %v", name, err))
	}
	return "all extraction providers failed: " + strings.Join(parts, "; ")
}

// Orchestrator tries the preferred provider first and falls through the
// remaining configured providers in registration order.
type Orchestrator struct {
	providers []Provider
	preferred string
	logger    *slog.Logger
}

func NewOrchestrator(providers []Provider, preferred string, logger *slog.Logger) (*Orchestrator, error) {
	available := make([]Provider, 0, len(providers))
	for _, p := range providers {
		if p.Available() {
			available = append(available, p)
		}
	}
	if len(available) == 0 {
		return nil, ErrNoProviders
	}
	return &Orchestrator{
		providers: available,
		preferred: preferred,
		logger:    logger,
	}, nil
}

// Providers returns the names of the available providers in try order.
func (o *Orchestrator) Providers() []string {
	names := make([]string, len(o.providers))
	for i, p := range o.order() {
		names[i] = p.Name()
	}
	return names
}

func (o *Orchestrator) order() []Provider {
	return o.orderFor(o.preferred)
}

func (o *Orchestrator) orderFor(preferred string) []Provider {
	ordered := make([]Provider, 0, len(o.providers))
	for _, p := range o.providers {
		if p.Name() == preferred {
			ordered = append(ordered, p)
		}
	}
	for _, p := range o.providers {
		if p.Name() != preferred {
			ordered = append(ordered, p)
		}
	}
	return ordered
}

// Extract runs the invoice text through providers until one returns valid
// fields. Each failure is logged and the next provider is tried; if every
// provider fails the per-provider errors come back aggregated.
func (o *Orchestrator) Extract(ctx context.Context, text string) (*Result, error) {
	return o.ExtractPreferring(ctx, text, o.preferred)
}

// ExtractPreferring is Extract with a per-call preferred provider; an empty
// name falls back to the configured default.
func (o *Orchestrator) ExtractPreferring(ctx context.Context, text, preferred string) (*Result, error) {
	if preferred == "" {
		preferred = o.preferred
	}
	failures := make(map[string]error)
	for _, p := range o.orderFor(preferred) {
		fields, raw, err := p.ExtractFields(ctx, text)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			o.logger.Warn("extract.provider.failed", "provider", p.Name(), "error", err)
			failures[p.Name()] = err
			continue
		}
		return &Result{
			Fields:   fields,
			RawJSON:  raw,
			Provider: p.Name(),
			FellBack: preferred != "" && p.Name() != preferred,
		}, nil
	}
	return nil, &AllProvidersError{Failures: failures}
}
