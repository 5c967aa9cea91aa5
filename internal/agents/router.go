package agents

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tasknest/tasknest/internal/genai"
)

// Known provider names. The set is closed: anything else is rejected before
// dispatch, regardless of the fallback setting.
const (
	ProviderFetchAI   = "fetchai"
	ProviderJanitorAI = "janitorai"
	ProviderWordware  = "wordware"
	ProviderLetta     = "letta"
)

var knownProviders = []string{ProviderFetchAI, ProviderJanitorAI, ProviderWordware, ProviderLetta}

// PlanGenerator produces the deterministic local todo plan used by the
// fallback path. genai.Generator satisfies it.
type PlanGenerator interface {
	Generate(ctx context.Context, userInput string) ([]genai.GeneratedNode, error)
}

// Router dispatches a natural-language request to one of the known agent
// backends, substituting a locally generated plan when the backend is
// unreachable, misconfigured, or errors (if fallback is enabled).
type Router struct {
	providers       map[string]*httpProvider
	generator       PlanGenerator
	fallbackEnabled bool
	logger          *slog.Logger
}

// NewRouter builds a Router over the known provider set. endpoints may omit
// providers; an omitted or empty endpoint surfaces as a configuration error
// (or fallback) at dispatch time, not at construction.
func NewRouter(endpoints map[string]Endpoint, generator PlanGenerator, fallbackEnabled bool, timeout time.Duration) *Router {
	providers := make(map[string]*httpProvider, len(knownProviders))
	for _, name := range knownProviders {
		providers[name] = newHTTPProvider(name, endpoints[name], timeout)
	}
	return &Router{
		providers:       providers,
		generator:       generator,
		fallbackEnabled: fallbackEnabled,
		logger:          slog.Default(),
	}
}

// Run executes one dispatch. Provider matching is case-insensitive. When
// fallback is disabled, configuration/upstream/generic failures are returned
// as typed errors; when enabled, each of them yields the local fallback plan
// with UsedFallback set.
func (r *Router) Run(ctx context.Context, provider, model, userInput string, metadata map[string]any) (Result, error) {
	handler, ok := r.providers[strings.ToLower(provider)]
	if !ok {
		return Result{}, fmt.Errorf("%w %q", ErrUnknownProvider, provider)
	}

	res, err := handler.run(ctx, model, userInput, metadata)
	if err == nil {
		return res, nil
	}

	if !r.fallbackEnabled {
		return Result{}, err
	}

	r.logger.Warn("agent provider failed, using fallback", "provider", handler.name, "error", err)
	return r.fallbackResult(ctx, userInput), nil
}
