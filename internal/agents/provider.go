package agents

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrUnknownProvider is returned when the requested provider name is outside
// the known set. It is a client error and never triggers the fallback.
var ErrUnknownProvider = errors.New("unsupported provider")

// ConfigError reports a provider that cannot be dispatched to because its
// endpoint is not configured.
type ConfigError struct {
	Provider string
	Reason   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s", e.Provider, e.Reason)
}

// UpstreamError reports a provider that was reachable but answered with a
// protocol-level error status.
type UpstreamError struct {
	Provider string
	Status   int
	Detail   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Provider, e.Status, e.Detail)
}

// Result is the normalized outcome of one agent dispatch.
type Result struct {
	Provider     string `json:"provider"`
	Model        string `json:"model,omitempty"`
	Output       string `json:"output"`
	Raw          any    `json:"raw"`
	UsedFallback bool   `json:"used_fallback"`
}

// Endpoint is the per-provider configuration.
type Endpoint struct {
	BaseURL      string
	APIKey       string
	DefaultModel string
}

// httpProvider dispatches requests to one external agent backend over a
// generic JSON request/response contract.
type httpProvider struct {
	name       string
	endpoint   Endpoint
	httpClient *http.Client
}

// agentPayload is the generic request body sent to every provider.
type agentPayload struct {
	Input    string         `json:"input"`
	Model    string         `json:"model,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (p *httpProvider) run(ctx context.Context, model, userInput string, metadata map[string]any) (Result, error) {
	if p.endpoint.BaseURL == "" {
		return Result{}, &ConfigError{Provider: p.name, Reason: "base URL is not configured"}
	}

	finalModel := model
	if finalModel == "" {
		finalModel = p.endpoint.DefaultModel
	}

	body, err := json.Marshal(agentPayload{
		Input:    userInput,
		Model:    finalModel,
		Metadata: metadata,
	})
	if err != nil {
		return Result{}, fmt.Errorf("marshaling payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint.BaseURL, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.endpoint.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.endpoint.APIKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("calling %s: %w", p.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Result{}, &UpstreamError{Provider: p.name, Status: resp.StatusCode, Detail: string(detail)}
	}

	var data any
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return Result{}, fmt.Errorf("decoding %s response: %w", p.name, err)
	}

	text := ExtractText(data)
	if text == "" {
		// Last resort: a successful call never yields an empty output.
		b, err := json.Marshal(data)
		if err != nil {
			return Result{}, fmt.Errorf("serializing %s response: %w", p.name, err)
		}
		text = string(b)
	}

	return Result{
		Provider: p.name,
		Model:    finalModel,
		Output:   text,
		Raw:      data,
	}, nil
}

func newHTTPProvider(name string, ep Endpoint, timeout time.Duration) *httpProvider {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &httpProvider{
		name:       name,
		endpoint:   ep,
		httpClient: &http.Client{Timeout: timeout},
	}
}
