package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

// ErrMissingAPIKey indicates the completion backend has no credential
// configured. It is a configuration failure and is never retried.
var ErrMissingAPIKey = errors.New("completion API key is not configured")

// ErrGenerationFailed is the single condition reported for any generation
// failure (backend error, malformed output, schema violation). The
// underlying cause is wrapped alongside it.
var ErrGenerationFailed = errors.New("AI generation failed")

const (
	maxAttempts    = 3
	initialBackoff = 1 * time.Second
	maxBackoff     = 8 * time.Second
)

const systemPrompt = "You are an assistant that converts natural language goals into a hierarchical todo JSON. " +
	"Return strictly valid JSON following this schema: {\"todos\": [ {\"title\": str, \"reason\": str?, " +
	"\"priority\": one of ['low','medium','high'], \"status\": one of ['pending','in-progress','done'], " +
	"\"deadline\": ISO8601 string or null, \"subitems\": [] } ] }."

// Completer produces a chat completion for a system + user prompt pair.
// proxy.Client implements it.
type Completer interface {
	Complete(ctx context.Context, model, system, user string) (string, error)
}

// Generator turns natural-language goals into validated todo forests. When a
// mock-response file is configured (and exists) it is served instead of
// calling the live backend, making generation deterministic and offline.
type Generator struct {
	completer Completer // nil when no API key is configured
	model     string
	mockFile  string
	logger    *slog.Logger
}

// New creates a Generator. Pass a nil completer when no backend credential is
// configured; the mock path still works, and the live path reports a
// configuration failure.
func New(completer Completer, model, mockFile string) *Generator {
	return &Generator{
		completer: completer,
		model:     model,
		mockFile:  mockFile,
		logger:    slog.Default(),
	}
}

// Generate returns the todo forest for the given user input.
func (g *Generator) Generate(ctx context.Context, userInput string) ([]GeneratedNode, error) {
	if strings.TrimSpace(userInput) == "" {
		return nil, fmt.Errorf("%w: empty user input", ErrGenerationFailed)
	}

	if nodes, ok, err := g.loadMock(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	} else if ok {
		return nodes, nil
	}

	if g.completer == nil {
		return nil, ErrMissingAPIKey
	}

	content, err := g.completeWithRetry(ctx, userInput)
	if err != nil {
		if errors.Is(err, ErrMissingAPIKey) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}

	nodes, err := parseTodosPayload(stripCodeFence(content))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}
	return nodes, nil
}

// completeWithRetry runs the live completion with bounded exponential
// backoff. Only transport/backend failures are retried; the caller handles
// parse errors (those are not transient).
func (g *Generator) completeWithRetry(ctx context.Context, userInput string) (string, error) {
	backoff := initialBackoff
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		content, err := g.completer.Complete(ctx, g.model, systemPrompt, userInput)
		if err == nil && content != "" {
			return content, nil
		}
		if err == nil {
			// Empty completion counts as a backend failure.
			err = errors.New("backend returned empty content")
		}
		if errors.Is(err, ErrMissingAPIKey) {
			return "", err
		}
		lastErr = err
		g.logger.Warn("completion attempt failed", "attempt", attempt, "error", err)

		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}

	return "", fmt.Errorf("after %d attempts: %w", maxAttempts, lastErr)
}

// loadMock serves the configured mock-response file if present. The second
// return value reports whether the mock path was taken.
func (g *Generator) loadMock() ([]GeneratedNode, bool, error) {
	if g.mockFile == "" {
		return nil, false, nil
	}
	data, err := os.ReadFile(g.mockFile)
	if err != nil {
		if os.IsNotExist(err) {
			g.logger.Warn("mock AI file not found, using live path", "path", g.mockFile)
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("reading mock file: %w", err)
	}

	g.logger.Info("serving AI todos from mock file", "path", g.mockFile)
	nodes, err := parseMockPayload(data)
	if err != nil {
		return nil, false, fmt.Errorf("parsing mock file %s: %w", g.mockFile, err)
	}
	return nodes, true, nil
}

// todosDocument is the expected completion shape.
type todosDocument struct {
	Todos []GeneratedNode `json:"todos"`
}

// parseTodosPayload decodes a `{"todos": [...]}` document and validates
// every node.
func parseTodosPayload(payload string) ([]GeneratedNode, error) {
	var doc todosDocument
	if err := json.Unmarshal([]byte(payload), &doc); err != nil {
		return nil, fmt.Errorf("parsing todos JSON: %w", err)
	}
	if err := normalizeForest(doc.Todos); err != nil {
		return nil, fmt.Errorf("invalid todo node: %w", err)
	}
	return doc.Todos, nil
}

// parseMockPayload accepts either a direct `{"todos": [...]}` document or a
// list of such documents (the first containing a todos key wins). A bare
// list of nodes is also accepted.
func parseMockPayload(data []byte) ([]GeneratedNode, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errors.New("mock file is empty")
	}

	if trimmed[0] == '{' {
		var doc todosDocument
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return nil, err
		}
		if err := normalizeForest(doc.Todos); err != nil {
			return nil, err
		}
		return doc.Todos, nil
	}

	if trimmed[0] != '[' {
		return nil, errors.New("mock file must contain a JSON object or array")
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(trimmed, &entries); err != nil {
		return nil, err
	}
	for _, entry := range entries {
		var probe map[string]json.RawMessage
		if err := json.Unmarshal(entry, &probe); err != nil {
			continue
		}
		if _, ok := probe["todos"]; ok {
			var doc todosDocument
			if err := json.Unmarshal(entry, &doc); err != nil {
				return nil, err
			}
			if err := normalizeForest(doc.Todos); err != nil {
				return nil, err
			}
			return doc.Todos, nil
		}
	}

	// No document had a todos key: treat the list itself as the nodes.
	var nodes []GeneratedNode
	if err := json.Unmarshal(trimmed, &nodes); err != nil {
		return nil, err
	}
	if err := normalizeForest(nodes); err != nil {
		return nil, err
	}
	return nodes, nil
}

// stripCodeFence removes Markdown fences (```json ... ```) that models often
// wrap around JSON output.
func stripCodeFence(payload string) string {
	cleaned := strings.TrimSpace(payload)
	if !strings.HasPrefix(cleaned, "```") {
		return cleaned
	}
	lines := strings.Split(cleaned, "\n")
	lines = lines[1:]
	if len(lines) > 0 && strings.HasPrefix(strings.TrimSpace(lines[len(lines)-1]), "```") {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
