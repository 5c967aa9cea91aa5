package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tasknest/tasknest/internal/agents"
	"github.com/tasknest/tasknest/internal/genai"
	"github.com/tasknest/tasknest/internal/memory"
	"github.com/tasknest/tasknest/internal/storage"
	"github.com/tasknest/tasknest/internal/tasks"
)

const maxRequestBodySize = 1 << 20 // 1MB

// PlanGenerator abstracts AI todo generation for the API layer.
type PlanGenerator interface {
	Generate(ctx context.Context, userInput string) ([]genai.GeneratedNode, error)
}

// AgentRunner abstracts agent dispatch for the API layer.
type AgentRunner interface {
	Run(ctx context.Context, provider, model, userInput string, metadata map[string]any) (agents.Result, error)
}

// MemorySearcher abstracts semantic search for the API layer.
type MemorySearcher interface {
	Search(ctx context.Context, query string, limit int) ([]memory.SearchResult, error)
}

// Deps holds everything the HTTP handlers need. Generator, Agents and
// Memory may be nil; the corresponding endpoints then report that the
// feature is unavailable instead of panicking.
type Deps struct {
	Tasks     *tasks.Service
	Store     *storage.Store
	Generator PlanGenerator
	Agents    AgentRunner
	Memory    MemorySearcher

	Token string // optional bearer token; empty disables auth

	RateLimit  int // requests per window per client; <= 0 disables
	RateWindow time.Duration
}

// NewHandler returns the full REST API router.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	r.Get("/ready", handleReady(deps))

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))
		if deps.RateLimit > 0 {
			r.Use(RateLimit(deps.RateLimit, deps.RateWindow))
		}

		r.Post("/todos", handleCreateTodo(deps))
		r.Get("/todos", handleListTodos(deps))
		r.Get("/todos/tree", handleTodoTree(deps))
		r.Get("/todos/{id}", handleGetTodo(deps))
		r.Put("/todos/{id}", handleUpdateTodo(deps))
		r.Delete("/todos/{id}", handleDeleteTodo(deps))
		r.Post("/todos/{id}/complete", handleCompleteTodo(deps))

		r.Post("/ai/generate", handleGenerate(deps))
		r.Post("/memory/search", handleMemorySearch(deps))
		r.Post("/agents/run", handleAgentRun(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// handleReady reports whether the database is reachable. Returns 503
// until the schema is usable.
func handleReady(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Store.Ping(r.Context()); err != nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "storage not ready: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
