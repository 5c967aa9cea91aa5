package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tasknest/tasknest/internal/agents"
	"github.com/tasknest/tasknest/internal/genai"
	"github.com/tasknest/tasknest/internal/memory"
	"github.com/tasknest/tasknest/internal/storage"
	"github.com/tasknest/tasknest/internal/tasks"
)

type stubGenerator struct {
	nodes []genai.GeneratedNode
	err   error
}

func (s *stubGenerator) Generate(ctx context.Context, userInput string) ([]genai.GeneratedNode, error) {
	return s.nodes, s.err
}

type stubAgents struct {
	result agents.Result
	err    error
}

func (s *stubAgents) Run(ctx context.Context, provider, model, userInput string, metadata map[string]any) (agents.Result, error) {
	return s.result, s.err
}

type stubMemory struct {
	results  []memory.SearchResult
	err      error
	gotLimit int
}

func (s *stubMemory) Search(ctx context.Context, query string, limit int) ([]memory.SearchResult, error) {
	s.gotLimit = limit
	return s.results, s.err
}

// newTestHandler builds the full router over a fresh in-memory store. mut
// customizes the dependency set before the router is assembled.
func newTestHandler(t *testing.T, mut func(*Deps)) http.Handler {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	deps := Deps{
		Tasks: tasks.NewService(store, nil),
		Store: store,
	}
	if mut != nil {
		mut(&deps)
	}
	return NewHandler(deps)
}

func doRequest(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshaling body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
	return v
}

type errorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func assertError(t *testing.T, rec *httptest.ResponseRecorder, code int, errType string) {
	t.Helper()
	if rec.Code != code {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, code, rec.Body.String())
	}
	body := decodeBody[errorBody](t, rec)
	if body.Error.Type != errType {
		t.Errorf("error type = %q, want %q", body.Error.Type, errType)
	}
	if body.Error.Message == "" {
		t.Error("error message is empty")
	}
}

func TestHealthAndReady(t *testing.T) {
	h := newTestHandler(t, nil)

	rec := doRequest(t, h, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("/health = %d", rec.Code)
	}

	rec = doRequest(t, h, http.MethodGet, "/ready", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("/ready = %d (body %s)", rec.Code, rec.Body.String())
	}
}

func TestTodoLifecycle(t *testing.T) {
	h := newTestHandler(t, nil)

	rec := doRequest(t, h, http.MethodPost, "/todos", map[string]any{
		"title":    "Write report",
		"reason":   "quarterly review",
		"priority": "high",
		"deadline": "2026-12-01T09:00:00Z",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create = %d (body %s)", rec.Code, rec.Body.String())
	}
	created := decodeBody[storage.Todo](t, rec)
	if created.ID == 0 || created.Title != "Write report" || created.Status != storage.StatusPending {
		t.Fatalf("created = %+v", created)
	}

	rec = doRequest(t, h, http.MethodGet, fmt.Sprintf("/todos/%d", created.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get = %d", rec.Code)
	}

	rec = doRequest(t, h, http.MethodPut, fmt.Sprintf("/todos/%d", created.ID), map[string]any{
		"priority": "low",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update = %d (body %s)", rec.Code, rec.Body.String())
	}
	updated := decodeBody[storage.Todo](t, rec)
	if updated.Priority != storage.PriorityLow {
		t.Errorf("priority = %q", updated.Priority)
	}
	if updated.Title != "Write report" {
		t.Errorf("partial update touched title: %q", updated.Title)
	}
	if updated.Deadline == nil {
		t.Error("partial update dropped deadline")
	}

	rec = doRequest(t, h, http.MethodPost, fmt.Sprintf("/todos/%d/complete", created.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("complete = %d", rec.Code)
	}
	done := decodeBody[storage.Todo](t, rec)
	if done.Status != storage.StatusDone {
		t.Errorf("status = %q", done.Status)
	}

	rec = doRequest(t, h, http.MethodDelete, fmt.Sprintf("/todos/%d", created.ID), nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete = %d", rec.Code)
	}

	rec = doRequest(t, h, http.MethodGet, fmt.Sprintf("/todos/%d", created.ID), nil)
	assertError(t, rec, http.StatusNotFound, "not_found")
}

func TestCreateTodoValidation(t *testing.T) {
	h := newTestHandler(t, nil)

	rec := doRequest(t, h, http.MethodPost, "/todos", map[string]any{"title": ""})
	assertError(t, rec, http.StatusUnprocessableEntity, "invalid_request_error")

	rec = doRequest(t, h, http.MethodPost, "/todos", map[string]any{
		"title": "x", "priority": "urgent",
	})
	assertError(t, rec, http.StatusUnprocessableEntity, "invalid_request_error")

	rec = doRequest(t, h, http.MethodPost, "/todos", map[string]any{
		"title": "x", "deadline": "next tuesday",
	})
	assertError(t, rec, http.StatusUnprocessableEntity, "invalid_request_error")
}

func TestTodoIDValidation(t *testing.T) {
	h := newTestHandler(t, nil)

	for _, path := range []string{"/todos/abc", "/todos/0", "/todos/-3"} {
		rec := doRequest(t, h, http.MethodGet, path, nil)
		assertError(t, rec, http.StatusBadRequest, "invalid_request_error")
	}
}

func TestListTodosFilters(t *testing.T) {
	h := newTestHandler(t, nil)

	seed := []map[string]any{
		{"title": "a", "priority": "high", "status": "pending"},
		{"title": "b", "priority": "low", "status": "done"},
		{"title": "c", "priority": "high", "status": "done"},
	}
	for _, body := range seed {
		if rec := doRequest(t, h, http.MethodPost, "/todos", body); rec.Code != http.StatusCreated {
			t.Fatalf("seed create = %d", rec.Code)
		}
	}

	rec := doRequest(t, h, http.MethodGet, "/todos?status=done&priority=high", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list = %d", rec.Code)
	}
	todos := decodeBody[[]storage.Todo](t, rec)
	if len(todos) != 1 || todos[0].Title != "c" {
		t.Errorf("filtered list = %+v", todos)
	}

	rec = doRequest(t, h, http.MethodGet, "/todos?status=bogus", nil)
	assertError(t, rec, http.StatusBadRequest, "invalid_request_error")

	rec = doRequest(t, h, http.MethodGet, "/todos?due_before=whenever", nil)
	assertError(t, rec, http.StatusBadRequest, "invalid_request_error")
}

func TestListTodosEmptyIsArray(t *testing.T) {
	h := newTestHandler(t, nil)

	rec := doRequest(t, h, http.MethodGet, "/todos", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list = %d", rec.Code)
	}
	if got := bytes.TrimSpace(rec.Body.Bytes()); string(got) != "[]" {
		t.Errorf("empty list body = %s, want []", got)
	}
}

func TestTodoTreeEndpoint(t *testing.T) {
	h := newTestHandler(t, nil)

	rec := doRequest(t, h, http.MethodPost, "/todos", map[string]any{"title": "root"})
	root := decodeBody[storage.Todo](t, rec)
	doRequest(t, h, http.MethodPost, "/todos", map[string]any{"title": "child", "parent_id": root.ID})

	rec = doRequest(t, h, http.MethodGet, "/todos/tree", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("tree = %d", rec.Code)
	}
	roots := decodeBody[[]*tasks.TreeNode](t, rec)
	if len(roots) != 1 {
		t.Fatalf("len(roots) = %d, want 1", len(roots))
	}
	if len(roots[0].Children) != 1 || roots[0].Children[0].Title != "child" {
		t.Errorf("tree = %+v", roots[0])
	}

	// Deleting the root promotes the orphaned child to a root.
	if rec := doRequest(t, h, http.MethodDelete, fmt.Sprintf("/todos/%d", root.ID), nil); rec.Code != http.StatusNoContent {
		t.Fatalf("delete root = %d", rec.Code)
	}
	rec = doRequest(t, h, http.MethodGet, "/todos/tree", nil)
	roots = decodeBody[[]*tasks.TreeNode](t, rec)
	if len(roots) != 1 || roots[0].Title != "child" {
		t.Errorf("tree after root delete = %+v", roots)
	}
}

func TestGenerateNotConfigured(t *testing.T) {
	h := newTestHandler(t, nil) // no Generator

	rec := doRequest(t, h, http.MethodPost, "/ai/generate", map[string]any{"user_input": "x"})
	assertError(t, rec, http.StatusServiceUnavailable, "configuration_error")
}

func TestGenerateEmptyInput(t *testing.T) {
	h := newTestHandler(t, func(d *Deps) { d.Generator = &stubGenerator{} })

	rec := doRequest(t, h, http.MethodPost, "/ai/generate", map[string]any{"user_input": "  "})
	assertError(t, rec, http.StatusBadRequest, "invalid_request_error")
}

func TestGenerate(t *testing.T) {
	forest := []genai.GeneratedNode{
		{Title: "Plan trip", Priority: "medium", Status: "pending", Subitems: []genai.GeneratedNode{
			{Title: "Book flights", Priority: "high", Status: "pending"},
		}},
	}
	h := newTestHandler(t, func(d *Deps) { d.Generator = &stubGenerator{nodes: forest} })

	rec := doRequest(t, h, http.MethodPost, "/ai/generate", map[string]any{"user_input": "trip"})
	if rec.Code != http.StatusOK {
		t.Fatalf("generate = %d (body %s)", rec.Code, rec.Body.String())
	}
	resp := decodeBody[generateResponse](t, rec)
	if len(resp.Todos) != 1 || resp.Todos[0].Title != "Plan trip" {
		t.Errorf("todos = %+v", resp.Todos)
	}
	if resp.PersistedIDs != nil {
		t.Errorf("persisted_ids = %v without save", resp.PersistedIDs)
	}
}

func TestGenerateAndSave(t *testing.T) {
	forest := []genai.GeneratedNode{
		{Title: "Plan trip", Priority: "medium", Status: "pending", Subitems: []genai.GeneratedNode{
			{Title: "Book flights", Priority: "high", Status: "pending"},
		}},
		{Title: "Pack", Priority: "low", Status: "pending"},
	}
	h := newTestHandler(t, func(d *Deps) { d.Generator = &stubGenerator{nodes: forest} })

	rec := doRequest(t, h, http.MethodPost, "/ai/generate", map[string]any{"user_input": "trip", "save": true})
	if rec.Code != http.StatusOK {
		t.Fatalf("generate = %d (body %s)", rec.Code, rec.Body.String())
	}
	resp := decodeBody[generateResponse](t, rec)
	if len(resp.PersistedIDs) != 3 {
		t.Fatalf("persisted_ids = %v, want 3 ids", resp.PersistedIDs)
	}

	// The saved forest is queryable with its hierarchy intact.
	listRec := doRequest(t, h, http.MethodGet, "/todos/tree", nil)
	roots := decodeBody[[]*tasks.TreeNode](t, listRec)
	if len(roots) != 2 {
		t.Fatalf("len(roots) = %d, want 2", len(roots))
	}
	if len(roots[0].Children) != 1 || roots[0].Children[0].Title != "Book flights" {
		t.Errorf("tree = %+v", roots[0])
	}
}

func TestGenerateErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		code    int
		errType string
	}{
		{"missing key", genai.ErrMissingAPIKey, http.StatusServiceUnavailable, "configuration_error"},
		{"generation failed", fmt.Errorf("%w: backend down", genai.ErrGenerationFailed), http.StatusBadGateway, "api_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(t, func(d *Deps) { d.Generator = &stubGenerator{err: tt.err} })
			rec := doRequest(t, h, http.MethodPost, "/ai/generate", map[string]any{"user_input": "x"})
			assertError(t, rec, tt.code, tt.errType)
		})
	}
}

func TestMemorySearchNotConfigured(t *testing.T) {
	h := newTestHandler(t, nil)

	rec := doRequest(t, h, http.MethodPost, "/memory/search", map[string]any{"query": "x"})
	assertError(t, rec, http.StatusServiceUnavailable, "configuration_error")
}

func TestMemorySearch(t *testing.T) {
	hits := []memory.SearchResult{{ID: 3, Title: "Buy milk", Score: 0.91}}
	h := newTestHandler(t, func(d *Deps) { d.Memory = &stubMemory{results: hits} })

	rec := doRequest(t, h, http.MethodPost, "/memory/search", map[string]any{"query": "milk", "limit": 3})
	if rec.Code != http.StatusOK {
		t.Fatalf("search = %d", rec.Code)
	}
	resp := decodeBody[memorySearchResponse](t, rec)
	if len(resp.Results) != 1 || resp.Results[0].Title != "Buy milk" {
		t.Errorf("results = %+v", resp.Results)
	}

	rec = doRequest(t, h, http.MethodPost, "/memory/search", map[string]any{"query": ""})
	assertError(t, rec, http.StatusBadRequest, "invalid_request_error")
}

func TestMemorySearchLimitBounds(t *testing.T) {
	stub := &stubMemory{}
	h := newTestHandler(t, func(d *Deps) { d.Memory = stub })

	rec := doRequest(t, h, http.MethodPost, "/memory/search", map[string]any{"query": "x"})
	if rec.Code != http.StatusOK {
		t.Fatalf("search = %d", rec.Code)
	}
	if stub.gotLimit != defaultSearchLimit {
		t.Errorf("default limit = %d, want %d", stub.gotLimit, defaultSearchLimit)
	}

	rec = doRequest(t, h, http.MethodPost, "/memory/search", map[string]any{"query": "x", "limit": 10000})
	if rec.Code != http.StatusOK {
		t.Fatalf("search = %d", rec.Code)
	}
	if stub.gotLimit != maxSearchLimit {
		t.Errorf("oversized limit passed through as %d, want %d", stub.gotLimit, maxSearchLimit)
	}
}

func TestAgentRun(t *testing.T) {
	h := newTestHandler(t, func(d *Deps) {
		d.Agents = &stubAgents{result: agents.Result{Provider: "fetchai", Output: "done"}}
	})

	rec := doRequest(t, h, http.MethodPost, "/agents/run", map[string]any{
		"provider": "fetchai", "user_input": "plan my week",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("run = %d (body %s)", rec.Code, rec.Body.String())
	}
	res := decodeBody[agents.Result](t, rec)
	if res.Output != "done" {
		t.Errorf("output = %q", res.Output)
	}
}

func TestAgentRunValidation(t *testing.T) {
	h := newTestHandler(t, func(d *Deps) { d.Agents = &stubAgents{} })

	rec := doRequest(t, h, http.MethodPost, "/agents/run", map[string]any{"user_input": "x"})
	assertError(t, rec, http.StatusBadRequest, "invalid_request_error")

	rec = doRequest(t, h, http.MethodPost, "/agents/run", map[string]any{"provider": "fetchai"})
	assertError(t, rec, http.StatusBadRequest, "invalid_request_error")
}

func TestAgentRunErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		code    int
		errType string
	}{
		{"unknown provider", fmt.Errorf("%w %q", agents.ErrUnknownProvider, "nope"), http.StatusBadRequest, "invalid_request_error"},
		{"not configured", &agents.ConfigError{Provider: "letta", Reason: "no base URL"}, http.StatusServiceUnavailable, "configuration_error"},
		{"upstream failure", &agents.UpstreamError{Provider: "letta", Status: 502, Detail: "boom"}, http.StatusBadGateway, "api_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(t, func(d *Deps) { d.Agents = &stubAgents{err: tt.err} })
			rec := doRequest(t, h, http.MethodPost, "/agents/run", map[string]any{
				"provider": "letta", "user_input": "x",
			})
			assertError(t, rec, tt.code, tt.errType)
		})
	}
}

func TestBearerAuth(t *testing.T) {
	h := newTestHandler(t, func(d *Deps) { d.Token = "secret-token" })

	// Health stays open.
	rec := doRequest(t, h, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("/health = %d", rec.Code)
	}

	rec = doRequest(t, h, http.MethodGet, "/todos", nil)
	assertError(t, rec, http.StatusUnauthorized, "authentication_error")

	req := httptest.NewRequest(http.MethodGet, "/todos", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/todos", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("valid token = %d (body %s)", w.Code, w.Body.String())
	}
}

func TestRateLimit(t *testing.T) {
	h := newTestHandler(t, func(d *Deps) {
		d.RateLimit = 2
		d.RateWindow = time.Minute
	})

	for i := 0; i < 2; i++ {
		if rec := doRequest(t, h, http.MethodGet, "/todos", nil); rec.Code != http.StatusOK {
			t.Fatalf("request %d = %d", i+1, rec.Code)
		}
	}
	rec := doRequest(t, h, http.MethodGet, "/todos", nil)
	assertError(t, rec, http.StatusTooManyRequests, "rate_limit_error")

	// Health is outside the limited group.
	if rec := doRequest(t, h, http.MethodGet, "/health", nil); rec.Code != http.StatusOK {
		t.Errorf("/health = %d", rec.Code)
	}
}

func TestRateLimiterWindowExpiry(t *testing.T) {
	rl := newRateLimiter(1, time.Minute)
	base := time.Now()

	if !rl.allow("10.0.0.1", base) {
		t.Fatal("first request should pass")
	}
	if rl.allow("10.0.0.1", base.Add(time.Second)) {
		t.Fatal("second request inside window should be rejected")
	}
	if !rl.allow("10.0.0.1", base.Add(2*time.Minute)) {
		t.Fatal("request after window should pass")
	}
	if !rl.allow("10.0.0.2", base) {
		t.Fatal("other clients have their own window")
	}
}

// TestRateLimiterEvictsIdleClients: entries of clients that never return are
// swept out once their whole window has expired.
func TestRateLimiterEvictsIdleClients(t *testing.T) {
	rl := newRateLimiter(1, time.Minute)
	base := time.Now()

	rl.allow("10.0.0.1", base)
	rl.allow("10.0.0.2", base)

	// A later request from any client triggers the sweep.
	rl.allow("10.0.0.1", base.Add(2*time.Minute))

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if _, ok := rl.clients["10.0.0.2"]; ok {
		t.Error("idle client entry was not evicted")
	}
	if _, ok := rl.clients["10.0.0.1"]; !ok {
		t.Error("active client entry missing")
	}
}
