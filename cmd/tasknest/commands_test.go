package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tasknest/tasknest/internal/config"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
			Auth:   r.Header.Get("Authorization"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

var ctx = context.Background()

func TestAddCommand_Request(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /todos": `{"id":1,"title":"Buy flowers","priority":"high","status":"pending"}`,
	})

	client := ts.client()
	req := map[string]any{
		"title":    "Buy flowers",
		"priority": "high",
	}

	resp, err := client.post(ctx, "/todos", req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var created todoView
	if err := decodeJSON(resp, &created); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if created.ID != 1 {
		t.Errorf("id = %d, want 1", created.ID)
	}
	if created.Title != "Buy flowers" {
		t.Errorf("title = %q, want %q", created.Title, "Buy flowers")
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	r := ts.requests[0]
	if r.Method != "POST" || r.Path != "/todos" {
		t.Errorf("request = %s %s, want POST /todos", r.Method, r.Path)
	}
	if r.Auth != "Bearer test-token" {
		t.Errorf("auth = %q, want Bearer test-token", r.Auth)
	}

	var body map[string]any
	if err := json.Unmarshal([]byte(r.Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["title"] != "Buy flowers" {
		t.Errorf("body.title = %v, want Buy flowers", body["title"])
	}
}

func TestAddCommand_MissingArgs(t *testing.T) {
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"add"})
	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("expected error for missing args")
	}
}

func TestListCommand_Filters(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /todos": `[{"id":3,"title":"Write report","priority":"medium","status":"pending"}]`,
	})

	client := ts.client()
	resp, err := client.get(ctx, "/todos?priority=medium&status=pending")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var todos []todoView
	if err := decodeJSON(resp, &todos); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if len(todos) != 1 {
		t.Fatalf("expected 1 todo, got %d", len(todos))
	}
	if todos[0].Title != "Write report" {
		t.Errorf("title = %q, want Write report", todos[0].Title)
	}

	reqPath := ts.requests[0].Path
	if !strings.Contains(reqPath, "status=pending") || !strings.Contains(reqPath, "priority=medium") {
		t.Errorf("filters missing from request path %q", reqPath)
	}
}

func TestTreeCommand_NestedOutput(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /todos/tree": `[{"id":1,"title":"Plan trip","priority":"high","status":"pending","children":[{"id":2,"title":"Book flight","priority":"medium","status":"pending","children":[]}]}]`,
	})

	client := ts.client()
	resp, err := client.get(ctx, "/todos/tree")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var roots []treeView
	if err := decodeJSON(resp, &roots); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if len(roots) != 1 {
		t.Fatalf("expected 1 root, got %d", len(roots))
	}
	if len(roots[0].Children) != 1 {
		t.Fatalf("expected 1 child, got %d", len(roots[0].Children))
	}
	if roots[0].Children[0].Title != "Book flight" {
		t.Errorf("child title = %q, want Book flight", roots[0].Children[0].Title)
	}
}

func TestGenerateCommand_SaveFlag(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /ai/generate": `{"todos":[{"id":0,"title":"Research destinations","priority":"medium","status":"pending","children":[]}],"persisted_ids":[7]}`,
	})

	client := ts.client()
	resp, err := client.post(ctx, "/ai/generate", map[string]any{
		"user_input": "plan a trip",
		"save":       true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result struct {
		Todos        []treeView `json:"todos"`
		PersistedIDs []int64    `json:"persisted_ids"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if len(result.Todos) != 1 {
		t.Fatalf("expected 1 generated todo, got %d", len(result.Todos))
	}
	if len(result.PersistedIDs) != 1 || result.PersistedIDs[0] != 7 {
		t.Errorf("persisted_ids = %v, want [7]", result.PersistedIDs)
	}

	var body map[string]any
	if err := json.Unmarshal([]byte(ts.requests[0].Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["save"] != true {
		t.Errorf("body.save = %v, want true", body["save"])
	}
}

func TestAgentCommand_FallbackFlag(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /agents/run": `{"provider":"fallback","output":"1. Pack bags — No reason provided.","used_fallback":true}`,
	})

	client := ts.client()
	resp, err := client.post(ctx, "/agents/run", map[string]any{
		"provider":   "letta",
		"user_input": "plan my week",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result struct {
		Provider     string `json:"provider"`
		Output       string `json:"output"`
		UsedFallback bool   `json:"used_fallback"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if !result.UsedFallback {
		t.Error("used_fallback = false, want true")
	}
	if result.Output == "" {
		t.Error("output is empty, want non-empty fallback plan")
	}
}

func TestStatusCommand_Stopped(t *testing.T) {
	ts := newTestServer(t, map[string]string{})
	ts.server.Close()

	client := ts.client()
	_, err := client.get(ctx, "/health")
	if err == nil {
		t.Fatal("expected error for stopped server")
	}
	if !strings.Contains(err.Error(), "not reachable") {
		t.Errorf("error = %q, want it to mention 'not reachable'", err.Error())
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := colorize(colorGreen, "test message")
	if strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=true should not contain ANSI codes, got %q", result)
	}

	noColor = false
	result = colorize(colorGreen, "test message")
	if !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}

func TestDecodeJSON_ErrorResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(422)
		w.Write([]byte(`{"error":{"message":"title must not be empty","type":"invalid_request_error"}}`))
	}))
	defer ts.Close()

	client := &apiClient{
		baseURL:    ts.URL,
		httpClient: ts.Client(),
	}

	resp, err := client.post(ctx, "/todos", map[string]any{"title": ""})
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}

	var result any
	err = decodeJSON(resp, &result)
	if err == nil {
		t.Fatal("expected error for 422 response")
	}
	if !strings.Contains(err.Error(), "422") {
		t.Errorf("error = %q, want it to contain '422'", err.Error())
	}
}

func TestClientOmitsAuthWithoutToken(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /health": `{"status":"ok"}`,
	})

	client := ts.client()
	client.token = ""

	if _, err := client.get(ctx, "/health"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ts.requests[0].Auth != "" {
		t.Errorf("auth = %q, want empty when no token configured", ts.requests[0].Auth)
	}
}

func TestConfigShowAll(t *testing.T) {
	cfg := config.Config{}
	cfg.Server.Port = 8080
	cfg.Ollama.EmbedModel = "nomic-embed-text"

	keys := config.ShowAll(cfg)
	if len(keys) == 0 {
		t.Fatal("expected non-empty keys from ShowAll")
	}

	found := false
	for _, k := range keys {
		if k.Key == "server.port" && k.Value == "8080" {
			found = true
		}
		if k.Key == "proxy.openrouter_api_key" || k.Key == "server.api_token" {
			t.Errorf("secret key %s leaked into ShowAll output", k.Key)
		}
	}
	if !found {
		t.Error("expected to find server.port=8080 in ShowAll output")
	}
}
