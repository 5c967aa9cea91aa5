package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/tasknest/tasknest/internal/storage"
)

// NewMCPServer creates an MCP server exposing the todo store, AI
// generation and semantic recall as tools.
func NewMCPServer(deps Deps) *server.MCPServer {
	s := server.NewMCPServer(
		"tasknest",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("tasknest — hierarchical todo backend with AI task generation and semantic recall."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("health",
			mcp.WithDescription("Report whether the service and its storage are reachable."),
		),
		mcpHealth(deps),
	)

	s.AddTool(
		mcp.NewTool("create_todo",
			mcp.WithDescription("Create a single todo. Returns the created record as JSON."),
			mcp.WithString("title", mcp.Description("Short title for the task"), mcp.Required()),
			mcp.WithString("reason", mcp.Description("Why this task matters")),
			mcp.WithString("priority", mcp.Description("low, medium or high (default medium)")),
			mcp.WithString("deadline", mcp.Description("ISO-8601 deadline, e.g. 2026-09-01 or 2026-09-01T12:00:00Z")),
			mcp.WithNumber("parent_id", mcp.Description("Id of the parent todo for subtasks")),
		),
		mcpCreateTodo(deps),
	)

	s.AddTool(
		mcp.NewTool("list_todos",
			mcp.WithDescription("List todos, optionally filtered by status and priority. Returns a JSON array."),
			mcp.WithString("status", mcp.Description("pending, in-progress or done")),
			mcp.WithString("priority", mcp.Description("low, medium or high")),
		),
		mcpListTodos(deps),
	)

	s.AddTool(
		mcp.NewTool("update_todo",
			mcp.WithDescription("Update fields of an existing todo. Only provided fields change."),
			mcp.WithNumber("id", mcp.Description("Todo id"), mcp.Required()),
			mcp.WithString("title", mcp.Description("New title")),
			mcp.WithString("reason", mcp.Description("New reason")),
			mcp.WithString("priority", mcp.Description("low, medium or high")),
			mcp.WithString("status", mcp.Description("pending, in-progress or done")),
			mcp.WithString("deadline", mcp.Description("New ISO-8601 deadline")),
		),
		mcpUpdateTodo(deps),
	)

	s.AddTool(
		mcp.NewTool("complete_todo",
			mcp.WithDescription("Mark a todo as done."),
			mcp.WithNumber("id", mcp.Description("Todo id"), mcp.Required()),
		),
		mcpCompleteTodo(deps),
	)

	s.AddTool(
		mcp.NewTool("delete_todo",
			mcp.WithDescription("Delete a todo. Its subtasks are kept and become roots."),
			mcp.WithNumber("id", mcp.Description("Todo id"), mcp.Required()),
		),
		mcpDeleteTodo(deps),
	)

	s.AddTool(
		mcp.NewTool("todo_tree",
			mcp.WithDescription("Return the full todo forest as nested JSON."),
		),
		mcpTodoTree(deps),
	)

	s.AddTool(
		mcp.NewTool("ai_generate",
			mcp.WithDescription("Generate a structured todo plan from a free-form goal using AI. Optionally persist it."),
			mcp.WithString("user_input", mcp.Description("The goal to break down"), mcp.Required()),
			mcp.WithBoolean("save", mcp.Description("Persist the generated plan (default false)")),
		),
		mcpGenerateTodos(deps),
	)

	s.AddTool(
		mcp.NewTool("memory_search",
			mcp.WithDescription("Semantically search stored todos and return the closest matches."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 5)")),
		),
		mcpMemorySearch(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"tasknest://tree",
			"Todo Tree",
			mcp.WithResourceDescription("Current todo forest as nested JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceTree(deps),
	)

	return s
}

func mcpHealth(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if err := deps.Store.Ping(ctx); err != nil {
			return mcpError(fmt.Sprintf("storage not ready: %v", err)), nil
		}
		return mcpText(`{"status":"ok"}`), nil
	}
}

func mcpCreateTodo(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		title, err := req.RequireString("title")
		if err != nil {
			return mcpError("title is required"), nil
		}

		t := storage.Todo{
			Title:    title,
			Priority: req.GetString("priority", ""),
		}
		if reason := req.GetString("reason", ""); reason != "" {
			t.Reason = &reason
		}
		if pid := req.GetInt("parent_id", 0); pid > 0 {
			id := int64(pid)
			t.ParentID = &id
		}
		deadline, err := storage.ParseDeadline(req.GetString("deadline", ""))
		if err != nil {
			return mcpError(err.Error()), nil
		}
		t.Deadline = deadline

		created, err := deps.Tasks.Create(ctx, t)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to create todo: %v", err)), nil
		}

		return mcpJSON(created)
	}
}

func mcpListTodos(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		f := storage.Filter{
			Status:   req.GetString("status", ""),
			Priority: req.GetString("priority", ""),
		}
		todos, err := deps.Tasks.List(f)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list todos: %v", err)), nil
		}
		if todos == nil {
			todos = []storage.Todo{}
		}
		return mcpJSON(todos)
	}
}

func mcpUpdateTodo(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := req.GetInt("id", 0)
		if id <= 0 {
			return mcpError("id is required"), nil
		}

		var patch storage.Patch
		if v := req.GetString("title", ""); v != "" {
			patch.Title = &v
		}
		if v := req.GetString("reason", ""); v != "" {
			patch.Reason = &v
		}
		if v := req.GetString("priority", ""); v != "" {
			patch.Priority = &v
		}
		if v := req.GetString("status", ""); v != "" {
			patch.Status = &v
		}
		if v := req.GetString("deadline", ""); v != "" {
			deadline, err := storage.ParseDeadline(v)
			if err != nil {
				return mcpError(err.Error()), nil
			}
			patch.Deadline = deadline
		}

		updated, err := deps.Tasks.Update(ctx, int64(id), patch)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to update todo: %v", err)), nil
		}
		return mcpJSON(updated)
	}
}

func mcpCompleteTodo(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := req.GetInt("id", 0)
		if id <= 0 {
			return mcpError("id is required"), nil
		}
		updated, err := deps.Tasks.Complete(ctx, int64(id))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to complete todo: %v", err)), nil
		}
		return mcpJSON(updated)
	}
}

func mcpDeleteTodo(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := req.GetInt("id", 0)
		if id <= 0 {
			return mcpError("id is required"), nil
		}
		if err := deps.Tasks.Delete(int64(id)); err != nil {
			return mcpError(fmt.Sprintf("failed to delete todo: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Deleted todo %d", id)), nil
	}
}

func mcpTodoTree(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		roots, err := deps.Tasks.Tree()
		if err != nil {
			return mcpError(fmt.Sprintf("failed to build tree: %v", err)), nil
		}
		return mcpJSON(roots)
	}
}

func mcpGenerateTodos(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Generator == nil {
			return mcpError("AI generation is not configured"), nil
		}

		userInput, err := req.RequireString("user_input")
		if err != nil {
			return mcpError("user_input is required"), nil
		}

		forest, err := deps.Generator.Generate(ctx, userInput)
		if err != nil {
			return mcpError(fmt.Sprintf("generation failed: %v", err)), nil
		}

		if req.GetBool("save", false) {
			saved, err := deps.Tasks.SaveGenerated(ctx, forest)
			if err != nil {
				return mcpError(fmt.Sprintf("generated but failed to save: %v", err)), nil
			}
			return mcpJSON(saved)
		}

		return mcpJSON(forest)
	}
}

func mcpMemorySearch(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Memory == nil {
			return mcpError("semantic search is not configured"), nil
		}

		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		limit := req.GetInt("limit", defaultSearchLimit)
		if limit <= 0 {
			limit = defaultSearchLimit
		}
		if limit > maxSearchLimit {
			limit = maxSearchLimit
		}

		results, err := deps.Memory.Search(ctx, query, limit)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}
		if len(results) == 0 {
			return mcpText("[]"), nil
		}
		return mcpJSON(results)
	}
}

func mcpResourceTree(deps Deps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		roots, err := deps.Tasks.Tree()
		if err != nil {
			return nil, fmt.Errorf("failed to build tree: %w", err)
		}

		b, err := json.Marshal(roots)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal tree: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
