package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tasknest/tasknest/internal/storage"
)

type todoCreateRequest struct {
	Title    string  `json:"title"`
	Reason   *string `json:"reason"`
	Priority string  `json:"priority"`
	Status   string  `json:"status"`
	ParentID *int64  `json:"parent_id"`
	Deadline string  `json:"deadline"`
}

// todoUpdateRequest carries a partial update; absent fields leave the
// stored values untouched.
type todoUpdateRequest struct {
	Title    *string `json:"title"`
	Reason   *string `json:"reason"`
	Priority *string `json:"priority"`
	Status   *string `json:"status"`
	Deadline *string `json:"deadline"`
}

func handleCreateTodo(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req todoCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		deadline, err := storage.ParseDeadline(req.Deadline)
		if err != nil {
			httpError(w, http.StatusUnprocessableEntity, "invalid_request_error", "%v", err)
			return
		}

		todo, err := deps.Tasks.Create(r.Context(), storage.Todo{
			Title:    req.Title,
			Reason:   req.Reason,
			Priority: req.Priority,
			Status:   req.Status,
			ParentID: req.ParentID,
			Deadline: deadline,
		})
		if err != nil {
			storageError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, todo)
	}
}

func handleGetTodo(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := todoID(w, r)
		if !ok {
			return
		}

		todo, err := deps.Tasks.Get(id)
		if err != nil {
			storageError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, todo)
	}
}

func handleListTodos(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		var f storage.Filter
		if s := q.Get("status"); s != "" {
			if !storage.ValidStatus(s) {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown status %q", s)
				return
			}
			f.Status = s
		}
		if p := q.Get("priority"); p != "" {
			if !storage.ValidPriority(p) {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown priority %q", p)
				return
			}
			f.Priority = p
		}

		var err error
		if f.DueBefore, err = storage.ParseDeadline(q.Get("due_before")); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		if f.DueAfter, err = storage.ParseDeadline(q.Get("due_after")); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		todos, err := deps.Tasks.List(f)
		if err != nil {
			storageError(w, err)
			return
		}
		if todos == nil {
			todos = []storage.Todo{}
		}

		writeJSON(w, http.StatusOK, todos)
	}
}

func handleTodoTree(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roots, err := deps.Tasks.Tree()
		if err != nil {
			storageError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, roots)
	}
}

func handleUpdateTodo(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := todoID(w, r)
		if !ok {
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req todoUpdateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		patch := storage.Patch{
			Title:    req.Title,
			Reason:   req.Reason,
			Priority: req.Priority,
			Status:   req.Status,
		}
		if req.Deadline != nil {
			deadline, err := storage.ParseDeadline(*req.Deadline)
			if err != nil {
				httpError(w, http.StatusUnprocessableEntity, "invalid_request_error", "%v", err)
				return
			}
			patch.Deadline = deadline
		}

		todo, err := deps.Tasks.Update(r.Context(), id, patch)
		if err != nil {
			storageError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, todo)
	}
}

func handleCompleteTodo(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := todoID(w, r)
		if !ok {
			return
		}

		todo, err := deps.Tasks.Complete(r.Context(), id)
		if err != nil {
			storageError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, todo)
	}
}

func handleDeleteTodo(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := todoID(w, r)
		if !ok {
			return
		}

		if err := deps.Tasks.Delete(id); err != nil {
			storageError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func todoID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid todo id %q", raw)
		return 0, false
	}
	return id, true
}

// storageError translates store errors into HTTP responses.
func storageError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		httpError(w, http.StatusNotFound, "not_found", "todo not found")
	case errors.Is(err, storage.ErrValidation):
		httpError(w, http.StatusUnprocessableEntity, "invalid_request_error", "%v", err)
	default:
		httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
	}
}
