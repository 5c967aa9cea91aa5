package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/tasknest/tasknest/internal/memory"
)

const (
	defaultSearchLimit = 5
	maxSearchLimit     = 50
)

type memorySearchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

type memorySearchResponse struct {
	Results []memory.SearchResult `json:"results"`
}

func handleMemorySearch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Memory == nil {
			httpError(w, http.StatusServiceUnavailable, "configuration_error", "semantic search is not configured")
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req memorySearchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if strings.TrimSpace(req.Query) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "query is required")
			return
		}

		limit := req.Limit
		if limit <= 0 {
			limit = defaultSearchLimit
		}
		if limit > maxSearchLimit {
			limit = maxSearchLimit
		}

		results, err := deps.Memory.Search(r.Context(), req.Query, limit)
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "search failed: %v", err)
			return
		}
		if results == nil {
			results = []memory.SearchResult{}
		}

		writeJSON(w, http.StatusOK, memorySearchResponse{Results: results})
	}
}
