package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/tasknest/tasknest/internal/genai"
	"github.com/tasknest/tasknest/internal/storage"
)

type generateRequest struct {
	UserInput string `json:"user_input"`
	Save      bool   `json:"save"`
}

type generateResponse struct {
	Todos        []genai.GeneratedNode `json:"todos"`
	PersistedIDs []int64               `json:"persisted_ids,omitempty"`
}

// handleGenerate turns a free-form goal into a structured todo forest.
// With save=true the forest is persisted in one transaction and the new
// root-order ids are returned alongside it.
func handleGenerate(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Generator == nil {
			httpError(w, http.StatusServiceUnavailable, "configuration_error", "AI generation is not configured")
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if strings.TrimSpace(req.UserInput) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "user_input is required")
			return
		}

		forest, err := deps.Generator.Generate(r.Context(), req.UserInput)
		if err != nil {
			generationError(w, err)
			return
		}
		if forest == nil {
			forest = []genai.GeneratedNode{}
		}

		resp := generateResponse{Todos: forest}

		if req.Save {
			saved, err := deps.Tasks.SaveGenerated(r.Context(), forest)
			if err != nil {
				storageError(w, err)
				return
			}
			ids := make([]int64, len(saved))
			for i, t := range saved {
				ids[i] = t.ID
			}
			resp.PersistedIDs = ids
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func generationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, genai.ErrMissingAPIKey):
		httpError(w, http.StatusServiceUnavailable, "configuration_error", "AI generation is not configured: %v", err)
	case errors.Is(err, genai.ErrGenerationFailed):
		httpError(w, http.StatusBadGateway, "api_error", "%v", err)
	case errors.Is(err, storage.ErrValidation):
		httpError(w, http.StatusUnprocessableEntity, "invalid_request_error", "%v", err)
	default:
		httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
	}
}
