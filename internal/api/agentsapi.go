package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/tasknest/tasknest/internal/agents"
)

type agentRunRequest struct {
	Provider  string         `json:"provider"`
	Model     string         `json:"model"`
	UserInput string         `json:"user_input"`
	Metadata  map[string]any `json:"metadata"`
}

func handleAgentRun(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Agents == nil {
			httpError(w, http.StatusServiceUnavailable, "configuration_error", "agent routing is not configured")
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req agentRunRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Provider == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "provider is required")
			return
		}
		if strings.TrimSpace(req.UserInput) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "user_input is required")
			return
		}

		result, err := deps.Agents.Run(r.Context(), req.Provider, req.Model, req.UserInput, req.Metadata)
		if err != nil {
			agentError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, result)
	}
}

func agentError(w http.ResponseWriter, err error) {
	var cfgErr *agents.ConfigError
	var upErr *agents.UpstreamError
	switch {
	case errors.Is(err, agents.ErrUnknownProvider):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	case errors.As(err, &cfgErr):
		httpError(w, http.StatusServiceUnavailable, "configuration_error", "%v", err)
	case errors.As(err, &upErr):
		httpError(w, http.StatusBadGateway, "api_error", "%v", err)
	default:
		httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
	}
}
