package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
)

// envelope is the standard API response wrapper.
// All JSON responses use this format: { "data": ..., "error": ... }
type envelope struct {
	Data  any    `json:"data"`
	Error string `json:"error,omitempty"`
}

// writeJSON writes a JSON response with the given status code and data payload.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(envelope{Data: data}); err != nil {
		slog.Error("failed to encode json response", "error", err)
	}
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(envelope{Error: msg}); err != nil {
		slog.Error("failed to encode json error response", "error", err)
	}
}

// Pagination limits for list endpoints.
const (
	defaultLimit = 20
	maxLimit     = 200
)

// pagination holds validated limit/offset query parameters.
type pagination struct {
	Limit  int
	Offset int
}

// parsePagination reads limit and offset query parameters. The returned
// string is a user-facing error message; empty means success.
func parsePagination(r *http.Request) (pagination, string) {
	p := pagination{Limit: defaultLimit}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return p, "limit must be a positive integer"
		}
		if n > maxLimit {
			n = maxLimit
		}
		p.Limit = n
	}

	if raw := r.URL.Query().Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return p, "offset must be a non-negative integer"
		}
		p.Offset = n
	}

	return p, ""
}

// PaginatedResponse is the data payload for list endpoints.
type PaginatedResponse struct {
	Items  any `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}
