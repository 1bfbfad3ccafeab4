package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fernwood/procure/internal/blob"
	"github.com/fernwood/procure/internal/model"
)

// NewHTTPHandler returns an http.Handler with all routes registered.
// When authToken is non-empty, requests (except GET /v1/health) must include
// a valid Authorization: Bearer <token> header. Every other route also
// requires an X-Account-ID header naming the tenant.
func (s *Server) NewHTTPHandler(authToken string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/accounts/provision", s.handleProvisionAccount)

	mux.HandleFunc("GET /v1/schemas/{type}", s.handleGetSchema)
	mux.HandleFunc("POST /v1/fields", s.handleCreateField)
	mux.HandleFunc("GET /v1/fields/{id}", s.handleGetField)
	mux.HandleFunc("PATCH /v1/fields/{id}", s.handleUpdateField)
	mux.HandleFunc("DELETE /v1/fields/{id}", s.handleDeleteField)

	mux.HandleFunc("POST /v1/resources", s.handleCreateResource)
	mux.HandleFunc("POST /v1/resources/search", s.handleSearchResources)
	mux.HandleFunc("GET /v1/resources/{id}", s.handleGetResource)
	mux.HandleFunc("GET /v1/resources/by-key/{type}/{key}", s.handleGetResourceByKey)
	mux.HandleFunc("PATCH /v1/resources/{id}", s.handleUpdateResource)
	mux.HandleFunc("DELETE /v1/resources/{id}", s.handleDeleteResource)
	mux.HandleFunc("POST /v1/resources/{id}/costs", s.handleAddCost)
	mux.HandleFunc("DELETE /v1/resources/{id}/costs/{cost_id}", s.handleDeleteCost)

	mux.HandleFunc("POST /v1/contacts", s.handleCreateContact)

	mux.HandleFunc("POST /v1/blobs", s.handleUploadBlob)
	mux.HandleFunc("GET /v1/blobs/{id}", s.handleDownloadBlob)
	mux.HandleFunc("DELETE /v1/blobs/{id}", s.handleDeleteBlob)

	mux.HandleFunc("GET /v1/events/stream", s.handleEventStream)
	mux.HandleFunc("GET /v1/health", s.handleHealth)

	return AuthMiddleware(authToken, RecoveryMiddleware(s.logger, mux))
}

// handleHealth handles GET /v1/health.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// accountID extracts the tenant from the X-Account-ID header, writing a 400
// and returning "" when absent.
func accountID(w http.ResponseWriter, r *http.Request) string {
	id := r.Header.Get("X-Account-ID")
	if id == "" {
		writeError(w, http.StatusBadRequest, "X-Account-ID header is required")
	}
	return id
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeServiceError maps domain errors onto HTTP status codes: missing
// resources and fields become 404, caller defects become 400, everything
// else is a 500 with the detail kept out of the response body.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case model.IsNotFound(err), errors.Is(err, blob.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case model.IsUserError(err):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
