package server

import (
	"encoding/json"
	"net/http"

	"github.com/fernwood/procure/internal/events"
	"github.com/fernwood/procure/internal/model"
	"github.com/fernwood/procure/internal/schema"
)

// handleGetSchema handles GET /v1/schemas/{type}.
func (s *Server) handleGetSchema(w http.ResponseWriter, r *http.Request) {
	acct := accountID(w, r)
	if acct == "" {
		return
	}

	rt := model.ResourceType(r.PathValue("type"))
	if !rt.IsValid() {
		writeError(w, http.StatusBadRequest, "unknown resource type")
		return
	}

	sch, err := s.schemas.ReadSchema(r.Context(), acct, rt)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sch)
}

// handleCreateField handles POST /v1/fields.
func (s *Server) handleCreateField(w http.ResponseWriter, r *http.Request) {
	acct := accountID(w, r)
	if acct == "" {
		return
	}

	var in schema.FieldInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	field, err := s.schemas.CreateField(r.Context(), acct, in)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.publish(r.Context(), events.TopicFieldCreated, events.FieldCreated{Field: field})
	writeJSON(w, http.StatusCreated, field)
}

// handleGetField handles GET /v1/fields/{id}.
func (s *Server) handleGetField(w http.ResponseWriter, r *http.Request) {
	acct := accountID(w, r)
	if acct == "" {
		return
	}

	field, err := s.schemas.ReadField(r.Context(), acct, r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, field)
}

// handleUpdateField handles PATCH /v1/fields/{id}.
func (s *Server) handleUpdateField(w http.ResponseWriter, r *http.Request) {
	acct := accountID(w, r)
	if acct == "" {
		return
	}

	var up schema.FieldUpdate
	if err := json.NewDecoder(r.Body).Decode(&up); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	field, err := s.schemas.UpdateField(r.Context(), acct, r.PathValue("id"), up)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.publish(r.Context(), events.TopicFieldUpdated, events.FieldUpdated{Field: field})
	writeJSON(w, http.StatusOK, field)
}

// handleDeleteField handles DELETE /v1/fields/{id}.
func (s *Server) handleDeleteField(w http.ResponseWriter, r *http.Request) {
	acct := accountID(w, r)
	if acct == "" {
		return
	}

	id := r.PathValue("id")
	if err := s.schemas.DeleteField(r.Context(), acct, id); err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.publish(r.Context(), events.TopicFieldDeleted, events.FieldDeleted{AccountID: acct, FieldID: id})
	w.WriteHeader(http.StatusNoContent)
}
