package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/fernwood/procure/internal/events"
	"github.com/fernwood/procure/internal/model"
	"github.com/fernwood/procure/internal/query"
	"github.com/fernwood/procure/internal/resource"
)

type createResourceInput struct {
	Type   model.ResourceType `json:"type"`
	Fields []model.FieldInput `json:"fields"`
}

// handleCreateResource handles POST /v1/resources.
func (s *Server) handleCreateResource(w http.ResponseWriter, r *http.Request) {
	acct := accountID(w, r)
	if acct == "" {
		return
	}

	var in createResourceInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if !in.Type.IsValid() {
		writeError(w, http.StatusBadRequest, "unknown resource type")
		return
	}

	res, err := s.resources.CreateResource(r.Context(), acct, in.Type, in.Fields)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

type searchResourcesInput struct {
	Type    model.ResourceType `json:"type"`
	Where   json.RawMessage    `json:"where,omitempty"`
	OrderBy json.RawMessage    `json:"order_by,omitempty"`
}

// handleSearchResources handles POST /v1/resources/search. Filters and
// ordering arrive as JSON-logic documents and are compiled against the
// account's schema; an unresolvable field name fails the whole request.
func (s *Server) handleSearchResources(w http.ResponseWriter, r *http.Request) {
	acct := accountID(w, r)
	if acct == "" {
		return
	}

	var in searchResourcesInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if !in.Type.IsValid() {
		writeError(w, http.StatusBadRequest, "unknown resource type")
		return
	}

	var (
		where   *query.Where
		orderBy []query.OrderBy
		err     error
	)
	if len(in.Where) > 0 {
		if where, err = query.ParseWhere(in.Where); err != nil {
			s.writeServiceError(w, err)
			return
		}
	}
	if len(in.OrderBy) > 0 {
		if orderBy, err = query.ParseOrderBy(in.OrderBy); err != nil {
			s.writeServiceError(w, err)
			return
		}
	}

	resources, err := s.resources.ReadResources(r.Context(), acct, in.Type, where, orderBy)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if resources == nil {
		resources = []*model.Resource{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"resources": resources,
		"total":     len(resources),
	})
}

// handleGetResource handles GET /v1/resources/{id}.
func (s *Server) handleGetResource(w http.ResponseWriter, r *http.Request) {
	acct := accountID(w, r)
	if acct == "" {
		return
	}

	res, err := s.resources.ReadResource(r.Context(), acct, r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleGetResourceByKey handles GET /v1/resources/by-key/{type}/{key}.
func (s *Server) handleGetResourceByKey(w http.ResponseWriter, r *http.Request) {
	acct := accountID(w, r)
	if acct == "" {
		return
	}

	rt := model.ResourceType(r.PathValue("type"))
	if !rt.IsValid() {
		writeError(w, http.StatusBadRequest, "unknown resource type")
		return
	}
	key, err := strconv.ParseInt(r.PathValue("key"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "key must be an integer")
		return
	}

	res, err := s.resources.ReadResourceByKey(r.Context(), acct, rt, key)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type updateResourceInput struct {
	Fields []model.FieldInput `json:"fields"`
}

// handleUpdateResource handles PATCH /v1/resources/{id}. The response body
// is the resource after derived-field propagation.
func (s *Server) handleUpdateResource(w http.ResponseWriter, r *http.Request) {
	acct := accountID(w, r)
	if acct == "" {
		return
	}

	var in updateResourceInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(in.Fields) == 0 {
		writeError(w, http.StatusBadRequest, "fields is required")
		return
	}

	res, err := s.resources.UpdateResource(r.Context(), acct, r.PathValue("id"), in.Fields)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleDeleteResource handles DELETE /v1/resources/{id}.
func (s *Server) handleDeleteResource(w http.ResponseWriter, r *http.Request) {
	acct := accountID(w, r)
	if acct == "" {
		return
	}

	if err := s.resources.DeleteResource(r.Context(), acct, r.PathValue("id")); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleAddCost handles POST /v1/resources/{id}/costs.
func (s *Server) handleAddCost(w http.ResponseWriter, r *http.Request) {
	acct := accountID(w, r)
	if acct == "" {
		return
	}

	var in resource.CostInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if in.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	cost, err := s.resources.AddCost(r.Context(), acct, r.PathValue("id"), in)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, cost)
}

// handleDeleteCost handles DELETE /v1/resources/{id}/costs/{cost_id}.
func (s *Server) handleDeleteCost(w http.ResponseWriter, r *http.Request) {
	acct := accountID(w, r)
	if acct == "" {
		return
	}

	if err := s.resources.DeleteCost(r.Context(), acct, r.PathValue("id"), r.PathValue("cost_id")); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type createContactInput struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// handleCreateContact handles POST /v1/contacts.
func (s *Server) handleCreateContact(w http.ResponseWriter, r *http.Request) {
	acct := accountID(w, r)
	if acct == "" {
		return
	}

	var in createContactInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if in.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	id, err := s.resources.CreateContact(r.Context(), acct, in.Name, in.Email)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// handleProvisionAccount handles POST /v1/accounts/provision: it seeds the
// caller's account with the system fields and section layouts. Safe to call
// again on an already provisioned account.
func (s *Server) handleProvisionAccount(w http.ResponseWriter, r *http.Request) {
	acct := accountID(w, r)
	if acct == "" {
		return
	}

	if err := s.schemas.ApplyTemplates(r.Context(), acct); err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.publish(r.Context(), events.TopicAccountProvisioned, events.AccountProvisioned{AccountID: acct})
	writeJSON(w, http.StatusOK, map[string]string{"account_id": acct})
}
