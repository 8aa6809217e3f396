package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/Harshitk-cp/synapse/internal/api/middleware"
	"github.com/Harshitk-cp/synapse/internal/domain"
)

type ConceptHandler struct {
	store domain.ConceptStore
}

func NewConceptHandler(store domain.ConceptStore) *ConceptHandler {
	return &ConceptHandler{store: store}
}

type createConceptRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (h *ConceptHandler) Create(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.TenantFromContext(r.Context())
	if tenant == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req createConceptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	concept := &domain.Concept{
		TenantID:    tenant.ID,
		Name:        req.Name,
		Description: req.Description,
	}
	if err := h.store.Create(r.Context(), concept); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create concept")
		return
	}

	writeJSON(w, http.StatusCreated, concept)
}

type listConceptsResponse struct {
	Concepts []domain.Concept `json:"concepts"`
	Count    int              `json:"count"`
}

func (h *ConceptHandler) List(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.TenantFromContext(r.Context())
	if tenant == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	concepts, err := h.store.GetByTenant(r.Context(), tenant.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list concepts")
		return
	}

	writeJSON(w, http.StatusOK, listConceptsResponse{
		Concepts: concepts,
		Count:    len(concepts),
	})
}
