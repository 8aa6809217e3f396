package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Harshitk-cp/synapse/internal/api/middleware"
	"github.com/Harshitk-cp/synapse/internal/service"
)

type AttentionHandler struct {
	svc *service.AttentionService
}

func NewAttentionHandler(svc *service.AttentionService) *AttentionHandler {
	return &AttentionHandler{svc: svc}
}

type updateAttentionRequest struct {
	Concept         string   `json:"concept"`
	ContextConcepts []string `json:"context_concepts"`
}

type updateAttentionResponse struct {
	Concept      string `json:"concept"`
	PairsUpdated int    `json:"pairs_updated"`
}

// Update processes one learning event: links the learned concept with every
// co-occurring context concept.
func (h *AttentionHandler) Update(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.TenantFromContext(r.Context())
	if tenant == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req updateAttentionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Concept == "" {
		writeError(w, http.StatusBadRequest, "concept is required")
		return
	}

	if err := h.svc.UpdateAttentionGraph(r.Context(), tenant.ID, req.Concept, req.ContextConcepts); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update attention graph")
		return
	}

	pairs := 0
	seen := make(map[string]bool)
	for _, c := range req.ContextConcepts {
		if c != "" && c != req.Concept && !seen[c] {
			seen[c] = true
			pairs++
		}
	}

	writeJSON(w, http.StatusOK, updateAttentionResponse{
		Concept:      req.Concept,
		PairsUpdated: pairs,
	})
}

func (h *AttentionHandler) Stats(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.TenantFromContext(r.Context())
	if tenant == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	stats, err := h.svc.GetAttentionStats(r.Context(), tenant.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get attention stats")
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

type predictRequest struct {
	ConceptA string `json:"concept_a"`
	ConceptB string `json:"concept_b"`
}

type predictResponse struct {
	ConceptA string  `json:"concept_a"`
	ConceptB string  `json:"concept_b"`
	Strength float64 `json:"strength"`
}

// Predict runs the loaded model over one pair without persisting anything.
func (h *AttentionHandler) Predict(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.TenantFromContext(r.Context())
	if tenant == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req predictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ConceptA == "" || req.ConceptB == "" {
		writeError(w, http.StatusBadRequest, "concept_a and concept_b are required")
		return
	}

	strength, err := h.svc.PredictPair(r.Context(), tenant.ID, req.ConceptA, req.ConceptB)
	if err != nil {
		if errors.Is(err, service.ErrModelNotLoaded) {
			writeError(w, http.StatusServiceUnavailable, "no model loaded")
			return
		}
		writeError(w, http.StatusInternalServerError, "prediction failed")
		return
	}

	writeJSON(w, http.StatusOK, predictResponse{
		ConceptA: req.ConceptA,
		ConceptB: req.ConceptB,
		Strength: strength,
	})
}
