package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// GetAgent handles GET /agents/{id}: the ledger view of one agent.
func (h *Handler) GetAgent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !idRegex.MatchString(id) {
		h.Error(w, http.StatusBadRequest, "invalid agent ID format")
		return
	}

	agent, err := h.ledger.GetAgent(r.Context(), id)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if agent == nil {
		h.Error(w, http.StatusNotFound, "agent not found")
		return
	}
	h.JSON(w, http.StatusOK, agent)
}
