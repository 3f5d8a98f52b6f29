package handlers

import (
	"encoding/json"
	"net/http"
	"time"
)

// PauseRequest starts a global pause. Until wins over DurationMs; with
// neither the director's default duration applies.
type PauseRequest struct {
	DurationMs int64     `json:"duration_ms,omitempty"`
	Until      time.Time `json:"until,omitempty"`
}

// GetPause handles GET /pause.
func (h *Handler) GetPause(w http.ResponseWriter, r *http.Request) {
	h.JSON(w, http.StatusOK, h.director.PauseState())
}

// Pause handles POST /pause.
func (h *Handler) Pause(w http.ResponseWriter, r *http.Request) {
	var req PauseRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.Error(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}
	if req.DurationMs < 0 {
		h.Error(w, http.StatusBadRequest, "duration_ms must not be negative")
		return
	}

	until := req.Until
	if until.IsZero() && req.DurationMs > 0 {
		until = h.now().Add(time.Duration(req.DurationMs) * time.Millisecond)
	}
	if !until.IsZero() && !until.After(h.now()) {
		h.Error(w, http.StatusBadRequest, "until must be in the future")
		return
	}

	h.director.SetPauseState(true, until)
	h.JSON(w, http.StatusOK, h.director.PauseState())
}

// Resume handles DELETE /pause.
func (h *Handler) Resume(w http.ResponseWriter, r *http.Request) {
	h.director.SetPauseState(false, time.Time{})
	h.JSON(w, http.StatusOK, h.director.PauseState())
}
