package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/vchat-meme-blip/polymarket-cafe/internal/director"
	"github.com/vchat-meme-blip/polymarket-cafe/internal/ids"
	"github.com/vchat-meme-blip/polymarket-cafe/internal/models"
)

// CreateRoomRequest pairs two agents. The first agent speaks first. ID
// is generated when empty.
type CreateRoomRequest struct {
	ID     string    `json:"id,omitempty"`
	Agents [2]string `json:"agents"`
}

// RoomListResponse is the GET /rooms body.
type RoomListResponse struct {
	Rooms []models.Room `json:"rooms"`
}

// MessagesResponse is the GET /rooms/{id}/messages body.
type MessagesResponse struct {
	RoomID   string               `json:"room_id"`
	Messages []models.ChatMessage `json:"messages"`
	HasMore  bool                 `json:"has_more"`
}

// CreateRoom handles POST /rooms.
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req.ID = strings.TrimSpace(req.ID)
	if req.ID == "" {
		req.ID = ids.NewRoomID()
	}
	if !idRegex.MatchString(req.ID) {
		h.Error(w, http.StatusBadRequest, "id must be 1-64 characters, alphanumeric with hyphens and underscores only")
		return
	}
	for i := range req.Agents {
		req.Agents[i] = strings.TrimSpace(req.Agents[i])
		if !idRegex.MatchString(req.Agents[i]) {
			h.Error(w, http.StatusBadRequest, "agents must be two valid agent IDs")
			return
		}
	}

	if err := h.director.CreateRoom(r.Context(), req.ID, req.Agents); err != nil {
		h.directorError(w, err)
		return
	}
	room, _ := h.director.Room(req.ID)
	h.JSON(w, http.StatusCreated, room)
}

// ListRooms handles GET /rooms.
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	h.JSON(w, http.StatusOK, RoomListResponse{Rooms: h.director.Rooms()})
}

// GetRoom handles GET /rooms/{id}.
func (h *Handler) GetRoom(w http.ResponseWriter, r *http.Request) {
	room, ok := h.director.Room(chi.URLParam(r, "id"))
	if !ok {
		h.Error(w, http.StatusNotFound, "room not found")
		return
	}
	h.JSON(w, http.StatusOK, room)
}

// DestroyRoom handles DELETE /rooms/{id}.
func (h *Handler) DestroyRoom(w http.ResponseWriter, r *http.Request) {
	if err := h.director.DestroyRoom(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.directorError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// KickRoom handles POST /rooms/{id}/kick.
func (h *Handler) KickRoom(w http.ResponseWriter, r *http.Request) {
	if err := h.director.KickRoom(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.directorError(w, err)
		return
	}
	h.JSON(w, http.StatusAccepted, map[string]string{"status": "scheduled"})
}

// GetRoomMessages handles GET /rooms/{id}/messages. With an activity
// history configured it pages through the full log; otherwise it
// returns the in-memory window.
func (h *Handler) GetRoomMessages(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "id")

	limit := 50
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 {
		limit = min(l, 200)
	}
	var before int64
	if b, err := strconv.ParseInt(r.URL.Query().Get("before"), 10, 64); err == nil {
		before = b
	}

	if h.history == nil {
		room, ok := h.director.Room(roomID)
		if !ok {
			h.Error(w, http.StatusNotFound, "room not found")
			return
		}
		msgs := room.Messages
		hasMore := len(msgs) > limit
		if hasMore {
			msgs = msgs[len(msgs)-limit:]
		}
		h.JSON(w, http.StatusOK, MessagesResponse{RoomID: roomID, Messages: msgs, HasMore: hasMore})
		return
	}

	// +1 for the has_more check
	msgs, err := h.history.GetRoomMessages(r.Context(), roomID, limit+1, before)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to fetch messages")
		return
	}
	hasMore := len(msgs) > limit
	if hasMore {
		msgs = msgs[:limit]
	}
	h.JSON(w, http.StatusOK, MessagesResponse{RoomID: roomID, Messages: msgs, HasMore: hasMore})
}

// GetRoomTrades handles GET /rooms/{id}/trades.
func (h *Handler) GetRoomTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := h.ledger.ListTrades(r.Context(), chi.URLParam(r, "id"), 100)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to list trades")
		return
	}
	if trades == nil {
		trades = []models.TradeRecord{}
	}
	h.JSON(w, http.StatusOK, map[string]any{"trades": trades})
}

func (h *Handler) directorError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, director.ErrRoomNotFound):
		h.Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, director.ErrRoomExists), errors.Is(err, director.ErrRoomBusy):
		h.Error(w, http.StatusConflict, err.Error())
	case errors.Is(err, director.ErrInvalidRoom):
		h.Error(w, http.StatusBadRequest, err.Error())
	default:
		h.Error(w, http.StatusInternalServerError, "internal error")
	}
}
