package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"time"

	"github.com/vchat-meme-blip/polymarket-cafe/internal/models"
	"github.com/vchat-meme-blip/polymarket-cafe/internal/pause"
	"github.com/vchat-meme-blip/polymarket-cafe/internal/store"
)

// idRegex validates room and agent IDs: alphanumeric, hyphens,
// underscores, 1-64 chars.
var idRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// Director is the part of the conversation director the control API
// drives.
type Director interface {
	CreateRoom(ctx context.Context, roomID string, agents [2]string) error
	DestroyRoom(ctx context.Context, roomID string) error
	KickRoom(ctx context.Context, roomID string) error
	Room(roomID string) (models.Room, bool)
	Rooms() []models.Room
	PauseState() pause.State
	SetPauseState(paused bool, until time.Time)
}

// History reads room messages beyond the in-memory window.
type History interface {
	GetRoomMessages(ctx context.Context, roomID string, limit int, before int64) ([]models.ChatMessage, error)
}

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	director Director
	ledger   store.LedgerStore
	history  History
	pinger   Pinger
	now      func() time.Time
}

// Pinger is a health-checked dependency such as Redis.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewHandler creates a new Handler. history and redis may be nil when
// Redis is not configured.
func NewHandler(d Director, ledger store.LedgerStore, history History, redis Pinger) *Handler {
	return &Handler{director: d, ledger: ledger, history: history, pinger: redis, now: time.Now}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}
