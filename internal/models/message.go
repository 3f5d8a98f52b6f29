package models

// MessageKind distinguishes agent speech from director notes.
type MessageKind string

const (
	MessageAgent  MessageKind = "agent"
	MessageSystem MessageKind = "system"
)

// SystemSender is the sender of every director-authored message.
const SystemSender = "system"

// MaxWindow is the number of messages a room keeps in memory.
const MaxWindow = 50

// ChatMessage is one line of a room transcript. Immutable once appended.
type ChatMessage struct {
	ID        string      `json:"id"`     // ULID
	RoomID    string      `json:"room_id"`
	Sender    string      `json:"sender"` // agent ID or "system"
	Text      string      `json:"text"`
	Kind      MessageKind `json:"kind"`
	Timestamp int64       `json:"ts"` // Unix ms
}

// AppendWindow appends msg to window, dropping the oldest entries so
// the result never exceeds MaxWindow. Order is preserved.
func AppendWindow(window []ChatMessage, msg ChatMessage) []ChatMessage {
	window = append(window, msg)
	if over := len(window) - MaxWindow; over > 0 {
		trimmed := make([]ChatMessage, MaxWindow)
		copy(trimmed, window[over:])
		window = trimmed
	}
	return window
}
