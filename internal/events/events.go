// Package events carries director notifications to the outside world:
// websocket clients, other processes over Redis, and tests.
package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/vchat-meme-blip/polymarket-cafe/internal/models"
)

// Type names an outbound event.
type Type string

const (
	RoomCreated          Type = "roomCreated"
	RoomDestroyed        Type = "roomDestroyed"
	AgentThinking        Type = "agentThinking"
	NewConversationTurn  Type = "newConversationTurn"
	TurnChanged          Type = "turnChanged"
	RoomUpdated          Type = "roomUpdated"
	TradeExecuted        Type = "tradeExecuted"
	GlobalPauseRequested Type = "globalPauseRequested"
	ConversationEnded    Type = "conversationEnded"
)

// Event is one outbound notification. Payload is one of the payload
// types below.
type Event struct {
	Type      Type      `json:"type"`
	RoomID    string    `json:"room_id,omitempty"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"ts"`
}

type AgentThinkingPayload struct {
	AgentID    string `json:"agent_id"`
	IsThinking bool   `json:"is_thinking"`
}

type NewTurnPayload struct {
	Turn models.ChatMessage `json:"turn"`
}

type TurnChangedPayload struct {
	CurrentTurn  string `json:"current_turn"`
	PreviousTurn string `json:"previous_turn"`
}

type RoomPayload struct {
	Room models.Room `json:"room"`
}

type TradePayload struct {
	Trade models.TradeRecord `json:"trade"`
}

// GlobalPausePayload is escalated for cross-process coordination.
type GlobalPausePayload struct {
	DurationMs int64     `json:"duration_ms"`
	Reason     string    `json:"reason"`
	ResumeTime time.Time `json:"resume_time"`
}

// ConversationEndedPayload is delivered to the teardown handler before
// the room is destroyed.
type ConversationEndedPayload struct {
	AgentID string        `json:"agent_id"`
	Cue     string        `json:"cue"`
	Grace   time.Duration `json:"grace"`
}

// Publisher delivers events. Implementations must not block for long;
// the director calls Publish outside its lock but on the turn path.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Multi fans an event out to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder keeps every published event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfType returns the recorded events of type t in publish order.
func (r *Recorder) OfType(t Type) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// Reset forgets all recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
