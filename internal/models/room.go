package models

import (
	"time"
)

// TurnState is where a room sits in its turn cycle.
type TurnState string

const (
	StateIdle          TurnState = "idle"
	StateAcquiring     TurnState = "acquiring"
	StateGenerating    TurnState = "generating"
	StateCompleted     TurnState = "completed"
	StateToolHandled   TurnState = "tool_handled"
	StateRateLimited   TurnState = "rate_limited"
	StateProviderError TurnState = "provider_error"
	StateGlobalPaused  TurnState = "global_paused"
	StateDestroyed     TurnState = "destroyed"
)

// Room is a snapshot of a two-agent conversation.
type Room struct {
	ID              string        `json:"id"`
	Agents          [2]string     `json:"agents"`
	Messages        []ChatMessage `json:"messages"`
	CurrentTurn     string        `json:"current_turn"`
	ActiveOffer     *Offer        `json:"active_offer,omitempty"`
	IsGenerating    bool          `json:"is_generating"`
	GeneratingSince *time.Time    `json:"generating_since,omitempty"`
	State           TurnState     `json:"state"`
	RetryAttempt    int           `json:"retry_attempt"`
	LastDelayMs     int64         `json:"last_delay_ms"`
	Topics          []string      `json:"topics,omitempty"`
	TurnCount       int64         `json:"turn_count"`
	CreatedAt       time.Time     `json:"created_at"`
	LastActivityAt  time.Time     `json:"last_activity_at"`
}

// HasParticipant reports whether agentID is one of the two agents.
func (r *Room) HasParticipant(agentID string) bool {
	return r.Agents[0] == agentID || r.Agents[1] == agentID
}

// Counterpart returns the other participant.
func (r *Room) Counterpart(agentID string) string {
	if r.Agents[0] == agentID {
		return r.Agents[1]
	}
	return r.Agents[0]
}
