package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Agent is the ledger view of a simulated agent.
type Agent struct {
	ID        string                     `json:"id"`
	Name      string                     `json:"name"`
	Persona   string                     `json:"persona,omitempty"`
	Balance   decimal.Decimal            `json:"balance"`
	Portfolio map[string]decimal.Decimal `json:"portfolio"`
	CreatedAt time.Time                  `json:"created_at"`
	UpdatedAt time.Time                  `json:"updated_at"`
}

// Holding returns the quantity of token the agent owns.
func (a *Agent) Holding(token string) decimal.Decimal {
	if a.Portfolio == nil {
		return decimal.Zero
	}
	return a.Portfolio[token]
}

// DisplayName falls back to the ID for agents without a name.
func (a *Agent) DisplayName() string {
	if a.Name == "" {
		return a.ID
	}
	return a.Name
}
