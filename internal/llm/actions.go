package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/vchat-meme-blip/polymarket-cafe/internal/models"
)

// Tool names exposed to the model.
const (
	ToolProposeIntelOffer = "propose_intel_offer"
	ToolProposeTokenTrade = "propose_token_trade"
	ToolAcceptTrade       = "accept_trade"
	ToolRejectTrade       = "reject_trade"
)

// ErrUnknownTool is returned for tool names outside the negotiation set.
var ErrUnknownTool = errors.New("llm: unknown tool")

// Action is one negotiation move. The set is closed: only the types in
// this file implement it.
type Action interface {
	action()
}

// ProposeIntelOffer offers market intel on Token for Price.
type ProposeIntelOffer struct {
	Token string          `json:"token"`
	Price decimal.Decimal `json:"price"`
}

// ProposeTokenTrade proposes buying or selling Quantity of Token.
type ProposeTokenTrade struct {
	Action       models.TradeAction `json:"action"`
	Token        string             `json:"token"`
	Quantity     decimal.Decimal    `json:"quantity"`
	PricePerUnit decimal.Decimal    `json:"price_per_unit"`
}

// AcceptTrade accepts the pending offer.
type AcceptTrade struct{}

// RejectTrade declines the pending offer.
type RejectTrade struct{}

func (ProposeIntelOffer) action() {}
func (ProposeTokenTrade) action() {}
func (AcceptTrade) action()       {}
func (RejectTrade) action()       {}

// ParseAction decodes a tool call into its Action.
func ParseAction(call ToolCall) (Action, error) {
	args := strings.TrimSpace(call.Arguments)
	if args == "" {
		args = "{}"
	}

	switch call.Name {
	case ToolProposeIntelOffer:
		var a ProposeIntelOffer
		if err := json.Unmarshal([]byte(args), &a); err != nil {
			return nil, fmt.Errorf("%s arguments: %w", call.Name, err)
		}
		a.Token = strings.TrimSpace(a.Token)
		if a.Token == "" {
			return nil, fmt.Errorf("%s: token is required", call.Name)
		}
		return a, nil
	case ToolProposeTokenTrade:
		var raw struct {
			Action       string          `json:"action"`
			Token        string          `json:"token"`
			Quantity     decimal.Decimal `json:"quantity"`
			PricePerUnit decimal.Decimal `json:"price_per_unit"`
		}
		if err := json.Unmarshal([]byte(args), &raw); err != nil {
			return nil, fmt.Errorf("%s arguments: %w", call.Name, err)
		}
		action, ok := models.ParseTradeAction(raw.Action)
		if !ok {
			return nil, fmt.Errorf("%s: action must be BUY or SELL, got %q", call.Name, raw.Action)
		}
		token := strings.TrimSpace(raw.Token)
		if token == "" {
			return nil, fmt.Errorf("%s: token is required", call.Name)
		}
		return ProposeTokenTrade{
			Action:       action,
			Token:        token,
			Quantity:     raw.Quantity,
			PricePerUnit: raw.PricePerUnit,
		}, nil
	case ToolAcceptTrade:
		return AcceptTrade{}, nil
	case ToolRejectTrade:
		return RejectTrade{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownTool, call.Name)
}

// NegotiationTools is the tool set offered on every turn.
func NegotiationTools() []ToolSpec {
	return []ToolSpec{
		{
			Name:        ToolProposeIntelOffer,
			Description: "Offer to sell your market intel about a token to the other agent for a price in credits.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"token": map[string]any{"type": "string", "description": "Token symbol or market the intel is about."},
					"price": map[string]any{"type": "number", "description": "Asking price in credits."},
				},
				"required": []string{"token", "price"},
			},
		},
		{
			Name:        ToolProposeTokenTrade,
			Description: "Propose to BUY tokens from or SELL tokens to the other agent at a price per unit in credits.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"action":         map[string]any{"type": "string", "enum": []string{"BUY", "SELL"}},
					"token":          map[string]any{"type": "string"},
					"quantity":       map[string]any{"type": "number"},
					"price_per_unit": map[string]any{"type": "number"},
				},
				"required": []string{"action", "token", "quantity", "price_per_unit"},
			},
		},
		{
			Name:        ToolAcceptTrade,
			Description: "Accept the offer currently on the table.",
			Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
		},
		{
			Name:        ToolRejectTrade,
			Description: "Reject the offer currently on the table.",
			Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
		},
	}
}
