package models

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OfferKind tags the variant an Offer holds.
type OfferKind string

const (
	OfferIntel OfferKind = "intel"
	OfferToken OfferKind = "token"
)

// TradeAction is the proposer's side of a token trade.
type TradeAction string

const (
	ActionBuy  TradeAction = "BUY"
	ActionSell TradeAction = "SELL"
)

// ParseTradeAction accepts BUY or SELL in any case.
func ParseTradeAction(s string) (TradeAction, bool) {
	switch TradeAction(strings.ToUpper(strings.TrimSpace(s))) {
	case ActionBuy:
		return ActionBuy, true
	case ActionSell:
		return ActionSell, true
	}
	return "", false
}

// ErrInvalidOffer is returned for offers that could never settle.
var ErrInvalidOffer = errors.New("invalid offer")

// Offer is the single pending proposal in a room. Kind selects which
// fields are meaningful: intel offers carry Price, token offers carry
// Action, Quantity and PricePerUnit.
type Offer struct {
	Kind         OfferKind       `json:"kind"`
	From         string          `json:"from"`
	To           string          `json:"to"`
	Token        string          `json:"token"`
	Price        decimal.Decimal `json:"price,omitempty"`
	Action       TradeAction     `json:"action,omitempty"`
	Quantity     decimal.Decimal `json:"quantity,omitempty"`
	PricePerUnit decimal.Decimal `json:"price_per_unit,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// NewIntelOffer builds an intel offer from the speaker to the listener.
func NewIntelOffer(from, to, token string, price decimal.Decimal) Offer {
	return Offer{
		Kind:  OfferIntel,
		From:  from,
		To:    to,
		Token: token,
		Price: price,
	}
}

// NewTokenOffer builds a token trade proposal.
func NewTokenOffer(from, to string, action TradeAction, token string, quantity, pricePerUnit decimal.Decimal) Offer {
	return Offer{
		Kind:         OfferToken,
		From:         from,
		To:           to,
		Token:        token,
		Action:       action,
		Quantity:     quantity,
		PricePerUnit: pricePerUnit,
	}
}

// Total is the currency that changes hands if the offer settles.
func (o Offer) Total() decimal.Decimal {
	if o.Kind == OfferToken {
		return o.Quantity.Mul(o.PricePerUnit)
	}
	return o.Price
}

// Parties resolves who sells and who buys. For intel the proposer
// always sells; for token trades it depends on the proposer's action.
func (o Offer) Parties() (seller, buyer string) {
	if o.Kind == OfferToken && o.Action == ActionBuy {
		return o.To, o.From
	}
	return o.From, o.To
}

// Validate rejects offers that could never settle.
func (o Offer) Validate() error {
	if o.From == "" || o.To == "" || o.From == o.To {
		return ErrInvalidOffer
	}
	if strings.TrimSpace(o.Token) == "" {
		return ErrInvalidOffer
	}
	switch o.Kind {
	case OfferIntel:
		if o.Price.IsNegative() {
			return ErrInvalidOffer
		}
	case OfferToken:
		if o.Action != ActionBuy && o.Action != ActionSell {
			return ErrInvalidOffer
		}
		if !o.Quantity.IsPositive() || o.PricePerUnit.IsNegative() {
			return ErrInvalidOffer
		}
	default:
		return ErrInvalidOffer
	}
	return nil
}

// Same reports whether o and other are the same proposal.
func (o Offer) Same(other Offer) bool {
	return o.Kind == other.Kind &&
		o.From == other.From &&
		o.To == other.To &&
		o.Token == other.Token &&
		o.Action == other.Action &&
		o.Price.Equal(other.Price) &&
		o.Quantity.Equal(other.Quantity) &&
		o.PricePerUnit.Equal(other.PricePerUnit) &&
		o.CreatedAt.Equal(other.CreatedAt)
}
