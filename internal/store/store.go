package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vchat-meme-blip/polymarket-cafe/internal/models"
)

var (
	ErrAgentNotFound        = errors.New("agent not found")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInsufficientHoldings = errors.New("insufficient token holdings")
	// ErrNoOffer means the room has no stored offer matching the plan,
	// usually because it was already settled or replaced.
	ErrNoOffer = errors.New("no active offer")
)

// TradePlan is a resolved offer ready to be applied atomically.
type TradePlan struct {
	TradeID    string
	RoomID     string
	Kind       models.OfferKind
	SellerID   string
	BuyerID    string
	Token      string
	Quantity   decimal.Decimal // zero for intel
	Total      decimal.Decimal
	ExecutedAt time.Time
}

// Record is the ledger entry the plan produces.
func (p TradePlan) Record() models.TradeRecord {
	return models.TradeRecord{
		ID:         p.TradeID,
		RoomID:     p.RoomID,
		SellerID:   p.SellerID,
		BuyerID:    p.BuyerID,
		Kind:       p.Kind,
		Token:      p.Token,
		Quantity:   p.Quantity,
		Price:      p.Total,
		ExecutedAt: p.ExecutedAt,
	}
}

// LedgerStore persists agent balances, portfolios, active offers and
// trades. PostgresStore, SQLiteStore and MemoryStore implement it.
type LedgerStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// Agent operations
	UpsertAgent(ctx context.Context, agent *models.Agent) error
	GetAgent(ctx context.Context, id string) (*models.Agent, error)

	// Offer operations
	SaveOffer(ctx context.Context, roomID string, offer models.Offer) error
	GetOffer(ctx context.Context, roomID string) (*models.Offer, error)
	ClearOffer(ctx context.Context, roomID string) error

	// ApplyTrade consumes the room's stored offer, debits the buyer,
	// credits the seller, moves tokens and appends the trade, all or
	// nothing. It fails with ErrNoOffer unless the stored offer matches
	// the plan, so an offer settles at most once.
	ApplyTrade(ctx context.Context, plan TradePlan) (*models.TradeRecord, error)
	ListTrades(ctx context.Context, roomID string, limit int) ([]models.TradeRecord, error)
}

// ActivityLog is the append-only sink for room activity.
type ActivityLog interface {
	AppendMessage(ctx context.Context, msg models.ChatMessage) error
	AppendTrade(ctx context.Context, trade models.TradeRecord) error
}

// offerMatches reports whether the stored offer is the one plan settles.
func offerMatches(offer models.Offer, plan TradePlan) bool {
	seller, buyer := offer.Parties()
	if offer.Kind != plan.Kind || seller != plan.SellerID || buyer != plan.BuyerID || offer.Token != plan.Token {
		return false
	}
	if !offer.Total().Equal(plan.Total) {
		return false
	}
	return offer.Kind != models.OfferToken || offer.Quantity.Equal(plan.Quantity)
}

// decodeOffer is offerMatches over a stored JSON payload.
func decodeOffer(payload []byte, plan TradePlan) error {
	var offer models.Offer
	if err := json.Unmarshal(payload, &offer); err != nil {
		return fmt.Errorf("decode stored offer: %w", err)
	}
	if !offerMatches(offer, plan) {
		return ErrNoOffer
	}
	return nil
}

// applyPlan validates plan against the current buyer and seller and
// mutates them in place. Callers pass copies and persist them only
// when applyPlan succeeds.
func applyPlan(seller, buyer *models.Agent, plan TradePlan) error {
	if buyer.Balance.LessThan(plan.Total) {
		return ErrInsufficientFunds
	}
	if plan.Kind == models.OfferToken && seller.Holding(plan.Token).LessThan(plan.Quantity) {
		return ErrInsufficientHoldings
	}

	buyer.Balance = buyer.Balance.Sub(plan.Total)
	seller.Balance = seller.Balance.Add(plan.Total)

	if plan.Kind == models.OfferToken {
		if buyer.Portfolio == nil {
			buyer.Portfolio = make(map[string]decimal.Decimal)
		}
		if seller.Portfolio == nil {
			seller.Portfolio = make(map[string]decimal.Decimal)
		}
		seller.Portfolio[plan.Token] = seller.Holding(plan.Token).Sub(plan.Quantity)
		buyer.Portfolio[plan.Token] = buyer.Holding(plan.Token).Add(plan.Quantity)
	}
	return nil
}

func cloneAgent(a *models.Agent) *models.Agent {
	c := *a
	c.Portfolio = make(map[string]decimal.Decimal, len(a.Portfolio))
	for k, v := range a.Portfolio {
		c.Portfolio[k] = v
	}
	return &c
}
