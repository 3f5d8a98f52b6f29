// Package ledger settles accepted offers against the agent ledger.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/vchat-meme-blip/polymarket-cafe/internal/clock"
	"github.com/vchat-meme-blip/polymarket-cafe/internal/ids"
	"github.com/vchat-meme-blip/polymarket-cafe/internal/metrics"
	"github.com/vchat-meme-blip/polymarket-cafe/internal/models"
	"github.com/vchat-meme-blip/polymarket-cafe/internal/store"
)

// ErrNoOffer is returned when there is nothing to settle, including an
// offer that was already settled or replaced in the store.
var ErrNoOffer = store.ErrNoOffer

// Engine turns an accepted offer into one atomic ledger mutation.
type Engine struct {
	ledger store.LedgerStore
	clock  clock.Clock
	logger zerolog.Logger
}

// NewEngine creates a settlement engine over ledger.
func NewEngine(ledger store.LedgerStore, c clock.Clock, logger zerolog.Logger) *Engine {
	return &Engine{
		ledger: ledger,
		clock:  c,
		logger: logger.With().Str("component", "ledger").Logger(),
	}
}

// Plan resolves buyer, seller and total for offer without touching the
// ledger.
func (e *Engine) Plan(roomID string, offer *models.Offer) (store.TradePlan, error) {
	if offer == nil {
		return store.TradePlan{}, ErrNoOffer
	}
	if err := offer.Validate(); err != nil {
		return store.TradePlan{}, err
	}

	seller, buyer := offer.Parties()
	plan := store.TradePlan{
		TradeID:    ids.NewTradeID(),
		RoomID:     roomID,
		Kind:       offer.Kind,
		SellerID:   seller,
		BuyerID:    buyer,
		Token:      offer.Token,
		Total:      offer.Total(),
		ExecutedAt: e.clock.Now().UTC(),
	}
	if offer.Kind == models.OfferToken {
		plan.Quantity = offer.Quantity
	}
	return plan, nil
}

// Settle applies offer to the ledger. Either both agents are updated,
// one trade is recorded and the stored offer is cleared, or nothing
// changes and an error is returned.
func (e *Engine) Settle(ctx context.Context, roomID string, offer *models.Offer) (*models.TradeRecord, error) {
	plan, err := e.Plan(roomID, offer)
	if err != nil {
		metrics.TradesFailed.WithLabelValues("invalid").Inc()
		return nil, err
	}

	record, err := e.ledger.ApplyTrade(ctx, plan)
	if err != nil {
		metrics.TradesFailed.WithLabelValues(failureReason(err)).Inc()
		e.logger.Warn().
			Err(err).
			Str("room", roomID).
			Str("seller", plan.SellerID).
			Str("buyer", plan.BuyerID).
			Str("total", plan.Total.String()).
			Msg("settlement rejected")
		return nil, fmt.Errorf("settle %s offer: %w", plan.Kind, err)
	}

	metrics.TradesExecuted.WithLabelValues(string(plan.Kind)).Inc()
	e.logger.Info().
		Str("room", roomID).
		Str("trade", record.ID).
		Str("seller", record.SellerID).
		Str("buyer", record.BuyerID).
		Str("token", record.Token).
		Str("price", record.Price.String()).
		Msg("trade executed")
	return record, nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, store.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, store.ErrInsufficientHoldings):
		return "insufficient_holdings"
	case errors.Is(err, store.ErrAgentNotFound):
		return "agent_not_found"
	case errors.Is(err, store.ErrNoOffer):
		return "no_offer"
	}
	return "store"
}
