package director

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vchat-meme-blip/polymarket-cafe/internal/events"
	"github.com/vchat-meme-blip/polymarket-cafe/internal/llm"
	"github.com/vchat-meme-blip/polymarket-cafe/internal/models"
	"github.com/vchat-meme-blip/polymarket-cafe/internal/store"
)

// maxTopics is how many recently negotiated tokens a room remembers.
const maxTopics = 5

// toolOutcome is the effect of one turn's tool calls, applied to the
// room after the ledger work is done.
type toolOutcome struct {
	offerChanged bool
	offer        *models.Offer
	topics       []string
	narration    []string
	trades       []models.TradeRecord
	// consumed are the offers this turn accepted or rejected.
	consumed []models.Offer
}

func (o *toolOutcome) applyLocked(rs *roomState) {
	if o.offerChanged {
		rs.room.ActiveOffer = o.offer
	}
	for _, token := range o.topics {
		rs.room.Topics = addTopic(rs.room.Topics, token)
	}
}

// applyStaleLocked is applyLocked for a turn the watchdog superseded.
// The ledger may already have settled an offer, so that offer still
// comes off the table; everything else the turn did is dropped. It
// reports whether the room changed.
func (o *toolOutcome) applyStaleLocked(rs *roomState) bool {
	if rs.room.ActiveOffer == nil {
		return false
	}
	for _, offer := range o.consumed {
		if rs.room.ActiveOffer.Same(offer) {
			rs.room.ActiveOffer = nil
			return true
		}
	}
	return false
}

func (o *toolOutcome) tradeEvents(roomID string) []events.Event {
	evs := make([]events.Event, 0, len(o.trades))
	for _, trade := range o.trades {
		evs = append(evs, events.Event{Type: events.TradeExecuted, RoomID: roomID, Payload: events.TradePayload{Trade: trade}})
	}
	return evs
}

func (o *toolOutcome) setOffer(offer *models.Offer) {
	o.offerChanged = true
	o.offer = offer
}

// processToolCalls applies the speaker's negotiation moves in order.
// Proposals replace the pending offer outright; accept settles it and
// reject drops it. The offer is cleared exactly once per accept or
// reject whether or not settlement succeeds.
func (d *Director) processToolCalls(ctx context.Context, t turn, calls []llm.ToolCall) *toolOutcome {
	out := &toolOutcome{}
	if len(calls) == 0 {
		return out
	}

	var current *models.Offer
	d.withTurn(t.roomID, t.epoch, func(rs *roomState) {
		if rs.room.ActiveOffer != nil {
			o := *rs.room.ActiveOffer
			current = &o
		}
	})
	names := map[string]string{t.speaker: t.speakerName, t.listener: t.listenerName}

	for _, call := range calls {
		action, err := llm.ParseAction(call)
		if err != nil {
			d.logger.Warn().Err(err).Str("room", t.roomID).Str("agent", t.speaker).Str("tool", call.Name).Msg("ignoring tool call")
			continue
		}

		switch a := action.(type) {
		case llm.ProposeIntelOffer:
			offer := models.NewIntelOffer(t.speaker, t.listener, a.Token, a.Price)
			if d.propose(ctx, t, out, offer) {
				current = &offer
				out.narration = append(out.narration, fmt.Sprintf("%s offered intel on %s for %s credits.",
					t.speakerName, offer.Token, offer.Price.String()))
			}

		case llm.ProposeTokenTrade:
			offer := models.NewTokenOffer(t.speaker, t.listener, a.Action, a.Token, a.Quantity, a.PricePerUnit)
			if d.propose(ctx, t, out, offer) {
				current = &offer
				out.narration = append(out.narration, fmt.Sprintf("%s proposed to %s %s %s at %s credits each.",
					t.speakerName, strings.ToLower(string(offer.Action)), offer.Quantity.String(), offer.Token, offer.PricePerUnit.String()))
			}

		case llm.RejectTrade:
			switch {
			case current == nil:
				out.narration = append(out.narration, t.speakerName+" has no offer to reject.")
			case current.From == t.speaker:
				out.narration = append(out.narration, t.speakerName+" can't reject their own offer.")
			default:
				d.clearStoredOffer(ctx, t.roomID)
				out.consumed = append(out.consumed, *current)
				current = nil
				out.setOffer(nil)
				out.narration = append(out.narration, t.speakerName+" rejected the offer.")
			}

		case llm.AcceptTrade:
			switch {
			case current == nil:
				out.narration = append(out.narration, t.speakerName+" tried to accept, but there is no offer on the table.")
			case current.From == t.speaker:
				out.narration = append(out.narration, t.speakerName+" can't accept their own offer.")
			default:
				out.narration = append(out.narration, d.accept(ctx, t, current, names, out))
				out.consumed = append(out.consumed, *current)
				current = nil
				out.setOffer(nil)
			}

		default:
			d.logger.Warn().Str("room", t.roomID).Str("tool", call.Name).Msg("unhandled negotiation action")
		}
	}
	return out
}

// propose validates and persists a new offer, replacing any prior one.
// A superseded turn proposes nothing.
func (d *Director) propose(ctx context.Context, t turn, out *toolOutcome, offer models.Offer) bool {
	offer.CreatedAt = d.clock.Now()
	if err := offer.Validate(); err != nil {
		d.logger.Warn().Err(err).Str("room", t.roomID).Str("agent", t.speaker).Msg("ignoring invalid proposal")
		return false
	}
	if !d.withTurn(t.roomID, t.epoch, func(*roomState) {}) {
		return false
	}
	if err := d.ledger.SaveOffer(ctx, t.roomID, offer); err != nil {
		d.logger.Warn().Err(err).Str("room", t.roomID).Msg("failed to persist offer")
	}
	out.setOffer(&offer)
	out.topics = append(out.topics, offer.Token)
	return true
}

// accept settles offer and returns the narration line.
func (d *Director) accept(ctx context.Context, t turn, offer *models.Offer, names map[string]string, out *toolOutcome) string {
	seller, buyer := offer.Parties()
	sellerName, buyerName := nameOf(seller, names), nameOf(buyer, names)

	trade, err := d.settler.Settle(ctx, t.roomID, offer)
	if errors.Is(err, store.ErrNoOffer) {
		// Already settled or replaced; whatever is stored now stays.
		return "The trade fell through: that offer is no longer on the table."
	}
	if err != nil {
		// Success clears the stored offer inside the settlement
		// transaction; failure has to do it here.
		d.clearStoredOffer(ctx, t.roomID)
		switch {
		case errors.Is(err, store.ErrInsufficientFunds):
			return fmt.Sprintf("The trade fell through: %s doesn't have %s credits.", buyerName, offer.Total().String())
		case errors.Is(err, store.ErrInsufficientHoldings):
			return fmt.Sprintf("The trade fell through: %s doesn't hold %s %s.", sellerName, offer.Quantity.String(), offer.Token)
		case errors.Is(err, store.ErrAgentNotFound):
			return "The trade fell through: one of the traders has no account."
		}
		d.logger.Error().Err(err).Str("room", t.roomID).Msg("settlement failed")
		return "The trade could not be settled."
	}

	out.trades = append(out.trades, *trade)
	if offer.Kind == models.OfferToken {
		return fmt.Sprintf("%s bought %s %s from %s for %s credits.",
			buyerName, trade.Quantity.String(), trade.Token, sellerName, trade.Price.String())
	}
	return fmt.Sprintf("%s bought intel on %s from %s for %s credits.",
		buyerName, trade.Token, sellerName, trade.Price.String())
}

func (d *Director) clearStoredOffer(ctx context.Context, roomID string) {
	if err := d.ledger.ClearOffer(ctx, roomID); err != nil {
		d.logger.Warn().Err(err).Str("room", roomID).Msg("failed to clear stored offer")
	}
}

// addTopic moves token to the end of topics, keeping the last maxTopics.
func addTopic(topics []string, token string) []string {
	out := make([]string, 0, len(topics)+1)
	for _, existing := range topics {
		if !strings.EqualFold(existing, token) {
			out = append(out, existing)
		}
	}
	out = append(out, token)
	if len(out) > maxTopics {
		out = out[len(out)-maxTopics:]
	}
	return out
}
