package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeRecord is an append-only ledger entry for a settled offer.
// Quantity is zero for intel trades; Price is always the total paid.
type TradeRecord struct {
	ID         string          `json:"id"`
	RoomID     string          `json:"room_id"`
	SellerID   string          `json:"seller_id"`
	BuyerID    string          `json:"buyer_id"`
	Kind       OfferKind       `json:"kind"`
	Token      string          `json:"token"`
	Quantity   decimal.Decimal `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	ExecutedAt time.Time       `json:"executed_at"`
}
