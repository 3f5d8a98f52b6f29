package store

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vchat-meme-blip/polymarket-cafe/internal/models"
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func seed(t *testing.T, s LedgerStore, id string, balance int64, portfolio map[string]decimal.Decimal) {
	t.Helper()
	require.NoError(t, s.UpsertAgent(context.Background(), &models.Agent{
		ID:        id,
		Name:      id + "-name",
		Persona:   "a trader",
		Balance:   d(balance),
		Portfolio: portfolio,
	}))
}

func intelPlan(roomID, seller, buyer string, price int64) TradePlan {
	return TradePlan{
		TradeID:    "t-" + roomID + "-" + seller,
		RoomID:     roomID,
		Kind:       models.OfferIntel,
		SellerID:   seller,
		BuyerID:    buyer,
		Token:      "X",
		Total:      d(price),
		ExecutedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

// runLedgerSuite exercises the LedgerStore contract against s.
func runLedgerSuite(t *testing.T, newStore func(t *testing.T) LedgerStore) {
	ctx := context.Background()

	t.Run("agent roundtrip", func(t *testing.T) {
		s := newStore(t)
		seed(t, s, "a", 100, map[string]decimal.Decimal{"X": d(3)})
		a, err := s.GetAgent(ctx, "a")
		require.NoError(t, err)
		require.Equal(t, "a-name", a.Name)
		require.True(t, a.Balance.Equal(d(100)))
		require.True(t, a.Holding("X").Equal(d(3)))

		missing, err := s.GetAgent(ctx, "nobody")
		require.NoError(t, err)
		require.Nil(t, missing)
	})

	t.Run("offer replace and clear", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.SaveOffer(ctx, "r1", models.NewIntelOffer("a", "b", "X", d(10))))
		require.NoError(t, s.SaveOffer(ctx, "r1", models.NewIntelOffer("a", "b", "Y", d(20))))
		o, err := s.GetOffer(ctx, "r1")
		require.NoError(t, err)
		require.Equal(t, "Y", o.Token)
		require.NoError(t, s.ClearOffer(ctx, "r1"))
		o, err = s.GetOffer(ctx, "r1")
		require.NoError(t, err)
		require.Nil(t, o)
	})

	t.Run("intel trade settles", func(t *testing.T) {
		s := newStore(t)
		seed(t, s, "a", 100, nil)
		seed(t, s, "b", 50, nil)
		require.NoError(t, s.SaveOffer(ctx, "r1", models.NewIntelOffer("a", "b", "X", d(30))))

		rec, err := s.ApplyTrade(ctx, intelPlan("r1", "a", "b", 30))
		require.NoError(t, err)
		require.Equal(t, "a", rec.SellerID)
		require.Equal(t, "b", rec.BuyerID)
		require.True(t, rec.Price.Equal(d(30)))

		a, _ := s.GetAgent(ctx, "a")
		b, _ := s.GetAgent(ctx, "b")
		require.True(t, a.Balance.Equal(d(130)))
		require.True(t, b.Balance.Equal(d(20)))

		o, err := s.GetOffer(ctx, "r1")
		require.NoError(t, err)
		require.Nil(t, o)

		trades, err := s.ListTrades(ctx, "r1", 10)
		require.NoError(t, err)
		require.Len(t, trades, 1)
	})

	t.Run("insufficient funds leaves ledger untouched", func(t *testing.T) {
		s := newStore(t)
		seed(t, s, "a", 100, nil)
		seed(t, s, "b", 10, nil)
		require.NoError(t, s.SaveOffer(ctx, "r1", models.NewIntelOffer("a", "b", "X", d(30))))

		_, err := s.ApplyTrade(ctx, intelPlan("r1", "a", "b", 30))
		require.ErrorIs(t, err, ErrInsufficientFunds)

		a, _ := s.GetAgent(ctx, "a")
		b, _ := s.GetAgent(ctx, "b")
		require.True(t, a.Balance.Equal(d(100)))
		require.True(t, b.Balance.Equal(d(10)))
		trades, err := s.ListTrades(ctx, "", 10)
		require.NoError(t, err)
		require.Empty(t, trades)
		o, err := s.GetOffer(ctx, "r1")
		require.NoError(t, err)
		require.NotNil(t, o, "a failed settlement must not clear the stored offer by itself")
	})

	t.Run("token trade moves holdings", func(t *testing.T) {
		s := newStore(t)
		seed(t, s, "a", 0, map[string]decimal.Decimal{"X": d(10)})
		seed(t, s, "b", 100, nil)
		require.NoError(t, s.SaveOffer(ctx, "r1", models.NewTokenOffer("a", "b", models.ActionSell, "X", d(4), d(5))))

		plan := TradePlan{
			TradeID:    "t1",
			RoomID:     "r1",
			Kind:       models.OfferToken,
			SellerID:   "a",
			BuyerID:    "b",
			Token:      "X",
			Quantity:   d(4),
			Total:      d(20),
			ExecutedAt: time.Now().UTC(),
		}
		_, err := s.ApplyTrade(ctx, plan)
		require.NoError(t, err)

		a, _ := s.GetAgent(ctx, "a")
		b, _ := s.GetAgent(ctx, "b")
		require.True(t, a.Balance.Equal(d(20)))
		require.True(t, a.Holding("X").Equal(d(6)))
		require.True(t, b.Balance.Equal(d(80)))
		require.True(t, b.Holding("X").Equal(d(4)))

		plan.TradeID = "t2"
		plan.Quantity = d(7)
		plan.Total = d(35)
		require.NoError(t, s.SaveOffer(ctx, "r1", models.NewTokenOffer("a", "b", models.ActionSell, "X", d(7), d(5))))
		_, err = s.ApplyTrade(ctx, plan)
		require.ErrorIs(t, err, ErrInsufficientHoldings)
		a, _ = s.GetAgent(ctx, "a")
		require.True(t, a.Holding("X").Equal(d(6)))
	})

	t.Run("offer settles once", func(t *testing.T) {
		s := newStore(t)
		seed(t, s, "a", 100, nil)
		seed(t, s, "b", 100, nil)
		require.NoError(t, s.SaveOffer(ctx, "r1", models.NewIntelOffer("a", "b", "X", d(30))))

		_, err := s.ApplyTrade(ctx, intelPlan("r1", "a", "b", 30))
		require.NoError(t, err)
		second := intelPlan("r1", "a", "b", 30)
		second.TradeID = "t-again"
		_, err = s.ApplyTrade(ctx, second)
		require.ErrorIs(t, err, ErrNoOffer)

		a, _ := s.GetAgent(ctx, "a")
		b, _ := s.GetAgent(ctx, "b")
		require.True(t, a.Balance.Equal(d(130)))
		require.True(t, b.Balance.Equal(d(70)))
		trades, err := s.ListTrades(ctx, "r1", 10)
		require.NoError(t, err)
		require.Len(t, trades, 1)
	})

	t.Run("mismatched offer is not consumed", func(t *testing.T) {
		s := newStore(t)
		seed(t, s, "a", 100, nil)
		seed(t, s, "b", 100, nil)
		require.NoError(t, s.SaveOffer(ctx, "r1", models.NewIntelOffer("a", "b", "X", d(40))))

		_, err := s.ApplyTrade(ctx, intelPlan("r1", "a", "b", 30))
		require.ErrorIs(t, err, ErrNoOffer)
		o, err := s.GetOffer(ctx, "r1")
		require.NoError(t, err)
		require.NotNil(t, o)
		a, _ := s.GetAgent(ctx, "a")
		require.True(t, a.Balance.Equal(d(100)))
	})

	t.Run("missing participant", func(t *testing.T) {
		s := newStore(t)
		seed(t, s, "a", 100, nil)
		_, err := s.ApplyTrade(ctx, intelPlan("r1", "a", "ghost", 1))
		require.ErrorIs(t, err, ErrAgentNotFound)
	})
}

func TestMemoryStore(t *testing.T) {
	runLedgerSuite(t, func(t *testing.T) LedgerStore { return NewMemoryStore() })
}

func TestMemoryActivityLogLimit(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryActivityLog(2)
	for _, id := range []string{"1", "2", "3"} {
		require.NoError(t, l.AppendMessage(ctx, models.ChatMessage{ID: id, RoomID: "r"}))
	}
	msgs := l.Messages("r")
	require.Len(t, msgs, 2)
	require.Equal(t, "2", msgs[0].ID)
	require.Empty(t, l.Messages("other"))
}
