package models

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestAppendWindowDropsOldest(t *testing.T) {
	var window []ChatMessage
	for i := 0; i < MaxWindow+7; i++ {
		window = AppendWindow(window, ChatMessage{ID: fmt.Sprint(i)})
	}
	require.Len(t, window, MaxWindow)
	require.Equal(t, "7", window[0].ID)
	require.Equal(t, fmt.Sprint(MaxWindow+6), window[MaxWindow-1].ID)
	for i := 1; i < len(window); i++ {
		require.Equal(t, fmt.Sprint(i+7), window[i].ID)
	}
}

func TestOfferParties(t *testing.T) {
	intel := NewIntelOffer("a", "b", "X", decimal.NewFromInt(30))
	seller, buyer := intel.Parties()
	require.Equal(t, "a", seller)
	require.Equal(t, "b", buyer)
	require.True(t, intel.Total().Equal(decimal.NewFromInt(30)))

	sell := NewTokenOffer("a", "b", ActionSell, "X", decimal.NewFromInt(4), decimal.NewFromInt(5))
	seller, buyer = sell.Parties()
	require.Equal(t, "a", seller)
	require.Equal(t, "b", buyer)
	require.True(t, sell.Total().Equal(decimal.NewFromInt(20)))

	buy := NewTokenOffer("a", "b", ActionBuy, "X", decimal.NewFromInt(4), decimal.NewFromInt(5))
	seller, buyer = buy.Parties()
	require.Equal(t, "b", seller)
	require.Equal(t, "a", buyer)
}

func TestOfferValidate(t *testing.T) {
	require.NoError(t, NewIntelOffer("a", "b", "X", decimal.NewFromInt(1)).Validate())
	require.ErrorIs(t, NewIntelOffer("a", "a", "X", decimal.NewFromInt(1)).Validate(), ErrInvalidOffer)
	require.ErrorIs(t, NewIntelOffer("a", "b", " ", decimal.NewFromInt(1)).Validate(), ErrInvalidOffer)
	require.ErrorIs(t, NewIntelOffer("a", "b", "X", decimal.NewFromInt(-1)).Validate(), ErrInvalidOffer)
	require.ErrorIs(t, NewTokenOffer("a", "b", ActionBuy, "X", decimal.Zero, decimal.NewFromInt(1)).Validate(), ErrInvalidOffer)
	require.ErrorIs(t, NewTokenOffer("a", "b", "HOLD", "X", decimal.NewFromInt(1), decimal.NewFromInt(1)).Validate(), ErrInvalidOffer)
}

func TestParseTradeAction(t *testing.T) {
	a, ok := ParseTradeAction(" sell ")
	require.True(t, ok)
	require.Equal(t, ActionSell, a)
	_, ok = ParseTradeAction("hold")
	require.False(t, ok)
}

func TestOfferSame(t *testing.T) {
	at := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	a := NewIntelOffer("a", "b", "X", decimal.NewFromInt(30))
	a.CreatedAt = at
	b := NewIntelOffer("a", "b", "X", decimal.RequireFromString("30.0"))
	b.CreatedAt = at
	require.True(t, a.Same(b))

	b.CreatedAt = at.Add(time.Second)
	require.False(t, a.Same(b), "a re-proposal is a new offer")
	require.False(t, a.Same(NewIntelOffer("b", "a", "X", decimal.NewFromInt(30))))
}
