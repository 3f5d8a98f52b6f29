package ids

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/require"
)

func TestNewRoomID(t *testing.T) {
	id, err := uuid.Parse(NewRoomID())
	require.NoError(t, err)
	require.Equal(t, uuid.Version(7), id.Version())
	require.NotEqual(t, NewTradeID(), NewTradeID())
}

func TestNewMessageIDCarriesTime(t *testing.T) {
	at := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	id, err := ulid.Parse(NewMessageID(at))
	require.NoError(t, err)
	require.Equal(t, ulid.Timestamp(at), id.Time())

	earlier := NewMessageID(at.Add(-time.Second))
	require.Less(t, earlier, NewMessageID(at))
}
