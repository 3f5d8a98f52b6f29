package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type failing struct{ err error }

func (f failing) Publish(context.Context, Event) error { return f.err }

func TestMultiDeliversToAllAndJoinsErrors(t *testing.T) {
	var a, b Recorder
	boom := errors.New("boom")
	m := Multi{&a, failing{boom}, &b}

	err := m.Publish(context.Background(), Event{Type: RoomCreated, RoomID: "r1"})
	require.ErrorIs(t, err, boom)
	require.Len(t, a.Events(), 1)
	require.Len(t, b.Events(), 1)
}

func TestRecorderOfType(t *testing.T) {
	var r Recorder
	ctx := context.Background()
	require.NoError(t, r.Publish(ctx, Event{Type: RoomCreated}))
	require.NoError(t, r.Publish(ctx, Event{Type: TurnChanged}))
	require.NoError(t, r.Publish(ctx, Event{Type: TurnChanged}))

	require.Len(t, r.OfType(TurnChanged), 2)
	require.Len(t, r.OfType(TradeExecuted), 0)
	r.Reset()
	require.Empty(t, r.Events())
}
