package director

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vchat-meme-blip/polymarket-cafe/internal/events"
)

func remotePause(t *testing.T, until time.Time) events.RemoteEvent {
	t.Helper()
	raw, err := json.Marshal(events.GlobalPausePayload{DurationMs: 60000, Reason: "peer", ResumeTime: until})
	require.NoError(t, err)
	return events.RemoteEvent{Type: events.GlobalPauseRequested, Payload: raw}
}

func TestHandleRemoteEventPausesLocally(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.d.CreateRoom(context.Background(), "r1", [2]string{"ada", "bo"}))

	h.d.HandleRemoteEvent(events.RemoteEvent{Type: events.RoomCreated, Payload: json.RawMessage(`{}`)})
	h.d.HandleRemoteEvent(events.RemoteEvent{Type: events.GlobalPauseRequested, Payload: json.RawMessage(`not json`)})
	h.d.HandleRemoteEvent(remotePause(t, t0.Add(-time.Second)))
	require.False(t, h.d.PauseState().Paused)

	until := t0.Add(30 * time.Second)
	h.d.HandleRemoteEvent(remotePause(t, until))
	require.Equal(t, until, h.d.PauseState().Until)

	// Redelivery of the same pause changes nothing.
	h.d.HandleRemoteEvent(remotePause(t, until))
	require.Equal(t, until, h.d.PauseState().Until)
	require.Empty(t, h.events.OfType(events.GlobalPauseRequested), "remote pauses are not re-published")

	h.clock.Advance(30 * time.Second)
	require.Zero(t, h.provider.Calls())
	h.clock.Advance(time.Second)
	require.Equal(t, 1, h.provider.Calls())
}
