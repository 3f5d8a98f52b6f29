package events

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.Clients() == n }, 2*time.Second, 10*time.Millisecond)
}

func readEvent(t *testing.T, conn *websocket.Conn) RemoteEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var ev RemoteEvent
	require.NoError(t, json.Unmarshal(data, &ev))
	return ev
}

func TestHubRoomFiltering(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	all := dial(t, srv, "")
	onlyR2 := dial(t, srv, "?room=r2")
	waitClients(t, hub, 2)

	ctx := context.Background()
	require.NoError(t, hub.Publish(ctx, Event{Type: TurnChanged, RoomID: "r1"}))
	require.NoError(t, hub.Publish(ctx, Event{Type: TurnChanged, RoomID: "r2"}))
	require.NoError(t, hub.Publish(ctx, Event{Type: GlobalPauseRequested}))

	require.Equal(t, "r1", readEvent(t, all).RoomID)
	require.Equal(t, "r2", readEvent(t, all).RoomID)
	require.Equal(t, GlobalPauseRequested, readEvent(t, all).Type)

	// r1 is filtered out for the room-scoped client.
	require.Equal(t, "r2", readEvent(t, onlyR2).RoomID)
	require.Equal(t, GlobalPauseRequested, readEvent(t, onlyR2).Type)
}

func TestHubDropsDisconnectedClients(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv, "")
	waitClients(t, hub, 1)
	conn.Close()
	waitClients(t, hub, 0)
}
