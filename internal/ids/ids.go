// Package ids generates identifiers. Rooms and trades get UUIDv7s;
// messages get ULIDs so the activity log sorts by time.
package ids

import (
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// NewRoomID generates a time-ordered UUID v7 room ID.
func NewRoomID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// NewTradeID generates a time-ordered UUID v7 trade ID.
func NewTradeID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// NewMessageID returns a ULID stamped with at.
func NewMessageID(at time.Time) string {
	return ulid.MustNew(ulid.Timestamp(at), ulid.DefaultEntropy()).String()
}
