// Package keypool hands out completion-provider credentials and tracks
// which ones are cooling down after a rate limit.
package keypool

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"hash/fnv"
	"strings"
	"time"
)

// ErrNoCredentials is returned when a pool is built without any keys.
var ErrNoCredentials = errors.New("keypool: no credentials configured")

// Credential is one provider API key. ID is a stable, non-secret label
// safe to log.
type Credential struct {
	ID  string
	Key string
}

// Pool is the backpressure contract the director relies on: a reported
// rate limit makes the credential unavailable for the cooldown, and
// AllOnCooldown is accurate enough to justify a global pause.
type Pool interface {
	// Acquire returns a credential usable by agentID, or ok=false when
	// every candidate is cooling down.
	Acquire(ctx context.Context, agentID string) (cred Credential, ok bool, err error)
	// ReportRateLimit puts cred on cooldown for d.
	ReportRateLimit(ctx context.Context, cred Credential, d time.Duration) error
	// AllOnCooldown reports whether no credential is currently usable.
	AllOnCooldown(ctx context.Context) (bool, error)
}

// NewCredentials labels raw keys. Blank entries are skipped.
func NewCredentials(keys []string) []Credential {
	creds := make([]Credential, 0, len(keys))
	for _, key := range keys {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		sum := sha256.Sum256([]byte(key))
		creds = append(creds, Credential{ID: "key-" + hex.EncodeToString(sum[:4]), Key: key})
	}
	return creds
}

// startIndex spreads agents across the pool so one busy agent does not
// always land on the first key.
func startIndex(agentID string, n int) int {
	h := fnv.New32a()
	h.Write([]byte(agentID))
	return int(h.Sum32() % uint32(n))
}
