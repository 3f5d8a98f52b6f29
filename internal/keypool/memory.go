package keypool

import (
	"context"
	"sync"
	"time"

	"github.com/vchat-meme-blip/polymarket-cafe/internal/clock"
)

// MemoryPool keeps cooldowns in process memory.
type MemoryPool struct {
	clock clock.Clock
	creds []Credential

	mu        sync.Mutex
	coolUntil map[string]time.Time
}

// NewMemoryPool returns a pool over creds.
func NewMemoryPool(c clock.Clock, creds []Credential) (*MemoryPool, error) {
	if len(creds) == 0 {
		return nil, ErrNoCredentials
	}
	return &MemoryPool{
		clock:     c,
		creds:     creds,
		coolUntil: make(map[string]time.Time),
	}, nil
}

// Acquire implements Pool.
func (p *MemoryPool) Acquire(_ context.Context, agentID string) (Credential, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock.Now()
	start := startIndex(agentID, len(p.creds))
	for i := 0; i < len(p.creds); i++ {
		cred := p.creds[(start+i)%len(p.creds)]
		if until, ok := p.coolUntil[cred.ID]; ok && now.Before(until) {
			continue
		}
		return cred, true, nil
	}
	return Credential{}, false, nil
}

// ReportRateLimit implements Pool.
func (p *MemoryPool) ReportRateLimit(_ context.Context, cred Credential, d time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	until := p.clock.Now().Add(d)
	if current, ok := p.coolUntil[cred.ID]; ok && current.After(until) {
		return nil
	}
	p.coolUntil[cred.ID] = until
	return nil
}

// AllOnCooldown implements Pool.
func (p *MemoryPool) AllOnCooldown(_ context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock.Now()
	for _, cred := range p.creds {
		until, ok := p.coolUntil[cred.ID]
		if !ok || !now.Before(until) {
			return false, nil
		}
	}
	return true, nil
}
