package keypool

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisPool stores cooldowns as expiring Redis keys so every director
// process sharing the credentials sees the same backpressure.
type RedisPool struct {
	client *redis.Client
	creds  []Credential
}

// NewRedisPool returns a pool over creds backed by client.
func NewRedisPool(client *redis.Client, creds []Credential) (*RedisPool, error) {
	if len(creds) == 0 {
		return nil, ErrNoCredentials
	}
	return &RedisPool{client: client, creds: creds}, nil
}

// cooldownKey returns the key marking a credential as cooling down.
func cooldownKey(credID string) string {
	return fmt.Sprintf("keypool:cooldown:%s", credID)
}

func (p *RedisPool) coolingDown(ctx context.Context) ([]bool, error) {
	pipe := p.client.Pipeline()
	cmds := make([]*redis.IntCmd, len(p.creds))
	for i, cred := range p.creds {
		cmds[i] = pipe.Exists(ctx, cooldownKey(cred.ID))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	out := make([]bool, len(p.creds))
	for i, cmd := range cmds {
		out[i] = cmd.Val() > 0
	}
	return out, nil
}

// Acquire implements Pool.
func (p *RedisPool) Acquire(ctx context.Context, agentID string) (Credential, bool, error) {
	cooling, err := p.coolingDown(ctx)
	if err != nil {
		return Credential{}, false, err
	}
	start := startIndex(agentID, len(p.creds))
	for i := 0; i < len(p.creds); i++ {
		idx := (start + i) % len(p.creds)
		if !cooling[idx] {
			return p.creds[idx], true, nil
		}
	}
	return Credential{}, false, nil
}

// extendCooldown sets KEYS[1] to expire in ARGV[1] milliseconds unless
// it already outlives that.
var extendCooldown = redis.NewScript(`
local ttl = redis.call("PTTL", KEYS[1])
if ttl >= tonumber(ARGV[1]) then
  return 0
end
redis.call("SET", KEYS[1], "rate_limited", "PX", ARGV[1])
return 1
`)

// ReportRateLimit implements Pool. A longer cooldown already in place
// is kept; the check and the write happen in one script so concurrent
// reports cannot shorten it.
func (p *RedisPool) ReportRateLimit(ctx context.Context, cred Credential, d time.Duration) error {
	ms := d.Milliseconds()
	if ms <= 0 {
		return nil
	}
	if err := extendCooldown.Run(ctx, p.client, []string{cooldownKey(cred.ID)}, ms).Err(); err != nil {
		return fmt.Errorf("report rate limit for %s: %w", cred.ID, err)
	}
	return nil
}

// AllOnCooldown implements Pool.
func (p *RedisPool) AllOnCooldown(ctx context.Context) (bool, error) {
	cooling, err := p.coolingDown(ctx)
	if err != nil {
		return false, err
	}
	for _, c := range cooling {
		if !c {
			return false, nil
		}
	}
	return true, nil
}
