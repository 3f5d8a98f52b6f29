package store

import (
	"context"
	"sync"
	"time"

	"github.com/vchat-meme-blip/polymarket-cafe/internal/models"
)

// MemoryStore is an in-process LedgerStore for development and tests.
type MemoryStore struct {
	mu     sync.Mutex
	agents map[string]*models.Agent
	offers map[string]models.Offer
	trades []models.TradeRecord
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		agents: make(map[string]*models.Agent),
		offers: make(map[string]models.Offer),
	}
}

// Close is a no-op.
func (s *MemoryStore) Close() {}

// Ping always succeeds.
func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

// UpsertAgent creates or replaces an agent.
func (s *MemoryStore) UpsertAgent(ctx context.Context, agent *models.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := cloneAgent(agent)
	now := time.Now()
	if existing, ok := s.agents[agent.ID]; ok {
		c.CreatedAt = existing.CreatedAt
	} else if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	s.agents[agent.ID] = c
	return nil
}

// GetAgent returns a copy of the agent, or nil if it does not exist.
func (s *MemoryStore) GetAgent(ctx context.Context, id string) (*models.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.agents[id]
	if !ok {
		return nil, nil
	}
	return cloneAgent(a), nil
}

// SaveOffer replaces the room's offer.
func (s *MemoryStore) SaveOffer(ctx context.Context, roomID string, offer models.Offer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offers[roomID] = offer
	return nil
}

// GetOffer returns the room's offer, or nil.
func (s *MemoryStore) GetOffer(ctx context.Context, roomID string) (*models.Offer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.offers[roomID]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

// ClearOffer removes the room's offer.
func (s *MemoryStore) ClearOffer(ctx context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.offers, roomID)
	return nil
}

// ApplyTrade implements LedgerStore.
func (s *MemoryStore) ApplyTrade(ctx context.Context, plan TradePlan) (*models.TradeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sellerRow, ok := s.agents[plan.SellerID]
	if !ok {
		return nil, ErrAgentNotFound
	}
	buyerRow, ok := s.agents[plan.BuyerID]
	if !ok {
		return nil, ErrAgentNotFound
	}

	offer, ok := s.offers[plan.RoomID]
	if !ok || !offerMatches(offer, plan) {
		return nil, ErrNoOffer
	}

	seller, buyer := cloneAgent(sellerRow), cloneAgent(buyerRow)
	if err := applyPlan(seller, buyer, plan); err != nil {
		return nil, err
	}

	seller.UpdatedAt, buyer.UpdatedAt = plan.ExecutedAt, plan.ExecutedAt
	s.agents[seller.ID] = seller
	s.agents[buyer.ID] = buyer
	record := plan.Record()
	s.trades = append(s.trades, record)
	delete(s.offers, plan.RoomID)
	return &record, nil
}

// ListTrades returns the newest trades first; an empty roomID lists all
// rooms.
func (s *MemoryStore) ListTrades(ctx context.Context, roomID string, limit int) ([]models.TradeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.TradeRecord
	for i := len(s.trades) - 1; i >= 0; i-- {
		if roomID != "" && s.trades[i].RoomID != roomID {
			continue
		}
		out = append(out, s.trades[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// MemoryActivityLog keeps activity in memory; used when Redis is not
// configured.
type MemoryActivityLog struct {
	mu       sync.Mutex
	messages []models.ChatMessage
	trades   []models.TradeRecord
	limit    int
}

// NewMemoryActivityLog keeps at most limit entries of each kind; zero
// means unbounded.
func NewMemoryActivityLog(limit int) *MemoryActivityLog {
	return &MemoryActivityLog{limit: limit}
}

// AppendMessage implements ActivityLog.
func (l *MemoryActivityLog) AppendMessage(ctx context.Context, msg models.ChatMessage) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, msg)
	if l.limit > 0 && len(l.messages) > l.limit {
		l.messages = l.messages[len(l.messages)-l.limit:]
	}
	return nil
}

// AppendTrade implements ActivityLog.
func (l *MemoryActivityLog) AppendTrade(ctx context.Context, trade models.TradeRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.trades = append(l.trades, trade)
	if l.limit > 0 && len(l.trades) > l.limit {
		l.trades = l.trades[len(l.trades)-l.limit:]
	}
	return nil
}

// Messages returns the logged messages for roomID (all rooms if empty).
func (l *MemoryActivityLog) Messages(roomID string) []models.ChatMessage {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.ChatMessage
	for _, m := range l.messages {
		if roomID == "" || m.RoomID == roomID {
			out = append(out, m)
		}
	}
	return out
}

// Trades returns the logged trades.
func (l *MemoryActivityLog) Trades() []models.TradeRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.TradeRecord, len(l.trades))
	copy(out, l.trades)
	return out
}
