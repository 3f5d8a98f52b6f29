package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/vchat-meme-blip/polymarket-cafe/internal/metrics"
	"github.com/vchat-meme-blip/polymarket-cafe/internal/models"
)

// PostgresStore handles PostgreSQL ledger operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func observePostgres(start time.Time) {
	metrics.PostgresLatency.Observe(time.Since(start).Seconds())
}

// UpsertAgent creates or replaces an agent and its portfolio.
func (s *PostgresStore) UpsertAgent(ctx context.Context, agent *models.Agent) error {
	defer observePostgres(time.Now())

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO agents (id, name, persona, balance)
			VALUES ($1, $2, $3, $4::numeric)
			ON CONFLICT (id) DO UPDATE
			SET name = EXCLUDED.name, persona = EXCLUDED.persona,
			    balance = EXCLUDED.balance, updated_at = NOW()
		`, agent.ID, agent.Name, agent.Persona, agent.Balance.String())
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM holdings WHERE agent_id = $1`, agent.ID); err != nil {
			return err
		}
		return writeHoldingsPg(ctx, tx, agent)
	})
}

// GetAgent retrieves an agent by ID. Returns nil, nil when missing.
func (s *PostgresStore) GetAgent(ctx context.Context, id string) (*models.Agent, error) {
	defer observePostgres(time.Now())

	agent, err := readAgentPg(ctx, s.pool, id, false)
	if errors.Is(err, ErrAgentNotFound) {
		return nil, nil
	}
	return agent, err
}

type pgQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func readAgentPg(ctx context.Context, q pgQuerier, id string, forUpdate bool) (*models.Agent, error) {
	query := `
		SELECT id, name, persona, balance::text, created_at, updated_at
		FROM agents WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	agent := &models.Agent{Portfolio: make(map[string]decimal.Decimal)}
	var balance string
	err := q.QueryRow(ctx, query, id).Scan(
		&agent.ID,
		&agent.Name,
		&agent.Persona,
		&balance,
		&agent.CreatedAt,
		&agent.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAgentNotFound
		}
		return nil, err
	}
	if agent.Balance, err = decimal.NewFromString(balance); err != nil {
		return nil, fmt.Errorf("agent %s balance: %w", id, err)
	}

	rows, err := q.Query(ctx, `SELECT token, quantity::text FROM holdings WHERE agent_id = $1`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var token, qty string
		if err := rows.Scan(&token, &qty); err != nil {
			return nil, err
		}
		if agent.Portfolio[token], err = decimal.NewFromString(qty); err != nil {
			return nil, fmt.Errorf("agent %s holding %s: %w", id, token, err)
		}
	}
	return agent, rows.Err()
}

func writeHoldingsPg(ctx context.Context, tx pgx.Tx, agent *models.Agent) error {
	for token, qty := range agent.Portfolio {
		_, err := tx.Exec(ctx, `
			INSERT INTO holdings (agent_id, token, quantity)
			VALUES ($1, $2, $3::numeric)
			ON CONFLICT (agent_id, token) DO UPDATE SET quantity = EXCLUDED.quantity
		`, agent.ID, token, qty.String())
		if err != nil {
			return err
		}
	}
	return nil
}

// SaveOffer replaces the room's active offer.
func (s *PostgresStore) SaveOffer(ctx context.Context, roomID string, offer models.Offer) error {
	defer observePostgres(time.Now())

	payload, err := json.Marshal(offer)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO offers (room_id, payload, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (room_id) DO UPDATE SET payload = EXCLUDED.payload, updated_at = NOW()
	`, roomID, payload)
	return err
}

// GetOffer returns the room's active offer, or nil.
func (s *PostgresStore) GetOffer(ctx context.Context, roomID string) (*models.Offer, error) {
	defer observePostgres(time.Now())

	var payload []byte
	err := s.pool.QueryRow(ctx, `SELECT payload FROM offers WHERE room_id = $1`, roomID).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	var offer models.Offer
	if err := json.Unmarshal(payload, &offer); err != nil {
		return nil, err
	}
	return &offer, nil
}

// ClearOffer deletes the room's active offer.
func (s *PostgresStore) ClearOffer(ctx context.Context, roomID string) error {
	defer observePostgres(time.Now())

	_, err := s.pool.Exec(ctx, `DELETE FROM offers WHERE room_id = $1`, roomID)
	return err
}

// ApplyTrade implements LedgerStore inside one transaction. Both agent
// rows are locked in ID order so concurrent settlements cannot deadlock.
// A failed settlement rolls back, leaving the stored offer in place.
func (s *PostgresStore) ApplyTrade(ctx context.Context, plan TradePlan) (*models.TradeRecord, error) {
	defer observePostgres(time.Now())

	var record models.TradeRecord
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		first, second := plan.SellerID, plan.BuyerID
		if second < first {
			first, second = second, first
		}
		locked := make(map[string]*models.Agent, 2)
		for _, id := range []string{first, second} {
			agent, err := readAgentPg(ctx, tx, id, true)
			if err != nil {
				return err
			}
			locked[id] = agent
		}

		// Deleting the offer row first serializes concurrent accepts of
		// the same offer; the loser finds no row.
		var payload []byte
		err := tx.QueryRow(ctx, `DELETE FROM offers WHERE room_id = $1 RETURNING payload`, plan.RoomID).Scan(&payload)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNoOffer
		}
		if err != nil {
			return err
		}
		if err := decodeOffer(payload, plan); err != nil {
			return err
		}

		seller, buyer := locked[plan.SellerID], locked[plan.BuyerID]
		if err := applyPlan(seller, buyer, plan); err != nil {
			return err
		}

		for _, agent := range []*models.Agent{seller, buyer} {
			_, err := tx.Exec(ctx, `
				UPDATE agents SET balance = $2::numeric, updated_at = NOW() WHERE id = $1
			`, agent.ID, agent.Balance.String())
			if err != nil {
				return err
			}
			if plan.Kind == models.OfferToken {
				if err := writeHoldingsPg(ctx, tx, agent); err != nil {
					return err
				}
			}
		}

		record = plan.Record()
		_, err = tx.Exec(ctx, `
			INSERT INTO trades (id, room_id, seller_id, buyer_id, kind, token, quantity, price, executed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8::numeric, $9)
		`, record.ID, record.RoomID, record.SellerID, record.BuyerID, string(record.Kind),
			record.Token, record.Quantity.String(), record.Price.String(), record.ExecutedAt)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// ListTrades returns the newest trades first; an empty roomID lists all
// rooms.
func (s *PostgresStore) ListTrades(ctx context.Context, roomID string, limit int) ([]models.TradeRecord, error) {
	defer observePostgres(time.Now())

	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, room_id, seller_id, buyer_id, kind, token, quantity::text, price::text, executed_at
		FROM trades
		WHERE $1 = '' OR room_id = $1
		ORDER BY executed_at DESC
		LIMIT $2
	`, roomID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []models.TradeRecord
	for rows.Next() {
		var t models.TradeRecord
		var kind, qty, price string
		err := rows.Scan(
			&t.ID,
			&t.RoomID,
			&t.SellerID,
			&t.BuyerID,
			&kind,
			&t.Token,
			&qty,
			&price,
			&t.ExecutedAt,
		)
		if err != nil {
			return nil, err
		}
		t.Kind = models.OfferKind(kind)
		if t.Quantity, err = decimal.NewFromString(qty); err != nil {
			return nil, err
		}
		if t.Price, err = decimal.NewFromString(price); err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}
