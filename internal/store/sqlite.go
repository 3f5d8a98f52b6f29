package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/vchat-meme-blip/polymarket-cafe/internal/models"
)

// SQLiteStore handles SQLite ledger operations. Amounts are stored as
// decimal strings.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/cafe.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/cafe.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	// Immediate transactions take the write lock up front so two
	// settlements never interleave their balance reads.
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_txlock=immediate&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	store := &SQLiteStore{db: db}

	// Initialize schema
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS agents (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		persona TEXT NOT NULL DEFAULT '',
		balance TEXT NOT NULL DEFAULT '0',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS holdings (
		agent_id TEXT NOT NULL REFERENCES agents(id) ON DELETE CASCADE,
		token TEXT NOT NULL,
		quantity TEXT NOT NULL DEFAULT '0',
		PRIMARY KEY (agent_id, token)
	);

	CREATE TABLE IF NOT EXISTS offers (
		room_id TEXT PRIMARY KEY,
		payload TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS trades (
		id TEXT PRIMARY KEY,
		room_id TEXT NOT NULL,
		seller_id TEXT NOT NULL,
		buyer_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		token TEXT NOT NULL,
		quantity TEXT NOT NULL DEFAULT '0',
		price TEXT NOT NULL,
		executed_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_trades_room ON trades(room_id, executed_at);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type sqliteQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// UpsertAgent creates or replaces an agent and its portfolio.
func (s *SQLiteStore) UpsertAgent(ctx context.Context, agent *models.Agent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO agents (id, name, persona, balance, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE
		SET name = excluded.name, persona = excluded.persona,
		    balance = excluded.balance, updated_at = excluded.updated_at
	`, agent.ID, agent.Name, agent.Persona, agent.Balance.String(), now, now)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM holdings WHERE agent_id = ?`, agent.ID); err != nil {
		return err
	}
	if err := writeHoldingsSQLite(ctx, tx, agent); err != nil {
		return err
	}
	return tx.Commit()
}

// GetAgent retrieves an agent by ID. Returns nil, nil when missing.
func (s *SQLiteStore) GetAgent(ctx context.Context, id string) (*models.Agent, error) {
	agent, err := readAgentSQLite(ctx, s.db, id)
	if errors.Is(err, ErrAgentNotFound) {
		return nil, nil
	}
	return agent, err
}

func readAgentSQLite(ctx context.Context, q sqliteQuerier, id string) (*models.Agent, error) {
	agent := &models.Agent{Portfolio: make(map[string]decimal.Decimal)}
	var balance string
	err := q.QueryRowContext(ctx, `
		SELECT id, name, persona, balance, created_at, updated_at
		FROM agents WHERE id = ?
	`, id).Scan(
		&agent.ID,
		&agent.Name,
		&agent.Persona,
		&balance,
		&agent.CreatedAt,
		&agent.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAgentNotFound
		}
		return nil, err
	}
	if agent.Balance, err = decimal.NewFromString(balance); err != nil {
		return nil, fmt.Errorf("agent %s balance: %w", id, err)
	}

	rows, err := q.QueryContext(ctx, `SELECT token, quantity FROM holdings WHERE agent_id = ?`, id)
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

func writeHoldingsSQLite(ctx context.Context, q sqliteQuerier, agent *models.Agent) error {
	for token, qty := range agent.Portfolio {
		_, err := q.ExecContext(ctx, `
			INSERT INTO holdings (agent_id, token, quantity)
			VALUES (?, ?, ?)
			ON CONFLICT (agent_id, token) DO UPDATE SET quantity = excluded.quantity
		`, agent.ID, token, qty.String())
		if err != nil {
			return err
		}
	}
	return nil
}

// SaveOffer replaces the room's active offer.
func (s *SQLiteStore) SaveOffer(ctx context.Context, roomID string, offer models.Offer) error {
	payload, err := json.Marshal(offer)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO offers (room_id, payload, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (room_id) DO UPDATE SET payload = excluded.payload, updated_at = CURRENT_TIMESTAMP
	`, roomID, string(payload))
	return err
}

// GetOffer returns the room's active offer, or nil.
func (s *SQLiteStore) GetOffer(ctx context.Context, roomID string) (*models.Offer, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM offers WHERE room_id = ?`, roomID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	var offer models.Offer
	if err := json.Unmarshal([]byte(payload), &offer); err != nil {
		return nil, err
	}
	return &offer, nil
}

// ClearOffer deletes the room's active offer.
func (s *SQLiteStore) ClearOffer(ctx context.Context, roomID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM offers WHERE room_id = ?`, roomID)
	return err
}

// ApplyTrade implements LedgerStore inside one immediate transaction.
func (s *SQLiteStore) ApplyTrade(ctx context.Context, plan TradePlan) (*models.TradeRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	seller, err := readAgentSQLite(ctx, tx, plan.SellerID)
	if err != nil {
		return nil, err
	}
	buyer, err := readAgentSQLite(ctx, tx, plan.BuyerID)
	if err != nil {
		return nil, err
	}

	var payload string
	err = tx.QueryRowContext(ctx, `DELETE FROM offers WHERE room_id = ? RETURNING payload`, plan.RoomID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoOffer
	}
	if err != nil {
		return nil, err
	}
	if err := decodeOffer([]byte(payload), plan); err != nil {
		return nil, err
	}

	if err := applyPlan(seller, buyer, plan); err != nil {
		return nil, err
	}

	for _, agent := range []*models.Agent{seller, buyer} {
		_, err := tx.ExecContext(ctx, `
			UPDATE agents SET balance = ?, updated_at = ? WHERE id = ?
		`, agent.Balance.String(), plan.ExecutedAt, agent.ID)
		if err != nil {
			return nil, err
		}
		if plan.Kind == models.OfferToken {
			if err := writeHoldingsSQLite(ctx, tx, agent); err != nil {
				return nil, err
			}
		}
	}

	record := plan.Record()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO trades (id, room_id, seller_id, buyer_id, kind, token, quantity, price, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, record.ID, record.RoomID, record.SellerID, record.BuyerID, string(record.Kind),
		record.Token, record.Quantity.String(), record.Price.String(), record.ExecutedAt)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &record, nil
}

// ListTrades returns the newest trades first; an empty roomID lists all
// rooms.
func (s *SQLiteStore) ListTrades(ctx context.Context, roomID string, limit int) ([]models.TradeRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, room_id, seller_id, buyer_id, kind, token, quantity, price, executed_at
		FROM trades
		WHERE ? = '' OR room_id = ?
		ORDER BY executed_at DESC
		LIMIT ?
	`, roomID, roomID, limit)
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
