package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/neonslash/neonvault/internal/domain"
)

// BetStore implements domain.BetStore using PostgreSQL. Addresses are stored
// lowercased.
type BetStore struct {
	pool *pgxpool.Pool
}

var _ domain.BetStore = (*BetStore)(nil)

// NewBetStore creates a new BetStore.
func NewBetStore(pool *pgxpool.Pool) *BetStore {
	return &BetStore{pool: pool}
}

// UpsertBatch inserts or updates bets in one batch.
func (s *BetStore) UpsertBatch(ctx context.Context, bets []domain.Bet) error {
	if len(bets) == 0 {
		return nil
	}
	const query = `
		INSERT INTO bets (market_id, user_address, amount, prediction, claimed, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (market_id, user_address) DO UPDATE SET
			amount     = EXCLUDED.amount,
			prediction = EXCLUDED.prediction,
			claimed    = EXCLUDED.claimed,
			updated_at = NOW()`

	batch := &pgx.Batch{}
	for _, b := range bets {
		batch.Queue(query, int64(b.MarketID), strings.ToLower(b.User), int64(b.Amount), b.Prediction, b.Claimed)
	}
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for i := range bets {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: upsert bet batch item %d: %w", i, err)
		}
	}
	return nil
}

// ListByUser returns the user's stored bets, newest market first.
func (s *BetStore) ListByUser(ctx context.Context, user string) ([]domain.Bet, error) {
	const query = `
		SELECT market_id, user_address, amount, prediction, claimed
		FROM bets WHERE user_address = $1 AND amount > 0
		ORDER BY market_id DESC`
	rows, err := s.pool.Query(ctx, query, strings.ToLower(user))
	if err != nil {
		return nil, fmt.Errorf("postgres: list bets %s: %w", user, err)
	}
	defer rows.Close()

	var list []domain.Bet
	for rows.Next() {
		var b domain.Bet
		var id, amount int64
		if err := rows.Scan(&id, &b.User, &amount, &b.Prediction, &b.Claimed); err != nil {
			return nil, fmt.Errorf("postgres: scan bet: %w", err)
		}
		b.MarketID, b.Amount = uint64(id), uint64(amount)
		list = append(list, b)
	}
	return list, rows.Err()
}
