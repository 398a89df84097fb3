package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/neonslash/neonvault/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

var _ domain.MarketStore = (*MarketStore)(nil)

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

const upsertMarket = `
	INSERT INTO markets (
		id, description, category, total_yes, total_no,
		resolved, result, deadline, updated_at
	) VALUES (
		$1, $2, $3, $4, $5,
		$6, $7, $8, NOW()
	)
	ON CONFLICT (id) DO UPDATE SET
		description = EXCLUDED.description,
		category    = EXCLUDED.category,
		total_yes   = EXCLUDED.total_yes,
		total_no    = EXCLUDED.total_no,
		resolved    = EXCLUDED.resolved,
		result      = EXCLUDED.result,
		deadline    = EXCLUDED.deadline,
		updated_at  = NOW()`

// UpsertBatch inserts or updates multiple markets in a single batch operation.
func (s *MarketStore) UpsertBatch(ctx context.Context, markets []domain.Market) error {
	if len(markets) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, m := range markets {
		batch.Queue(upsertMarket,
			int64(m.ID), m.Description, m.Category,
			int64(m.TotalYes), int64(m.TotalNo),
			m.Resolved, m.Result, m.Deadline.UTC(),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range markets {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: upsert market batch item %d: %w", i, err)
		}
	}
	return nil
}

const marketCols = `id, description, category, total_yes, total_no, resolved, result, deadline`

// scanMarket scans a single market row into a domain.Market.
func scanMarket(row pgx.Row) (domain.Market, error) {
	var m domain.Market
	var id, yes, no int64
	if err := row.Scan(&id, &m.Description, &m.Category, &yes, &no, &m.Resolved, &m.Result, &m.Deadline); err != nil {
		return domain.Market{}, err
	}
	m.ID, m.TotalYes, m.TotalNo = uint64(id), uint64(yes), uint64(no)
	m.Exists = true
	return m, nil
}

// GetByID retrieves a market by its primary key.
func (s *MarketStore) GetByID(ctx context.Context, id uint64) (domain.Market, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+marketCols+` FROM markets WHERE id = $1`, int64(id))
	m, err := scanMarket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %d: %w", id, err)
	}
	return m, nil
}

// List returns every stored market in ID order.
func (s *MarketStore) List(ctx context.Context) ([]domain.Market, error) {
	return s.query(ctx, "list markets", `SELECT `+marketCols+` FROM markets ORDER BY id`)
}

// ListResolvedBefore returns resolved markets whose deadline is before the
// cutoff.
func (s *MarketStore) ListResolvedBefore(ctx context.Context, before time.Time) ([]domain.Market, error) {
	return s.query(ctx, "list resolved markets",
		`SELECT `+marketCols+` FROM markets WHERE resolved AND deadline < $1 ORDER BY id`, before.UTC())
}

func (s *MarketStore) query(ctx context.Context, op, query string, args ...any) ([]domain.Market, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: %s: %w", op, err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: %s rows: %w", op, err)
	}
	return markets, nil
}

// Count returns the total number of markets in the database.
func (s *MarketStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM markets").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count markets: %w", err)
	}
	return count, nil
}
