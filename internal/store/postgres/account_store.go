package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/neonslash/neonvault/internal/domain"
)

// AccountStore implements domain.AccountStore using PostgreSQL. Token
// amounts are NUMERIC columns exchanged as decimal text.
type AccountStore struct {
	pool *pgxpool.Pool
}

var _ domain.AccountStore = (*AccountStore)(nil)

// NewAccountStore creates a new AccountStore.
func NewAccountStore(pool *pgxpool.Pool) *AccountStore {
	return &AccountStore{pool: pool}
}

// Upsert stores the latest snapshot of one account.
func (s *AccountStore) Upsert(ctx context.Context, snap domain.AccountSnapshot) error {
	const query = `
		INSERT INTO accounts (
			user_address, points, staked, stake_timestamp,
			principal_bond, total_slashed, tasks_completed, bond_updated_at,
			effective_bond, allowance, fetched_at
		) VALUES (
			$1, $2, $3::numeric, $4,
			$5::numeric, $6::numeric, $7, $8,
			$9::numeric, $10::numeric, $11
		)
		ON CONFLICT (user_address) DO UPDATE SET
			points          = EXCLUDED.points,
			staked          = EXCLUDED.staked,
			stake_timestamp = EXCLUDED.stake_timestamp,
			principal_bond  = EXCLUDED.principal_bond,
			total_slashed   = EXCLUDED.total_slashed,
			tasks_completed = EXCLUDED.tasks_completed,
			bond_updated_at = EXCLUDED.bond_updated_at,
			effective_bond  = EXCLUDED.effective_bond,
			allowance       = EXCLUDED.allowance,
			fetched_at      = EXCLUDED.fetched_at`

	_, err := s.pool.Exec(ctx, query,
		strings.ToLower(snap.User), int64(snap.Points), numeric(snap.Stake.StakedAmount), nullTime(snap.Stake.StakeTimestamp),
		numeric(snap.Agent.PrincipalBond), numeric(snap.Agent.TotalSlashed), int64(snap.Agent.TasksCompleted), nullTime(snap.Agent.LastUpdate),
		numeric(snap.EffectiveBond), numeric(snap.Allowance), snap.FetchedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert account %s: %w", snap.User, err)
	}
	return nil
}

// Get returns the stored snapshot of user.
func (s *AccountStore) Get(ctx context.Context, user string) (domain.AccountSnapshot, error) {
	const query = `
		SELECT user_address, points, staked::text, stake_timestamp,
			principal_bond::text, total_slashed::text, tasks_completed, bond_updated_at,
			effective_bond::text, allowance::text, fetched_at
		FROM accounts WHERE user_address = $1`

	var (
		snap                                   domain.AccountSnapshot
		points, tasks                          int64
		staked, principal, slashed, bond, allw string
		stakeTS, bondTS                        *time.Time
	)
	err := s.pool.QueryRow(ctx, query, strings.ToLower(user)).Scan(
		&snap.User, &points, &staked, &stakeTS,
		&principal, &slashed, &tasks, &bondTS,
		&bond, &allw, &snap.FetchedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.AccountSnapshot{}, domain.ErrNotFound
		}
		return domain.AccountSnapshot{}, fmt.Errorf("postgres: get account %s: %w", user, err)
	}

	snap.Points = uint64(points)
	snap.Stake = domain.StakeRecord{User: snap.User, StakedAmount: parseNumeric(staked)}
	if stakeTS != nil {
		snap.Stake.StakeTimestamp = *stakeTS
	}
	snap.Agent = domain.AgentRecord{
		User:           snap.User,
		PrincipalBond:  parseNumeric(principal),
		TotalSlashed:   parseNumeric(slashed),
		TasksCompleted: uint64(tasks),
	}
	if bondTS != nil {
		snap.Agent.LastUpdate = *bondTS
	}
	snap.EffectiveBond = parseNumeric(bond)
	snap.Allowance = parseNumeric(allw)
	return snap, nil
}

func numeric(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func parseNumeric(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return new(big.Int)
	}
	return v
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}
