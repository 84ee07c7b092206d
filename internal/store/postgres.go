package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cascadex/pool-engine/internal/amount"
	"github.com/cascadex/pool-engine/internal/model"
	"github.com/cascadex/pool-engine/internal/pair"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, so the same store
// code serves plain and transactional execution.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All amounts are stored as NUMERIC for exact integer precision.
//
// Expected schema:
//
//	assets(id TEXT PRIMARY KEY, owner TEXT, min_balance NUMERIC, total_supply NUMERIC)
//	balances(asset TEXT, account TEXT, amount NUMERIC, PRIMARY KEY(asset, account))
//	pools(pool_id TEXT PRIMARY KEY, lp_token_id TEXT, asset_a TEXT, asset_b TEXT,
//	      creator TEXT, created_at TIMESTAMPTZ, UNIQUE(asset_a, asset_b))
//	journal(id TEXT PRIMARY KEY, caller TEXT, op TEXT, pool_id TEXT, asset_a TEXT,
//	        asset_b TEXT, amount_a NUMERIC, amount_b NUMERIC, lp_amount NUMERIC,
//	        ts TIMESTAMPTZ)
type PostgresStore struct {
	db   querier
	pool *pgxpool.Pool // nil inside a transaction
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: pool, pool: pool}
}

// --- Ledger ---

func (s *PostgresStore) Balance(ctx context.Context, asset pair.AssetID, account pair.AccountID) (amount.Amount, error) {
	var amtS string
	err := s.db.QueryRow(ctx,
		`SELECT amount::TEXT FROM balances WHERE asset = $1 AND account = $2`,
		string(asset), string(account)).Scan(&amtS)
	if errors.Is(err, pgx.ErrNoRows) {
		return amount.Zero(), nil
	}
	if err != nil {
		return amount.Zero(), fmt.Errorf("balance %s/%s: %w", asset, account, err)
	}
	return amount.Parse(amtS)
}

func (s *PostgresStore) TotalSupply(ctx context.Context, asset pair.AssetID) (amount.Amount, error) {
	var supplyS string
	err := s.db.QueryRow(ctx,
		`SELECT total_supply::TEXT FROM assets WHERE id = $1`, string(asset)).Scan(&supplyS)
	if errors.Is(err, pgx.ErrNoRows) {
		return amount.Zero(), nil
	}
	if err != nil {
		return amount.Zero(), fmt.Errorf("total supply %s: %w", asset, err)
	}
	return amount.Parse(supplyS)
}

func (s *PostgresStore) Transfer(ctx context.Context, asset pair.AssetID, from, to pair.AccountID, amt amount.Amount) error {
	// Debit only succeeds when the balance covers the amount; zero rows
	// means insufficient funds.
	tag, err := s.db.Exec(ctx,
		`UPDATE balances SET amount = amount - $3::NUMERIC
		 WHERE asset = $1 AND account = $2 AND amount >= $3::NUMERIC`,
		string(asset), string(from), amt.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if amt.IsZero() {
			// A zero transfer from an absent row is still a no-op success.
			return s.credit(ctx, asset, to, amt)
		}
		return ErrInsufficientBalance
	}
	return s.credit(ctx, asset, to, amt)
}

func (s *PostgresStore) Mint(ctx context.Context, asset pair.AssetID, to pair.AccountID, amt amount.Amount) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE assets SET total_supply = total_supply + $2::NUMERIC WHERE id = $1`,
		string(asset), amt.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAssetNotFound
	}
	return s.credit(ctx, asset, to, amt)
}

func (s *PostgresStore) Burn(ctx context.Context, asset pair.AssetID, from pair.AccountID, amt amount.Amount) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE balances SET amount = amount - $3::NUMERIC
		 WHERE asset = $1 AND account = $2 AND amount >= $3::NUMERIC`,
		string(asset), string(from), amt.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 && !amt.IsZero() {
		return ErrInsufficientBalance
	}
	tag, err = s.db.Exec(ctx,
		`UPDATE assets SET total_supply = total_supply - $2::NUMERIC WHERE id = $1`,
		string(asset), amt.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAssetNotFound
	}
	return nil
}

func (s *PostgresStore) CreateAsset(ctx context.Context, asset pair.AssetID, owner pair.AccountID, minBalance amount.Amount) error {
	tag, err := s.db.Exec(ctx,
		`INSERT INTO assets (id, owner, min_balance, total_supply)
		 VALUES ($1, $2, $3::NUMERIC, 0)
		 ON CONFLICT (id) DO NOTHING`,
		string(asset), string(owner), minBalance.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAssetExists
	}
	return nil
}

// credit upserts the destination balance.
func (s *PostgresStore) credit(ctx context.Context, asset pair.AssetID, to pair.AccountID, amt amount.Amount) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO balances (asset, account, amount)
		 VALUES ($1, $2, $3::NUMERIC)
		 ON CONFLICT (asset, account) DO UPDATE
		 SET amount = balances.amount + EXCLUDED.amount`,
		string(asset), string(to), amt.String())
	return err
}

// --- Pool registry ---

func (s *PostgresStore) InsertPool(ctx context.Context, rec *model.PoolRecord) error {
	tag, err := s.db.Exec(ctx,
		`INSERT INTO pools (pool_id, lp_token_id, asset_a, asset_b, creator, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (asset_a, asset_b) DO NOTHING`,
		string(rec.PoolID), string(rec.LPTokenID),
		string(rec.AssetA), string(rec.AssetB),
		string(rec.Creator), rec.CreatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPoolExists
	}
	return nil
}

func (s *PostgresStore) GetPool(ctx context.Context, poolID pair.AccountID) (*model.PoolRecord, error) {
	return s.scanPool(s.db.QueryRow(ctx,
		`SELECT pool_id, lp_token_id, asset_a, asset_b, creator, created_at
		 FROM pools WHERE pool_id = $1`, string(poolID)))
}

func (s *PostgresStore) GetPoolByPair(ctx context.Context, p pair.Pair) (*model.PoolRecord, error) {
	return s.scanPool(s.db.QueryRow(ctx,
		`SELECT pool_id, lp_token_id, asset_a, asset_b, creator, created_at
		 FROM pools WHERE asset_a = $1 AND asset_b = $2`, string(p.A), string(p.B)))
}

func (s *PostgresStore) scanPool(row pgx.Row) (*model.PoolRecord, error) {
	var rec model.PoolRecord
	var poolID, lpTokenID, assetA, assetB, creator string
	err := row.Scan(&poolID, &lpTokenID, &assetA, &assetB, &creator, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPoolNotFound
	}
	if err != nil {
		return nil, err
	}
	rec.PoolID = pair.AccountID(poolID)
	rec.LPTokenID = pair.AssetID(lpTokenID)
	rec.AssetA = pair.AssetID(assetA)
	rec.AssetB = pair.AssetID(assetB)
	rec.Creator = pair.AccountID(creator)
	return &rec, nil
}

func (s *PostgresStore) ListPools(ctx context.Context) ([]model.PoolRecord, error) {
	rows, err := s.db.Query(ctx,
		`SELECT pool_id, lp_token_id, asset_a, asset_b, creator, created_at
		 FROM pools ORDER BY created_at, pool_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pools []model.PoolRecord
	for rows.Next() {
		var rec model.PoolRecord
		var poolID, lpTokenID, assetA, assetB, creator string
		if err := rows.Scan(&poolID, &lpTokenID, &assetA, &assetB, &creator, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.PoolID = pair.AccountID(poolID)
		rec.LPTokenID = pair.AssetID(lpTokenID)
		rec.AssetA = pair.AssetID(assetA)
		rec.AssetB = pair.AssetID(assetB)
		rec.Creator = pair.AccountID(creator)
		pools = append(pools, rec)
	}
	return pools, rows.Err()
}

// --- Journal ---

func (s *PostgresStore) AppendJournal(ctx context.Context, e *model.JournalEntry) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO journal (id, caller, op, pool_id, asset_a, asset_b, amount_a, amount_b, lp_amount, ts)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::NUMERIC, $8::NUMERIC, $9::NUMERIC, $10)`,
		e.ID, string(e.Caller), e.Op, string(e.PoolID),
		string(e.AssetA), string(e.AssetB),
		e.AmountA.String(), e.AmountB.String(), e.LPAmount.String(),
		e.Timestamp)
	return err
}

func (s *PostgresStore) JournalByPool(ctx context.Context, poolID pair.AccountID) ([]model.JournalEntry, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, caller, op, pool_id, asset_a, asset_b,
		        amount_a::TEXT, amount_b::TEXT, lp_amount::TEXT, ts
		 FROM journal WHERE pool_id = $1 ORDER BY ts`, string(poolID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.JournalEntry
	for rows.Next() {
		var e model.JournalEntry
		var caller, poolIDS, assetA, assetB, amtA, amtB, lpAmt string
		if err := rows.Scan(&e.ID, &caller, &e.Op, &poolIDS, &assetA, &assetB,
			&amtA, &amtB, &lpAmt, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Caller = pair.AccountID(caller)
		e.PoolID = pair.AccountID(poolIDS)
		e.AssetA = pair.AssetID(assetA)
		e.AssetB = pair.AssetID(assetB)
		if e.AmountA, err = amount.Parse(amtA); err != nil {
			return nil, err
		}
		if e.AmountB, err = amount.Parse(amtB); err != nil {
			return nil, err
		}
		if e.LPAmount, err = amount.Parse(lpAmt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// --- Transactions ---

// Atomic runs fn inside a database transaction. Nested calls join the
// enclosing transaction.
func (s *PostgresStore) Atomic(ctx context.Context, fn func(Store) error) error {
	if s.pool == nil {
		return fn(s)
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	txStore := &PostgresStore{db: tx}
	if err := fn(txStore); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}
