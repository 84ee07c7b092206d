// Package store defines the persistence interface for the pool engine:
// the asset ledger the engine mutates, the registry of created pools, and
// the immutable operation journal. Implementations include PostgreSQL
// (source of truth), Redis (read-through cache for immutable registry
// records), and in-memory (for testing and development).
package store

import (
	"context"
	"errors"

	"github.com/cascadex/pool-engine/internal/amount"
	"github.com/cascadex/pool-engine/internal/model"
	"github.com/cascadex/pool-engine/internal/pair"
)

var (
	// ErrInsufficientBalance is returned by Transfer and Burn when the
	// source account holds less than the requested amount.
	ErrInsufficientBalance = errors.New("store: insufficient balance")

	// ErrAssetExists is returned by CreateAsset when the asset id is
	// already taken, including the theoretical case of a derived LP
	// token id colliding with a pre-existing asset.
	ErrAssetExists = errors.New("store: asset already exists")

	// ErrAssetNotFound is returned by Mint and Burn for an asset that was
	// never created.
	ErrAssetNotFound = errors.New("store: asset not found")

	// ErrPoolExists is returned by InsertPool for an already-registered pair.
	ErrPoolExists = errors.New("store: pool already exists")

	// ErrPoolNotFound is returned by pool lookups for an unknown pool.
	ErrPoolNotFound = errors.New("store: pool not found")
)

// Ledger is the asset-ledger collaborator the engine consumes. Balances
// and total supplies are the only reserve state the engine ever reads;
// it keeps no copy of its own.
type Ledger interface {
	// Balance returns the account's balance of an asset. Unknown assets
	// and accounts read as zero.
	Balance(ctx context.Context, asset pair.AssetID, account pair.AccountID) (amount.Amount, error)

	// TotalSupply returns the total issuance of an asset. Unknown assets
	// read as zero.
	TotalSupply(ctx context.Context, asset pair.AssetID) (amount.Amount, error)

	// Transfer moves amount from one account to another. Fails with
	// ErrInsufficientBalance if the source holds less than amount.
	Transfer(ctx context.Context, asset pair.AssetID, from, to pair.AccountID, amt amount.Amount) error

	// Mint creates new units of an existing asset in the target account.
	Mint(ctx context.Context, asset pair.AssetID, to pair.AccountID, amt amount.Amount) error

	// Burn destroys units held by the source account. Fails with
	// ErrInsufficientBalance if the account holds less than amount.
	Burn(ctx context.Context, asset pair.AssetID, from pair.AccountID, amt amount.Amount) error

	// CreateAsset registers a new asset id. Not idempotent: a second call
	// for the same id fails with ErrAssetExists, so the engine calls it
	// exactly once per LP token.
	CreateAsset(ctx context.Context, asset pair.AssetID, owner pair.AccountID, minBalance amount.Amount) error
}

// Store is the full persistence interface: ledger, pool registry, and
// journal, plus transactional execution.
type Store interface {
	Ledger

	// InsertPool registers a created pool. Fails with ErrPoolExists if the
	// canonical pair is already registered.
	InsertPool(ctx context.Context, rec *model.PoolRecord) error

	// GetPool retrieves a pool record by its pool account id.
	GetPool(ctx context.Context, poolID pair.AccountID) (*model.PoolRecord, error)

	// GetPoolByPair retrieves a pool record by its canonical pair.
	GetPoolByPair(ctx context.Context, p pair.Pair) (*model.PoolRecord, error)

	// ListPools returns all registered pools.
	ListPools(ctx context.Context) ([]model.PoolRecord, error)

	// AppendJournal appends an immutable operation record.
	AppendJournal(ctx context.Context, e *model.JournalEntry) error

	// JournalByPool returns all journal entries for a pool, oldest first.
	JournalByPool(ctx context.Context, poolID pair.AccountID) ([]model.JournalEntry, error)

	// Atomic runs fn against a transactional view of the store. If fn
	// returns an error every mutation it made is rolled back; otherwise
	// all are committed together. Reads inside fn are consistent with its
	// own writes. Each public pool operation runs in one Atomic block.
	Atomic(ctx context.Context, fn func(Store) error) error
}
