package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cascadex/pool-engine/internal/amount"
	"github.com/cascadex/pool-engine/internal/model"
	"github.com/cascadex/pool-engine/internal/pair"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for pool registry records. Only immutable data is cached: a pool
// record never changes after creation, so there is no invalidation beyond
// TTL expiry. Balances, supplies, and the journal always hit the primary;
// caching live reserves would break the read-then-write consistency the
// engine depends on.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Pool registry (read-through) ---

func (s *CachedStore) InsertPool(ctx context.Context, rec *model.PoolRecord) error {
	if err := s.primary.InsertPool(ctx, rec); err != nil {
		return err
	}
	s.cachePool(ctx, rec)
	return nil
}

func (s *CachedStore) GetPool(ctx context.Context, poolID pair.AccountID) (*model.PoolRecord, error) {
	data, err := s.rdb.Get(ctx, poolKey(poolID)).Bytes()
	if err == nil {
		var rec model.PoolRecord
		if json.Unmarshal(data, &rec) == nil {
			return &rec, nil
		}
	}

	rec, err := s.primary.GetPool(ctx, poolID)
	if err != nil {
		return nil, err
	}
	s.cachePool(ctx, rec)
	return rec, nil
}

func (s *CachedStore) GetPoolByPair(ctx context.Context, p pair.Pair) (*model.PoolRecord, error) {
	poolID, err := s.rdb.Get(ctx, pairKey(p)).Result()
	if err == nil {
		return s.GetPool(ctx, pair.AccountID(poolID))
	}

	rec, err := s.primary.GetPoolByPair(ctx, p)
	if err != nil {
		return nil, err
	}
	s.cachePool(ctx, rec)
	return rec, nil
}

func (s *CachedStore) cachePool(ctx context.Context, rec *model.PoolRecord) {
	if data, err := json.Marshal(rec); err == nil {
		s.rdb.Set(ctx, poolKey(rec.PoolID), data, s.ttl)
		s.rdb.Set(ctx, pairKey(rec.Pair()), string(rec.PoolID), s.ttl)
	}
}

// --- Passthrough (never cached) ---

func (s *CachedStore) Balance(ctx context.Context, asset pair.AssetID, account pair.AccountID) (amount.Amount, error) {
	return s.primary.Balance(ctx, asset, account)
}

func (s *CachedStore) TotalSupply(ctx context.Context, asset pair.AssetID) (amount.Amount, error) {
	return s.primary.TotalSupply(ctx, asset)
}

func (s *CachedStore) Transfer(ctx context.Context, asset pair.AssetID, from, to pair.AccountID, amt amount.Amount) error {
	return s.primary.Transfer(ctx, asset, from, to, amt)
}

func (s *CachedStore) Mint(ctx context.Context, asset pair.AssetID, to pair.AccountID, amt amount.Amount) error {
	return s.primary.Mint(ctx, asset, to, amt)
}

func (s *CachedStore) Burn(ctx context.Context, asset pair.AssetID, from pair.AccountID, amt amount.Amount) error {
	return s.primary.Burn(ctx, asset, from, amt)
}

func (s *CachedStore) CreateAsset(ctx context.Context, asset pair.AssetID, owner pair.AccountID, minBalance amount.Amount) error {
	return s.primary.CreateAsset(ctx, asset, owner, minBalance)
}

func (s *CachedStore) ListPools(ctx context.Context) ([]model.PoolRecord, error) {
	return s.primary.ListPools(ctx)
}

func (s *CachedStore) AppendJournal(ctx context.Context, e *model.JournalEntry) error {
	return s.primary.AppendJournal(ctx, e)
}

func (s *CachedStore) JournalByPool(ctx context.Context, poolID pair.AccountID) ([]model.JournalEntry, error) {
	return s.primary.JournalByPool(ctx, poolID)
}

// Atomic delegates transactionality to the primary. The transactional view
// handed to fn is uncached: warming the cache before commit would leave a
// phantom pool record behind if the transaction rolls back. The first read
// after commit re-warms the cache from the primary.
func (s *CachedStore) Atomic(ctx context.Context, fn func(Store) error) error {
	return s.primary.Atomic(ctx, fn)
}

func poolKey(id pair.AccountID) string { return fmt.Sprintf("pool:%s", id) }
func pairKey(p pair.Pair) string       { return fmt.Sprintf("pair:%s/%s", p.A, p.B) }
