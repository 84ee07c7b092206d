package store

import (
	"context"
	"sort"
	"sync"

	"github.com/cascadex/pool-engine/internal/amount"
	"github.com/cascadex/pool-engine/internal/model"
	"github.com/cascadex/pool-engine/internal/pair"
)

type assetInfo struct {
	owner      pair.AccountID
	minBalance amount.Amount
	supply     amount.Amount
}

// MemoryStore implements Store with in-memory maps. Used for testing and
// development. Not suitable for production (no persistence).
//
// Atomic works by snapshot-and-restore, which assumes operations are
// serialized by the caller; the dex service holds a mutex across each
// public operation, so overlapping Atomic blocks never occur in practice.
type MemoryStore struct {
	mu       sync.RWMutex
	assets   map[pair.AssetID]assetInfo
	balances map[pair.AssetID]map[pair.AccountID]amount.Amount
	pools    map[pair.AccountID]*model.PoolRecord
	byPair   map[pair.Pair]pair.AccountID
	journal  []model.JournalEntry
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		assets:   make(map[pair.AssetID]assetInfo),
		balances: make(map[pair.AssetID]map[pair.AccountID]amount.Amount),
		pools:    make(map[pair.AccountID]*model.PoolRecord),
		byPair:   make(map[pair.Pair]pair.AccountID),
	}
}

// --- Ledger ---

func (s *MemoryStore) Balance(_ context.Context, asset pair.AssetID, account pair.AccountID) (amount.Amount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balances[asset][account], nil
}

func (s *MemoryStore) TotalSupply(_ context.Context, asset pair.AssetID) (amount.Amount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.assets[asset].supply, nil
}

func (s *MemoryStore) Transfer(_ context.Context, asset pair.AssetID, from, to pair.AccountID, amt amount.Amount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fromBal := s.balances[asset][from]
	if fromBal.Lt(amt) {
		return ErrInsufficientBalance
	}
	newFrom, err := fromBal.Sub(amt)
	if err != nil {
		return err
	}
	newTo, err := s.balances[asset][to].Add(amt)
	if err != nil {
		return err
	}
	s.setBalance(asset, from, newFrom)
	s.setBalance(asset, to, newTo)
	return nil
}

func (s *MemoryStore) Mint(_ context.Context, asset pair.AssetID, to pair.AccountID, amt amount.Amount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.assets[asset]
	if !ok {
		return ErrAssetNotFound
	}
	newSupply, err := info.supply.Add(amt)
	if err != nil {
		return err
	}
	newBal, err := s.balances[asset][to].Add(amt)
	if err != nil {
		return err
	}
	info.supply = newSupply
	s.assets[asset] = info
	s.setBalance(asset, to, newBal)
	return nil
}

func (s *MemoryStore) Burn(_ context.Context, asset pair.AssetID, from pair.AccountID, amt amount.Amount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.assets[asset]
	if !ok {
		return ErrAssetNotFound
	}
	bal := s.balances[asset][from]
	if bal.Lt(amt) {
		return ErrInsufficientBalance
	}
	newBal, err := bal.Sub(amt)
	if err != nil {
		return err
	}
	newSupply, err := info.supply.Sub(amt)
	if err != nil {
		return err
	}
	info.supply = newSupply
	s.assets[asset] = info
	s.setBalance(asset, from, newBal)
	return nil
}

func (s *MemoryStore) CreateAsset(_ context.Context, asset pair.AssetID, owner pair.AccountID, minBalance amount.Amount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.assets[asset]; ok {
		return ErrAssetExists
	}
	s.assets[asset] = assetInfo{owner: owner, minBalance: minBalance}
	return nil
}

// setBalance writes a balance entry. Caller must hold the write lock.
func (s *MemoryStore) setBalance(asset pair.AssetID, account pair.AccountID, amt amount.Amount) {
	accounts, ok := s.balances[asset]
	if !ok {
		accounts = make(map[pair.AccountID]amount.Amount)
		s.balances[asset] = accounts
	}
	accounts[account] = amt
}

// --- Pool registry ---

func (s *MemoryStore) InsertPool(_ context.Context, rec *model.PoolRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byPair[rec.Pair()]; ok {
		return ErrPoolExists
	}
	cp := *rec
	s.pools[rec.PoolID] = &cp
	s.byPair[rec.Pair()] = rec.PoolID
	return nil
}

func (s *MemoryStore) GetPool(_ context.Context, poolID pair.AccountID) (*model.PoolRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.pools[poolID]
	if !ok {
		return nil, ErrPoolNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) GetPoolByPair(ctx context.Context, p pair.Pair) (*model.PoolRecord, error) {
	s.mu.RLock()
	poolID, ok := s.byPair[p]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrPoolNotFound
	}
	return s.GetPool(ctx, poolID)
}

func (s *MemoryStore) ListPools(_ context.Context) ([]model.PoolRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pools := make([]model.PoolRecord, 0, len(s.pools))
	for _, rec := range s.pools {
		pools = append(pools, *rec)
	}
	sort.Slice(pools, func(i, j int) bool { return pools[i].PoolID < pools[j].PoolID })
	return pools, nil
}

// --- Journal ---

func (s *MemoryStore) AppendJournal(_ context.Context, e *model.JournalEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.journal = append(s.journal, *e)
	return nil
}

func (s *MemoryStore) JournalByPool(_ context.Context, poolID pair.AccountID) ([]model.JournalEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.JournalEntry
	for _, e := range s.journal {
		if e.PoolID == poolID {
			result = append(result, e)
		}
	}
	return result, nil
}

// --- Transactions ---

// Atomic snapshots the whole store, runs fn against the live store, and
// restores the snapshot if fn fails.
func (s *MemoryStore) Atomic(ctx context.Context, fn func(Store) error) error {
	snap := s.snapshot()
	if err := fn(s); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

type memSnapshot struct {
	assets   map[pair.AssetID]assetInfo
	balances map[pair.AssetID]map[pair.AccountID]amount.Amount
	pools    map[pair.AccountID]*model.PoolRecord
	byPair   map[pair.Pair]pair.AccountID
	journal  []model.JournalEntry
}

func (s *MemoryStore) snapshot() memSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := memSnapshot{
		assets:   make(map[pair.AssetID]assetInfo, len(s.assets)),
		balances: make(map[pair.AssetID]map[pair.AccountID]amount.Amount, len(s.balances)),
		pools:    make(map[pair.AccountID]*model.PoolRecord, len(s.pools)),
		byPair:   make(map[pair.Pair]pair.AccountID, len(s.byPair)),
		journal:  make([]model.JournalEntry, len(s.journal)),
	}
	for k, v := range s.assets {
		snap.assets[k] = v
	}
	for asset, accounts := range s.balances {
		cp := make(map[pair.AccountID]amount.Amount, len(accounts))
		for acct, bal := range accounts {
			cp[acct] = bal
		}
		snap.balances[asset] = cp
	}
	for k, v := range s.pools {
		cp := *v
		snap.pools[k] = &cp
	}
	for k, v := range s.byPair {
		snap.byPair[k] = v
	}
	copy(snap.journal, s.journal)
	return snap
}

func (s *MemoryStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.assets = snap.assets
	s.balances = snap.balances
	s.pools = snap.pools
	s.byPair = snap.byPair
	s.journal = snap.journal
}
