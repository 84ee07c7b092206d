// Package model defines the core domain records shared across the pool
// engine. All monetary values use the checked amount kernel, never
// float64 for money.
package model

import (
	"time"

	"github.com/cascadex/pool-engine/internal/amount"
	"github.com/cascadex/pool-engine/internal/pair"
)

// PoolRecord is the registry entry for a created pool. Identities only:
// reserves and LP supply are ledger balances, read on demand, never stored
// here. Pools are created once per canonical pair and never deleted.
type PoolRecord struct {
	PoolID    pair.AccountID `json:"pool_id" db:"pool_id"`
	LPTokenID pair.AssetID   `json:"lp_token_id" db:"lp_token_id"`
	AssetA    pair.AssetID   `json:"asset_a" db:"asset_a"` // canonical order, A < B
	AssetB    pair.AssetID   `json:"asset_b" db:"asset_b"`
	Creator   pair.AccountID `json:"creator" db:"creator"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
}

// Pair returns the canonical asset pair of the pool.
func (p *PoolRecord) Pair() pair.Pair {
	return pair.Pair{A: p.AssetA, B: p.AssetB}
}

// Operation names recorded in the journal.
const (
	OpCreatePool       = "create_pool"
	OpProvideLiquidity = "provide_liquidity"
	OpSwap             = "swap"
	OpRedeem           = "redeem"
)

// JournalEntry is an immutable record of a completed pool operation.
// Once written, entries are never modified or deleted.
type JournalEntry struct {
	ID        string         `json:"id" db:"id"`
	Caller    pair.AccountID `json:"caller" db:"caller"`
	Op        string         `json:"op" db:"op"`
	PoolID    pair.AccountID `json:"pool_id" db:"pool_id"`
	AssetA    pair.AssetID   `json:"asset_a" db:"asset_a"`
	AssetB    pair.AssetID   `json:"asset_b" db:"asset_b"`
	AmountA   amount.Amount  `json:"amount_a" db:"amount_a"`
	AmountB   amount.Amount  `json:"amount_b" db:"amount_b"`
	LPAmount  amount.Amount  `json:"lp_amount" db:"lp_amount"`
	Timestamp time.Time      `json:"timestamp" db:"timestamp"`
}
