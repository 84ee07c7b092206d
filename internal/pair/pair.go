// Package pair resolves asset pairs into deterministic pool and LP-token
// identities.
//
// A pool's account and its LP token id are pure functions of the canonical
// (sorted) asset pair: any two callers naming the same two assets in either
// order resolve to the same pool. Nothing in this package touches state.
package pair

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
)

// ErrIdenticalAssets is returned when the two asset ids of a pair are equal.
var ErrIdenticalAssets = errors.New("pair: asset ids must differ")

// AssetID identifies a fungible asset in the ledger. Opaque to the engine;
// ordering is plain byte-wise string order.
type AssetID string

// AccountID identifies a ledger account, including the derived pool accounts.
type AccountID string

// Pair is a canonical (sorted ascending) pair of distinct asset ids.
type Pair struct {
	A AssetID `json:"asset_a"`
	B AssetID `json:"asset_b"`
}

// Canonical sorts two asset ids into a Pair. It fails with
// ErrIdenticalAssets when a == b; there is no pool of an asset with itself.
func Canonical(a, b AssetID) (Pair, error) {
	if a == b {
		return Pair{}, ErrIdenticalAssets
	}
	ids := []AssetID{a, b}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return Pair{A: ids[0], B: ids[1]}, nil
}

// Deriver maps hashed seeds into the ledger's account and asset-id spaces.
// It is the injected address-derivation strategy: the engine never assumes
// how the host ledger names accounts beyond what a Deriver produces.
type Deriver struct {
	prefix []byte
}

// NewDeriver creates a Deriver namespaced by the given module id. Two
// engines with different module ids derive disjoint pool accounts.
func NewDeriver(moduleID string) *Deriver {
	return &Deriver{prefix: []byte(moduleID)}
}

// PoolAccount derives the pool's ledger account from the canonical pair.
// Deterministic: the same pair always maps to the same account, so a pool
// account is created lazily on first use and never recreated.
func (d *Deriver) PoolAccount(p Pair) AccountID {
	h := sha256.New()
	h.Write(d.prefix)
	h.Write([]byte{0})
	h.Write([]byte(p.A))
	h.Write([]byte{0})
	h.Write([]byte(p.B))
	sum := h.Sum(nil)
	return AccountID("pool" + hex.EncodeToString(sum[:20]))
}

// ModuleAccount derives the engine's own ledger account. It owns the LP
// assets the engine registers; it never holds balances.
func (d *Deriver) ModuleAccount() AccountID {
	h := sha256.New()
	h.Write(d.prefix)
	h.Write([]byte{2})
	sum := h.Sum(nil)
	return AccountID("mod" + hex.EncodeToString(sum[:20]))
}

// LPTokenID derives the pool's LP token id from the pool account. The hash
// is truncated into the narrower asset-id space, so a collision with a
// pre-existing asset id is theoretically possible; it is not detected here
// but surfaces as an asset-creation conflict when the pool is created.
func (d *Deriver) LPTokenID(pool AccountID) AssetID {
	h := sha256.New()
	h.Write(d.prefix)
	h.Write([]byte{1})
	h.Write([]byte(pool))
	sum := h.Sum(nil)
	return AssetID("lp" + hex.EncodeToString(sum[:8]))
}
