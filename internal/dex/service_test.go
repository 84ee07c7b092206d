package dex_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/cascadex/pool-engine/internal/amount"
	"github.com/cascadex/pool-engine/internal/dex"
	"github.com/cascadex/pool-engine/internal/model"
	"github.com/cascadex/pool-engine/internal/pair"
	"github.com/cascadex/pool-engine/internal/store"
)

func n(v uint64) amount.Amount {
	return amount.New(v)
}

// newTestEnv creates a test Service with in-memory store and chi router.
func newTestEnv(t *testing.T) (*dex.Service, *store.MemoryStore, chi.Router) {
	t.Helper()
	ms := store.NewMemoryStore()
	deriver := pair.NewDeriver("pool-engine-test")
	svc := dex.NewService(ms, deriver, 0, 0, nil)

	r := chi.NewRouter()
	r.Get("/api/v1/pools", svc.HandleListPools)
	r.Post("/api/v1/pools", svc.HandleCreatePool)
	r.Post("/api/v1/pools/liquidity", svc.HandleProvideLiquidity)
	r.Get("/api/v1/pools/{poolID}", svc.HandleGetPool)
	r.Get("/api/v1/pools/{poolID}/history", svc.HandlePoolHistory)
	r.Post("/api/v1/swap", svc.HandleSwap)
	r.Post("/api/v1/redeem", svc.HandleRedeem)

	return svc, ms, r
}

// seedAsset registers an asset (if needed) and mints an opening balance.
func seedAsset(t *testing.T, ms *store.MemoryStore, asset pair.AssetID, account pair.AccountID, amt uint64) {
	t.Helper()
	ctx := context.Background()
	if err := ms.CreateAsset(ctx, asset, "issuer", n(1)); err != nil && !errors.Is(err, store.ErrAssetExists) {
		t.Fatalf("failed to create asset: %v", err)
	}
	if err := ms.Mint(ctx, asset, account, n(amt)); err != nil {
		t.Fatalf("failed to mint: %v", err)
	}
}

func doPost(t *testing.T, router chi.Router, path string, req any) *httptest.ResponseRecorder {
	t.Helper()
	body, _ := json.Marshal(req)
	httpReq := httptest.NewRequest("POST", path, bytes.NewReader(body))
	httpReq.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httpReq)
	return w
}

func doGet(t *testing.T, router chi.Router, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func createPool(t *testing.T, router chi.Router, caller pair.AccountID, assetA, assetB pair.AssetID, amtA, amtB uint64) dex.CreatePoolResult {
	t.Helper()
	w := doPost(t, router, "/api/v1/pools", dex.CreatePoolRequest{
		Caller: caller, AssetA: assetA, AssetB: assetB,
		AmountA: n(amtA), AmountB: n(amtB),
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create pool failed: %d %s", w.Code, w.Body.String())
	}
	var res dex.CreatePoolResult
	json.Unmarshal(w.Body.Bytes(), &res)
	return res
}

func balance(t *testing.T, ms *store.MemoryStore, asset pair.AssetID, account pair.AccountID) amount.Amount {
	t.Helper()
	bal, err := ms.Balance(context.Background(), asset, account)
	if err != nil {
		t.Fatalf("balance read failed: %v", err)
	}
	return bal
}

// --- Pool creation ---

func TestCreatePool_Valid(t *testing.T) {
	_, ms, router := newTestEnv(t)
	seedAsset(t, ms, "atom", "alice", 50)
	seedAsset(t, ms, "btc", "alice", 50)

	res := createPool(t, router, "alice", "atom", "btc", 50, 50)

	// Initial mint is the geometric mean of the deposits.
	if !res.LPAmount.Equal(n(50)) {
		t.Errorf("expected 50 LP tokens, got %s", res.LPAmount)
	}
	if res.Pool.AssetA != "atom" || res.Pool.AssetB != "btc" {
		t.Errorf("expected canonical pair (atom, btc), got (%s, %s)",
			res.Pool.AssetA, res.Pool.AssetB)
	}

	// Deposits moved into the pool account; LP tokens minted to creator.
	if got := balance(t, ms, "atom", res.Pool.PoolID); !got.Equal(n(50)) {
		t.Errorf("expected pool atom reserve 50, got %s", got)
	}
	if got := balance(t, ms, "btc", res.Pool.PoolID); !got.Equal(n(50)) {
		t.Errorf("expected pool btc reserve 50, got %s", got)
	}
	if got := balance(t, ms, "atom", "alice"); !got.IsZero() {
		t.Errorf("expected alice atom balance 0, got %s", got)
	}
	if got := balance(t, ms, res.Pool.LPTokenID, "alice"); !got.Equal(n(50)) {
		t.Errorf("expected alice LP balance 50, got %s", got)
	}
}

func TestCreatePool_IdenticalAssets(t *testing.T) {
	_, ms, router := newTestEnv(t)
	seedAsset(t, ms, "atom", "alice", 100)

	w := doPost(t, router, "/api/v1/pools", dex.CreatePoolRequest{
		Caller: "alice", AssetA: "atom", AssetB: "atom",
		AmountA: n(10), AmountB: n(10),
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for identical assets, got %d: %s", w.Code, w.Body.String())
	}
}

func TestCreatePool_Duplicate(t *testing.T) {
	_, ms, router := newTestEnv(t)
	seedAsset(t, ms, "atom", "alice", 200)
	seedAsset(t, ms, "btc", "alice", 200)

	createPool(t, router, "alice", "atom", "btc", 50, 50)

	// Second attempt, even with the assets reversed, hits the same pool.
	w := doPost(t, router, "/api/v1/pools", dex.CreatePoolRequest{
		Caller: "alice", AssetA: "btc", AssetB: "atom",
		AmountA: n(50), AmountB: n(50),
	})
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 for duplicate pool, got %d: %s", w.Code, w.Body.String())
	}
}

func TestCreatePool_InsufficientBalance(t *testing.T) {
	_, ms, router := newTestEnv(t)
	seedAsset(t, ms, "atom", "alice", 10)
	seedAsset(t, ms, "btc", "alice", 10)

	w := doPost(t, router, "/api/v1/pools", dex.CreatePoolRequest{
		Caller: "alice", AssetA: "atom", AssetB: "btc",
		AmountA: n(50), AmountB: n(50),
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", w.Code, w.Body.String())
	}

	// Nothing moved and no pool was registered.
	if got := balance(t, ms, "atom", "alice"); !got.Equal(n(10)) {
		t.Errorf("balance should be untouched, got %s", got)
	}
	pools, _ := ms.ListPools(context.Background())
	if len(pools) != 0 {
		t.Errorf("expected no pools, got %d", len(pools))
	}
}

func TestCreatePool_IdentityIndependentOfOrder(t *testing.T) {
	_, ms1, router1 := newTestEnv(t)
	seedAsset(t, ms1, "atom", "alice", 50)
	seedAsset(t, ms1, "btc", "alice", 50)
	res1 := createPool(t, router1, "alice", "atom", "btc", 50, 50)

	_, ms2, router2 := newTestEnv(t)
	seedAsset(t, ms2, "atom", "alice", 50)
	seedAsset(t, ms2, "btc", "alice", 50)
	res2 := createPool(t, router2, "alice", "btc", "atom", 50, 50)

	if res1.Pool.PoolID != res2.Pool.PoolID {
		t.Errorf("pool id should not depend on asset order: %s vs %s",
			res1.Pool.PoolID, res2.Pool.PoolID)
	}
	if res1.Pool.LPTokenID != res2.Pool.LPTokenID {
		t.Errorf("lp token id should not depend on asset order: %s vs %s",
			res1.Pool.LPTokenID, res2.Pool.LPTokenID)
	}
}

// --- Liquidity provision ---

func TestProvideLiquidity_ProportionalMint(t *testing.T) {
	_, ms, router := newTestEnv(t)
	seedAsset(t, ms, "atom", "alice", 100)
	seedAsset(t, ms, "btc", "alice", 100)

	created := createPool(t, router, "alice", "atom", "btc", 50, 50)

	w := doPost(t, router, "/api/v1/pools/liquidity", dex.ProvideLiquidityRequest{
		Caller: "alice", AssetA: "atom", AssetB: "btc", AmountA: n(50),
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var res dex.ProvideLiquidityResult
	json.Unmarshal(w.Body.Bytes(), &res)

	// Equal reserves, so the second leg matches the deposit and the mint
	// doubles the supply.
	if !res.AmountB.Equal(n(50)) {
		t.Errorf("expected derived amount_b 50, got %s", res.AmountB)
	}
	if !res.LPAmount.Equal(n(50)) {
		t.Errorf("expected 50 LP tokens, got %s", res.LPAmount)
	}
	if got := balance(t, ms, created.Pool.LPTokenID, "alice"); !got.Equal(n(100)) {
		t.Errorf("expected alice LP balance 100, got %s", got)
	}
	if got := balance(t, ms, "atom", created.Pool.PoolID); !got.Equal(n(100)) {
		t.Errorf("expected pool atom reserve 100, got %s", got)
	}
}

func TestProvideLiquidity_SkewedReserves(t *testing.T) {
	_, ms, router := newTestEnv(t)
	seedAsset(t, ms, "atom", "alice", 150)
	seedAsset(t, ms, "btc", "alice", 100)

	createPool(t, router, "alice", "atom", "btc", 100, 50)

	// Reserves are 100 atom / 50 btc: depositing 50 atom needs 25 btc.
	w := doPost(t, router, "/api/v1/pools/liquidity", dex.ProvideLiquidityRequest{
		Caller: "alice", AssetA: "atom", AssetB: "btc", AmountA: n(50),
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var res dex.ProvideLiquidityResult
	json.Unmarshal(w.Body.Bytes(), &res)
	if !res.AmountB.Equal(n(25)) {
		t.Errorf("expected derived amount_b 25, got %s", res.AmountB)
	}
}

func TestProvideLiquidity_PoolNotFound(t *testing.T) {
	_, ms, router := newTestEnv(t)
	seedAsset(t, ms, "atom", "alice", 100)

	w := doPost(t, router, "/api/v1/pools/liquidity", dex.ProvideLiquidityRequest{
		Caller: "alice", AssetA: "atom", AssetB: "btc", AmountA: n(50),
	})
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d: %s", w.Code, w.Body.String())
	}
}

// --- Swaps ---

func TestSwap_ConstantProductWithFee(t *testing.T) {
	_, ms, router := newTestEnv(t)
	seedAsset(t, ms, "atom", "alice", 50)
	seedAsset(t, ms, "btc", "alice", 100)
	seedAsset(t, ms, "atom", "bob", 50)

	created := createPool(t, router, "alice", "atom", "btc", 50, 100)

	w := doPost(t, router, "/api/v1/swap", dex.SwapRequest{
		Caller: "bob", AssetIn: "atom", AssetOut: "btc", AmountIn: n(50),
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var res dex.SwapResult
	json.Unmarshal(w.Body.Bytes(), &res)

	// Ideal output is 50; the 10% fee leaves 45 for the caller.
	if !res.AmountOut.Equal(n(45)) {
		t.Errorf("expected amount_out 45, got %s", res.AmountOut)
	}
	if got := balance(t, ms, "btc", "bob"); !got.Equal(n(45)) {
		t.Errorf("expected bob btc balance 45, got %s", got)
	}
	if got := balance(t, ms, "atom", "bob"); !got.IsZero() {
		t.Errorf("expected bob atom balance 0, got %s", got)
	}

	// Fee retention: the reserve product strictly grew (100*55 > 50*100).
	atomReserve := balance(t, ms, "atom", created.Pool.PoolID)
	btcReserve := balance(t, ms, "btc", created.Pool.PoolID)
	if !atomReserve.Equal(n(100)) || !btcReserve.Equal(n(55)) {
		t.Errorf("expected reserves 100/55, got %s/%s", atomReserve, btcReserve)
	}
}

func TestSwap_PoolNotFound(t *testing.T) {
	_, ms, router := newTestEnv(t)
	seedAsset(t, ms, "atom", "bob", 50)

	w := doPost(t, router, "/api/v1/swap", dex.SwapRequest{
		Caller: "bob", AssetIn: "atom", AssetOut: "btc", AmountIn: n(50),
	})
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d: %s", w.Code, w.Body.String())
	}
}

func TestSwap_InsufficientBalance(t *testing.T) {
	_, ms, router := newTestEnv(t)
	seedAsset(t, ms, "atom", "alice", 50)
	seedAsset(t, ms, "btc", "alice", 100)
	seedAsset(t, ms, "atom", "bob", 10)

	created := createPool(t, router, "alice", "atom", "btc", 50, 100)

	w := doPost(t, router, "/api/v1/swap", dex.SwapRequest{
		Caller: "bob", AssetIn: "atom", AssetOut: "btc", AmountIn: n(50),
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", w.Code, w.Body.String())
	}

	// Reserves untouched.
	if got := balance(t, ms, "atom", created.Pool.PoolID); !got.Equal(n(50)) {
		t.Errorf("expected atom reserve 50, got %s", got)
	}
	if got := balance(t, ms, "atom", "bob"); !got.Equal(n(10)) {
		t.Errorf("expected bob atom balance 10, got %s", got)
	}
}

// --- Redemption ---

func TestRedeem_FullSupplyDrainsPool(t *testing.T) {
	_, ms, router := newTestEnv(t)
	seedAsset(t, ms, "atom", "alice", 50)
	seedAsset(t, ms, "btc", "alice", 50)

	created := createPool(t, router, "alice", "atom", "btc", 50, 50)

	w := doPost(t, router, "/api/v1/redeem", dex.RedeemRequest{
		Caller: "alice", AssetA: "atom", AssetB: "btc", LPAmount: n(50),
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var res dex.RedeemResult
	json.Unmarshal(w.Body.Bytes(), &res)
	if !res.AmountA.Equal(n(50)) || !res.AmountB.Equal(n(50)) {
		t.Errorf("expected payout (50, 50), got (%s, %s)", res.AmountA, res.AmountB)
	}

	// Deposits returned, LP tokens burned out of existence.
	if got := balance(t, ms, "atom", "alice"); !got.Equal(n(50)) {
		t.Errorf("expected alice atom balance 50, got %s", got)
	}
	supply, _ := ms.TotalSupply(context.Background(), created.Pool.LPTokenID)
	if !supply.IsZero() {
		t.Errorf("expected zero LP supply, got %s", supply)
	}
}

func TestRedeem_Partial(t *testing.T) {
	_, ms, router := newTestEnv(t)
	seedAsset(t, ms, "atom", "alice", 50)
	seedAsset(t, ms, "btc", "alice", 50)

	createPool(t, router, "alice", "atom", "btc", 50, 50)

	w := doPost(t, router, "/api/v1/redeem", dex.RedeemRequest{
		Caller: "alice", AssetA: "atom", AssetB: "btc", LPAmount: n(25),
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var res dex.RedeemResult
	json.Unmarshal(w.Body.Bytes(), &res)
	if !res.AmountA.Equal(n(25)) || !res.AmountB.Equal(n(25)) {
		t.Errorf("expected payout (25, 25), got (%s, %s)", res.AmountA, res.AmountB)
	}
}

func TestRedeem_InsufficientLPBalance(t *testing.T) {
	_, ms, router := newTestEnv(t)
	seedAsset(t, ms, "atom", "alice", 50)
	seedAsset(t, ms, "btc", "alice", 50)

	createPool(t, router, "alice", "atom", "btc", 50, 50)

	w := doPost(t, router, "/api/v1/redeem", dex.RedeemRequest{
		Caller: "alice", AssetA: "atom", AssetB: "btc", LPAmount: n(51),
	})
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d: %s", w.Code, w.Body.String())
	}
}

func TestRedeem_ThenReseed(t *testing.T) {
	_, ms, router := newTestEnv(t)
	seedAsset(t, ms, "atom", "alice", 50)
	seedAsset(t, ms, "btc", "alice", 50)

	created := createPool(t, router, "alice", "atom", "btc", 50, 50)

	// Drain the pool completely.
	w := doPost(t, router, "/api/v1/redeem", dex.RedeemRequest{
		Caller: "alice", AssetA: "atom", AssetB: "btc", LPAmount: n(50),
	})
	if w.Code != http.StatusOK {
		t.Fatalf("redeem failed: %d %s", w.Code, w.Body.String())
	}

	// The pool and its LP asset persist: providing liquidity re-seeds it.
	w = doPost(t, router, "/api/v1/pools/liquidity", dex.ProvideLiquidityRequest{
		Caller: "alice", AssetA: "atom", AssetB: "btc", AmountA: n(50),
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected re-seed to succeed, got %d: %s", w.Code, w.Body.String())
	}
	if got := balance(t, ms, "atom", created.Pool.PoolID); !got.Equal(n(50)) {
		t.Errorf("expected re-seeded atom reserve 50, got %s", got)
	}

	// But a second create_pool for the pair still conflicts.
	w = doPost(t, router, "/api/v1/pools", dex.CreatePoolRequest{
		Caller: "alice", AssetA: "atom", AssetB: "btc",
		AmountA: n(1), AmountB: n(1),
	})
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 for re-create, got %d: %s", w.Code, w.Body.String())
	}
}

// --- Queries ---

func TestGetPool_LiveState(t *testing.T) {
	_, ms, router := newTestEnv(t)
	seedAsset(t, ms, "atom", "alice", 50)
	seedAsset(t, ms, "btc", "alice", 100)

	created := createPool(t, router, "alice", "atom", "btc", 50, 100)

	w := doGet(t, router, "/api/v1/pools/"+string(created.Pool.PoolID))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var detail dex.PoolDetail
	json.Unmarshal(w.Body.Bytes(), &detail)
	if !detail.ReserveA.Equal(n(50)) || !detail.ReserveB.Equal(n(100)) {
		t.Errorf("expected reserves 50/100, got %s/%s", detail.ReserveA, detail.ReserveB)
	}
	// floor(sqrt(50*100)) = 70.
	if !detail.LPSupply.Equal(n(70)) {
		t.Errorf("expected LP supply 70, got %s", detail.LPSupply)
	}
}

func TestGetPool_NotFound(t *testing.T) {
	_, _, router := newTestEnv(t)
	w := doGet(t, router, "/api/v1/pools/nope")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestListPools_Empty(t *testing.T) {
	_, _, router := newTestEnv(t)
	w := doGet(t, router, "/api/v1/pools")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var pools []model.PoolRecord
	if err := json.Unmarshal(w.Body.Bytes(), &pools); err != nil {
		t.Fatalf("expected JSON array, got %s", w.Body.String())
	}
	if len(pools) != 0 {
		t.Errorf("expected empty list, got %d", len(pools))
	}
}

func TestPoolHistory_RecordsOperations(t *testing.T) {
	_, ms, router := newTestEnv(t)
	seedAsset(t, ms, "atom", "alice", 50)
	seedAsset(t, ms, "btc", "alice", 100)
	seedAsset(t, ms, "atom", "bob", 50)

	created := createPool(t, router, "alice", "atom", "btc", 50, 100)
	doPost(t, router, "/api/v1/swap", dex.SwapRequest{
		Caller: "bob", AssetIn: "atom", AssetOut: "btc", AmountIn: n(50),
	})

	w := doGet(t, router, "/api/v1/pools/"+string(created.Pool.PoolID)+"/history")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var entries []model.JournalEntry
	json.Unmarshal(w.Body.Bytes(), &entries)
	if len(entries) != 2 {
		t.Fatalf("expected 2 journal entries, got %d", len(entries))
	}
	if entries[0].Op != model.OpCreatePool || entries[1].Op != model.OpSwap {
		t.Errorf("expected create_pool then swap, got %s then %s",
			entries[0].Op, entries[1].Op)
	}
	if entries[0].ID == "" || entries[0].Timestamp.IsZero() {
		t.Error("journal entries should carry id and timestamp")
	}
}
