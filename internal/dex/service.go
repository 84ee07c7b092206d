// Package dex sequences the four public pool operations: resolve the
// pool's identity, read reserves from the ledger, run the pure
// constant-product accounting, then apply the resulting ledger mutations
// atomically and emit a domain event.
//
// The service holds no pool state of its own; reserves and LP supply are
// ledger balances re-read on every operation, so correctness under
// concurrency reduces to the store's Atomic guarantee plus the service
// mutex serializing operations on this instance.
package dex

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cascadex/pool-engine/internal/amount"
	"github.com/cascadex/pool-engine/internal/cpmm"
	"github.com/cascadex/pool-engine/internal/metrics"
	"github.com/cascadex/pool-engine/internal/model"
	"github.com/cascadex/pool-engine/internal/pair"
	"github.com/cascadex/pool-engine/internal/store"
)

// lpTokenMinBalance is the minimum balance the LP asset is registered
// with in the ledger.
var lpTokenMinBalance = amount.New(1)

// Service executes pool operations against a store. Uses a mutex for
// serialized execution (single-instance); for horizontal scaling, replace
// with database-level locking on the pool row.
type Service struct {
	store   store.Store
	deriver *pair.Deriver
	feeNum  uint64
	feeDen  uint64
	sink    EventSink
	mu      sync.Mutex
}

// NewService creates a pool service. Pass nil for sink if event
// broadcasting is not needed; feeDen 0 selects the default protocol fee.
func NewService(st store.Store, deriver *pair.Deriver, feeNum, feeDen uint64, sink EventSink) *Service {
	if feeDen == 0 {
		feeNum = cpmm.DefaultFeeNumerator
		feeDen = cpmm.DefaultFeeDenominator
	}
	return &Service{
		store:   st,
		deriver: deriver,
		feeNum:  feeNum,
		feeDen:  feeDen,
		sink:    sink,
	}
}

// CreatePoolResult is returned from a successful create_pool.
type CreatePoolResult struct {
	Pool     model.PoolRecord `json:"pool"`
	LPAmount amount.Amount    `json:"lp_amount"`
}

// CreatePool creates the pool for an asset pair: derives the pool account
// and LP token id, moves both deposits from the caller into the pool,
// registers the LP asset, and mints floor(sqrt(amountA*amountB)) LP tokens
// to the caller. A pair's pool is created at most once; the pool account
// and LP token id are stable forever after.
func (s *Service) CreatePool(ctx context.Context, caller pair.AccountID, assetA, assetB pair.AssetID, amountA, amountB amount.Amount) (*CreatePoolResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := time.Now()

	res, err := s.createPool(ctx, caller, assetA, assetB, amountA, amountB)
	s.observe(model.OpCreatePool, start, err)
	if err != nil {
		return nil, err
	}

	metrics.PoolsCreated.Inc()
	slog.Info("pool created",
		"pool_id", res.Pool.PoolID,
		"lp_token_id", res.Pool.LPTokenID,
		"asset_a", res.Pool.AssetA,
		"asset_b", res.Pool.AssetB,
		"creator", caller,
		"lp_amount", res.LPAmount.String(),
	)
	s.publish(Event{
		Type:   EventPoolCreated,
		PoolID: string(res.Pool.PoolID),
	})
	return res, nil
}

func (s *Service) createPool(ctx context.Context, caller pair.AccountID, assetA, assetB pair.AssetID, amountA, amountB amount.Amount) (*CreatePoolResult, error) {
	p, err := pair.Canonical(assetA, assetB)
	if err != nil {
		return nil, ErrInvalidAssetPair
	}
	if _, err := s.store.GetPoolByPair(ctx, p); err == nil {
		return nil, ErrPoolExists
	} else if !errors.Is(err, store.ErrPoolNotFound) {
		return nil, err
	}
	if err := s.checkBalances(ctx, caller, assetA, assetB, amountA, amountB); err != nil {
		return nil, err
	}

	poolID := s.deriver.PoolAccount(p)
	lpTokenID := s.deriver.LPTokenID(poolID)

	lpAmount, err := cpmm.InitialLPTokens(amountA, amountB)
	if err != nil {
		return nil, err
	}

	rec := model.PoolRecord{
		PoolID:    poolID,
		LPTokenID: lpTokenID,
		AssetA:    p.A,
		AssetB:    p.B,
		Creator:   caller,
		CreatedAt: time.Now().UTC(),
	}

	err = s.store.Atomic(ctx, func(tx store.Store) error {
		if err := tx.Transfer(ctx, assetA, caller, poolID, amountA); err != nil {
			return err
		}
		if err := tx.Transfer(ctx, assetB, caller, poolID, amountB); err != nil {
			return err
		}
		// A derived LP token id colliding with a pre-existing asset
		// surfaces here as ErrAssetExists and aborts the creation.
		if err := tx.CreateAsset(ctx, lpTokenID, s.deriver.ModuleAccount(), lpTokenMinBalance); err != nil {
			return err
		}
		if err := tx.Mint(ctx, lpTokenID, caller, lpAmount); err != nil {
			return err
		}
		if err := tx.InsertPool(ctx, &rec); err != nil {
			return err
		}
		return tx.AppendJournal(ctx, s.entry(caller, model.OpCreatePool, poolID, assetA, assetB, amountA, amountB, lpAmount))
	})
	if err != nil {
		return nil, err
	}
	return &CreatePoolResult{Pool: rec, LPAmount: lpAmount}, nil
}

// ProvideLiquidityResult is returned from a successful provide_liquidity.
type ProvideLiquidityResult struct {
	Pool     model.PoolRecord `json:"pool"`
	AmountA  amount.Amount    `json:"amount_a"`
	AmountB  amount.Amount    `json:"amount_b"`
	LPAmount amount.Amount    `json:"lp_amount"`
}

// ProvideLiquidity deposits amountA of assetA into the pair's pool along
// with the matching amount of assetB derived from the current reserve
// ratio, and mints the caller's proportional LP share. The proportional
// mint is computed against the pre-transfer reserve of assetA and the
// pre-mint LP supply. A pool emptied by redemption can be re-seeded here;
// its LP asset already exists.
func (s *Service) ProvideLiquidity(ctx context.Context, caller pair.AccountID, assetA, assetB pair.AssetID, amountA amount.Amount) (*ProvideLiquidityResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := time.Now()

	res, err := s.provideLiquidity(ctx, caller, assetA, assetB, amountA)
	s.observe(model.OpProvideLiquidity, start, err)
	if err != nil {
		return nil, err
	}

	slog.Info("liquidity provided",
		"pool_id", res.Pool.PoolID,
		"provider", caller,
		"amount_a", res.AmountA.String(),
		"amount_b", res.AmountB.String(),
		"lp_amount", res.LPAmount.String(),
	)
	s.publish(Event{
		Type:      EventLiquidityProvided,
		PoolID:    string(res.Pool.PoolID),
		LPTokenID: string(res.Pool.LPTokenID),
		LPAmount:  res.LPAmount.String(),
	})
	return res, nil
}

func (s *Service) provideLiquidity(ctx context.Context, caller pair.AccountID, assetA, assetB pair.AssetID, amountA amount.Amount) (*ProvideLiquidityResult, error) {
	rec, err := s.lookupPool(ctx, assetA, assetB)
	if err != nil {
		return nil, err
	}
	poolID := rec.PoolID

	// Reserves follow the caller's asset order, not the canonical one:
	// reserveA is the pool balance of the asset being deposited.
	reserveA, err := s.store.Balance(ctx, assetA, poolID)
	if err != nil {
		return nil, err
	}
	reserveB, err := s.store.Balance(ctx, assetB, poolID)
	if err != nil {
		return nil, err
	}
	amountB, err := cpmm.SecondAssetAmount(amountA, reserveA, reserveB)
	if err != nil {
		return nil, err
	}
	if err := s.checkBalances(ctx, caller, assetA, assetB, amountA, amountB); err != nil {
		return nil, err
	}

	var lpAmount amount.Amount
	err = s.store.Atomic(ctx, func(tx store.Store) error {
		if err := tx.Transfer(ctx, assetA, caller, poolID, amountA); err != nil {
			return err
		}
		if err := tx.Transfer(ctx, assetB, caller, poolID, amountB); err != nil {
			return err
		}
		supply, err := tx.TotalSupply(ctx, rec.LPTokenID)
		if err != nil {
			return err
		}
		lpAmount, err = cpmm.ProportionalLPTokens(amountA, reserveA, supply)
		if err != nil {
			return err
		}
		if err := tx.Mint(ctx, rec.LPTokenID, caller, lpAmount); err != nil {
			return err
		}
		return tx.AppendJournal(ctx, s.entry(caller, model.OpProvideLiquidity, poolID, assetA, assetB, amountA, amountB, lpAmount))
	})
	if err != nil {
		return nil, err
	}
	return &ProvideLiquidityResult{Pool: *rec, AmountA: amountA, AmountB: amountB, LPAmount: lpAmount}, nil
}

// SwapResult is returned from a successful swap.
type SwapResult struct {
	Pool      model.PoolRecord `json:"pool"`
	AssetOut  pair.AssetID     `json:"asset_out"`
	AmountIn  amount.Amount    `json:"amount_in"`
	AmountOut amount.Amount    `json:"amount_out"`
}

// Swap trades amountIn of assetIn for the constant-product output of
// assetOut, less the protocol fee retained in the pool. LP supply is
// unchanged; the pool's product strictly grows on every fee-bearing swap.
func (s *Service) Swap(ctx context.Context, caller pair.AccountID, assetIn, assetOut pair.AssetID, amountIn amount.Amount) (*SwapResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := time.Now()

	res, err := s.swap(ctx, caller, assetIn, assetOut, amountIn)
	s.observe(model.OpSwap, start, err)
	if err != nil {
		return nil, err
	}

	slog.Info("swap executed",
		"pool_id", res.Pool.PoolID,
		"caller", caller,
		"asset_in", assetIn,
		"asset_out", assetOut,
		"amount_in", res.AmountIn.String(),
		"amount_out", res.AmountOut.String(),
	)
	s.publish(Event{
		Type:      EventSwapped,
		PoolID:    string(res.Pool.PoolID),
		AssetOut:  string(res.AssetOut),
		AmountOut: res.AmountOut.String(),
	})
	return res, nil
}

func (s *Service) swap(ctx context.Context, caller pair.AccountID, assetIn, assetOut pair.AssetID, amountIn amount.Amount) (*SwapResult, error) {
	rec, err := s.lookupPool(ctx, assetIn, assetOut)
	if err != nil {
		return nil, err
	}
	poolID := rec.PoolID

	reserveIn, err := s.store.Balance(ctx, assetIn, poolID)
	if err != nil {
		return nil, err
	}
	reserveOut, err := s.store.Balance(ctx, assetOut, poolID)
	if err != nil {
		return nil, err
	}
	amountOut, err := cpmm.SwapOutput(amountIn, reserveIn, reserveOut, s.feeNum, s.feeDen)
	if err != nil {
		return nil, err
	}

	callerBal, err := s.store.Balance(ctx, assetIn, caller)
	if err != nil {
		return nil, err
	}
	if callerBal.Lt(amountIn) {
		return nil, ErrInsufficientBalance
	}

	err = s.store.Atomic(ctx, func(tx store.Store) error {
		if err := tx.Transfer(ctx, assetIn, caller, poolID, amountIn); err != nil {
			return err
		}
		if err := tx.Transfer(ctx, assetOut, poolID, caller, amountOut); err != nil {
			return err
		}
		return tx.AppendJournal(ctx, s.entry(caller, model.OpSwap, poolID, assetIn, assetOut, amountIn, amountOut, amount.Zero()))
	})
	if err != nil {
		return nil, err
	}
	return &SwapResult{Pool: *rec, AssetOut: assetOut, AmountIn: amountIn, AmountOut: amountOut}, nil
}

// RedeemResult is returned from a successful redemption.
type RedeemResult struct {
	Pool     model.PoolRecord `json:"pool"`
	AmountA  amount.Amount    `json:"amount_a"`
	AmountB  amount.Amount    `json:"amount_b"`
	LPAmount amount.Amount    `json:"lp_amount"`
}

// Redeem burns lpAmount of the pool's LP token and pays out the caller's
// proportional share of both reserves. Redeeming the entire supply drains
// the reserves up to scale truncation; the pool itself persists and can be
// re-seeded via ProvideLiquidity.
func (s *Service) Redeem(ctx context.Context, caller pair.AccountID, assetA, assetB pair.AssetID, lpAmount amount.Amount) (*RedeemResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := time.Now()

	res, err := s.redeem(ctx, caller, assetA, assetB, lpAmount)
	s.observe(model.OpRedeem, start, err)
	if err != nil {
		return nil, err
	}

	slog.Info("lp tokens redeemed",
		"pool_id", res.Pool.PoolID,
		"caller", caller,
		"lp_amount", res.LPAmount.String(),
		"amount_a", res.AmountA.String(),
		"amount_b", res.AmountB.String(),
	)
	s.publish(Event{
		Type:    EventRedeemed,
		PoolID:  string(res.Pool.PoolID),
		AssetA:  string(assetA),
		AssetB:  string(assetB),
		AmountA: res.AmountA.String(),
		AmountB: res.AmountB.String(),
	})
	return res, nil
}

func (s *Service) redeem(ctx context.Context, caller pair.AccountID, assetA, assetB pair.AssetID, lpAmount amount.Amount) (*RedeemResult, error) {
	rec, err := s.lookupPool(ctx, assetA, assetB)
	if err != nil {
		return nil, err
	}
	poolID := rec.PoolID

	lpBalance, err := s.store.Balance(ctx, rec.LPTokenID, caller)
	if err != nil {
		return nil, err
	}
	if lpBalance.Lt(lpAmount) {
		return nil, ErrInsufficientLPBalance
	}

	reserveA, err := s.store.Balance(ctx, assetA, poolID)
	if err != nil {
		return nil, err
	}
	reserveB, err := s.store.Balance(ctx, assetB, poolID)
	if err != nil {
		return nil, err
	}
	supply, err := s.store.TotalSupply(ctx, rec.LPTokenID)
	if err != nil {
		return nil, err
	}
	outA, outB, err := cpmm.RedemptionSplit(lpAmount, supply, reserveA, reserveB)
	if err != nil {
		return nil, err
	}

	err = s.store.Atomic(ctx, func(tx store.Store) error {
		if err := tx.Transfer(ctx, assetA, poolID, caller, outA); err != nil {
			return err
		}
		if err := tx.Transfer(ctx, assetB, poolID, caller, outB); err != nil {
			return err
		}
		if err := tx.Burn(ctx, rec.LPTokenID, caller, lpAmount); err != nil {
			return err
		}
		return tx.AppendJournal(ctx, s.entry(caller, model.OpRedeem, poolID, assetA, assetB, outA, outB, lpAmount))
	})
	if err != nil {
		return nil, err
	}
	return &RedeemResult{Pool: *rec, AmountA: outA, AmountB: outB, LPAmount: lpAmount}, nil
}

// PoolDetail combines the registry record with live ledger state.
type PoolDetail struct {
	Pool     model.PoolRecord `json:"pool"`
	ReserveA amount.Amount    `json:"reserve_a"`
	ReserveB amount.Amount    `json:"reserve_b"`
	LPSupply amount.Amount    `json:"lp_supply"`
}

// GetPoolDetail returns a pool with its current reserves and LP supply.
func (s *Service) GetPoolDetail(ctx context.Context, poolID pair.AccountID) (*PoolDetail, error) {
	rec, err := s.store.GetPool(ctx, poolID)
	if err != nil {
		if errors.Is(err, store.ErrPoolNotFound) {
			return nil, ErrPoolNotFound
		}
		return nil, err
	}
	reserveA, err := s.store.Balance(ctx, rec.AssetA, rec.PoolID)
	if err != nil {
		return nil, err
	}
	reserveB, err := s.store.Balance(ctx, rec.AssetB, rec.PoolID)
	if err != nil {
		return nil, err
	}
	supply, err := s.store.TotalSupply(ctx, rec.LPTokenID)
	if err != nil {
		return nil, err
	}
	return &PoolDetail{Pool: *rec, ReserveA: reserveA, ReserveB: reserveB, LPSupply: supply}, nil
}

// ListPools returns all registered pools.
func (s *Service) ListPools(ctx context.Context) ([]model.PoolRecord, error) {
	return s.store.ListPools(ctx)
}

// PoolHistory returns the pool's journal, oldest first.
func (s *Service) PoolHistory(ctx context.Context, poolID pair.AccountID) ([]model.JournalEntry, error) {
	return s.store.JournalByPool(ctx, poolID)
}

// --- helpers ---

// lookupPool canonicalizes the pair and resolves its registered pool.
func (s *Service) lookupPool(ctx context.Context, assetA, assetB pair.AssetID) (*model.PoolRecord, error) {
	p, err := pair.Canonical(assetA, assetB)
	if err != nil {
		return nil, ErrInvalidAssetPair
	}
	rec, err := s.store.GetPoolByPair(ctx, p)
	if errors.Is(err, store.ErrPoolNotFound) {
		return nil, ErrPoolNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// checkBalances verifies the caller can fund both legs of a deposit.
func (s *Service) checkBalances(ctx context.Context, caller pair.AccountID, assetA, assetB pair.AssetID, amountA, amountB amount.Amount) error {
	balA, err := s.store.Balance(ctx, assetA, caller)
	if err != nil {
		return err
	}
	balB, err := s.store.Balance(ctx, assetB, caller)
	if err != nil {
		return err
	}
	if balA.Lt(amountA) || balB.Lt(amountB) {
		return ErrInsufficientBalance
	}
	return nil
}

func (s *Service) entry(caller pair.AccountID, op string, poolID pair.AccountID, assetA, assetB pair.AssetID, amountA, amountB, lpAmount amount.Amount) *model.JournalEntry {
	return &model.JournalEntry{
		ID:        uuid.New().String(),
		Caller:    caller,
		Op:        op,
		PoolID:    poolID,
		AssetA:    assetA,
		AssetB:    assetB,
		AmountA:   amountA,
		AmountB:   amountB,
		LPAmount:  lpAmount,
		Timestamp: time.Now().UTC(),
	}
}

func (s *Service) publish(ev Event) {
	if s.sink != nil {
		s.sink.Publish(ev)
	}
}

func (s *Service) observe(op string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
		if errors.Is(err, amount.ErrMathOverflow) {
			metrics.MathOverflows.Inc()
		}
	}
	metrics.OperationsTotal.WithLabelValues(op, outcome).Inc()
	metrics.OperationLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
