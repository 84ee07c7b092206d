package dex

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cascadex/pool-engine/internal/amount"
	"github.com/cascadex/pool-engine/internal/model"
	"github.com/cascadex/pool-engine/internal/pair"
	"github.com/cascadex/pool-engine/internal/store"
)

// CreatePoolRequest is the JSON body for POST /api/v1/pools.
type CreatePoolRequest struct {
	Caller  pair.AccountID `json:"caller"`
	AssetA  pair.AssetID   `json:"asset_a"`
	AssetB  pair.AssetID   `json:"asset_b"`
	AmountA amount.Amount  `json:"amount_a"`
	AmountB amount.Amount  `json:"amount_b"`
}

// ProvideLiquidityRequest is the JSON body for POST /api/v1/pools/liquidity.
// amount_a is the deposit of asset_a; the asset_b leg is derived from the
// pool's reserve ratio and reported in the response.
type ProvideLiquidityRequest struct {
	Caller  pair.AccountID `json:"caller"`
	AssetA  pair.AssetID   `json:"asset_a"`
	AssetB  pair.AssetID   `json:"asset_b"`
	AmountA amount.Amount  `json:"amount_a"`
}

// SwapRequest is the JSON body for POST /api/v1/swap.
type SwapRequest struct {
	Caller   pair.AccountID `json:"caller"`
	AssetIn  pair.AssetID   `json:"asset_in"`
	AssetOut pair.AssetID   `json:"asset_out"`
	AmountIn amount.Amount  `json:"amount_in"`
}

// RedeemRequest is the JSON body for POST /api/v1/redeem.
type RedeemRequest struct {
	Caller   pair.AccountID `json:"caller"`
	AssetA   pair.AssetID   `json:"asset_a"`
	AssetB   pair.AssetID   `json:"asset_b"`
	LPAmount amount.Amount  `json:"lp_amount"`
}

// --- HTTP Handlers ---

// HandleCreatePool handles POST /api/v1/pools
func (s *Service) HandleCreatePool(w http.ResponseWriter, r *http.Request) {
	var req CreatePoolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Caller == "" {
		writeError(w, "caller is required", http.StatusBadRequest)
		return
	}

	res, err := s.CreatePool(r.Context(), req.Caller, req.AssetA, req.AssetB, req.AmountA, req.AmountB)
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(res)
}

// HandleProvideLiquidity handles POST /api/v1/pools/liquidity
func (s *Service) HandleProvideLiquidity(w http.ResponseWriter, r *http.Request) {
	var req ProvideLiquidityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Caller == "" {
		writeError(w, "caller is required", http.StatusBadRequest)
		return
	}

	res, err := s.ProvideLiquidity(r.Context(), req.Caller, req.AssetA, req.AssetB, req.AmountA)
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(res)
}

// HandleSwap handles POST /api/v1/swap
func (s *Service) HandleSwap(w http.ResponseWriter, r *http.Request) {
	var req SwapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Caller == "" {
		writeError(w, "caller is required", http.StatusBadRequest)
		return
	}

	res, err := s.Swap(r.Context(), req.Caller, req.AssetIn, req.AssetOut, req.AmountIn)
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(res)
}

// HandleRedeem handles POST /api/v1/redeem
func (s *Service) HandleRedeem(w http.ResponseWriter, r *http.Request) {
	var req RedeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Caller == "" {
		writeError(w, "caller is required", http.StatusBadRequest)
		return
	}

	res, err := s.Redeem(r.Context(), req.Caller, req.AssetA, req.AssetB, req.LPAmount)
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(res)
}

// HandleListPools handles GET /api/v1/pools
func (s *Service) HandleListPools(w http.ResponseWriter, r *http.Request) {
	pools, err := s.ListPools(r.Context())
	if err != nil {
		writeError(w, "failed to list pools", http.StatusInternalServerError)
		return
	}
	if pools == nil {
		pools = []model.PoolRecord{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(pools)
}

// HandleGetPool handles GET /api/v1/pools/{poolID}
// Returns the registry record plus live reserves and LP supply.
func (s *Service) HandleGetPool(w http.ResponseWriter, r *http.Request) {
	poolID := pair.AccountID(chi.URLParam(r, "poolID"))

	detail, err := s.GetPoolDetail(r.Context(), poolID)
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(detail)
}

// HandlePoolHistory handles GET /api/v1/pools/{poolID}/history
func (s *Service) HandlePoolHistory(w http.ResponseWriter, r *http.Request) {
	poolID := pair.AccountID(chi.URLParam(r, "poolID"))

	entries, err := s.PoolHistory(r.Context(), poolID)
	if err != nil {
		writeError(w, "failed to load pool history", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []model.JournalEntry{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}

// statusFor maps operation errors onto HTTP status codes. Overflow gets
// 422: the request was well-formed but the amounts are unrepresentable.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidAssetPair):
		return http.StatusBadRequest
	case errors.Is(err, ErrPoolNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrPoolExists),
		errors.Is(err, ErrInsufficientBalance),
		errors.Is(err, ErrInsufficientLPBalance):
		return http.StatusConflict
	case errors.Is(err, store.ErrInsufficientBalance),
		errors.Is(err, store.ErrAssetExists):
		return http.StatusConflict
	case errors.Is(err, amount.ErrMathOverflow):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
