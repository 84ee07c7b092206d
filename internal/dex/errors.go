package dex

import "errors"

// Typed failures of the public operations. Every error aborts the whole
// operation before any ledger mutation commits; partial effects are rolled
// back by the store's Atomic guarantee. None of these are retried by the
// engine; they are either caller-fixable or hard failures.
var (
	// ErrInvalidAssetPair: the two asset ids supplied are identical.
	ErrInvalidAssetPair = errors.New("dex: asset ids must differ")

	// ErrPoolExists: create_pool called for an already-created pair.
	ErrPoolExists = errors.New("dex: pool already exists for asset pair")

	// ErrPoolNotFound: operation on a pair no pool was ever created for.
	ErrPoolNotFound = errors.New("dex: no pool exists for asset pair")

	// ErrInsufficientBalance: the caller holds less of a deposit or swap
	// asset than the operation requires.
	ErrInsufficientBalance = errors.New("dex: insufficient balance")

	// ErrInsufficientLPBalance: the caller tried to redeem more LP tokens
	// than held.
	ErrInsufficientLPBalance = errors.New("dex: insufficient lp token balance")
)
