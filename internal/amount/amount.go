// Package amount implements the checked integer arithmetic kernel for the
// pool engine.
//
// All balances, reserves, and LP token quantities are unsigned 256-bit
// integers (holiman/uint256), never float64 for money. 256 bits leaves
// enough headroom over realistic 128-bit balances that fee and scale
// multiplications never need internal widening; an operation that still
// does not fit reports ErrMathOverflow instead of wrapping or panicking.
// This package is the only place raw arithmetic happens.
package amount

import (
	"errors"

	"github.com/holiman/uint256"
)

// ErrMathOverflow is returned when a checked operation overflows,
// underflows, or divides by zero. Callers must abort the whole operation;
// results are never clamped.
var ErrMathOverflow = errors.New("amount: math overflow")

// Amount is an unsigned 256-bit integer quantity. The zero value is 0.
// Amounts are value types; arithmetic returns new values and never
// mutates operands.
type Amount struct {
	u uint256.Int
}

// Zero returns the zero amount.
func Zero() Amount {
	return Amount{}
}

// New creates an Amount from a uint64.
func New(v uint64) Amount {
	return Amount{u: *uint256.NewInt(v)}
}

// Parse creates an Amount from a base-10 string.
func Parse(s string) (Amount, error) {
	var u uint256.Int
	if err := u.SetFromDecimal(s); err != nil {
		return Amount{}, err
	}
	return Amount{u: u}, nil
}

// MustParse is Parse for constants in tests and wiring code; it panics on
// malformed input.
func MustParse(s string) Amount {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

// Add returns a + b, or ErrMathOverflow if the sum exceeds 2^256 - 1.
func (a Amount) Add(b Amount) (Amount, error) {
	var z uint256.Int
	if _, overflow := z.AddOverflow(&a.u, &b.u); overflow {
		return Amount{}, ErrMathOverflow
	}
	return Amount{u: z}, nil
}

// Sub returns a - b, or ErrMathOverflow if b > a.
func (a Amount) Sub(b Amount) (Amount, error) {
	var z uint256.Int
	if _, underflow := z.SubOverflow(&a.u, &b.u); underflow {
		return Amount{}, ErrMathOverflow
	}
	return Amount{u: z}, nil
}

// Mul returns a * b, or ErrMathOverflow if the product exceeds 2^256 - 1.
func (a Amount) Mul(b Amount) (Amount, error) {
	var z uint256.Int
	if _, overflow := z.MulOverflow(&a.u, &b.u); overflow {
		return Amount{}, ErrMathOverflow
	}
	return Amount{u: z}, nil
}

// Div returns floor(a / b), or ErrMathOverflow if b is zero. Division by
// zero is a hard failure here; the reserve/supply zero-guard policy lives
// in OrOne, applied explicitly by callers.
func (a Amount) Div(b Amount) (Amount, error) {
	if b.u.IsZero() {
		return Amount{}, ErrMathOverflow
	}
	var z uint256.Int
	z.Div(&a.u, &b.u)
	return Amount{u: z}, nil
}

// Sqrt returns floor(sqrt(a)). It cannot fail: the square root of a
// representable value is always representable.
func (a Amount) Sqrt() Amount {
	var z uint256.Int
	z.Sqrt(&a.u)
	return Amount{u: z}
}

// OrOne returns a, or 1 if a is zero. Reserves and supplies of exactly
// zero are treated as 1 wherever they appear as a divisor, so operations
// on a never-funded pool degrade to zero output instead of failing.
func (a Amount) OrOne() Amount {
	if a.u.IsZero() {
		return New(1)
	}
	return a
}

// IsZero reports whether a is 0.
func (a Amount) IsZero() bool {
	return a.u.IsZero()
}

// Lt reports whether a < b.
func (a Amount) Lt(b Amount) bool {
	return a.u.Lt(&b.u)
}

// Gt reports whether a > b.
func (a Amount) Gt(b Amount) bool {
	return a.u.Gt(&b.u)
}

// Gte reports whether a >= b.
func (a Amount) Gte(b Amount) bool {
	return !a.u.Lt(&b.u)
}

// Equal reports whether a == b.
func (a Amount) Equal(b Amount) bool {
	return a.u.Eq(&b.u)
}

// String returns the base-10 representation.
func (a Amount) String() string {
	return a.u.Dec()
}

// MarshalJSON encodes the amount as a JSON string in base 10. Amounts are
// never encoded as JSON numbers: they exceed float64 precision.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.u.Dec() + `"`), nil
}

// UnmarshalJSON accepts a base-10 string.
func (a *Amount) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return errors.New("amount: expected JSON string")
	}
	return a.u.SetFromDecimal(string(data[1 : len(data)-1]))
}
