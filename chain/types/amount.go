package types

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// Amount is a non-negative base-unit quantity. It is a 256-bit unsigned
// integer, wide enough for an 18-decimal, tens-of-millions-of-tokens
// supply with enormous headroom, and it carries built-in overflow-checked
// arithmetic matching the saturating-addition and checked-subtraction
// semantics every consensus-path computation needs, natively instead of
// reimplementing them over big.Int.
type Amount = uint256.Int

// ZeroAmount returns a fresh zero Amount. Always allocate a new one; never
// share a package-level zero value across mutation call sites.
func ZeroAmount() *Amount { return new(uint256.Int) }

// NewAmount constructs an Amount from a uint64 base-unit value.
func NewAmount(v uint64) *Amount { return uint256.NewInt(v) }

// ParseAmount parses a decimal or 0x-prefixed hex base-unit string, the
// format chain/config's genesis file uses for every balance and stake
// field. Negative or malformed input is rejected rather than clamped,
// since a genesis file is meant to be read once and trusted forever.
func ParseAmount(s string) (*Amount, error) {
	b, ok := new(big.Int).SetString(s, 0)
	if !ok || b.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount: %q", s)
	}
	return AmountFromBig(b), nil
}

// AmountFromBig converts a big.Int into an Amount, clamping to the maximum
// representable value on overflow rather than wrapping — overflow here
// would only happen if a caller passed a value the consensus math itself
// can never produce, so this is a defensive clamp, not a reachable path.
func AmountFromBig(b *big.Int) *Amount {
	a, overflow := new(uint256.Int).FromBig(b)
	if overflow {
		return new(uint256.Int).SetAllOne()
	}
	return a
}

// SaturatingAdd returns x+y, clamped to the maximum Amount on overflow.
func SaturatingAdd(x, y *Amount) *Amount {
	z := new(uint256.Int)
	if _, overflow := z.AddOverflow(x, y); overflow {
		return new(uint256.Int).SetAllOne()
	}
	return z
}

// CheckedSub returns x-y and true, or (0, false) if y > x. Callers that
// know y <= x by construction may ignore the bool; callers enforcing the
// IntegrityViolation invariant must check it.
func CheckedSub(x, y *Amount) (*Amount, bool) {
	z := new(uint256.Int)
	if _, underflow := z.SubOverflow(x, y); underflow {
		return ZeroAmount(), false
	}
	return z, true
}

// Min returns the smaller of x and y.
func Min(x, y *Amount) *Amount {
	if x.Cmp(y) <= 0 {
		return x.Clone()
	}
	return y.Clone()
}

// MulDivBps computes floor(x * numeratorBps / 10_000) using wide
// intermediate precision so that a basis-point multiply never overflows
// before the divide.
func MulDivBps(x *Amount, numeratorBps uint64) *Amount {
	return MulDiv(x, NewAmount(numeratorBps), NewAmount(10_000))
}

// MulDiv computes floor(x * y / d) without intermediate overflow.
func MulDiv(x, y, d *Amount) *Amount {
	if d.IsZero() {
		return ZeroAmount()
	}
	xb, yb, db := x.ToBig(), y.ToBig(), d.ToBig()
	prod := new(big.Int).Mul(xb, yb)
	prod.Div(prod, db)
	return AmountFromBig(prod)
}
