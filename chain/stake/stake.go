// Package stake implements logarithmic stake dampening and node-tier
// classification. Every path elsewhere in the core that weights a
// validator or delegator by stake must go through LogStake: a single
// helper, so a second reward path quietly weighting by raw stake instead
// cannot recur by construction.
package stake

import (
	"math/big"

	"synapsechain/chain/types"
)

// Scale is chosen so that LogStake(1) == 1 unit.
const Scale = 1

// Tier classifies an address by raw stake.
type Tier uint8

const (
	TierLight Tier = iota
	TierFull
	TierValidator
	TierSuper
)

func (t Tier) String() string {
	switch t {
	case TierLight:
		return "Light"
	case TierFull:
		return "Full"
	case TierValidator:
		return "Validator"
	case TierSuper:
		return "Super"
	default:
		return "Unknown"
	}
}

// Tier thresholds, expressed in whole tokens (base-unit conversion is the
// caller's job via the same 18-decimal convention as the rest of the
// core). VALIDATOR_MIN_STAKE is the single source of truth
// for the Validator tier boundary; chain/validatorset imports this
// constant rather than redefining it.
const (
	FullThreshold      uint64 = 10
	ValidatorThreshold uint64 = 100
	SuperThreshold     uint64 = 1_000
)

// ClassifyTier maps a raw-stake amount (in whole tokens) to its tier.
func ClassifyTier(rawStakeWholeTokens uint64) Tier {
	switch {
	case rawStakeWholeTokens >= SuperThreshold:
		return TierSuper
	case rawStakeWholeTokens >= ValidatorThreshold:
		return TierValidator
	case rawStakeWholeTokens >= FullThreshold:
		return TierFull
	default:
		return TierLight
	}
}

// LogStake computes floor(sqrt(s) * Scale), the dampened effective weight
// for a raw stake s. big.Int.Sqrt gives an exact, platform-independent
// integer square root without reaching for an external bignum library.
func LogStake(rawStake *types.Amount) *types.Amount {
	b := rawStake.ToBig()
	root := new(big.Int).Sqrt(b)
	root.Mul(root, big.NewInt(Scale))
	return types.AmountFromBig(root)
}

// EffectiveStake is LogStake(rawStake) scaled by a trust score expressed
// in basis points (1.0 == 10_000). trustBps is not clamped here;
// chain/validatorset.SetTrust keeps it within [1_000, 15_000] (0.1 to 1.5).
func EffectiveStake(rawStake *types.Amount, trustBps uint64) *types.Amount {
	return types.MulDivBps(LogStake(rawStake), trustBps)
}
