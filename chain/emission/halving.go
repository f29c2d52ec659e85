// Package emission implements the halving schedule and emission
// controller: a pure block-height-to-reward curve modulated by a
// per-epoch utility score and consensus-quality multiplier.
package emission

// Schedule constants. These are the defaults; a governance
// timelock (chain/config.ParamStore) may stage replacements that only take
// effect at a future epoch.
const (
	HalvingInterval  uint64 = 2_190_000 // blocks per halving era
	MaxHalvings      uint64 = 10
	EpochBlocksDefault uint64 = 32
)

// InitialBlockReward and MinTailReward are expressed in base units
// (18 decimals assumed). 0.24 token and 0.001 token respectively.
var (
	InitialBlockRewardWei uint64 = 240_000_000_000_000_000
	MinTailRewardWei      uint64 = 1_000_000_000_000_000
)

// Halving is the pure halving function: block height -> per-block base
// reward.
type Halving struct {
	Interval          uint64
	MaxHalvings       uint64
	InitialBlockReward uint64
	MinTailReward     uint64
}

// DefaultHalving returns the schedule configured with defaults.
func DefaultHalving() Halving {
	return Halving{
		Interval:           HalvingInterval,
		MaxHalvings:        MaxHalvings,
		InitialBlockReward: InitialBlockRewardWei,
		MinTailReward:      MinTailRewardWei,
	}
}

// BaseReward computes the per-block base reward at blockHeight.
//
// era = floor(height / Interval); reward = InitialBlockReward >> era.
// Once era reaches MaxHalvings (height >= MaxHalvings*Interval) the
// schedule returns MinTailReward forever -- tail emission is perpetual,
// never zero -- reproduced byte-for-byte on every platform by a plain
// unsigned right shift plus a branch.
func (h Halving) BaseReward(blockHeight uint64) uint64 {
	era := blockHeight / h.Interval
	if era >= h.MaxHalvings {
		return h.MinTailReward
	}
	if era >= 64 {
		// An integer right shift by >= the bit width is undefined for
		// signed shifts in some languages; for an unsigned Go shift it is
		// well-defined and yields 0, but we short-circuit explicitly so
		// the intent (tail floor, never an accidental 0 reward) is clear
		// regardless of how large MaxHalvings is configured by governance.
		return h.MinTailReward
	}
	return h.InitialBlockReward >> era
}
