package emission

import "synapsechain/chain/types"

// QBpsFloor and QBpsCeil bound the quality multiplier: 0.6 at worst
// disagreement, 1.4 at best agreement.
const (
	QBpsFloor = 6_000
	QBpsCeil  = 14_000
)

// Controller is the emission controller: it combines the base reward
// from the halving schedule with the network utility score and the
// consensus-quality multiplier to decide how much the epoch actually
// mints, after first consuming any recycled burn pool and clamping to
// what the supply ledger has left.
type Controller struct {
	Halving        Halving
	EpochBlocks    uint64
	MinEpochFloor  uint64 // base units; default MinTailReward * EpochBlocks
}

// NewController builds a controller from a halving schedule and epoch
// length, deriving the default floor as MIN_TAIL_REWARD * EPOCH_BLOCKS.
func NewController(h Halving, epochBlocks uint64) Controller {
	return Controller{
		Halving:       h,
		EpochBlocks:   epochBlocks,
		MinEpochFloor: h.MinTailReward * epochBlocks,
	}
}

// Decision is the result of one epoch's emission computation.
type Decision struct {
	Adjusted *types.Amount // raw * U * Q, floored at MinEpochFloor, before recycling/clamp
	Minted   *types.Amount // final amount actually credited by chain/supply
}

// Compute implements the emission pipeline exactly:
//
//	raw      = base_reward(height) * EPOCH_BLOCKS
//	adjusted = max(raw * U_bps * Q_bps / 100_000_000, MIN_EPOCH_FLOOR)
//	recycled-adjusted = max(0, adjusted - recycledPool)
//	minted   = min(recycled-adjusted, remainingPool)
//
// All multiplication happens in basis points over 256-bit integers so the
// result is identical on every platform.
func (c Controller) Compute(blockHeight uint64, uBps, qBps uint64, recycledPool, remainingPool *types.Amount) Decision {
	base := c.Halving.BaseReward(blockHeight)
	raw := types.NewAmount(base * c.EpochBlocks)

	scaled := types.MulDiv(raw, types.NewAmount(uBps), types.NewAmount(1))
	scaled = types.MulDiv(scaled, types.NewAmount(qBps), types.NewAmount(100_000_000))

	floor := types.NewAmount(c.MinEpochFloor)
	adjusted := scaled
	if adjusted.Cmp(floor) < 0 {
		adjusted = floor
	}

	afterRecycled, ok := types.CheckedSub(adjusted, recycledPool)
	if !ok {
		afterRecycled = types.ZeroAmount()
	}

	minted := types.Min(afterRecycled, remainingPool)

	return Decision{Adjusted: adjusted, Minted: minted}
}

// ClampQualityBps clamps a quality multiplier (already expressed in basis
// points, 10_000 == 1.0) to the [0.6, 1.4] range.
func ClampQualityBps(qBps int64) uint64 {
	if qBps < QBpsFloor {
		return QBpsFloor
	}
	if qBps > QBpsCeil {
		return QBpsCeil
	}
	return uint64(qBps)
}
