// Package rewards implements the epoch reward distributor: the seven-way
// split of an epoch's minted amount across miners, validators,
// infrastructure, delegators, subnet owners, the DAO treasury, and an
// ecosystem residual. Every pro-rata computation routes through
// chain/stake.LogStake (via chain/validatorset.Record.EffectiveStake and
// chain/delegation.EffectiveWeight) so a second reward path weighting by
// raw stake cannot recur.
package rewards

import (
	"math/big"
	"sort"

	"synapsechain/chain/delegation"
	"synapsechain/chain/stake"
	"synapsechain/chain/types"
	"synapsechain/chain/validatorset"
)

// Pool shares, in basis points of the epoch mint, totaling 10_000.
const (
	MinerPoolBps          = 3_500
	ValidatorPoolBps      = 2_800
	InfrastructurePoolBps = 200
	DelegatorPoolBps      = 1_200
	SubnetOwnerPoolBps    = 1_000
	DAOTreasuryPoolBps    = 1_300
	// EcosystemPoolBps absorbs whatever basis points the others don't
	// claim; it is computed, not hardcoded, so the pools always sum to
	// exactly 10_000 regardless of future table edits.
)

// GPUBonusBps is the miner reward multiplier bonus for GPU-completed
// tasks, applied to a miner's gpu_fraction before combining with its
// canonical score.
const GPUBonusBps = 500

func ecosystemPoolBps() uint64 {
	used := uint64(MinerPoolBps + ValidatorPoolBps + InfrastructurePoolBps +
		DelegatorPoolBps + SubnetOwnerPoolBps + DAOTreasuryPoolBps)
	if used >= 10_000 {
		return 0
	}
	return 10_000 - used
}

// MinerScore is one miner's canonical score and GPU task fraction for the
// epoch, the two inputs chain/weights and chain/scoring respectively
// produce.
type MinerScore struct {
	Miner          types.Address
	CanonicalBps   uint64 // chain/weights.MinerResult.Canonical
	GPUFractionBps uint64 // chain/scoring.Stats.GPUFractionBps()
}

// InfraNode is a Full-tier (or above) node eligible for the infrastructure
// pool, classified by chain/stake.ClassifyTier before being passed in.
type InfraNode struct {
	Address  types.Address
	RawStake *types.Amount
}

// QuotaBurner is chain/burn.Manager.UnmetQuota, kept as an interface so
// this package doesn't import chain/burn directly.
type QuotaBurner interface {
	UnmetQuota(epoch uint64, scheduledMint *types.Amount)
}

// QuotaThresholdBps is QUOTA_THRESHOLD_BPS: below this utility score the
// miner pool is burned instead of distributed, regardless of whether any
// miner revealed.
const QuotaThresholdBps = 1_000

// Input bundles everything chain/epoch hands the distributor for one
// epoch's reward pass.
type Input struct {
	Epoch        uint64
	Minted       *types.Amount
	UtilityBps   uint64 // U_bps, drives the UnmetQuota burn decision below
	MinerScores  []MinerScore
	Validators   []*validatorset.Record // active, non-jailed, from chain/validatorset.Set.Active
	Delegations  []*delegation.Record   // from chain/delegation.Book.All, read when chain/epoch closes the epoch (not frozen at epoch start)
	InfraNodes   []InfraNode
	SubnetOwners []types.Address // registered and active this epoch
	DAOTreasury  types.Address
}

// Distribute computes the full pool split and returns a deterministic,
// (category, recipient)-sorted list of reward intents. If the epoch's
// utility score falls below QuotaThresholdBps, or no miner score was
// revealed at all, the miner pool is routed to burner with reason
// UnmetQuota instead of distributed, and every other pool still pays out.
// Any pool left with no eligible recipient (an empty or all-zero-weight
// entry set) is swept to the DAO treasury instead of dropped, so the sum
// of every intent plus every burn always equals the epoch's minted amount.
func Distribute(in Input, burner QuotaBurner) []types.RewardIntent {
	pools := splitPools(in.Minted)

	intents := make([]types.RewardIntent, 0, 64)

	if in.UtilityBps < QuotaThresholdBps || len(in.MinerScores) == 0 {
		burner.UnmetQuota(in.Epoch, pools.miner)
	} else {
		intents = append(intents, sweepIfEmpty(in.Epoch, pools.miner, in.DAOTreasury,
			minerIntents(in.Epoch, pools.miner, in.MinerScores))...)
	}

	intents = append(intents, sweepIfEmpty(in.Epoch, pools.validator, in.DAOTreasury,
		validatorIntents(in.Epoch, pools.validator, in.Validators))...)
	intents = append(intents, sweepIfEmpty(in.Epoch, pools.infrastructure, in.DAOTreasury,
		infrastructureIntents(in.Epoch, pools.infrastructure, in.InfraNodes))...)
	intents = append(intents, sweepIfEmpty(in.Epoch, pools.delegator, in.DAOTreasury,
		delegatorIntents(in.Epoch, pools.delegator, in.Delegations))...)
	intents = append(intents, sweepIfEmpty(in.Epoch, pools.subnetOwner, in.DAOTreasury,
		subnetOwnerIntents(in.Epoch, pools.subnetOwner, in.SubnetOwners))...)

	intents = append(intents, types.RewardIntent{
		Epoch: in.Epoch, Recipient: in.DAOTreasury, Amount: pools.daoTreasury, Category: types.RewardDAOTreasury,
	})
	if pools.ecosystem.Sign() > 0 {
		intents = append(intents, types.RewardIntent{
			Epoch: in.Epoch, Recipient: in.DAOTreasury, Amount: pools.ecosystem, Category: types.RewardEcosystem,
		})
	}

	sort.SliceStable(intents, func(i, j int) bool {
		if intents[i].Category != intents[j].Category {
			return intents[i].Category < intents[j].Category
		}
		return intents[i].Recipient.Less(intents[j].Recipient)
	})
	return intents
}

type pools struct {
	miner, validator, infrastructure, delegator, subnetOwner, daoTreasury, ecosystem *types.Amount
}

func splitPools(minted *types.Amount) pools {
	p := pools{
		miner:          types.MulDivBps(minted, MinerPoolBps),
		validator:      types.MulDivBps(minted, ValidatorPoolBps),
		infrastructure: types.MulDivBps(minted, InfrastructurePoolBps),
		delegator:      types.MulDivBps(minted, DelegatorPoolBps),
		subnetOwner:    types.MulDivBps(minted, SubnetOwnerPoolBps),
		daoTreasury:    types.MulDivBps(minted, DAOTreasuryPoolBps),
		ecosystem:      types.MulDivBps(minted, ecosystemPoolBps()),
	}
	// The ecosystem pool absorbs the rounding dust of the floored splits
	// above, so the seven pools always sum to exactly minted.
	used := types.ZeroAmount()
	for _, a := range []*types.Amount{p.miner, p.validator, p.infrastructure, p.delegator, p.subnetOwner, p.daoTreasury, p.ecosystem} {
		used = types.SaturatingAdd(used, a)
	}
	if dust, ok := types.CheckedSub(minted, used); ok {
		p.ecosystem = types.SaturatingAdd(p.ecosystem, dust)
	}
	return p
}

// sweepIfEmpty routes pool to the DAO treasury whenever intents came back
// empty -- an empty recipient list or an all-zero-weight entry set -- so no
// pool's bps share of the mint is ever silently dropped. A pool with a real
// recipient list always returns its own intents unchanged.
func sweepIfEmpty(epoch uint64, pool *types.Amount, daoTreasury types.Address, intents []types.RewardIntent) []types.RewardIntent {
	if len(intents) > 0 || pool.Sign() == 0 {
		return intents
	}
	return []types.RewardIntent{
		{Epoch: epoch, Recipient: daoTreasury, Amount: pool, Category: types.RewardDAOTreasury},
	}
}

// weightedEntry is a (recipient, weight) pair ready for pro-rata splitting.
type weightedEntry struct {
	addr   types.Address
	weight *types.Amount
}

// distributeProRata splits pool across entries proportional to weight,
// flooring each share, then awards the leftover dust to the entry with the
// highest weight (ties broken toward the smaller address) so the sum of
// shares always equals pool exactly. entries with zero total weight get no
// intents at all; the caller decides what happens to that pool's amount.
func distributeProRata(epoch uint64, pool *types.Amount, category types.RewardCategory, entries []weightedEntry) []types.RewardIntent {
	if len(entries) == 0 || pool.Sign() == 0 {
		return nil
	}
	total := types.ZeroAmount()
	for _, e := range entries {
		total = types.SaturatingAdd(total, e.weight)
	}
	if total.Sign() == 0 {
		return nil
	}

	sorted := make([]weightedEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].addr.Less(sorted[j].addr) })

	intents := make([]types.RewardIntent, 0, len(sorted))
	distributed := types.ZeroAmount()
	highestIdx := -1
	var highestWeight *big.Int

	for i, e := range sorted {
		share := types.MulDiv(pool, e.weight, total)
		intents = append(intents, types.RewardIntent{Epoch: epoch, Recipient: e.addr, Amount: share, Category: category})
		distributed = types.SaturatingAdd(distributed, share)

		w := e.weight.ToBig()
		if highestWeight == nil || w.Cmp(highestWeight) > 0 {
			highestWeight = w
			highestIdx = i
		}
	}

	residual, ok := types.CheckedSub(pool, distributed)
	if ok && residual.Sign() > 0 && highestIdx >= 0 {
		intents[highestIdx].Amount = types.SaturatingAdd(intents[highestIdx].Amount, residual)
	}
	return intents
}

func minerIntents(epoch uint64, pool *types.Amount, scores []MinerScore) []types.RewardIntent {
	entries := make([]weightedEntry, 0, len(scores))
	for _, s := range scores {
		bonusBps := 10_000 + types.MulDivBps(types.NewAmount(GPUBonusBps), s.GPUFractionBps).Uint64()
		weight := types.MulDivBps(types.NewAmount(s.CanonicalBps), bonusBps)
		entries = append(entries, weightedEntry{addr: s.Miner, weight: weight})
	}
	return distributeProRata(epoch, pool, types.RewardMiner, entries)
}

func validatorIntents(epoch uint64, pool *types.Amount, validators []*validatorset.Record) []types.RewardIntent {
	entries := make([]weightedEntry, 0, len(validators))
	for _, v := range validators {
		// v.EffectiveStake is already log_stake(raw_stake) * trust_score,
		// exactly the weight this pool splits by.
		entries = append(entries, weightedEntry{addr: v.Address, weight: v.EffectiveStake})
	}
	return distributeProRata(epoch, pool, types.RewardValidator, entries)
}

func infrastructureIntents(epoch uint64, pool *types.Amount, nodes []InfraNode) []types.RewardIntent {
	entries := make([]weightedEntry, 0, len(nodes))
	for _, n := range nodes {
		entries = append(entries, weightedEntry{addr: n.Address, weight: stake.LogStake(n.RawStake)})
	}
	return distributeProRata(epoch, pool, types.RewardInfrastructure, entries)
}

func delegatorIntents(epoch uint64, pool *types.Amount, delegations []*delegation.Record) []types.RewardIntent {
	// Multiple delegations can share the same delegator address (different
	// validators); distributeProRata's residual tie-break sorts by address,
	// not by (delegator, validator), so the highest-weight entry among any
	// duplicates still wins deterministically -- only determinism matters
	// here, not which duplicate receives the dust.
	entries := make([]weightedEntry, 0, len(delegations))
	for _, d := range delegations {
		weight := delegation.EffectiveWeight(stake.LogStake(d.RawStake), d.LockBonusBps)
		entries = append(entries, weightedEntry{addr: d.Delegator, weight: weight})
	}
	return distributeProRata(epoch, pool, types.RewardDelegator, entries)
}

func subnetOwnerIntents(epoch uint64, pool *types.Amount, owners []types.Address) []types.RewardIntent {
	entries := make([]weightedEntry, 0, len(owners))
	for _, o := range owners {
		entries = append(entries, weightedEntry{addr: o, weight: types.NewAmount(1)})
	}
	return distributeProRata(epoch, pool, types.RewardSubnetOwner, entries)
}
