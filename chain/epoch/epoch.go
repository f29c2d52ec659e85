// Package epoch implements the epoch orchestrator: the single owner of
// cross-component mutation. It drives the commit/reveal/aggregate cycle
// over block-height boundaries, computes the epoch mint, runs the reward
// split, and applies everything in one atomic batch so a crash mid-epoch
// leaves the ledger unchanged and the epoch re-runnable. cmd/synapse-node
// is the only caller: it is the host that owns the live block-stream loop
// and RANDAO delivery, and hands this package real block heights.
package epoch

import (
	"errors"
	"fmt"

	"synapsechain/chain/burn"
	"synapsechain/chain/delegation"
	"synapsechain/chain/emission"
	"synapsechain/chain/rewards"
	"synapsechain/chain/scoring"
	"synapsechain/chain/slashing"
	"synapsechain/chain/stake"
	"synapsechain/chain/supply"
	"synapsechain/chain/types"
	"synapsechain/chain/validatorset"
	"synapsechain/chain/weights"
)

var ErrNotAtBoundary = errors.New("called off the epoch's block-height boundary")

// StateWriter applies one epoch's worth of reward intents as a single
// atomic batch. chain/storage is the concrete implementation, using a
// goleveldb write batch so a crash mid-apply can never leave some
// recipients credited and others not.
type StateWriter interface {
	ApplyEpoch(epoch uint64, intents []types.RewardIntent) error
}

// InfraNodeSource and SubnetOwnerSource are the orchestrator's two
// external read hooks, since neither a node registry nor a subnet
// registry is itself a core consensus/tokenomics component -- the host
// supplies the current membership at the moment each epoch closes.
type InfraNodeSource func(epoch uint64) []rewards.InfraNode
type SubnetOwnerSource func(epoch uint64) []types.Address

// Orchestrator wires every other component together behind the single
// entrypoint cmd/synapse-node drives.
type Orchestrator struct {
	Supply      *supply.Ledger
	Controller  emission.Controller
	Burn        *burn.Manager
	Scoring     *scoring.Ledger
	Validators  *validatorset.Set
	Weights     *weights.Consensus
	Slashing    *slashing.Manager
	Delegations *delegation.Book
	Storage     StateWriter

	EpochBlocks uint64
	DAOTreasury types.Address

	InfraNodes   InfraNodeSource
	SubnetOwners SubnetOwnerSource

	epoch uint64
	h0    uint64
	h1    uint64
	h2    uint64
}

// New builds an orchestrator over the given components. Every component
// pointer must be non-nil; they are expected to be constructed once at
// node startup and shared for the process lifetime.
func New(
	supplyLedger *supply.Ledger,
	controller emission.Controller,
	burnMgr *burn.Manager,
	scoringLedger *scoring.Ledger,
	validators *validatorset.Set,
	weightConsensus *weights.Consensus,
	slashingMgr *slashing.Manager,
	delegations *delegation.Book,
	storage StateWriter,
	epochBlocks uint64,
	daoTreasury types.Address,
	infraNodes InfraNodeSource,
	subnetOwners SubnetOwnerSource,
) *Orchestrator {
	return &Orchestrator{
		Supply:       supplyLedger,
		Controller:   controller,
		Burn:         burnMgr,
		Scoring:      scoringLedger,
		Validators:   validators,
		Weights:      weightConsensus,
		Slashing:     slashingMgr,
		Delegations:  delegations,
		Storage:      storage,
		EpochBlocks:  epochBlocks,
		DAOTreasury:  daoTreasury,
		InfraNodes:   infraNodes,
		SubnetOwners: subnetOwners,
	}
}

// Boundaries returns (h0, h1, h2) for epoch: the commit-window start, the
// reveal-window start, and the aggregation height, exactly
// h0 = epoch*EpochBlocks, h1 = h0+CommitBlocks, h2 = h1+RevealBlocks.
func (o *Orchestrator) Boundaries(epoch uint64) (h0, h1, h2 uint64) {
	h0 = epoch * o.EpochBlocks
	h1 = h0 + weights.CommitBlocks
	h2 = h1 + weights.RevealBlocks
	return h0, h1, h2
}

// StartEpoch runs step 1: resets the scoring ledger and transitions weight
// consensus to Committing. It takes and stores no RANDAO seed; the seed
// for leader selection is supplied separately to validatorset.SelectLeader.
// Must be called exactly at h0.
func (o *Orchestrator) StartEpoch(epoch uint64, blockHeight uint64) error {
	h0, h1, h2 := o.Boundaries(epoch)
	if blockHeight != h0 {
		return fmt.Errorf("%w: epoch %d starts at height %d, got %d", ErrNotAtBoundary, epoch, h0, blockHeight)
	}
	o.epoch, o.h0, o.h1, o.h2 = epoch, h0, h1, h2
	o.Scoring.ResetEpochStats(epoch)
	o.Weights.StartEpoch(epoch, h0)
	return nil
}

// AdvanceToRevealing runs step 3: weight consensus Committing -> Revealing.
// Must be called exactly at h1.
func (o *Orchestrator) AdvanceToRevealing(blockHeight uint64) error {
	if blockHeight != o.h1 {
		return fmt.Errorf("%w: epoch %d reveal phase starts at height %d, got %d", ErrNotAtBoundary, o.epoch, o.h1, blockHeight)
	}
	return o.Weights.AdvanceToRevealing()
}

// Result summarizes one epoch's close for logging/metrics.
type Result struct {
	Epoch        uint64
	UtilityBps   uint64
	QualityBps   uint64
	Minted       *types.Amount
	Intents      []types.RewardIntent
	NonRevealers []types.Address
}

// CloseEpoch runs steps 5 through 8 at h2: aggregation, non-revealer
// reporting, utility/quality-driven minting, the reward split, and the
// single atomic apply. nextProducer substitutes for the reporter on any
// non-revealer penalty, since a missed reveal has no named reporter.
func (o *Orchestrator) CloseEpoch(blockHeight uint64, utilityCounters emission.UtilityInputs, nextProducer types.Address) (Result, error) {
	if blockHeight != o.h2 {
		return Result{}, fmt.Errorf("%w: epoch %d closes at height %d, got %d", ErrNotAtBoundary, o.epoch, o.h2, blockHeight)
	}
	epoch := o.epoch

	aggregate, err := o.Weights.Aggregate()
	if err != nil {
		return Result{}, fmt.Errorf("aggregate: %w", err)
	}

	nonRevealers := o.Weights.NonRevealers()
	for _, v := range nonRevealers {
		if err := o.Slashing.MissedReveal(epoch, v, nextProducer); err != nil && !errors.Is(err, validatorset.ErrNotFound) {
			return Result{}, fmt.Errorf("missed-reveal slash for %s: %w", v.Hex(), err)
		}
	}

	o.updateTrust(epoch, aggregate.Deviations)

	uBps := emission.UtilityBps(utilityCounters)
	recycled := o.Burn.DrainRecycledPool()
	remaining := o.Supply.Snapshot().RemainingPool()
	decision := o.Controller.Compute(blockHeight, uBps, aggregate.QualityBps, recycled, remaining)
	minted := o.Supply.CreditMint(decision.Minted)

	rewardInput := o.buildRewardInput(epoch, minted, uBps, aggregate)
	intents := rewards.Distribute(rewardInput, o.Burn)
	intents = append(intents, o.Slashing.DrainReporterRewards()...)
	intents = append(intents, escrowToIntents(epoch, o.Slashing.ReleaseEscrow(epoch))...)

	if err := o.Storage.ApplyEpoch(epoch, intents); err != nil {
		return Result{}, fmt.Errorf("apply epoch batch: %w", err)
	}

	return Result{
		Epoch:        epoch,
		UtilityBps:   uBps,
		QualityBps:   aggregate.QualityBps,
		Minted:       minted,
		Intents:      intents,
		NonRevealers: nonRevealers,
	}, nil
}

// updateTrust applies the trust_next formula to every validator that
// contributed a deviation this epoch, and the 0.95 absence decay to every
// active validator that contributed none.
func (o *Orchestrator) updateTrust(epoch uint64, deviations []weights.ValidatorDeviation) {
	seen := make(map[types.Address]bool, len(deviations))
	for _, d := range deviations {
		seen[d.Validator] = true
		rec := o.Validators.Get(d.Validator)
		if rec == nil {
			continue
		}
		next := weights.TrustNext(rec.TrustScore, d.AvgDev)
		o.Validators.SetTrust(d.Validator, next)
		o.Validators.ActivityTick(d.Validator, epoch)
	}
	for _, rec := range o.Validators.Active(epoch) {
		if !seen[rec.Address] {
			o.Validators.SetTrust(rec.Address, weights.TrustDecayAbsent(rec.TrustScore))
		}
	}
}

func (o *Orchestrator) buildRewardInput(epoch uint64, minted *types.Amount, uBps uint64, aggregate weights.AggregateResult) rewards.Input {
	minerScores := make([]rewards.MinerScore, 0, len(aggregate.Miners))
	for _, m := range aggregate.Miners {
		stats := o.Scoring.Get(m.Miner)
		minerScores = append(minerScores, rewards.MinerScore{
			Miner:          m.Miner,
			CanonicalBps:   m.Canonical,
			GPUFractionBps: stats.GPUFractionBps(),
		})
	}

	var infraNodes []rewards.InfraNode
	if o.InfraNodes != nil {
		infraNodes = o.InfraNodes(epoch)
	}
	var subnetOwners []types.Address
	if o.SubnetOwners != nil {
		subnetOwners = o.SubnetOwners(epoch)
	}

	return rewards.Input{
		Epoch:        epoch,
		Minted:       minted,
		UtilityBps:   uBps,
		MinerScores:  minerScores,
		Validators:   o.Validators.Active(epoch),
		Delegations:  o.Delegations.All(),
		InfraNodes:   infraNodes,
		SubnetOwners: subnetOwners,
		DAOTreasury:  o.DAOTreasury,
	}
}

func escrowToIntents(epoch uint64, entries []*slashing.EscrowEntry) []types.RewardIntent {
	out := make([]types.RewardIntent, 0, len(entries))
	for _, e := range entries {
		out = append(out, types.RewardIntent{
			Epoch:     epoch,
			Recipient: e.Validator,
			Amount:    e.Amount,
			Category:  types.RewardValidator,
		})
	}
	return out
}

// ClassifyInfraNode is a convenience for building an InfraNodeSource: it
// filters a raw-stake entry down to the Full-tier nodes chain/rewards
// splits the infrastructure pool across.
func ClassifyInfraNode(address types.Address, rawStake *types.Amount) (rewards.InfraNode, bool) {
	tier := stake.ClassifyTier(rawStake.Uint64())
	if tier < stake.TierFull {
		return rewards.InfraNode{}, false
	}
	return rewards.InfraNode{Address: address, RawStake: rawStake}, true
}
