// Package slashing implements the offense/penalty table and the 80/10/10
// slash-split: most of a penalty is burned, a slice goes to whoever
// reported the offense, and the remainder sits in escrow for the validator
// until its jail term ends. Delegators to a slashed validator lose the same
// percentage of their stake in lockstep, via chain/delegation.
package slashing

import (
	"sort"
	"sync"

	"synapsechain/chain/delegation"
	"synapsechain/chain/types"
	"synapsechain/chain/validatorset"
)

// Penalty, in basis points of raw stake, and jail duration, in epochs, per
// offense.
const (
	DoubleSignBps        = 1_000
	DoubleSignJailEpochs = 7_200

	MissedRevealBps        = 200
	MissedRevealJailEpochs = 8

	CollusionBps        = 1_000
	CollusionJailEpochs = 7_200

	OfflineJailEpochs = 1
)

// offlineProgressiveBps is the 1%/3%/10%/25% ladder for successive
// extended-offline offenses against the same validator; the ladder resets
// when a validator returns to good standing (Manager.offlineStrikes is
// caller-managed via ResetOfflineStrikes).
var offlineProgressiveBps = []uint64{100, 300, 1_000, 2_500}

// Split of a slash penalty, in basis points.
const (
	BurnShareBps     = 8_000
	ReporterShareBps = 1_000
	EscrowShareBps   = 1_000
)

// Burner is the interface slashing.Manager writes burns through; it is
// chain/burn.Manager.Slash, kept as an interface so this package doesn't
// import chain/burn directly.
type Burner interface {
	Slash(epoch uint64, slashedAmount *types.Amount) *types.Amount
}

// EscrowEntry is a validator's pending 10% return-after-jail amount.
type EscrowEntry struct {
	Validator    types.Address
	Amount       *types.Amount
	ReleaseEpoch uint64 // the validator's jailed_until_epoch at the time of the slash
	Released     bool
}

// Manager applies offenses to a validator set and delegation book, routing
// the slashed amount through the 80/10/10 split.
type Manager struct {
	mu sync.Mutex

	validators *validatorset.Set
	delegators *delegation.Book
	burner     Burner

	offlineStrikes map[types.Address]int
	escrow         []*EscrowEntry
	pendingReward  []types.RewardIntent // reporter awards, drained by chain/epoch through DrainReporterRewards
}

// NewManager creates a slashing manager over the given validator set,
// delegation book, and burn sink.
func NewManager(validators *validatorset.Set, delegators *delegation.Book, burner Burner) *Manager {
	return &Manager{
		validators:     validators,
		delegators:     delegators,
		burner:         burner,
		offlineStrikes: make(map[types.Address]int),
	}
}

// applySlash charges bps of validator's current raw stake, jails it until
// epoch+jailEpochs, slashes its delegators by the same percentage, and
// splits the total slashed amount 80/10/10 (burn/reporter/escrow).
// reporter may be the zero address, in which case the caller substitutes
// the next block producer before crediting the reporter share.
func (m *Manager) applySlash(epoch uint64, validator, reporter types.Address, bps, jailEpochs uint64) error {
	rec := m.validators.Get(validator)
	if rec == nil {
		return validatorset.ErrNotFound
	}

	validatorCut := types.MulDivBps(rec.RawStake, bps)
	if err := m.validators.ApplySlash(validator, validatorCut); err != nil {
		return err
	}
	delegatorCut := m.delegators.SlashValidator(validator, bps)
	total := types.SaturatingAdd(validatorCut, delegatorCut)

	m.validators.Jail(validator, epoch+jailEpochs)

	burned := m.burner.Slash(epoch, total)
	_ = burned // burn.Manager already records the event; nothing further to do here

	reporterAmount := types.MulDivBps(total, ReporterShareBps)
	escrowAmount := types.MulDivBps(total, EscrowShareBps)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.pendingReward = append(m.pendingReward, types.RewardIntent{
		Epoch:     epoch,
		Recipient: reporter,
		Amount:    reporterAmount,
		Category:  types.RewardValidator,
	})
	m.escrow = append(m.escrow, &EscrowEntry{
		Validator:    validator,
		Amount:       escrowAmount,
		ReleaseEpoch: epoch + jailEpochs,
	})
	return nil
}

// DoubleSign slashes 10% of raw stake and jails for 7200 epochs.
func (m *Manager) DoubleSign(epoch uint64, validator, reporter types.Address) error {
	return m.applySlash(epoch, validator, reporter, DoubleSignBps, DoubleSignJailEpochs)
}

// MissedReveal slashes 2% of raw stake and jails for 8 epochs, for a
// validator who committed but never revealed within the window.
func (m *Manager) MissedReveal(epoch uint64, validator, reporter types.Address) error {
	return m.applySlash(epoch, validator, reporter, MissedRevealBps, MissedRevealJailEpochs)
}

// Collusion slashes 10% of raw stake and jails for 7200 epochs, for a
// validator whose aggregation participation was challenged by a fraud
// proof and found fraudulent.
func (m *Manager) Collusion(epoch uint64, validator, reporter types.Address) error {
	return m.applySlash(epoch, validator, reporter, CollusionBps, CollusionJailEpochs)
}

// ExtendedOffline slashes the validator along the 1%/3%/10%/25%
// progressive ladder (advancing one rung per successive offline offense,
// capped at the last rung) and jails for 1 epoch.
func (m *Manager) ExtendedOffline(epoch uint64, validator, reporter types.Address) error {
	m.mu.Lock()
	strike := m.offlineStrikes[validator]
	if strike >= len(offlineProgressiveBps) {
		strike = len(offlineProgressiveBps) - 1
	}
	bps := offlineProgressiveBps[strike]
	m.offlineStrikes[validator] = strike + 1
	m.mu.Unlock()

	return m.applySlash(epoch, validator, reporter, bps, OfflineJailEpochs)
}

// ResetOfflineStrikes clears a validator's progressive-penalty ladder
// position, called once it has returned to good standing (a full epoch of
// recorded activity after its jail term ends).
func (m *Manager) ResetOfflineStrikes(validator types.Address) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.offlineStrikes, validator)
}

// DrainReporterRewards returns and clears the reporter-share reward
// intents accumulated since the last drain, for chain/epoch to fold into
// the same atomic balance-delta batch as the regular reward intents.
func (m *Manager) DrainReporterRewards() []types.RewardIntent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.pendingReward
	m.pendingReward = nil
	return out
}

// ReleaseEscrow returns every escrow entry whose validator is no longer
// jailed at epoch and marks them released, for the caller to credit back
// to the validator. Unjailing itself is automatic in
// chain/validatorset.Set.Active/SelectLeader (epoch >= jailed_until_epoch);
// this only releases the withheld 10%.
func (m *Manager) ReleaseEscrow(epoch uint64) []*EscrowEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	released := make([]*EscrowEntry, 0)
	for _, e := range m.escrow {
		if e.Released {
			continue
		}
		if epoch >= e.ReleaseEpoch {
			e.Released = true
			released = append(released, e)
		}
	}
	sort.Slice(released, func(i, j int) bool { return released[i].Validator.Less(released[j].Validator) })
	return released
}
