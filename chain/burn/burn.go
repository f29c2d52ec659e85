// Package burn implements burn classification and recording across the
// four burn sources (tx fee, subnet registration, unmet quota, slashing),
// and the per-epoch "recycled pool" that the emission controller draws on
// before touching the supply ledger's remaining pool.
package burn

import (
	"sync"

	"synapsechain/chain/types"
)

// Rates, in basis points of the triggering amount.
const (
	TxFeeBurnBps     = 5_000 // 50% of base fee
	SubnetRegBurnBps = 5_000 // 50% of registration fee; remainder recycled
	SlashBurnBps     = 8_000 // 80% of slashed amount
	// UnmetQuota burns 100% of the epoch's scheduled mint; no rate needed.
)

// Ledger is the interface burn.Manager writes through; it is exactly
// chain/supply.Ledger's RecordBurn, kept as an interface here so burn
// doesn't import supply and create a cycle with chain/epoch.
type Ledger interface {
	RecordBurn(amount *types.Amount)
}

// Manager classifies burns from their four sources and accumulates the
// current epoch's "recycled pool": the SubnetReg recycled-half, the only
// input to that pool, which the emission controller consumes before
// minting new supply.
type Manager struct {
	mu           sync.Mutex
	ledger       Ledger
	events       []types.BurnEvent
	recycledPool *types.Amount
}

// NewManager creates a burn manager writing through to ledger.
func NewManager(ledger Ledger) *Manager {
	return &Manager{ledger: ledger, recycledPool: types.ZeroAmount()}
}

// TxFee burns TxFeeBurnBps of totalBaseFee and returns the burned amount.
// The remainder is the execution layer's fee-recipient concern, outside
// this core.
func (m *Manager) TxFee(epoch uint64, totalBaseFee *types.Amount) *types.Amount {
	burned := types.MulDivBps(totalBaseFee, TxFeeBurnBps)
	m.record(epoch, burned, types.BurnTxFee)
	return burned
}

// SubnetReg burns half of a subnet registration fee and recycles the
// other half into the current epoch's recycled pool rather than sending
// it anywhere else; chain/emission.Controller.Compute consumes that pool
// before minting.
func (m *Manager) SubnetReg(epoch uint64, fee *types.Amount) (burned, recycled *types.Amount) {
	burned = types.MulDivBps(fee, SubnetRegBurnBps)
	recycled, _ = types.CheckedSub(fee, burned)
	m.record(epoch, burned, types.BurnSubnetReg)

	m.mu.Lock()
	m.recycledPool = types.SaturatingAdd(m.recycledPool, recycled)
	m.mu.Unlock()
	return burned, recycled
}

// UnmetQuota burns the full scheduled epoch mint because the utility
// score fell below QUOTA_THRESHOLD_BPS.
func (m *Manager) UnmetQuota(epoch uint64, scheduledMint *types.Amount) {
	m.record(epoch, scheduledMint, types.BurnUnmetQuota)
}

// Slash burns SlashBurnBps of a slashed amount; the caller (chain/slashing)
// is responsible for routing the remaining 20% to the reporter and the
// unjail escrow.
func (m *Manager) Slash(epoch uint64, slashedAmount *types.Amount) *types.Amount {
	burned := types.MulDivBps(slashedAmount, SlashBurnBps)
	m.record(epoch, burned, types.BurnSlash)
	return burned
}

func (m *Manager) record(epoch uint64, amount *types.Amount, reason types.BurnReason) {
	if amount.Sign() == 0 {
		return
	}
	m.ledger.RecordBurn(amount)

	m.mu.Lock()
	m.events = append(m.events, types.BurnEvent{Epoch: epoch, Amount: amount.Clone(), Reason: reason})
	m.mu.Unlock()
}

// DrainRecycledPool returns the accumulated recycled pool and resets it
// to zero. The recycled pool is consumed within the same epoch's mint
// decision and never carried across epochs, so the orchestrator calls
// this exactly once per epoch, right before calling
// chain/emission.Controller.Compute.
func (m *Manager) DrainRecycledPool() *types.Amount {
	m.mu.Lock()
	defer m.mu.Unlock()
	pool := m.recycledPool
	m.recycledPool = types.ZeroAmount()
	return pool
}

// Events returns a copy of all burn events recorded so far.
func (m *Manager) Events() []types.BurnEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.BurnEvent, len(m.events))
	copy(out, m.events)
	return out
}
