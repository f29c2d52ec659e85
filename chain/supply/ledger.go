// Package supply implements the Supply Ledger: the single
// source of truth for minted, burned, and circulating supply. Every mint
// or burn anywhere in the core goes through a Ledger.
package supply

import (
	"sync"

	"synapsechain/chain/types"
)

// State is a read-only snapshot of the ledger.
type State struct {
	TotalCap       *types.Amount
	Preminted      *types.Amount
	MintedFromPool *types.Amount
	Burned         *types.Amount
}

// Circulating returns preminted + minted_from_pool - burned.
func (s State) Circulating() *types.Amount {
	sum := types.SaturatingAdd(s.Preminted, s.MintedFromPool)
	c, ok := types.CheckedSub(sum, s.Burned)
	if !ok {
		types.PanicIntegrity("supply", "burned exceeds preminted+minted_from_pool")
	}
	return c
}

// RemainingPool returns total_cap - preminted - minted_from_pool.
func (s State) RemainingPool() *types.Amount {
	spent := types.SaturatingAdd(s.Preminted, s.MintedFromPool)
	r, ok := types.CheckedSub(s.TotalCap, spent)
	if !ok {
		types.PanicIntegrity("supply", "preminted+minted_from_pool exceeds total_cap")
	}
	return r
}

// Ledger owns the Supply State and serializes all mutation through
// credit_mint / record_burn. The orchestrator credits mints,
// chain/burn.Manager records burns through its Ledger interface, and
// cmd/synapse-node only reads State snapshots.
type Ledger struct {
	mu sync.Mutex

	totalCap       *types.Amount
	preminted      *types.Amount
	mintedFromPool *types.Amount
	burned         *types.Amount
}

// New creates a ledger at genesis with the given total cap and preminted
// (TGE) allocation. preminted must not exceed totalCap.
func New(totalCap, preminted *types.Amount) *Ledger {
	if preminted.Cmp(totalCap) > 0 {
		types.PanicIntegrity("supply", "preminted exceeds total_cap at genesis")
	}
	return &Ledger{
		totalCap:       totalCap.Clone(),
		preminted:      preminted.Clone(),
		mintedFromPool: types.ZeroAmount(),
		burned:         types.ZeroAmount(),
	}
}

// CreditMint mints up to amount from the remaining pool, clamping to what
// remains, and returns the amount actually credited. minted_from_pool only
// ever increases.
func (l *Ledger) CreditMint(amount *types.Amount) *types.Amount {
	l.mu.Lock()
	defer l.mu.Unlock()

	remaining := l.remainingPoolLocked()
	credited := types.Min(amount, remaining)
	l.mintedFromPool = types.SaturatingAdd(l.mintedFromPool, credited)
	return credited
}

// RecordBurn increases burned by amount. Over-burn (burned would exceed
// what has ever entered circulation) is a programming error: it panics
// with an IntegrityViolation rather than silently clamping.
func (l *Ledger) RecordBurn(amount *types.Amount) {
	l.mu.Lock()
	defer l.mu.Unlock()

	circulating := l.snapshotLocked().Circulating()
	if amount.Cmp(circulating) > 0 {
		types.PanicIntegrity("supply", "record_burn amount exceeds circulating supply")
	}
	l.burned = types.SaturatingAdd(l.burned, amount)
}

// Snapshot returns a read-only copy of the current supply state.
func (l *Ledger) Snapshot() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked()
}

func (l *Ledger) snapshotLocked() State {
	return State{
		TotalCap:       l.totalCap.Clone(),
		Preminted:      l.preminted.Clone(),
		MintedFromPool: l.mintedFromPool.Clone(),
		Burned:         l.burned.Clone(),
	}
}

func (l *Ledger) remainingPoolLocked() *types.Amount {
	return l.snapshotLocked().RemainingPool()
}
