// Package delegation implements the Delegation Record: a delegator's stake
// placed behind a validator, carrying a lock-period bonus and subject to
// proportional slashing whenever the backing validator is penalized. It is
// the shared book chain/slashing and chain/rewards both read from, the same
// way chain/validatorset is the shared book for validator stake.
package delegation

import (
	"errors"
	"sort"
	"sync"

	"synapsechain/chain/types"
)

var (
	ErrAlreadyDelegated = errors.New("delegation already exists for (delegator, validator)")
	ErrNotFound         = errors.New("delegation not found")
	ErrStillLocked      = errors.New("delegation still within its lock period")
	ErrInvalidLockBonus = errors.New("lock_bonus_bps is not one of the allowed lock-period values")
)

// LockBonusBps enumerates the allowed values for Record.LockBonusBps,
// selected at deposit by the delegator's chosen lock period.
const (
	LockNone   uint64 = 0
	Lock90Day  uint64 = 1_000
	Lock180Day uint64 = 2_500
	Lock270Day uint64 = 5_000
	Lock365Day uint64 = 10_000
)

func validLockBonus(bps uint64) bool {
	switch bps {
	case LockNone, Lock90Day, Lock180Day, Lock270Day, Lock365Day:
		return true
	default:
		return false
	}
}

// Record is the Delegation Record entity, unique by (Delegator, Validator).
type Record struct {
	Delegator      types.Address
	Validator      types.Address
	RawStake       *types.Amount
	LockUntilEpoch uint64
	LockBonusBps   uint64
}

type key struct {
	delegator types.Address
	validator types.Address
}

// Book is the registry of every outstanding delegation.
type Book struct {
	mu      sync.RWMutex
	records map[key]*Record
}

// New creates an empty delegation book.
func New() *Book {
	return &Book{records: make(map[key]*Record)}
}

// Delegate creates a new delegation record. Re-delegating an existing pair
// is done via Redelegate, not a second Delegate call.
func (b *Book) Delegate(delegator, validator types.Address, rawStake *types.Amount, lockUntilEpoch uint64, lockBonusBps uint64) error {
	if !validLockBonus(lockBonusBps) {
		return ErrInvalidLockBonus
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	k := key{delegator, validator}
	if _, exists := b.records[k]; exists {
		return ErrAlreadyDelegated
	}
	b.records[k] = &Record{
		Delegator:      delegator,
		Validator:      validator,
		RawStake:       rawStake.Clone(),
		LockUntilEpoch: lockUntilEpoch,
		LockBonusBps:   lockBonusBps,
	}
	return nil
}

// Redelegate replaces an existing delegation's stake and lock terms in
// place, keeping the (delegator, validator) identity stable.
func (b *Book) Redelegate(delegator, validator types.Address, rawStake *types.Amount, lockUntilEpoch uint64, lockBonusBps uint64) error {
	if !validLockBonus(lockBonusBps) {
		return ErrInvalidLockBonus
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, ok := b.records[key{delegator, validator}]
	if !ok {
		return ErrNotFound
	}
	rec.RawStake = rawStake.Clone()
	rec.LockUntilEpoch = lockUntilEpoch
	rec.LockBonusBps = lockBonusBps
	return nil
}

// Undelegate removes a delegation once its lock period has expired.
func (b *Book) Undelegate(delegator, validator types.Address, epoch uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	k := key{delegator, validator}
	rec, ok := b.records[k]
	if !ok {
		return ErrNotFound
	}
	if epoch < rec.LockUntilEpoch {
		return ErrStillLocked
	}
	delete(b.records, k)
	return nil
}

// Get returns a copy of a delegation record, or nil if none exists.
func (b *Book) Get(delegator, validator types.Address) *Record {
	b.mu.RLock()
	defer b.mu.RUnlock()
	rec, ok := b.records[key{delegator, validator}]
	if !ok {
		return nil
	}
	cp := *rec
	return &cp
}

// ByValidator returns every delegation backing validator, sorted by
// delegator address ascending. The book is not snapshotted: chain/epoch
// reads it when the epoch closes, so a mid-epoch re-delegation is already
// reflected in that epoch's reward pass.
func (b *Book) ByValidator(validator types.Address) []*Record {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]*Record, 0)
	for _, rec := range b.records {
		if rec.Validator == validator {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Delegator.Less(out[j].Delegator) })
	return out
}

// All returns every delegation record, sorted by (validator, delegator).
// chain/rewards uses this to build the full delegator pro-rata split in one
// deterministic pass.
func (b *Book) All() []*Record {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]*Record, 0, len(b.records))
	for _, rec := range b.records {
		cp := *rec
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Validator != out[j].Validator {
			return out[i].Validator.Less(out[j].Validator)
		}
		return out[i].Delegator.Less(out[j].Delegator)
	})
	return out
}

// SlashValidator reduces every delegation backing validator by bps basis
// points of raw stake, run in lockstep with the validator's own slash so
// delegators lose the same percentage the validator does. Returns the
// total amount removed across all delegators, for the caller to route
// through the same 80/10/10 split as the validator's own slashed stake.
func (b *Book) SlashValidator(validator types.Address, bps uint64) *types.Amount {
	b.mu.Lock()
	defer b.mu.Unlock()

	total := types.ZeroAmount()
	keys := make([]key, 0)
	for k, rec := range b.records {
		if rec.Validator == validator {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].delegator.Less(keys[j].delegator) })

	for _, k := range keys {
		rec := b.records[k]
		cut := types.MulDivBps(rec.RawStake, bps)
		newStake, ok := types.CheckedSub(rec.RawStake, cut)
		if !ok {
			newStake = types.ZeroAmount()
		}
		rec.RawStake = newStake
		total = types.SaturatingAdd(total, cut)
	}
	return total
}

// EffectiveWeight is log_stake(s) x (10_000 + lock_bonus_bps) / 10_000,
// the weight chain/rewards splits the delegator pool pro-rata by. Defined
// here, not in chain/rewards, so the lock-bonus formula has exactly one
// implementation.
func EffectiveWeight(logStake *types.Amount, lockBonusBps uint64) *types.Amount {
	return types.MulDiv(logStake, types.NewAmount(10_000+lockBonusBps), types.NewAmount(10_000))
}
