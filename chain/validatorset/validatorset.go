// Package validatorset implements the Validator Set:
// registration, stake-weighted leader selection over a RANDAO seed, and
// unbonding. It is the shared stake view chain/weights, chain/slashing
// and chain/rewards all read from.
package validatorset

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"synapsechain/chain/stake"
	"synapsechain/chain/types"
)

var (
	ErrAlreadyRegistered = errors.New("validator already registered")
	ErrInsufficientStake = errors.New("raw stake below minimum validator stake")
	ErrNotFound          = errors.New("validator not found")
	ErrAlreadyUnbonding  = errors.New("validator already unbonding")
)

// Defaults for the active validator set.
const (
	ValidatorMinStakeTokens uint64 = stake.ValidatorThreshold // single source of truth
	MaxActiveValidators     int    = 1_000
	UnbondingEpochs         uint64 = 540
	OfflineWindowEpochs     uint64 = 50
)

// Trust score bounds, in basis points (10_000 == 1.0).
const (
	trustFloorBps uint64 = 1_000
	trustCeilBps  uint64 = 15_000
)

// Record is the Validator Record entity.
type Record struct {
	Address           types.Address
	RawStake          *types.Amount
	EffectiveStake    *types.Amount // logarithmic(raw_stake) * trust_score
	RegisteredEpoch   uint64
	Active            bool
	JailedUntilEpoch  uint64
	LastActivityEpoch uint64
	TrustScore        uint64 // basis points, in [1_000, 15_000] (0.1 to 1.5)
	MissedReveals     uint64
	DoubleSigns       uint64

	unbondRequestedAt uint64
	unbonding         bool
}

func (r *Record) recomputeEffective() {
	r.EffectiveStake = stake.EffectiveStake(r.RawStake, r.TrustScore)
}

// Set is the ordered validator registry with a Fenwick-tree index over
// every registered slot's effective stake. SelectLeader does not read that
// index; it builds its own tree over the active, non-jailed slots.
type Set struct {
	mu sync.RWMutex

	byAddress map[types.Address]*Record
	order     []types.Address // active-set slots, index into the Fenwick tree
	waiting   []types.Address // sorted waiting queue once MaxActiveValidators is reached
	tree      *fenwick
}

// New creates an empty validator set.
func New() *Set {
	return &Set{
		byAddress: make(map[types.Address]*Record),
		tree:      newFenwick(0),
	}
}

// Register adds a new validator, rejecting duplicates, under-stake
// registrations, and registrations past MaxActiveValidators (which are
// queued instead).
func (s *Set) Register(address types.Address, rawStake *types.Amount, epoch uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byAddress[address]; exists {
		return ErrAlreadyRegistered
	}
	if rawStake.Cmp(types.NewAmount(ValidatorMinStakeTokens)) < 0 {
		return ErrInsufficientStake
	}

	rec := &Record{
		Address:           address,
		RawStake:          rawStake.Clone(),
		RegisteredEpoch:   epoch,
		Active:            true,
		LastActivityEpoch: epoch,
		TrustScore:        10_000,
	}
	rec.recomputeEffective()

	if len(s.order) >= MaxActiveValidators {
		s.waiting = append(s.waiting, address)
		s.byAddress[address] = rec
		rec.Active = false
		return nil
	}

	s.byAddress[address] = rec
	s.order = append(s.order, address)
	s.rebuildTreeLocked()
	return nil
}

// RequestUnbond marks a validator for unbonding. Its stake remains
// slashable until UnbondingEpochs have elapsed.
func (s *Set) RequestUnbond(address types.Address, epoch uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byAddress[address]
	if !ok {
		return ErrNotFound
	}
	if rec.unbonding {
		return ErrAlreadyUnbonding
	}
	rec.unbonding = true
	rec.unbondRequestedAt = epoch
	return nil
}

// IsSlashable reports whether a validator's stake is still slashable at
// the given epoch: true until UnbondingEpochs after an unbond request, or
// always true if no unbond has been requested.
func (s *Set) IsSlashable(address types.Address, epoch uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byAddress[address]
	if !ok {
		return false
	}
	if !rec.unbonding {
		return true
	}
	return epoch < rec.unbondRequestedAt+UnbondingEpochs
}

// ActivityTick updates a validator's last-activity epoch.
func (s *Set) ActivityTick(address types.Address, epoch uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.byAddress[address]; ok {
		rec.LastActivityEpoch = epoch
	}
}

// Jail marks a validator jailed for every epoch before jailedUntilEpoch;
// Active includes it again from jailedUntilEpoch on.
func (s *Set) Jail(address types.Address, jailedUntilEpoch uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.byAddress[address]; ok {
		rec.JailedUntilEpoch = jailedUntilEpoch
	}
}

// ApplySlash reduces a validator's raw stake by slashedAmount and
// recomputes its effective stake. The caller (chain/slashing) is
// responsible for computing slashedAmount and for the proportional effect
// on delegations (chain/delegation.Book.SlashValidator).
func (s *Set) ApplySlash(address types.Address, slashedAmount *types.Amount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byAddress[address]
	if !ok {
		return ErrNotFound
	}
	newStake, ok := types.CheckedSub(rec.RawStake, slashedAmount)
	if !ok {
		newStake = types.ZeroAmount()
	}
	rec.RawStake = newStake
	rec.recomputeEffective()
	s.rebuildTreeLocked()
	return nil
}

// SetTrust applies the 0.95 absence decay or the formula-driven update
// from chain/weights; callers pass the already-computed next trust score,
// in basis points.
func (s *Set) SetTrust(address types.Address, nextTrustBps uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byAddress[address]
	if !ok {
		return ErrNotFound
	}
	if nextTrustBps < trustFloorBps {
		nextTrustBps = trustFloorBps
	}
	if nextTrustBps > trustCeilBps {
		nextTrustBps = trustCeilBps
	}
	rec.TrustScore = nextTrustBps
	rec.recomputeEffective()
	s.rebuildTreeLocked()
	return nil
}

// Get returns a copy of a validator record, or nil if not found.
func (s *Set) Get(address types.Address) *Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byAddress[address]
	if !ok {
		return nil
	}
	cp := *rec
	return &cp
}

// Active returns every active, non-jailed validator at epoch, sorted by
// address ascending.
func (s *Set) Active(epoch uint64) []*Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Record, 0, len(s.order))
	for _, addr := range s.order {
		rec := s.byAddress[addr]
		if rec.Active && epoch >= rec.JailedUntilEpoch {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address.Less(out[j].Address) })
	return out
}

// TotalRegistered returns the count of every registered validator
// (active set + waiting queue), used by the participation_norm utility
// term.
func (s *Set) TotalRegistered() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byAddress)
}

// SelectLeader performs stake-weighted selection for slot within epoch,
// using seed (the RANDAO output for that epoch, -- never
// the previous block hash, which would let the proposer grind future
// slots). Each call builds a fresh Fenwick tree over the active,
// non-jailed slots (O(n log n)) and then finds the slot by an O(log n)
// prefix-sum descent; the per-call build dominates.
func (s *Set) SelectLeader(seed types.Hash, epoch, slot uint64) (types.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	active := s.activeSlotsLocked(epoch)
	if len(active) == 0 {
		return types.Address{}, fmt.Errorf("no active validators for epoch %d", epoch)
	}

	tree := newFenwick(len(active))
	var total uint64
	for i, addr := range active {
		w := s.byAddress[addr].EffectiveStake.Uint64()
		tree.set(i, 0, w)
		total += w
	}
	if total == 0 {
		return active[0], nil
	}

	h := types.Keccak256(seed.Bytes(), types.Uint64ToBytes(slot))
	target := new(big.Int).Mod(new(big.Int).SetBytes(h), new(big.Int).SetUint64(total))

	idx := tree.findByPrefix(target.Uint64())
	if idx >= len(active) {
		idx = len(active) - 1
	}
	return active[idx], nil
}

func (s *Set) activeSlotsLocked(epoch uint64) []types.Address {
	out := make([]types.Address, 0, len(s.order))
	for _, addr := range s.order {
		rec := s.byAddress[addr]
		if rec.Active && epoch >= rec.JailedUntilEpoch {
			out = append(out, addr)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

func (s *Set) rebuildTreeLocked() {
	s.tree = newFenwick(len(s.order))
	for i, addr := range s.order {
		rec := s.byAddress[addr]
		s.tree.set(i, 0, rec.EffectiveStake.Uint64())
	}
}
