package validatorset

import (
	"testing"

	"synapsechain/chain/types"
)

func addr(b byte) types.Address {
	var a types.Address
	a[19] = b
	return a
}

func TestRegisterAndActive(t *testing.T) {
	s := New()
	if err := s.Register(addr(1), types.NewAmount(100), 0); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := s.Register(addr(1), types.NewAmount(100), 0); err != ErrAlreadyRegistered {
		t.Fatalf("expected ErrAlreadyRegistered, got %v", err)
	}

	active := s.Active(0)
	if len(active) != 1 || active[0].Address != addr(1) {
		t.Fatalf("unexpected active set: %+v", active)
	}
}

func TestSelectLeaderIsDeterministicForSameSeed(t *testing.T) {
	s := New()
	for i := byte(1); i <= 5; i++ {
		if err := s.Register(addr(i), types.NewAmount(uint64(i)*100), 0); err != nil {
			t.Fatalf("register %d: %v", i, err)
		}
	}

	seed := types.BytesToHash([]byte("randao-epoch-7"))
	leader1, err := s.SelectLeader(seed, 7, 0)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	leader2, err := s.SelectLeader(seed, 7, 0)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if leader1 != leader2 {
		t.Fatalf("selection not deterministic: %v != %v", leader1, leader2)
	}
}

func TestSelectLeaderSkipsJailedValidators(t *testing.T) {
	s := New()
	for i := byte(1); i <= 3; i++ {
		if err := s.Register(addr(i), types.NewAmount(100), 0); err != nil {
			t.Fatalf("register %d: %v", i, err)
		}
	}
	s.Jail(addr(1), 1000)
	s.Jail(addr(2), 1000)

	seed := types.BytesToHash([]byte("randao"))
	for slot := uint64(0); slot < 10; slot++ {
		leader, err := s.SelectLeader(seed, 0, slot)
		if err != nil {
			t.Fatalf("select slot %d: %v", slot, err)
		}
		if leader != addr(3) {
			t.Fatalf("slot %d: expected only non-jailed validator addr(3), got %v", slot, leader)
		}
	}
}

func TestRequestUnbondThenSlashableWindow(t *testing.T) {
	s := New()
	if err := s.Register(addr(1), types.NewAmount(100), 0); err != nil {
		t.Fatalf("register: %v", err)
	}
	if !s.IsSlashable(addr(1), 0) {
		t.Fatalf("expected slashable before unbond request")
	}
	if err := s.RequestUnbond(addr(1), 10); err != nil {
		t.Fatalf("unbond: %v", err)
	}
	if !s.IsSlashable(addr(1), 10+UnbondingEpochs-1) {
		t.Fatalf("expected slashable inside unbonding window")
	}
	if s.IsSlashable(addr(1), 10+UnbondingEpochs) {
		t.Fatalf("expected not slashable after unbonding window elapses")
	}
}

func TestApplySlashReducesEffectiveStake(t *testing.T) {
	s := New()
	if err := s.Register(addr(1), types.NewAmount(400), 0); err != nil {
		t.Fatalf("register: %v", err)
	}
	before := s.Get(addr(1)).EffectiveStake.Clone()

	if err := s.ApplySlash(addr(1), types.NewAmount(300)); err != nil {
		t.Fatalf("slash: %v", err)
	}
	after := s.Get(addr(1))
	if after.RawStake.Cmp(types.NewAmount(100)) != 0 {
		t.Fatalf("raw stake = %s, want 100", after.RawStake.String())
	}
	if after.EffectiveStake.Cmp(before) >= 0 {
		t.Fatalf("expected effective stake to drop after slash")
	}
}

func TestRegisterBelowMaxActiveValidatorsAllActive(t *testing.T) {
	s := New()
	orig := MaxActiveValidators
	// shrink the cap is not possible (const); instead register fewer than
	// the cap and assert everyone lands in the active set.
	_ = orig
	for i := byte(1); i <= 10; i++ {
		if err := s.Register(addr(i), types.NewAmount(100), 0); err != nil {
			t.Fatalf("register %d: %v", i, err)
		}
	}
	if len(s.Active(0)) != 10 {
		t.Fatalf("expected 10 active validators, got %d", len(s.Active(0)))
	}
}
