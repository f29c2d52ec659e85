package burn

import (
	"testing"

	"synapsechain/chain/types"
)

type fakeLedger struct{ burned *types.Amount }

func newFakeLedger() *fakeLedger { return &fakeLedger{burned: types.ZeroAmount()} }

func (f *fakeLedger) RecordBurn(amount *types.Amount) {
	f.burned = types.SaturatingAdd(f.burned, amount)
}

func TestTxFeeBurnsHalf(t *testing.T) {
	l := newFakeLedger()
	m := NewManager(l)

	burned := m.TxFee(0, types.NewAmount(1_000))
	if burned.Cmp(types.NewAmount(500)) != 0 {
		t.Fatalf("burned = %s, want 500", burned.String())
	}
	if l.burned.Cmp(types.NewAmount(500)) != 0 {
		t.Fatalf("ledger burned = %s, want 500", l.burned.String())
	}
}

func TestSubnetRegSplitsAndRecycles(t *testing.T) {
	l := newFakeLedger()
	m := NewManager(l)

	burned, recycled := m.SubnetReg(0, types.NewAmount(1_000))
	if burned.Cmp(types.NewAmount(500)) != 0 {
		t.Fatalf("burned = %s, want 500", burned.String())
	}
	if recycled.Cmp(types.NewAmount(500)) != 0 {
		t.Fatalf("recycled = %s, want 500", recycled.String())
	}

	pool := m.DrainRecycledPool()
	if pool.Cmp(types.NewAmount(500)) != 0 {
		t.Fatalf("recycled pool = %s, want 500", pool.String())
	}
	// pool resets after drain
	if after := m.DrainRecycledPool(); after.Sign() != 0 {
		t.Fatalf("expected drained pool to reset to zero, got %s", after.String())
	}
}

func TestUnmetQuotaBurnsFullScheduledMint(t *testing.T) {
	l := newFakeLedger()
	m := NewManager(l)

	m.UnmetQuota(0, types.NewAmount(12_345))
	if l.burned.Cmp(types.NewAmount(12_345)) != 0 {
		t.Fatalf("ledger burned = %s, want 12345", l.burned.String())
	}

	events := m.Events()
	if len(events) != 1 || events[0].Reason != types.BurnUnmetQuota {
		t.Fatalf("expected one UnmetQuota event, got %+v", events)
	}
}

func TestSlashBurns80Percent(t *testing.T) {
	l := newFakeLedger()
	m := NewManager(l)

	burned := m.Slash(0, types.NewAmount(1_000))
	if burned.Cmp(types.NewAmount(800)) != 0 {
		t.Fatalf("burned = %s, want 800", burned.String())
	}
}
