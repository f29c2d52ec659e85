package supply

import (
	"testing"

	"synapsechain/chain/types"
)

func tokens(n uint64) *types.Amount {
	// converts a whole-token count to base units, 18 decimals
	return types.MulDiv(types.NewAmount(n), types.NewAmount(1_000_000_000_000_000_000), types.NewAmount(1))
}

func TestCreditMintClampsToRemainingPool(t *testing.T) {
	l := New(tokens(21_000_000), tokens(11_550_000))

	minted := l.CreditMint(tokens(10_000_000))
	if minted.Cmp(tokens(9_450_000)) != 0 {
		t.Fatalf("expected clamp to remaining pool 9.45M, got %s", minted.String())
	}

	snap := l.Snapshot()
	if snap.RemainingPool().Sign() != 0 {
		t.Fatalf("expected remaining pool exhausted, got %s", snap.RemainingPool().String())
	}

	// Further mints are credited zero, never negative or erroring.
	if more := l.CreditMint(tokens(1)); more.Sign() != 0 {
		t.Fatalf("expected zero credit once pool is exhausted, got %s", more.String())
	}
}

func TestSupplyConservationInvariant(t *testing.T) {
	l := New(tokens(21_000_000), tokens(11_550_000))
	l.CreditMint(tokens(1_000))
	l.RecordBurn(tokens(100))

	snap := l.Snapshot()
	want := types.SaturatingAdd(snap.Preminted, snap.MintedFromPool)
	want, _ = types.CheckedSub(want, snap.Burned)
	if snap.Circulating().Cmp(want) != 0 {
		t.Fatalf("circulating mismatch: got %s want %s", snap.Circulating().String(), want.String())
	}
}

func TestRecordBurnOverdrawPanics(t *testing.T) {
	l := New(tokens(21_000_000), tokens(100))

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic on over-burn")
		}
	}()
	l.RecordBurn(tokens(1_000))
}

func TestMintedFromPoolAndBurnedMonotonic(t *testing.T) {
	l := New(tokens(21_000_000), tokens(11_550_000))

	prevMinted := l.Snapshot().MintedFromPool
	prevBurned := l.Snapshot().Burned

	l.CreditMint(tokens(50))
	l.RecordBurn(tokens(10))

	snap := l.Snapshot()
	if snap.MintedFromPool.Cmp(prevMinted) < 0 {
		t.Fatal("minted_from_pool decreased")
	}
	if snap.Burned.Cmp(prevBurned) < 0 {
		t.Fatal("burned decreased")
	}
}
