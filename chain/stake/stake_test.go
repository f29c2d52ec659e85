package stake

import (
	"math"
	"math/big"
	"testing"

	"synapsechain/chain/types"
)

func TestLogStakeDampensWhales(t *testing.T) {
	s1 := types.NewAmount(100)
	s2 := types.NewAmount(400)

	w1 := LogStake(s1)
	w2 := LogStake(s2)

	// doubling^2 stake (100 -> 400, a 4x) should yield ~2x weight, not 4x.
	ratio := new(big.Float).Quo(new(big.Float).SetInt(w2.ToBig()), new(big.Float).SetInt(w1.ToBig()))
	got, _ := ratio.Float64()
	if math.Abs(got-2.0) > 0.01 {
		t.Fatalf("expected ~2x weight for 4x stake, got %fx", got)
	}
}

func TestClassifyTier(t *testing.T) {
	cases := []struct {
		stake uint64
		want  Tier
	}{
		{0, TierLight},
		{9, TierLight},
		{10, TierFull},
		{99, TierFull},
		{100, TierValidator},
		{999, TierValidator},
		{1000, TierSuper},
	}
	for _, c := range cases {
		if got := ClassifyTier(c.stake); got != c.want {
			t.Errorf("ClassifyTier(%d) = %s, want %s", c.stake, got, c.want)
		}
	}
}

func TestEffectiveStakeAppliesTrust(t *testing.T) {
	raw := types.NewAmount(10_000)
	full := EffectiveStake(raw, 10_000) // trust 1.0
	half := EffectiveStake(raw, 5_000)  // trust 0.5

	if full.Cmp(half) <= 0 {
		t.Fatal("higher trust should yield higher effective stake")
	}
}
