package emission

import "testing"

func TestBaseRewardHalves(t *testing.T) {
	h := DefaultHalving()

	if got := h.BaseReward(0); got != h.InitialBlockReward {
		t.Fatalf("era 0 reward = %d, want %d", got, h.InitialBlockReward)
	}
	if got := h.BaseReward(h.Interval); got != h.InitialBlockReward/2 {
		t.Fatalf("era 1 reward = %d, want %d", got, h.InitialBlockReward/2)
	}
	if got := h.BaseReward(2 * h.Interval); got != h.InitialBlockReward/4 {
		t.Fatalf("era 2 reward = %d, want %d", got, h.InitialBlockReward/4)
	}
}

func TestBaseRewardTailIsPerpetualNeverZero(t *testing.T) {
	h := DefaultHalving()

	// Property 5: for every height >= MAX_HALVINGS * Interval,
	// base_reward == MIN_TAIL_REWARD, never zero.
	heights := []uint64{
		h.MaxHalvings * h.Interval,
		(h.MaxHalvings + 1) * h.Interval,
		(h.MaxHalvings + 50) * h.Interval,
	}
	for _, height := range heights {
		if got := h.BaseReward(height); got != h.MinTailReward {
			t.Errorf("BaseReward(%d) = %d, want tail %d", height, got, h.MinTailReward)
		}
		if got := h.BaseReward(height); got == 0 {
			t.Errorf("BaseReward(%d) returned zero; tail emission must never be zero", height)
		}
	}
}

func TestBaseRewardDeterministicAcrossCalls(t *testing.T) {
	h := DefaultHalving()
	for _, height := range []uint64{0, 1, h.Interval - 1, h.Interval, 10 * h.Interval} {
		a := h.BaseReward(height)
		b := h.BaseReward(height)
		if a != b {
			t.Fatalf("BaseReward(%d) not deterministic: %d vs %d", height, a, b)
		}
	}
}
