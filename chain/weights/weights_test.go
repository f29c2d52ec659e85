package weights

import (
	"testing"

	"synapsechain/chain/types"
)

func addr(b byte) types.Address {
	var a types.Address
	a[19] = b
	return a
}

func equalWeights(v types.Address) *types.Amount {
	return types.NewAmount(100)
}

func TestCommitThenRevealRoundTrip(t *testing.T) {
	c := New(equalWeights)
	c.StartEpoch(0, 0)

	v := addr(1)
	vector := map[types.Address]uint64{addr(10): 8000}
	var salt [32]byte
	salt[0] = 7

	if err := c.Commit(v, 0, CommitHash(vector, salt)); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := c.AdvanceToRevealing(); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if err := c.Reveal(v, CommitBlocks, vector, salt); err != nil {
		t.Fatalf("reveal: %v", err)
	}
}

func TestRevealRejectsMismatchedSalt(t *testing.T) {
	c := New(equalWeights)
	c.StartEpoch(0, 0)

	v := addr(1)
	vector := map[types.Address]uint64{addr(10): 8000}
	var salt, wrongSalt [32]byte
	salt[0], wrongSalt[0] = 1, 2

	c.Commit(v, 0, CommitHash(vector, salt))
	c.AdvanceToRevealing()

	if err := c.Reveal(v, CommitBlocks, vector, wrongSalt); err != ErrRevealMismatch {
		t.Fatalf("expected ErrRevealMismatch, got %v", err)
	}
}

func TestDuplicateCommitRejected(t *testing.T) {
	c := New(equalWeights)
	c.StartEpoch(0, 0)

	v := addr(1)
	var salt [32]byte
	h := CommitHash(map[types.Address]uint64{addr(10): 1}, salt)

	if err := c.Commit(v, 0, h); err != nil {
		t.Fatalf("first commit: %v", err)
	}
	if err := c.Commit(v, 1, h); err != ErrDuplicateCommit {
		t.Fatalf("expected ErrDuplicateCommit, got %v", err)
	}
}

func TestCommitOutsideWindowRejected(t *testing.T) {
	c := New(equalWeights)
	c.StartEpoch(0, 0)

	if err := c.Commit(addr(1), CommitBlocks, types.Hash{}); err != ErrWindowExpired {
		t.Fatalf("expected ErrWindowExpired, got %v", err)
	}
}

// Two validators with stake 100 and 400 (effective weight ratio ~1:2)
// agree on the same score; the canonical aggregate must equal that score
// and the weight ratio, not the raw-stake ratio, must drive downstream
// reward split.
func TestAgreeingValidatorsYieldIdenticalScore(t *testing.T) {
	weightOf := func(v types.Address) *types.Amount {
		if v == addr(1) {
			return types.NewAmount(100)
		}
		return types.NewAmount(200) // stands in for log_stake(400) ~ 2x log_stake(100)
	}
	c := New(weightOf)
	c.StartEpoch(0, 0)

	miner := addr(10)
	vector := map[types.Address]uint64{miner: 8000}
	var saltA, saltB [32]byte
	saltA[0], saltB[0] = 1, 2

	c.Commit(addr(1), 0, CommitHash(vector, saltA))
	c.Commit(addr(2), 0, CommitHash(vector, saltB))
	c.AdvanceToRevealing()
	c.Reveal(addr(1), CommitBlocks, vector, saltA)
	c.Reveal(addr(2), CommitBlocks, vector, saltB)

	result, err := c.Aggregate()
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if len(result.Miners) != 1 || result.Miners[0].Canonical != 8000 {
		t.Fatalf("unexpected aggregate: %+v", result.Miners)
	}
	if result.QualityBps != 14_000 {
		t.Fatalf("expected perfect-agreement quality 14000 bps, got %d", result.QualityBps)
	}
}

// Three validators reveal for one miner; one is a clear outlier. The
// outlier is replaced by the weighted median of the survivors rather than
// dropped, and the final canonical score is the weighted median of the
// cleaned set.
func TestOutlierReplacedNotDropped(t *testing.T) {
	weightOf := func(v types.Address) *types.Amount { return types.NewAmount(100) }
	c := New(weightOf)
	c.StartEpoch(0, 0)

	miner := addr(10)
	vA := map[types.Address]uint64{miner: 8000}
	vB := map[types.Address]uint64{miner: 8200}
	vC := map[types.Address]uint64{miner: 100}
	var saltA, saltB, saltC [32]byte
	saltA[0], saltB[0], saltC[0] = 1, 2, 3

	c.Commit(addr(1), 0, CommitHash(vA, saltA))
	c.Commit(addr(2), 0, CommitHash(vB, saltB))
	c.Commit(addr(3), 0, CommitHash(vC, saltC))
	c.AdvanceToRevealing()
	c.Reveal(addr(1), CommitBlocks, vA, saltA)
	c.Reveal(addr(2), CommitBlocks, vB, saltB)
	c.Reveal(addr(3), CommitBlocks, vC, saltC)

	result, err := c.Aggregate()
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if len(result.Miners) != 1 {
		t.Fatalf("expected one miner result, got %d", len(result.Miners))
	}
	if result.Miners[0].Canonical != 8100 {
		t.Fatalf("canonical = %d, want 8100", result.Miners[0].Canonical)
	}
}

func TestNonRevealersFlagged(t *testing.T) {
	c := New(equalWeights)
	c.StartEpoch(0, 0)

	miner := addr(10)
	vector := map[types.Address]uint64{miner: 5000}
	var salt [32]byte

	c.Commit(addr(1), 0, CommitHash(vector, salt))
	c.Commit(addr(2), 0, CommitHash(vector, salt))
	c.AdvanceToRevealing()
	c.Reveal(addr(1), CommitBlocks, vector, salt)

	nonRevealers := c.NonRevealers()
	if len(nonRevealers) != 1 || nonRevealers[0] != addr(2) {
		t.Fatalf("expected addr(2) flagged as non-revealer, got %v", nonRevealers)
	}
}

func TestTrustNextClampsToRange(t *testing.T) {
	if got := TrustNext(TrustCeilBps, 0); got > TrustCeilBps {
		t.Fatalf("trust_next = %d, want <= %d", got, TrustCeilBps)
	}
	if got := TrustNext(TrustFloorBps, DMax); got < TrustFloorBps {
		t.Fatalf("trust_next = %d, want >= %d", got, TrustFloorBps)
	}
}

func TestTrustDecayAbsentMultipliesByPoint95(t *testing.T) {
	got := TrustDecayAbsent(10_000)
	if got < 9_490 || got > 9_510 {
		t.Fatalf("decayed trust = %d, want ~9500", got)
	}
}
