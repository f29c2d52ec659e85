// Package weights implements the commit-reveal weight consensus: a
// two-phase, stake-weighted aggregation of validators' per-miner score
// vectors. It protects against validators copying each other's weights,
// late binding to the consensus outcome, and a single validator
// dominating the result by stake.
package weights

import (
	"bytes"
	"errors"
	"math/big"
	"sort"

	"synapsechain/chain/emission"
	"synapsechain/chain/types"
)

var (
	ErrWindowExpired     = errors.New("outside the commit or reveal window")
	ErrDuplicateCommit   = errors.New("validator already committed this epoch")
	ErrDuplicateReveal   = errors.New("validator already revealed this epoch")
	ErrNoCommit          = errors.New("no commit on file for this validator and epoch")
	ErrRevealMismatch    = errors.New("revealed vector does not hash to the committed value")
	ErrWrongPhase        = errors.New("operation not valid in the current phase")
)

// Phase is the per-epoch state machine driving commit-reveal.
type Phase uint8

const (
	PhaseIdle Phase = iota
	PhaseCommitting
	PhaseRevealing
	PhaseAggregating
	PhaseFinalized
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "Idle"
	case PhaseCommitting:
		return "Committing"
	case PhaseRevealing:
		return "Revealing"
	case PhaseAggregating:
		return "Aggregating"
	case PhaseFinalized:
		return "Finalized"
	default:
		return "Unknown"
	}
}

// Window lengths, in blocks -- transitions are strictly on block-height
// boundaries, never wall-clock.
const (
	CommitBlocks uint64 = 16
	RevealBlocks uint64 = 16

	// OutlierSigmaBps is the leave-one-out threshold in basis points of one
	// weighted standard deviation: 25_000 bps == 2.5 sigma.
	OutlierSigmaBps uint64 = 25_000
)

// QualityKBps is the fixed slope in the quality-multiplier formula, in
// basis points; it is not a field of chain/config.ConstantsTable, so
// chain/config.ParamStore cannot stage a change to it.
// Q_bps = QBpsCeil - QualityKBps*mean_avg_dev_bps/10_000, so mean deviation
// 0 yields the ceiling and mean deviation DMax yields the floor.
const QualityKBps uint64 = 8_000

// DMax bounds avg_d_i in the trust-update formula (score_bps has range
// [0, 10_000], so the maximum possible average deviation is 10_000).
const DMax uint64 = 10_000

// Trust score bounds, in basis points (10_000 == 1.0).
const (
	TrustFloorBps uint64 = 1_000
	TrustCeilBps  uint64 = 15_000
)

// commit is a validator's committed hash for one epoch.
type commit struct {
	hash types.Hash
}

// Consensus drives the commit-reveal state machine for a single epoch at
// a time; the orchestrator calls StartEpoch at every epoch boundary.
type Consensus struct {
	epoch       uint64
	phase       Phase
	commitEnd   uint64 // block height committing ends at (exclusive)
	revealEnd   uint64 // block height revealing ends at (exclusive)

	commits map[types.Address]commit
	reveals map[types.Address]map[types.Address]uint64 // validator -> miner -> score_bps

	// WeightOf resolves a validator's current aggregation weight
	// (log_stake * trust_score, in basis points-scaled integer units);
	// supplied by the caller so this package never imports
	// chain/validatorset directly.
	WeightOf func(validator types.Address) *types.Amount
}

// New creates a consensus engine in the Idle phase.
func New(weightOf func(types.Address) *types.Amount) *Consensus {
	return &Consensus{phase: PhaseIdle, WeightOf: weightOf}
}

// StartEpoch transitions Idle -> Committing and latches the commit/reveal
// window boundaries relative to h0, the epoch's first block height.
func (c *Consensus) StartEpoch(epoch, h0 uint64) {
	c.epoch = epoch
	c.phase = PhaseCommitting
	c.commitEnd = h0 + CommitBlocks
	c.revealEnd = c.commitEnd + RevealBlocks
	c.commits = make(map[types.Address]commit)
	c.reveals = make(map[types.Address]map[types.Address]uint64)
}

// AdvanceToRevealing transitions Committing -> Revealing at h1.
func (c *Consensus) AdvanceToRevealing() error {
	if c.phase != PhaseCommitting {
		return ErrWrongPhase
	}
	c.phase = PhaseRevealing
	return nil
}

// Phase returns the current phase.
func (c *Consensus) Phase() Phase { return c.phase }

// Commit records a validator's commit hash, rejecting submissions outside
// the commit window or duplicate submissions from the same validator.
func (c *Consensus) Commit(validator types.Address, blockHeight uint64, hash types.Hash) error {
	if c.phase != PhaseCommitting || blockHeight >= c.commitEnd {
		return ErrWindowExpired
	}
	if _, exists := c.commits[validator]; exists {
		return ErrDuplicateCommit
	}
	c.commits[validator] = commit{hash: hash}
	return nil
}

// CommitHash computes keccak256(encode(vector) || salt), the canonical
// commit hash for a (vector, salt) pair.
func CommitHash(vector map[types.Address]uint64, salt [32]byte) types.Hash {
	return types.Keccak256Hash(encodeVector(vector), salt[:])
}

// encodeVector canonically serializes a score vector sorted by miner
// address, so two validators committing the same logical vector always
// hash to the same value regardless of map iteration order.
func encodeVector(vector map[types.Address]uint64) []byte {
	miners := make([]types.Address, 0, len(vector))
	for m := range vector {
		miners = append(miners, m)
	}
	sort.Slice(miners, func(i, j int) bool { return miners[i].Less(miners[j]) })

	var buf bytes.Buffer
	for _, m := range miners {
		buf.Write(m.Bytes())
		buf.Write(types.Uint64ToBytes(vector[m]))
	}
	return buf.Bytes()
}

// Reveal verifies and records a validator's (vector, salt), rejecting
// submissions outside the reveal window, with no matching commit, or
// whose hash does not match the earlier commit.
func (c *Consensus) Reveal(validator types.Address, blockHeight uint64, vector map[types.Address]uint64, salt [32]byte) error {
	if c.phase != PhaseRevealing || blockHeight >= c.revealEnd {
		return ErrWindowExpired
	}
	cm, ok := c.commits[validator]
	if !ok {
		return ErrNoCommit
	}
	if _, exists := c.reveals[validator]; exists {
		return ErrDuplicateReveal
	}
	if CommitHash(vector, salt) != cm.hash {
		return ErrRevealMismatch
	}
	c.reveals[validator] = vector
	return nil
}

// NonRevealers returns every validator that committed but never revealed
// this epoch, sorted ascending -- these are reported to chain/slashing
// with offense MissedReveal.
func (c *Consensus) NonRevealers() []types.Address {
	out := make([]types.Address, 0)
	for v := range c.commits {
		if _, revealed := c.reveals[v]; !revealed {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// MinerResult is the aggregation outcome for a single miner.
type MinerResult struct {
	Miner     types.Address
	Canonical uint64 // score_bps, the canonical weighted-median score
}

// ValidatorDeviation is a validator's average absolute deviation from the
// canonical score across every miner it reveals for (in score_bps units),
// used both for the quality multiplier and the next epoch's trust update.
type ValidatorDeviation struct {
	Validator types.Address
	AvgDev    uint64
	NumMiners int
}

// AggregateResult is the full output of one epoch's aggregation pass.
type AggregateResult struct {
	Miners     []MinerResult
	Deviations []ValidatorDeviation
	QualityBps uint64 // Q scaled to basis points, 10_000 == 1.0
}

type weightedScore struct {
	validator types.Address
	score     uint64
	weight    *types.Amount
}

// Aggregate runs the full outlier-removal + weighted-median pipeline over
// every miner that appears in any accepted reveal, and derives the
// epoch's quality multiplier from the resulting per-validator deviations.
// It transitions Revealing -> Aggregating -> Finalized.
func (c *Consensus) Aggregate() (AggregateResult, error) {
	if c.phase != PhaseRevealing {
		return AggregateResult{}, ErrWrongPhase
	}
	c.phase = PhaseAggregating

	byMiner := make(map[types.Address][]weightedScore)
	validators := make([]types.Address, 0, len(c.reveals))
	for v := range c.reveals {
		validators = append(validators, v)
	}
	sort.Slice(validators, func(i, j int) bool { return validators[i].Less(validators[j]) })

	for _, v := range validators {
		weight := c.WeightOf(v)
		for miner, score := range c.reveals[v] {
			byMiner[miner] = append(byMiner[miner], weightedScore{validator: v, score: score, weight: weight})
		}
	}

	miners := make([]types.Address, 0, len(byMiner))
	for m := range byMiner {
		miners = append(miners, m)
	}
	sort.Slice(miners, func(i, j int) bool { return miners[i].Less(miners[j]) })

	results := make([]MinerResult, 0, len(miners))
	devSum := make(map[types.Address]uint64)
	devCount := make(map[types.Address]int)

	for _, m := range miners {
		entries := byMiner[m]
		sort.Slice(entries, func(i, j int) bool { return entries[i].validator.Less(entries[j].validator) })

		cleaned := removeOutliers(entries)
		canonical := weightedMedian(cleaned)
		results = append(results, MinerResult{Miner: m, Canonical: canonical})

		for _, e := range entries {
			d := absDiff(e.score, canonical)
			devSum[e.validator] += d
			devCount[e.validator]++
		}
	}

	validatorsWithDev := make([]types.Address, 0, len(devSum))
	for v := range devSum {
		validatorsWithDev = append(validatorsWithDev, v)
	}
	sort.Slice(validatorsWithDev, func(i, j int) bool { return validatorsWithDev[i].Less(validatorsWithDev[j]) })

	deviations := make([]ValidatorDeviation, 0, len(validatorsWithDev))
	var devTotal uint64
	for _, v := range validatorsWithDev {
		avg := devSum[v] / uint64(devCount[v])
		deviations = append(deviations, ValidatorDeviation{Validator: v, AvgDev: avg, NumMiners: devCount[v]})
		devTotal += avg
	}
	var meanAvgDev uint64
	if len(deviations) > 0 {
		meanAvgDev = devTotal / uint64(len(deviations))
	}

	qBps := int64(emission.QBpsCeil) - int64(QualityKBps*meanAvgDev/DMax)

	c.phase = PhaseFinalized
	return AggregateResult{
		Miners:     results,
		Deviations: deviations,
		QualityBps: emission.ClampQualityBps(qBps),
	}, nil
}

func absDiff(score, canonical uint64) uint64 {
	if score >= canonical {
		return score - canonical
	}
	return canonical - score
}

// removeOutliers tests each entry against the weighted mean and weighted
// standard deviation of the *other* entries, rather than of the full set:
// a one-sided outlier otherwise inflates its own mean/stddev estimate
// enough to mask its own detection once three or more reveals are
// present. Any entry more than 2.5 (leave-one-out) weighted standard
// deviations from that mean is replaced by the weighted median of the
// surviving set, not dropped, keeping the weight budget constant.
func removeOutliers(entries []weightedScore) []weightedScore {
	if len(entries) <= 2 {
		return entries
	}

	outlierIdx := make([]int, 0)
	for i := range entries {
		rest := make([]weightedScore, 0, len(entries)-1)
		for j, e := range entries {
			if j != i {
				rest = append(rest, e)
			}
		}
		mean, stddev := weightedMeanStddev(rest)
		if stddev == 0 {
			continue
		}
		if absDiff(entries[i].score, mean)*10_000 > OutlierSigmaBps*stddev {
			outlierIdx = append(outlierIdx, i)
		}
	}

	if len(outlierIdx) == 0 {
		return entries
	}
	survivors := make([]weightedScore, 0, len(entries)-len(outlierIdx))
	outlierSet := make(map[int]bool, len(outlierIdx))
	for _, idx := range outlierIdx {
		outlierSet[idx] = true
	}
	for i, e := range entries {
		if !outlierSet[i] {
			survivors = append(survivors, e)
		}
	}
	if len(survivors) == 0 {
		return entries
	}

	replacement := weightedMedian(survivors)
	cleaned := make([]weightedScore, len(entries))
	copy(cleaned, entries)
	for idx := range outlierSet {
		cleaned[idx].score = replacement
	}
	return cleaned
}

// weightedMeanStddev computes the weight-weighted mean and population
// standard deviation of entries' scores, entirely over big.Int so the
// result is identical on every platform. It follows the same
// big.Int.Sqrt idiom chain/stake.LogStake uses for its integer square
// root, rather than reaching for an external bignum library.
func weightedMeanStddev(entries []weightedScore) (mean, stddev uint64) {
	totalWeight := new(big.Int)
	weightedSum := new(big.Int)
	for _, e := range entries {
		w := e.weight.ToBig()
		weightedSum.Add(weightedSum, new(big.Int).Mul(big.NewInt(int64(e.score)), w))
		totalWeight.Add(totalWeight, w)
	}
	if totalWeight.Sign() == 0 {
		return 0, 0
	}
	meanBig := new(big.Int).Div(weightedSum, totalWeight)
	mean = meanBig.Uint64()

	variance := new(big.Int)
	for _, e := range entries {
		w := e.weight.ToBig()
		diff := new(big.Int).Sub(big.NewInt(int64(e.score)), meanBig)
		sq := new(big.Int).Mul(diff, diff)
		variance.Add(variance, new(big.Int).Mul(sq, w))
	}
	variance.Div(variance, totalWeight)
	stddev = new(big.Int).Sqrt(variance).Uint64()
	return mean, stddev
}

// weightedMedian returns the smallest score x such that the cumulative
// weight of entries with score <= x reaches at least half the total
// weight, breaking ties toward the smaller score.
func weightedMedian(entries []weightedScore) uint64 {
	if len(entries) == 0 {
		return 0
	}
	sorted := make([]weightedScore, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].score != sorted[j].score {
			return sorted[i].score < sorted[j].score
		}
		return sorted[i].validator.Less(sorted[j].validator)
	})

	total := new(big.Int)
	for _, e := range sorted {
		total.Add(total, e.weight.ToBig())
	}

	cum := new(big.Int)
	for _, e := range sorted {
		cum.Add(cum, e.weight.ToBig())
		if new(big.Int).Mul(cum, big.NewInt(2)).Cmp(total) >= 0 {
			return e.score
		}
	}
	return sorted[len(sorted)-1].score
}

// TrustNext computes next epoch's trust score, in basis points, from the
// previous one and this epoch's average deviation (also in basis points):
// 0.9 * prev + 0.1 * (1 - avgDev/DMax), clamped to [TrustFloorBps,
// TrustCeilBps].
func TrustNext(prevTrustBps, avgDevBps uint64) uint64 {
	if avgDevBps > DMax {
		avgDevBps = DMax
	}
	term1 := prevTrustBps * 9 / 10
	term2 := (DMax - avgDevBps) * 1_000 / DMax
	next := term1 + term2
	if next < TrustFloorBps {
		return TrustFloorBps
	}
	if next > TrustCeilBps {
		return TrustCeilBps
	}
	return next
}

// TrustDecayAbsent is applied to a validator present in the set but with
// zero reveals this epoch: trust is multiplied by 0.95.
func TrustDecayAbsent(prevTrustBps uint64) uint64 {
	next := prevTrustBps * 95 / 100
	if next < TrustFloorBps {
		return TrustFloorBps
	}
	return next
}
