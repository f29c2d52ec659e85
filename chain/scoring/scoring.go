// Package scoring implements the Scoring Ledger: per-epoch
// per-miner task and quality counters that feed both the utility score
// (chain/emission) and the miner reward pool (chain/rewards).
package scoring

import (
	"sort"
	"sync"

	"synapsechain/chain/types"
)

// Stats are the per-(epoch, miner) counters. All fields are monotonic
// within an epoch and reset atomically at the epoch boundary.
type Stats struct {
	TasksCompleted    uint64
	GPUTasksCompleted uint64
	CumulativeQuality uint64
}

// Ledger holds the current epoch's per-miner stats.
type Ledger struct {
	mu    sync.Mutex
	epoch uint64
	stats map[types.Address]*Stats
}

// New creates an empty scoring ledger.
func New() *Ledger {
	return &Ledger{stats: make(map[types.Address]*Stats)}
}

// RecordTask increments a miner's task counters. gpuTask marks whether
// this particular task ran on GPU hardware. gpu_tasks_completed <=
// tasks_completed is enforced here: GPU tasks are always also counted as
// tasks, so the invariant can never be violated by construction.
func (l *Ledger) RecordTask(miner types.Address, gpuTask bool, qualityDelta uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := l.stats[miner]
	if s == nil {
		s = &Stats{}
		l.stats[miner] = s
	}
	s.TasksCompleted++
	if gpuTask {
		s.GPUTasksCompleted++
	}
	s.CumulativeQuality += qualityDelta

	if s.GPUTasksCompleted > s.TasksCompleted {
		types.PanicIntegrity("scoring", "gpu_tasks_completed exceeds tasks_completed")
	}
}

// Get returns a copy of a miner's current-epoch stats, or the zero value
// if the miner has no recorded activity this epoch.
func (l *Ledger) Get(miner types.Address) Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	if s := l.stats[miner]; s != nil {
		return *s
	}
	return Stats{}
}

// CPUTasks returns tasks_completed - gpu_tasks_completed using saturating
// subtraction.
func (s Stats) CPUTasks() uint64 {
	if s.GPUTasksCompleted >= s.TasksCompleted {
		return 0
	}
	return s.TasksCompleted - s.GPUTasksCompleted
}

// GPUFractionBps returns gpu_tasks_completed / tasks_completed as a basis-
// point ratio, used by chain/rewards for the miner GPU bonus.
func (s Stats) GPUFractionBps() uint64 {
	if s.TasksCompleted == 0 {
		return 0
	}
	return s.GPUTasksCompleted * 10_000 / s.TasksCompleted
}

// Miners returns every miner address with recorded activity this epoch,
// sorted ascending -- every consensus-path iteration over miners must use
// this order, never raw map iteration.
func (l *Ledger) Miners() []types.Address {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]types.Address, 0, len(l.stats))
	for addr := range l.stats {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// TotalTasks sums tasks_completed across all miners, used by the utility
// score's task_volume_norm term.
func (l *Ledger) TotalTasks() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	var total uint64
	for _, s := range l.stats {
		total += s.TasksCompleted
	}
	return total
}

// ResetEpochStats clears every miner's counters atomically and advances
// the ledger's epoch counter.
func (l *Ledger) ResetEpochStats(epoch uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.epoch = epoch
	l.stats = make(map[types.Address]*Stats)
}

// Epoch returns the epoch this ledger's stats currently belong to.
func (l *Ledger) Epoch() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.epoch
}
