// Package config implements genesis loading and the on-chain governance
// timelock over the tunable constants chain/emission, chain/stake,
// chain/validatorset, chain/weights and chain/rewards otherwise hardcode
// as defaults. Every field of ConstantsTable can be staged here for
// replacement, but a staged change only reaches the table ParamStore.Current
// returns once the network has advanced TimelockEpochs past the epoch it
// was staged in -- nothing mutates early, no matter how the proposal is
// submitted. The owning packages keep reading their own exported
// constants; ParamStore does not rewrite them.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"synapsechain/chain/types"
)

// GenesisConfig is the on-disk genesis description: the supply ledger's
// starting point, the constants table, and the initial validator set.
type GenesisConfig struct {
	ChainID     uint64             `json:"chainId"`
	TotalCap    string             `json:"totalCap"`
	Preminted   string             `json:"preminted"`
	Constants   ConstantsTable     `json:"constants"`
	Alloc       map[string]string  `json:"alloc"` // address (hex) -> balance
	Validators  []GenesisValidator `json:"validators"`
	DAOTreasury string             `json:"daoTreasury"`
}

// ConstantsTable holds every governance-tunable constant. Field names
// match ParamStore's Stage argument; a genesis file may override any
// subset without needing to know the rest.
type ConstantsTable struct {
	EpochBlocks           uint64 `json:"epochBlocks"`
	HalvingInterval       uint64 `json:"halvingInterval"`
	InitialBlockRewardWei uint64 `json:"initialBlockRewardWei"`
	MaxHalvings           uint64 `json:"maxHalvings"`
	MinTailRewardWei      uint64 `json:"minTailRewardWei"`
	ValidatorMinStake     uint64 `json:"validatorMinStake"`
	MaxActiveValidators   uint64 `json:"maxActiveValidators"`
	CommitBlocks          uint64 `json:"commitBlocks"`
	RevealBlocks          uint64 `json:"revealBlocks"`
	QuotaThresholdBps     uint64 `json:"quotaThresholdBps"`
	UnbondingEpochs       uint64 `json:"unbondingEpochs"`
	OutlierSigmaBps       uint64 `json:"outlierSigmaBps"`
	GPUBonusBps           uint64 `json:"gpuBonusBps"`
}

// DefaultConstants mirrors the defaults each owning package already
// hardcodes. A genesis file that omits Constants entirely gets exactly
// this table; ParamStore only ever replaces fields out of this baseline.
func DefaultConstants() ConstantsTable {
	return ConstantsTable{
		EpochBlocks:           32,
		HalvingInterval:       2_190_000,
		InitialBlockRewardWei: 240_000_000_000_000_000,
		MaxHalvings:           10,
		MinTailRewardWei:      1_000_000_000_000_000,
		ValidatorMinStake:     100,
		MaxActiveValidators:   1_000,
		CommitBlocks:          16,
		RevealBlocks:          16,
		QuotaThresholdBps:     1_000,
		UnbondingEpochs:       540,
		OutlierSigmaBps:       25_000,
		GPUBonusBps:           500,
	}
}

// GenesisValidator seeds the initial active set.
type GenesisValidator struct {
	Address string `json:"address"`
	Stake   string `json:"stake"`
}

// LoadGenesisConfig reads and validates a genesis file from path.
func LoadGenesisConfig(path string) (*GenesisConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis config: %w", err)
	}
	g := GenesisConfig{Constants: DefaultConstants()}
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parse genesis config: %w", err)
	}
	if g.Constants == (ConstantsTable{}) {
		g.Constants = DefaultConstants()
	}
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("invalid genesis config: %w", err)
	}
	return &g, nil
}

// Validate checks the genesis file is well-formed enough to boot from.
func (g *GenesisConfig) Validate() error {
	if g.ChainID == 0 {
		return fmt.Errorf("chainId must be nonzero")
	}
	totalCap, err := types.ParseAmount(g.TotalCap)
	if err != nil {
		return fmt.Errorf("invalid totalCap: %w", err)
	}
	preminted, err := types.ParseAmount(g.Preminted)
	if err != nil {
		return fmt.Errorf("invalid preminted: %w", err)
	}
	if preminted.Cmp(totalCap) > 0 {
		return fmt.Errorf("preminted %s exceeds totalCap %s", preminted, totalCap)
	}
	for addrStr, balance := range g.Alloc {
		if _, err := types.HexToAddress(addrStr); err != nil {
			return fmt.Errorf("invalid alloc address %q: %w", addrStr, err)
		}
		if _, err := types.ParseAmount(balance); err != nil {
			return fmt.Errorf("invalid alloc balance for %s: %w", addrStr, err)
		}
	}
	for i, v := range g.Validators {
		if _, err := types.HexToAddress(v.Address); err != nil {
			return fmt.Errorf("invalid validator address at index %d: %w", i, err)
		}
		if _, err := types.ParseAmount(v.Stake); err != nil {
			return fmt.Errorf("invalid validator stake at index %d: %w", i, err)
		}
	}
	return nil
}

// TotalCapAmount and PremintedAmount convert the string-encoded genesis
// fields; callers must have already run Validate successfully.
func (g *GenesisConfig) TotalCapAmount() *types.Amount {
	a, _ := types.ParseAmount(g.TotalCap)
	return a
}

func (g *GenesisConfig) PremintedAmount() *types.Amount {
	a, _ := types.ParseAmount(g.Preminted)
	return a
}

// DAOTreasuryAddress parses the configured DAO treasury recipient.
func (g *GenesisConfig) DAOTreasuryAddress() (types.Address, error) {
	return types.HexToAddress(g.DAOTreasury)
}

// ResolvedAlloc is one genesis balance credit with parsed types.
type ResolvedAlloc struct {
	Address types.Address
	Balance *types.Amount
}

// ResolveAlloc parses every genesis alloc entry, sorted by address so the
// caller can credit them in a deterministic order.
func (g *GenesisConfig) ResolveAlloc() ([]ResolvedAlloc, error) {
	out := make([]ResolvedAlloc, 0, len(g.Alloc))
	for addrStr, balStr := range g.Alloc {
		addr, err := types.HexToAddress(addrStr)
		if err != nil {
			return nil, err
		}
		bal, err := types.ParseAmount(balStr)
		if err != nil {
			return nil, err
		}
		out = append(out, ResolvedAlloc{Address: addr, Balance: bal})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address.Less(out[j].Address) })
	return out, nil
}

// ResolvedValidator is a genesis validator entry with parsed types.
type ResolvedValidator struct {
	Address types.Address
	Stake   *types.Amount
}

// ResolveValidators parses every genesis validator entry, sorted by
// address for deterministic registration order.
func (g *GenesisConfig) ResolveValidators() ([]ResolvedValidator, error) {
	out := make([]ResolvedValidator, 0, len(g.Validators))
	for _, v := range g.Validators {
		addr, err := types.HexToAddress(v.Address)
		if err != nil {
			return nil, err
		}
		stake, err := types.ParseAmount(v.Stake)
		if err != nil {
			return nil, err
		}
		out = append(out, ResolvedValidator{Address: addr, Stake: stake})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address.Less(out[j].Address) })
	return out, nil
}

// TimelockEpochs is the 48-hour governance timelock expressed in epochs,
// assuming ~12s blocks and EPOCH_BLOCKS=32 (roughly 6m24s/epoch): 48h /
// 6m24s rounds to 450 epochs. A deployment with a different block time
// should override this via its own genesis constants rather than reusing
// the default blindly.
const TimelockEpochs = 450

// ParamChange is one staged governance change to a single named constant,
// keyed by its ConstantsTable JSON field name equivalent (Go field name).
type ParamChange struct {
	ID            uint64
	Field         string
	NewValue      uint64
	StagedAtEpoch uint64
	EffectiveAt   uint64 // StagedAtEpoch + TimelockEpochs
	Applied       bool
}

// ParamStore holds the live constants table plus every staged change,
// applying each one exactly once the network reaches its EffectiveAt
// epoch. It never executes an arbitrary proposal payload; it only ever
// overwrites one named uint64 field, keeping the timelock's blast radius
// to the same constants table every other package already reads.
type ParamStore struct {
	mu      sync.Mutex
	current ConstantsTable
	pending []*ParamChange
	nextID  uint64
}

// NewParamStore seeds a store at the given baseline, normally
// GenesisConfig.Constants.
func NewParamStore(baseline ConstantsTable) *ParamStore {
	return &ParamStore{current: baseline}
}

// Current returns the live constants table, reflecting every change whose
// EffectiveAt epoch has already been reached via ApplyDue.
func (s *ParamStore) Current() ConstantsTable {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Stage schedules field to become newValue TimelockEpochs after
// currentEpoch. It does not mutate Current() until ApplyDue reaches
// EffectiveAt.
func (s *ParamStore) Stage(field string, newValue uint64, currentEpoch uint64) (*ParamChange, error) {
	if !validField(field) {
		return nil, fmt.Errorf("unknown constant field: %q", field)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	change := &ParamChange{
		ID:            s.nextID,
		Field:         field,
		NewValue:      newValue,
		StagedAtEpoch: currentEpoch,
		EffectiveAt:   currentEpoch + TimelockEpochs,
	}
	s.pending = append(s.pending, change)
	return change, nil
}

// ApplyDue applies every staged change whose EffectiveAt epoch has been
// reached, in ascending (EffectiveAt, ID) order, and returns the ones it
// just applied.
func (s *ParamStore) ApplyDue(epoch uint64) []*ParamChange {
	s.mu.Lock()
	defer s.mu.Unlock()

	sort.Slice(s.pending, func(i, j int) bool {
		if s.pending[i].EffectiveAt != s.pending[j].EffectiveAt {
			return s.pending[i].EffectiveAt < s.pending[j].EffectiveAt
		}
		return s.pending[i].ID < s.pending[j].ID
	})

	applied := make([]*ParamChange, 0)
	for _, change := range s.pending {
		if change.Applied || epoch < change.EffectiveAt {
			continue
		}
		setField(&s.current, change.Field, change.NewValue)
		change.Applied = true
		applied = append(applied, change)
	}
	return applied
}

// Pending returns every staged change not yet applied.
func (s *ParamStore) Pending() []*ParamChange {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*ParamChange, 0, len(s.pending))
	for _, c := range s.pending {
		if !c.Applied {
			out = append(out, c)
		}
	}
	return out
}

func validField(field string) bool {
	switch field {
	case "EpochBlocks", "HalvingInterval", "InitialBlockRewardWei", "MaxHalvings",
		"MinTailRewardWei", "ValidatorMinStake", "MaxActiveValidators", "CommitBlocks",
		"RevealBlocks", "QuotaThresholdBps", "UnbondingEpochs", "OutlierSigmaBps", "GPUBonusBps":
		return true
	default:
		return false
	}
}

func setField(table *ConstantsTable, field string, value uint64) {
	switch field {
	case "EpochBlocks":
		table.EpochBlocks = value
	case "HalvingInterval":
		table.HalvingInterval = value
	case "InitialBlockRewardWei":
		table.InitialBlockRewardWei = value
	case "MaxHalvings":
		table.MaxHalvings = value
	case "MinTailRewardWei":
		table.MinTailRewardWei = value
	case "ValidatorMinStake":
		table.ValidatorMinStake = value
	case "MaxActiveValidators":
		table.MaxActiveValidators = value
	case "CommitBlocks":
		table.CommitBlocks = value
	case "RevealBlocks":
		table.RevealBlocks = value
	case "QuotaThresholdBps":
		table.QuotaThresholdBps = value
	case "UnbondingEpochs":
		table.UnbondingEpochs = value
	case "OutlierSigmaBps":
		table.OutlierSigmaBps = value
	case "GPUBonusBps":
		table.GPUBonusBps = value
	}
}
