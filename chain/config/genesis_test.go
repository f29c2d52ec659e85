package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func writeGenesis(t *testing.T, g GenesisConfig) string {
	t.Helper()
	data, err := json.Marshal(g)
	if err != nil {
		t.Fatalf("marshal genesis: %v", err)
	}
	path := filepath.Join(t.TempDir(), "genesis.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write genesis: %v", err)
	}
	return path
}

func validGenesis() GenesisConfig {
	return GenesisConfig{
		ChainID:   1,
		TotalCap:  "21000000",
		Preminted: "11550000",
		Alloc: map[string]string{
			"0x0000000000000000000000000000000000000001": "1000000",
		},
		Validators: []GenesisValidator{
			{Address: "0x0000000000000000000000000000000000000002", Stake: "100"},
		},
		DAOTreasury: "0x0000000000000000000000000000000000000099",
	}
}

func TestLoadGenesisConfigAppliesDefaultConstants(t *testing.T) {
	path := writeGenesis(t, validGenesis())
	g, err := LoadGenesisConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if g.Constants != DefaultConstants() {
		t.Fatalf("expected default constants table when genesis omits one, got %+v", g.Constants)
	}
}

func TestLoadGenesisConfigRejectsPremintedOverCap(t *testing.T) {
	bad := validGenesis()
	bad.Preminted = "30000000"
	path := writeGenesis(t, bad)
	if _, err := LoadGenesisConfig(path); err == nil {
		t.Fatalf("expected error when preminted exceeds totalCap")
	}
}

func TestLoadGenesisConfigRejectsMalformedAddress(t *testing.T) {
	bad := validGenesis()
	bad.Alloc["not-an-address"] = "1"
	path := writeGenesis(t, bad)
	if _, err := LoadGenesisConfig(path); err == nil {
		t.Fatalf("expected error for malformed alloc address")
	}
}

func TestResolveAllocAndValidatorsSortedByAddress(t *testing.T) {
	g := validGenesis()
	g.Alloc = map[string]string{
		"0x0000000000000000000000000000000000000005": "1",
		"0x0000000000000000000000000000000000000001": "2",
	}
	g.Validators = append(g.Validators,
		GenesisValidator{Address: "0x0000000000000000000000000000000000000007", Stake: "100"},
		GenesisValidator{Address: "0x0000000000000000000000000000000000000003", Stake: "100"},
	)
	path := writeGenesis(t, g)
	loaded, err := LoadGenesisConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	alloc, err := loaded.ResolveAlloc()
	if err != nil {
		t.Fatalf("resolve alloc: %v", err)
	}
	if len(alloc) != 2 || !alloc[0].Address.Less(alloc[1].Address) {
		t.Fatalf("expected alloc sorted by address, got %+v", alloc)
	}
	validators, err := loaded.ResolveValidators()
	if err != nil {
		t.Fatalf("resolve validators: %v", err)
	}
	if len(validators) != 3 || !validators[0].Address.Less(validators[1].Address) || !validators[1].Address.Less(validators[2].Address) {
		t.Fatalf("expected validators sorted by address, got %+v", validators)
	}
}

func TestParamStoreStageDoesNotTakeEffectBeforeTimelock(t *testing.T) {
	store := NewParamStore(DefaultConstants())
	change, err := store.Stage("QuotaThresholdBps", 2_000, 100)
	if err != nil {
		t.Fatalf("stage: %v", err)
	}
	if applied := store.ApplyDue(change.EffectiveAt - 1); len(applied) != 0 {
		t.Fatalf("expected no changes applied before the timelock elapses")
	}
	if got := store.Current().QuotaThresholdBps; got != DefaultConstants().QuotaThresholdBps {
		t.Fatalf("constant changed before timelock: %d", got)
	}
}

func TestParamStoreAppliesOnceTimelockElapses(t *testing.T) {
	store := NewParamStore(DefaultConstants())
	change, err := store.Stage("QuotaThresholdBps", 2_000, 100)
	if err != nil {
		t.Fatalf("stage: %v", err)
	}
	if change.EffectiveAt != 100+TimelockEpochs {
		t.Fatalf("effective epoch = %d, want %d", change.EffectiveAt, 100+TimelockEpochs)
	}

	applied := store.ApplyDue(change.EffectiveAt)
	if len(applied) != 1 || applied[0].ID != change.ID {
		t.Fatalf("expected the staged change applied exactly once, got %+v", applied)
	}
	if got := store.Current().QuotaThresholdBps; got != 2_000 {
		t.Fatalf("QuotaThresholdBps = %d, want 2000", got)
	}
	if len(store.Pending()) != 0 {
		t.Fatalf("expected no pending changes after applying")
	}

	// Re-applying at a later epoch must not double-apply.
	if applied := store.ApplyDue(change.EffectiveAt + 1); len(applied) != 0 {
		t.Fatalf("expected already-applied change not reapplied, got %+v", applied)
	}
}

func TestParamStoreRejectsUnknownField(t *testing.T) {
	store := NewParamStore(DefaultConstants())
	if _, err := store.Stage("NotARealConstant", 1, 0); err == nil {
		t.Fatalf("expected error staging an unknown field")
	}
}
