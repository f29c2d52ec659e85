package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"synapsechain/chain/burn"
	"synapsechain/chain/config"
	"synapsechain/chain/delegation"
	"synapsechain/chain/emission"
	"synapsechain/chain/epoch"
	"synapsechain/chain/monitoring"
	"synapsechain/chain/rewards"
	"synapsechain/chain/scoring"
	"synapsechain/chain/slashing"
	"synapsechain/chain/storage"
	"synapsechain/chain/supply"
	"synapsechain/chain/types"
	"synapsechain/chain/validatorset"
	"synapsechain/chain/weights"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	Commit    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "synapse-node",
	Short: "SynapseChain consensus and tokenomics node",
	Long:  "Drives the commit-reveal weight consensus, emission, slashing and reward distribution core over a block-height stream",
	Run:   runNode,
}

var (
	genesisPath string
	dataDir     string
	metricsAddr string
	blockTime   time.Duration
)

func init() {
	rootCmd.PersistentFlags().StringVar(&genesisPath, "genesis", "./config/genesis.json", "genesis configuration file")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "./data", "state directory")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", ":9090", "prometheus/healthz listen address")
	rootCmd.PersistentFlags().DurationVar(&blockTime, "block-time", 2*time.Second, "simulated block interval driving the epoch orchestrator")

	viper.BindPFlags(rootCmd.PersistentFlags())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func runNode(cmd *cobra.Command, args []string) {
	log.Printf("starting synapsechain node v%s (build %s, commit %s)", Version, BuildTime, Commit)

	genesis, err := config.LoadGenesisConfig(genesisPath)
	if err != nil {
		log.Fatalf("load genesis: %v", err)
	}

	orch, metricsServer, store, validators, burnMgr, supplyLedger, err := buildNode(genesis)
	if err != nil {
		log.Fatalf("build node: %v", err)
	}
	defer store.Close()

	metricsServer.Start()

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go runBlockLoop(ctx, &wg, orch, validators, burnMgr, supplyLedger, metricsServer)

	log.Printf("node running: metrics on %s, data dir %s", metricsAddr, dataDir)

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	<-sigc

	log.Printf("shutting down")
	cancel()
	wg.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Stop(shutdownCtx); err != nil {
		log.Printf("metrics server shutdown: %v", err)
	}
}

func buildNode(genesis *config.GenesisConfig) (*epoch.Orchestrator, *monitoring.Server, *storage.Store, *validatorset.Set, *burn.Manager, *supply.Ledger, error) {
	constants := genesis.Constants

	store, err := storage.Open(dataDir)
	if err != nil {
		return nil, nil, nil, nil, nil, nil, fmt.Errorf("open storage: %w", err)
	}

	supplyLedger := supply.New(genesis.TotalCapAmount(), genesis.PremintedAmount())

	halving := emission.Halving{
		Interval:           constants.HalvingInterval,
		MaxHalvings:        constants.MaxHalvings,
		InitialBlockReward: constants.InitialBlockRewardWei,
		MinTailReward:      constants.MinTailRewardWei,
	}
	controller := emission.NewController(halving, constants.EpochBlocks)

	scoringLedger := scoring.New()
	validators := validatorset.New()

	resolved, err := genesis.ResolveValidators()
	if err != nil {
		store.Close()
		return nil, nil, nil, nil, nil, nil, fmt.Errorf("resolve genesis validators: %w", err)
	}
	for _, v := range resolved {
		if err := validators.Register(v.Address, v.Stake, 0); err != nil {
			store.Close()
			return nil, nil, nil, nil, nil, nil, fmt.Errorf("register genesis validator %s: %w", v.Address.Hex(), err)
		}
	}

	metricsServer := monitoring.New(metricsAddr)
	burnMgr := burn.NewManager(supplyLedger)

	delegations := delegation.New()

	weightOf := func(v types.Address) *types.Amount {
		rec := validators.Get(v)
		if rec == nil {
			return types.ZeroAmount()
		}
		return rec.EffectiveStake
	}
	weightConsensus := weights.New(weightOf)

	slashingMgr := slashing.NewManager(validators, delegations, burnMgr)

	daoTreasury, err := genesis.DAOTreasuryAddress()
	if err != nil {
		store.Close()
		return nil, nil, nil, nil, nil, nil, fmt.Errorf("dao treasury: %w", err)
	}

	infraSource := func(epoch uint64) []rewards.InfraNode {
		out := make([]rewards.InfraNode, 0)
		for _, rec := range validators.Active(epoch) {
			if node, ok := epochpkgClassify(rec.Address, rec.RawStake); ok {
				out = append(out, node)
			}
		}
		return out
	}
	subnetSource := func(epoch uint64) []types.Address { return nil }

	orch := epoch.New(
		supplyLedger, controller, burnMgr, scoringLedger, validators, weightConsensus,
		slashingMgr, delegations, store, constants.EpochBlocks, daoTreasury,
		infraSource, subnetSource,
	)
	return orch, metricsServer, store, validators, burnMgr, supplyLedger, nil
}

func epochpkgClassify(address types.Address, rawStake *types.Amount) (rewards.InfraNode, bool) {
	return epoch.ClassifyInfraNode(address, rawStake)
}

// recordMetrics reports one closed epoch's burns, supply and validator
// set state to the metrics server. burnMgr.Events accumulates across the
// whole process lifetime, so only this epoch's events are summed here.
func recordMetrics(metricsServer *monitoring.Server, burnMgr *burn.Manager, supplyLedger *supply.Ledger, validators *validatorset.Set, result epoch.Result) {
	burnedByReason := make(map[string]*types.Amount)
	for _, e := range burnMgr.Events() {
		if e.Epoch != result.Epoch {
			continue
		}
		reason := e.Reason.String()
		if existing, ok := burnedByReason[reason]; ok {
			burnedByReason[reason] = types.SaturatingAdd(existing, e.Amount)
		} else {
			burnedByReason[reason] = e.Amount
		}
	}

	state := supplyLedger.Snapshot()
	metricsServer.RecordEpochClose(result.Epoch, result.Minted, burnedByReason, state.Circulating(), result.UtilityBps, result.QualityBps, len(result.NonRevealers))

	active := validators.Active(result.Epoch)
	stakes := make(map[types.Address]*types.Amount, len(active))
	trust := make(map[types.Address]float64, len(active))
	jailed := 0
	for _, rec := range active {
		stakes[rec.Address] = rec.EffectiveStake
		trust[rec.Address] = float64(rec.TrustScore) / 10_000
		if rec.JailedUntilEpoch > result.Epoch {
			jailed++
		}
	}
	metricsServer.RecordValidatorSnapshot(len(active), jailed, stakes, trust)
}

// runBlockLoop simulates the block stream the execution layer would
// otherwise supply: a fixed-interval ticker advances the height counter,
// and the orchestrator is driven through StartEpoch / AdvanceToRevealing
// / CloseEpoch exactly at the resulting boundaries. A standalone core has
// no real transaction feed, so every epoch aggregates whatever commits
// and reveals arrived through chain/weights by the time its window
// closes -- production deployments wire real Commit/Reveal/RegisterValidator/
// Delegate transactions in from the execution layer at this same point.
func runBlockLoop(ctx context.Context, wg *sync.WaitGroup, orch *epoch.Orchestrator, validators *validatorset.Set, burnMgr *burn.Manager, supplyLedger *supply.Ledger, metricsServer *monitoring.Server) {
	defer wg.Done()
	defer metricsServer.RecoverAndHalt()

	ticker := time.NewTicker(blockTime)
	defer ticker.Stop()

	var height uint64
	currentEpoch := uint64(0)
	h0, h1, h2 := orch.Boundaries(currentEpoch)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			switch height {
			case h0:
				if err := orch.StartEpoch(currentEpoch, height); err != nil {
					log.Printf("start epoch %d: %v", currentEpoch, err)
				}
			case h1:
				if err := orch.AdvanceToRevealing(height); err != nil {
					log.Printf("advance epoch %d to revealing: %v", currentEpoch, err)
				}
			case h2:
				nextProducer, err := validators.SelectLeader(randaoSeed(), currentEpoch, 0)
				if err != nil {
					log.Printf("select next producer: %v", err)
				}
				utilityCounters := emission.UtilityInputs{
					ActiveValidators:          uint64(len(validators.Active(currentEpoch))),
					TotalRegisteredValidators: uint64(validators.TotalRegistered()),
				}
				result, err := orch.CloseEpoch(height, utilityCounters, nextProducer)
				if err != nil {
					log.Printf("close epoch %d: %v", currentEpoch, err)
				} else {
					log.Printf("epoch %d closed: minted=%s quality_bps=%d non_revealers=%d",
						result.Epoch, result.Minted.String(), result.QualityBps, len(result.NonRevealers))
					for range result.NonRevealers {
						metricsServer.RecordSlash("MissedReveal")
					}
					recordMetrics(metricsServer, burnMgr, supplyLedger, validators, result)
				}
				currentEpoch++
				h0, h1, h2 = orch.Boundaries(currentEpoch)
			}
			height++
		}
	}
}

func randaoSeed() types.Hash {
	var seed [32]byte
	if _, err := rand.Read(seed[:]); err != nil {
		log.Printf("randao seed generation: %v", err)
	}
	return types.BytesToHash(seed[:])
}
