// Package monitoring exposes the consensus/tokenomics core over HTTP: a
// Prometheus registry at /metrics and a liveness surface at /healthz that
// reports an IntegrityViolation halt distinctly from an ordinary-unhealthy
// state, since the former means the node has already stopped advancing
// and an operator must intervene rather than wait it out.
package monitoring

import (
	"context"
	"encoding/json"
	"log"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"synapsechain/chain/types"
)

// Server hosts the metrics registry and health endpoint for one node.
type Server struct {
	listenAddr string
	registry   *prometheus.Registry
	health     *HealthChecker

	epochHeight      prometheus.Gauge
	mintedTotal      prometheus.Counter
	burnedTotal      *prometheus.CounterVec // labeled by reason
	circulatingGauge prometheus.Gauge
	utilityBps       prometheus.Gauge
	qualityBps       prometheus.Gauge

	validatorCount prometheus.Gauge
	jailedCount    prometheus.Gauge
	validatorStake *prometheus.GaugeVec // labeled by validator address
	trustScore     *prometheus.GaugeVec // labeled by validator address

	slashingEvents *prometheus.CounterVec // labeled by offense
	nonRevealers   prometheus.Gauge

	server *http.Server
	mu     sync.Mutex
}

// New builds a metrics server bound to listenAddr; call Start to serve.
func New(listenAddr string) *Server {
	registry := prometheus.NewRegistry()
	s := &Server{
		listenAddr: listenAddr,
		registry:   registry,
		health:     NewHealthChecker(),

		epochHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "synapsechain_epoch_height",
			Help: "Current epoch number",
		}),
		mintedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "synapsechain_minted_total",
			Help: "Total base units minted from the remaining pool since genesis",
		}),
		burnedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "synapsechain_burned_total",
			Help: "Total base units burned, by reason",
		}, []string{"reason"}),
		circulatingGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "synapsechain_circulating_supply",
			Help: "Current circulating supply in base units",
		}),
		utilityBps: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "synapsechain_utility_bps",
			Help: "Network utility score for the most recently closed epoch, in basis points",
		}),
		qualityBps: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "synapsechain_quality_bps",
			Help: "Consensus quality multiplier for the most recently closed epoch, in basis points",
		}),
		validatorCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "synapsechain_validators_active",
			Help: "Number of active, non-jailed validators",
		}),
		jailedCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "synapsechain_validators_jailed",
			Help: "Number of currently jailed validators",
		}),
		validatorStake: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "synapsechain_validator_effective_stake",
			Help: "Per-validator effective (log-dampened) stake",
		}, []string{"validator"}),
		trustScore: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "synapsechain_validator_trust_score",
			Help: "Per-validator trust score",
		}, []string{"validator"}),
		slashingEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "synapsechain_slashing_events_total",
			Help: "Total slashing events, by offense",
		}, []string{"offense"}),
		nonRevealers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "synapsechain_non_revealers",
			Help: "Number of validators that committed but did not reveal in the most recent epoch",
		}),
	}

	registry.MustRegister(
		s.epochHeight, s.mintedTotal, s.burnedTotal, s.circulatingGauge,
		s.utilityBps, s.qualityBps, s.validatorCount, s.jailedCount,
		s.validatorStake, s.trustScore, s.slashingEvents, s.nonRevealers,
	)

	router := mux.NewRouter()
	router.Path("/metrics").Handler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	router.Path("/healthz").HandlerFunc(s.healthHandler)
	s.server = &http.Server{Addr: listenAddr, Handler: router}

	return s
}

// Start serves metrics and health endpoints until Stop is called. Errors
// other than a clean shutdown are logged, not returned, matching the
// fire-and-forget HTTP server lifecycle cmd/synapse-node's other
// background loops use.
func (s *Server) Start() {
	go func() {
		log.Printf("monitoring: listening on %s", s.listenAddr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("monitoring: server error: %v", err)
		}
	}()
}

// Stop gracefully shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// RecordEpochClose updates every gauge/counter that reflects the just-
// closed epoch. burnedByReason keys are the reason strings
// chain/burn.Manager already tags burn events with.
func (s *Server) RecordEpochClose(epoch uint64, minted *types.Amount, burnedByReason map[string]*types.Amount, circulating *types.Amount, utilityBps, qualityBps uint64, nonRevealers int) {
	s.epochHeight.Set(float64(epoch))
	s.mintedTotal.Add(amountToFloat(minted))
	for reason, amount := range burnedByReason {
		s.burnedTotal.WithLabelValues(reason).Add(amountToFloat(amount))
	}
	s.circulatingGauge.Set(amountToFloat(circulating))
	s.utilityBps.Set(float64(utilityBps))
	s.qualityBps.Set(float64(qualityBps))
	s.nonRevealers.Set(float64(nonRevealers))
}

// RecordValidatorSnapshot replaces every per-validator gauge with the
// current active set's values; it is not cumulative like RecordEpochClose
// since the active set fully describes itself each epoch.
func (s *Server) RecordValidatorSnapshot(active int, jailed int, stakes map[types.Address]*types.Amount, trust map[types.Address]float64) {
	s.validatorCount.Set(float64(active))
	s.jailedCount.Set(float64(jailed))
	s.validatorStake.Reset()
	for addr, stake := range stakes {
		s.validatorStake.WithLabelValues(addr.Hex()).Set(amountToFloat(stake))
	}
	s.trustScore.Reset()
	for addr, score := range trust {
		s.trustScore.WithLabelValues(addr.Hex()).Set(score)
	}
}

// RecordSlash increments the per-offense slashing counter.
func (s *Server) RecordSlash(offense string) {
	s.slashingEvents.WithLabelValues(offense).Inc()
}

// Halt marks the node as fatally halted by an IntegrityViolation; /healthz
// starts returning 503 with the violation detail until the process exits
// and a fresh one starts after a checkpoint resync.
func (s *Server) Halt(violation *types.IntegrityViolation) {
	s.health.Halt(violation)
}

func amountToFloat(a *types.Amount) float64 {
	if a == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(a.ToBig()).Float64()
	return f
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := s.health.Status()
	w.Header().Set("Content-Type", "application/json")
	if status.Halted {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(status)
}

// HealthStatus is the JSON body /healthz returns.
type HealthStatus struct {
	Halted    bool      `json:"halted"`
	Component string    `json:"component,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	HaltedAt  time.Time `json:"haltedAt,omitempty"`
}

// HealthChecker is a tiny one-way latch: once Halt is called the node is
// considered permanently unhealthy for the rest of the process lifetime,
// matching the "never swallowed, never recovered" IntegrityViolation
// propagation policy.
type HealthChecker struct {
	mu     sync.RWMutex
	status HealthStatus
}

// NewHealthChecker returns a checker that starts out healthy.
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{}
}

// Halt latches the checker into the halted state. Calling it more than
// once keeps the first violation, since that is the one that actually
// stopped the node.
func (hc *HealthChecker) Halt(violation *types.IntegrityViolation) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	if hc.status.Halted {
		return
	}
	hc.status = HealthStatus{
		Halted:    true,
		Component: violation.Component,
		Detail:    violation.Detail,
		HaltedAt:  time.Now(),
	}
}

// Status returns the current health snapshot.
func (hc *HealthChecker) Status() HealthStatus {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return hc.status
}

// RecoverAndHalt is meant to be deferred at the top of cmd/synapse-node's
// block loop: it recovers a panicking *IntegrityViolation, routes it to
// the health checker so /healthz reports it, logs it, and re-panics so
// the process still exits non-zero rather than silently continuing.
func (s *Server) RecoverAndHalt() {
	if r := recover(); r != nil {
		if violation, ok := r.(*types.IntegrityViolation); ok {
			s.Halt(violation)
			log.Printf("FATAL: %s", violation.Error())
			panic(violation)
		}
		panic(r)
	}
}
