// Copyright 2025 Certen Protocol
//
// pojd runs a single Proof-of-Judgment chain node: it opens the
// content-addressed store, initializes the Chain facade, optionally
// runs the Producer (if this node is a configured validator), and
// serves /health and /metrics. Shaped after the teacher's own main.go
// startup sequence (flag parsing, a HealthStatus tracker feeding
// /health, a signal-driven graceful shutdown) but trimmed to this
// node's actual dependency surface: no database, Ethereum, Accumulate,
// or Firestore wiring remains, since none of those concerns exist in
// a PoJ chain node.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/certen/pojchain/pkg/chain"
	"github.com/certen/pojchain/pkg/config"
	"github.com/certen/pojchain/pkg/metrics"
	"github.com/certen/pojchain/pkg/producer"
	"github.com/certen/pojchain/pkg/slotclock"
	"github.com/certen/pojchain/pkg/store"
)

// HealthStatus tracks node readiness for the /health endpoint.
type HealthStatus struct {
	mu         sync.RWMutex
	Status     string `json:"status"` // "starting", "ok"
	NodeID     string `json:"nodeId"`
	Validator  bool   `json:"validator"`
	HeadSlot   uint64 `json:"headSlot"`
	Finalized  uint64 `json:"finalizedSlot"`
	StartedAt  time.Time
	UptimeSecs int64 `json:"uptimeSeconds"`
}

func (h *HealthStatus) update(stats chain.Stats) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Status = "ok"
	h.HeadSlot = stats.HeadSlot
	h.Finalized = stats.FinalizedSlot
	h.UptimeSecs = int64(time.Since(h.StartedAt).Seconds())
}

func (h *HealthStatus) json() []byte {
	h.mu.RLock()
	defer h.mu.RUnlock()
	data, _ := json.Marshal(h)
	return data
}

func main() {
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	var (
		nodeID       = flag.String("node-id", "", "Node identity (required)")
		dataDir      = flag.String("data-dir", "./data", "Directory for the content-addressed store")
		listenAddr   = flag.String("listen-addr", ":8080", "Address for /health")
		metricsAddr  = flag.String("metrics-addr", ":9090", "Address for /metrics")
		registry     = flag.String("validator-registry", "", "Path to validators.yaml (optional)")
		validatorKey = flag.String("validator-key", "", "This node's MAC secret; empty means non-validator")
		showHelp     = flag.Bool("help", false, "Show help message")
	)
	flag.Parse()

	if *showHelp {
		flag.Usage()
		return
	}
	if *nodeID == "" {
		log.Fatal("node-id is required")
	}

	cfg := config.Config{
		NodeID:       *nodeID,
		ValidatorKey: []byte(*validatorKey),
		DataDir:      *dataDir,
		ListenAddr:   *listenAddr,
		MetricsAddr:  *metricsAddr,
	}.Defaults()

	var validatorReg *config.ValidatorRegistry
	if *registry != "" {
		var err error
		validatorReg, err = config.LoadValidatorRegistry(*registry)
		if err != nil {
			log.Fatalf("failed to load validator registry: %v", err)
		}
		log.Printf("loaded validator registry: %d validators", validatorReg.Count())
	}

	log.Printf("opening store at %s", cfg.DataDir)
	bs, err := store.Open("pojchain", cfg.DataDir)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer func() {
		if err := bs.Close(); err != nil {
			log.Printf("store close error: %v", err)
		}
	}()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	opts := chain.Options{Metrics: m}
	if validatorReg != nil {
		opts.Validators = validatorReg
		opts.ValidatorCount = validatorReg.Count
		opts.KeyLookup = validatorReg.KeyFor
	} else if cfg.IsValidator() {
		opts.ValidatorCount = func() int { return 1 }
		opts.KeyLookup = func(id string) ([]byte, bool) {
			if id == cfg.NodeID {
				return cfg.ValidatorKey, true
			}
			return nil, false
		}
	}

	c := chain.New(cfg.NodeID, bs, cfg, opts)
	if err := c.Init(""); err != nil {
		log.Fatalf("chain init failed: %v", err)
	}

	health := &HealthStatus{Status: "starting", NodeID: cfg.NodeID, Validator: cfg.IsValidator(), StartedAt: time.Now()}
	health.update(c.GetStats())

	ctx, cancel := context.WithCancel(context.Background())

	events, unsubscribe := c.Subscribe()
	defer unsubscribe()
	go logEvents(ctx, events, health, c)

	var runner *producer.Runner
	if cfg.IsValidator() {
		clock := slotclock.FromHeadSlot(c.GetStats().HeadSlot, cfg.SlotClockConfig())
		runner = producer.New(c, clock).WithMetrics(m)
		runner.Start(ctx)
		log.Printf("node %s running as validator (slot duration %s)", cfg.NodeID, cfg.SlotDuration)
	} else {
		log.Printf("node %s running as read-only observer (not a configured validator)", cfg.NodeID)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(health.json())
	})
	httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: mux}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux}

	go func() {
		log.Printf("health endpoint listening on %s", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("health server failed: %v", err)
		}
	}()
	go func() {
		log.Printf("metrics endpoint listening on %s", cfg.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("metrics server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down")
	cancel()
	if runner != nil {
		runner.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("health server shutdown error: %v", err)
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("metrics server shutdown error: %v", err)
	}

	log.Println("stopped")
}

// logEvents drains the chain's observer channel and logs each
// lifecycle notification, refreshing the health snapshot on block
// events.
func logEvents(ctx context.Context, events <-chan chain.Event, health *HealthStatus, c *chain.Chain) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Kind {
			case chain.EventBlockAdded, chain.EventBlockFinalized:
				health.update(c.GetStats())
			}
			log.Printf("event=%s slot=%d hash=%s node=%s", ev.Kind, ev.Slot, ev.BlockHash, ev.NodeID)
		}
	}
}
