package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dreamware/torua-master/internal/cluster"
	"github.com/dreamware/torua-master/internal/config"
	"github.com/dreamware/torua-master/internal/coordinator"
	"github.com/dreamware/torua-master/internal/logutil"
	"github.com/dreamware/torua-master/internal/metrics"
	"github.com/dreamware/torua-master/internal/scanner"
)

func main() {
	configPath := flag.String("config", os.Getenv("TORUA_CONFIG"), "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("load config failed", zap.Error(err))
	}
	if err := logutil.InitLogger(&logutil.Config{Level: cfg.Log.Level, File: cfg.Log.File}); err != nil {
		log.Fatal("init logger failed", zap.Error(err))
	}
	if err := os.MkdirAll(cfg.Coordinator.DataDir, 0o755); err != nil {
		log.Fatal("create data dir failed", zap.String("dir", cfg.Coordinator.DataDir), zap.Error(err))
	}

	registry := prometheus.NewRegistry()
	metrics.InitMetrics(registry)

	srv := newServer(cfg, registry)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.run(ctx); err != nil {
		log.Fatal("coordinator exited", zap.Error(err))
	}
	log.Info("coordinator stopped")
}

type server struct {
	cfg      *config.Config
	master   *coordinator.Master
	monitor  *coordinator.HealthMonitor
	root     *scanner.Task
	meta     *scanner.Task
	registry *prometheus.Registry
}

// newServer wires the coordinator. Both catalog scanners share one scan lock.
func newServer(cfg *config.Config, registry *prometheus.Registry) *server {
	fs := coordinator.NewFileSystemChecker(cfg.Coordinator.DataDir, cfg.FileSystem.ProbeInterval)
	master := coordinator.NewMaster(coordinator.NewRegionRegistry(), fs)
	op := coordinator.NewRemoteScanOperation(master, cfg.Scanner.ScanTimeout)

	scanLock := &sync.Mutex{}
	root := scanner.NewRootScanner(master, op, scanner.Config{
		Interval:      cfg.Scanner.RootRescanInterval,
		Lock:          scanLock,
		OnInitialScan: master.RootScanComplete,
	})
	meta := scanner.NewMetaScanner(master, master, op, scanner.Config{
		Interval: cfg.Scanner.MetaRescanInterval,
		Lock:     scanLock,
	})

	monitor := coordinator.NewHealthMonitor(coordinator.HealthConfig{
		Interval:    cfg.Health.Interval,
		Timeout:     cfg.Health.Timeout,
		MaxFailures: cfg.Health.MaxFailures,
	})
	monitor.SetOnUnhealthy(master.ServerDied)

	return &server{
		cfg:      cfg,
		master:   master,
		monitor:  monitor,
		root:     root,
		meta:     meta,
		registry: registry,
	}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/register", s.handleRegister)
	mux.HandleFunc("/nodes", s.handleListNodes)
	mux.HandleFunc("/regions", s.handleRegions)
	mux.HandleFunc("/regions/assign", s.handleRegionAssign)
	mux.HandleFunc("/scanners", s.handleScanners)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	return mux
}

// run serves HTTP and runs the background tasks until ctx is done or the
// coordinator shuts itself down.
func (s *server) run(ctx context.Context) error {
	httpSrv := &http.Server{
		Addr:              s.cfg.Coordinator.Listen,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("coordinator listening", zap.String("addr", httpSrv.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return errors.Annotate(err, "listen")
		}
		return nil
	})
	g.Go(func() error {
		s.monitor.Start(gctx, s.master.Nodes)
		return nil
	})
	for _, task := range []*scanner.Task{s.root, s.meta} {
		g.Go(func() error {
			task.Run(gctx)
			return nil
		})
	}
	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-s.master.Done():
		}
		s.master.Shutdown()
		s.monitor.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return errors.Trace(httpSrv.Shutdown(shutdownCtx))
	})
	return g.Wait()
}

func (s *server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req cluster.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.Node.ID == "" || req.Node.Addr == "" {
		http.Error(w, "missing id/addr", http.StatusBadRequest)
		return
	}
	prev, known := s.master.Node(req.Node.ID)
	if err := s.master.RegisterNode(req.Node, req.Regions); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	// A new server may host the root or a meta region; rescan now.
	// Periodic refreshes of a known instance do not.
	if !known || prev.Location() != req.Node.Location() {
		s.root.Wake()
		s.meta.Wake()
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleListNodes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, struct {
		Nodes  []cluster.NodeInfo                 `json:"nodes"`
		Health map[string]*coordinator.NodeHealth `json:"health"`
	}{Nodes: s.master.Nodes(), Health: s.monitor.GetAllNodeHealth()})
}

// handleRegions returns the coordinator's view of the catalog.
func (s *server) handleRegions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	registry := s.master.Registry()
	writeJSON(w, struct {
		Root        *cluster.ServerLocation        `json:"root"`
		Assignments []coordinator.RegionAssignment `json:"assignments"`
		OnlineMeta  []string                       `json:"online_meta"`
		UserRegions []coordinator.UserRegion       `json:"user_regions"`
	}{
		Root:        registry.RootLocation(),
		Assignments: registry.Assignments(),
		OnlineMeta:  registry.OnlineMetaRegions(),
		UserRegions: registry.UserRegions(),
	})
}

// handleRegionAssign manually assigns a region to a node (admin operation)
func (s *server) handleRegionAssign(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req cluster.AssignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if err := s.master.Assign(req.Region, req.NodeID); err != nil {
		code := http.StatusBadRequest
		if errors.Cause(err) == coordinator.ErrUnknownNode {
			code = http.StatusNotFound
		}
		http.Error(w, err.Error(), code)
		return
	}
	s.root.Wake()
	s.meta.Wake()
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleScanners(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, struct {
		Scanners []scanner.Status `json:"scanners"`
	}{Scanners: []scanner.Status{s.root.Status(), s.meta.Status()}})
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.master.IsShutdown() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn("write response failed", zap.Error(err))
	}
}
