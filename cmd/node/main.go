// Package main implements the Torua region server, which hosts catalog
// regions and serves their rows to the coordinator's catalog scanners.
//
// Architecture:
//
//	┌─────────────────────────────────────────┐
//	│              Region server              │
//	├─────────────────────────────────────────┤
//	│  HTTP API:                              │
//	│    /health              - Health check  │
//	│    /info                - Node info     │
//	│    /regions/{name}/rows - Catalog rows  │
//	│    /regions/{name}/stats                │
//	├─────────────────────────────────────────┤
//	│  Components:                            │
//	│    Node          - Hosted regions       │
//	│    Store         - memory or sqlite     │
//	│    Registration  - Coordinator link     │
//	└─────────────────────────────────────────┘
//
// Example usage:
//
//	TORUA_NODE_ID=node-1 \
//	TORUA_NODE_LISTEN=:8081 \
//	TORUA_NODE_ADDR=http://localhost:8081 \
//	TORUA_COORDINATOR=http://localhost:8080 \
//	TORUA_NODE_REGIONS='-ROOT-,,0;.META.,,1' \
//	./node
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dreamware/torua-master/internal/cluster"
	"github.com/dreamware/torua-master/internal/config"
	"github.com/dreamware/torua-master/internal/logutil"
)

const registerAttempts = 10

var registerBackoff = 400 * time.Millisecond

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg.Node); err != nil {
		log.Fatal("region server exited", zap.Error(err))
	}
	log.Info("region server stopped")
}

// run opens the configured regions, serves them, and registers with the
// coordinator. It returns when ctx is done or the first registration fails.
func run(ctx context.Context, cfg config.NodeConfig) error {
	if cfg.ID == "" {
		return errors.New("node id is required")
	}
	if cfg.Store == config.StoreSQLite {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return errors.Annotatef(err, "create data dir %s", cfg.DataDir)
		}
	}

	node := NewNode(cfg.ID, publicAddr(cfg))
	regions, err := openRegions(cfg)
	if err != nil {
		return err
	}
	for _, r := range regions {
		node.AddRegion(r)
	}
	defer func() {
		if err := node.Close(); err != nil {
			log.Warn("close regions failed", zap.Error(err))
		}
	}()
	log.Info("region server initialized",
		zap.String("node", node.ID),
		zap.String("start-code", node.StartCode),
		zap.Strings("regions", node.RegionNames()),
		zap.String("store", cfg.Store))

	httpSrv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           node.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("region server listening", zap.String("listen", cfg.Listen), zap.String("public", node.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return errors.Annotate(err, "listen")
		}
		return nil
	})
	g.Go(func() error {
		if err := register(gctx, cfg.Coordinator, node.Info(), node.RegionNames()); err != nil {
			return err
		}
		keepRegistered(gctx, cfg.Coordinator, node.Info(), node.RegionNames(), cfg.RegisterInterval)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return errors.Trace(httpSrv.Shutdown(shutdownCtx))
	})
	return g.Wait()
}

// publicAddr is the address the coordinator reaches this server at.
func publicAddr(cfg config.NodeConfig) string {
	if cfg.Addr != "" {
		return strings.TrimRight(cfg.Addr, "/")
	}
	if strings.HasPrefix(cfg.Listen, ":") {
		return "http://127.0.0.1" + cfg.Listen
	}
	return "http://" + cfg.Listen
}

// register announces the node and its regions to the coordinator, retrying
// while the coordinator starts up.
func register(ctx context.Context, coord string, node cluster.NodeInfo, regions []string) error {
	body := cluster.RegisterRequest{Node: node, Regions: regions}
	var lastErr error
	for i := 0; i < registerAttempts; i++ {
		lastErr = cluster.PostJSON(ctx, coord+"/register", body, nil)
		if lastErr == nil {
			log.Info("registered with coordinator",
				zap.String("coordinator", coord),
				zap.Int("regions", len(regions)))
			return nil
		}
		log.Warn("register failed, retrying", zap.Int("attempt", i+1), zap.Error(lastErr))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(registerBackoff):
		}
	}
	return errors.Annotatef(lastErr, "register with %s after %d attempts", coord, registerAttempts)
}

// keepRegistered announces the node again every interval until ctx is done.
// A coordinator that declared this instance dead, or restarted and lost its
// registry, picks the node and its regions up again on the next round.
func keepRegistered(ctx context.Context, coord string, node cluster.NodeInfo, regions []string, interval time.Duration) {
	if interval <= 0 {
		return
	}
	body := cluster.RegisterRequest{Node: node, Regions: regions}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if err := cluster.PostJSON(ctx, coord+"/register", body, nil); err != nil && ctx.Err() == nil {
			log.Warn("refresh registration failed", zap.String("coordinator", coord), zap.Error(err))
		}
	}
}
