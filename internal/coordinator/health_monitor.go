package coordinator

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.uber.org/zap"

	"github.com/dreamware/torua-master/internal/cluster"
	"github.com/dreamware/torua-master/internal/metrics"
)

// Node health states.
const (
	StatusUnknown   = "unknown"
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// NodeHealth tracks the health status of a single region server.
// Thread-safe: Protected by HealthMonitor's mutex when accessed.
type NodeHealth struct {
	LastCheck        time.Time `json:"last_check"`   // Timestamp of the last health check attempt
	LastHealthy      time.Time `json:"last_healthy"` // Timestamp of the last successful health check
	NodeID           string    `json:"node_id"`
	StartCode        string    `json:"start_code"` // Instance the record describes
	Status           string    `json:"status"`     // "healthy", "unhealthy" or "unknown"
	ConsecutiveFails int       `json:"consecutive_fails"`
}

// HealthConfig configures a HealthMonitor. Zero fields take defaults.
type HealthConfig struct {
	Interval    time.Duration // How often every node is checked (default 5s)
	Timeout     time.Duration // HTTP timeout of one check (default 2s)
	MaxFailures int           // Consecutive failures before a node is unhealthy (default 3)
}

// HealthMonitor performs periodic health checks on all registered region
// servers. When a server fails MaxFailures checks in a row the unhealthy
// callback runs once; the coordinator uses it to declare the server dead,
// which clears the catalog locations it was serving.
// Thread-safe: All methods are safe for concurrent access.
type HealthMonitor struct {
	nodes       map[string]*NodeHealth  // Current health status per node
	httpClient  *http.Client            // HTTP client for health checks
	checkFunc   func(addr string) error // Function to perform health check
	onUnhealthy func(cluster.NodeInfo)  // Callback when node becomes unhealthy
	ctx         context.Context         // Context for cancellation
	cancel      context.CancelFunc      // Cancel function for shutdown
	interval    time.Duration           // How often to check node health
	timeout     time.Duration           // HTTP timeout for health checks
	mu          sync.RWMutex            // Protects nodes map
	wg          sync.WaitGroup          // Wait group for graceful shutdown
	maxFailures int                     // Failures before marking unhealthy
}

// NewHealthMonitor creates a health monitor. The monitor checks each node's
// /health endpoint every cfg.Interval once started.
//
// Parameters:
//   - cfg: Interval, timeout and failure threshold
//
// Returns:
//   - *HealthMonitor: Configured health monitor ready to start
//
// Example:
//
//	monitor := NewHealthMonitor(HealthConfig{Interval: 5 * time.Second})
//	monitor.SetOnUnhealthy(master.ServerDied)
//	go monitor.Start(ctx, master.Nodes)
func NewHealthMonitor(cfg HealthConfig) *HealthMonitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &HealthMonitor{
		interval:    cfg.Interval,
		timeout:     cfg.Timeout,
		maxFailures: cfg.MaxFailures,
		nodes:       make(map[string]*NodeHealth),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

// SetOnUnhealthy sets the callback invoked when a node becomes unhealthy.
// It must be set before Start.
func (h *HealthMonitor) SetOnUnhealthy(callback func(node cluster.NodeInfo)) {
	h.onUnhealthy = callback
}

// Start runs the health checks in the current goroutine until ctx or the
// monitor is cancelled. Every node returned by nodeProvider is checked
// immediately and then once per interval.
//
// Parameters:
//   - ctx: Context for cancellation
//   - nodeProvider: Function that returns current list of nodes
func (h *HealthMonitor) Start(ctx context.Context, nodeProvider func() []cluster.NodeInfo) {
	h.wg.Add(1)
	defer h.wg.Done()

	if ctx == nil {
		ctx = h.ctx
	}
	if h.checkFunc == nil {
		h.checkFunc = h.defaultHealthCheck
	}

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	log.Info("health monitor started", zap.Duration("interval", h.interval), zap.Int("maxFailures", h.maxFailures))

	h.checkAllNodes(nodeProvider())

	for {
		select {
		case <-ticker.C:
			h.checkAllNodes(nodeProvider())
		case <-ctx.Done():
			log.Info("health monitor stopping", zap.Error(ctx.Err()))
			return
		case <-h.ctx.Done():
			log.Info("health monitor stopping", zap.String("reason", "stopped"))
			return
		}
	}
}

// Stop cancels the monitoring goroutine and waits for it to return.
func (h *HealthMonitor) Stop() {
	h.cancel()
	h.wg.Wait()
}

// checkAllNodes checks every node and forgets nodes that left the cluster.
func (h *HealthMonitor) checkAllNodes(nodes []cluster.NodeInfo) {
	currentNodes := make(map[string]bool)

	for _, node := range nodes {
		currentNodes[node.ID] = true
		h.checkNode(node)
	}

	h.mu.Lock()
	for nodeID := range h.nodes {
		if !currentNodes[nodeID] {
			delete(h.nodes, nodeID)
			log.Info("node removed from health monitoring", zap.String("node", nodeID))
		}
	}
	h.mu.Unlock()
}

// checkNode performs one health check and updates the node's record.
//
// Implementation:
//  1. Get or create the health record of this server instance
//  2. Perform HTTP health check without holding the lock
//  3. Track consecutive failures
//  4. Trigger unhealthy callback on the transition to unhealthy
func (h *HealthMonitor) checkNode(node cluster.NodeInfo) {
	h.mu.Lock()
	health, exists := h.nodes[node.ID]
	if !exists || health.StartCode != node.StartCode {
		// A restarted server starts with a clean record.
		health = &NodeHealth{
			NodeID:      node.ID,
			StartCode:   node.StartCode,
			Status:      StatusUnknown,
			LastCheck:   time.Now(),
			LastHealthy: time.Now(),
		}
		h.nodes[node.ID] = health
	}
	h.mu.Unlock()

	err := h.checkFunc(node.Addr)

	h.mu.Lock()
	defer h.mu.Unlock()

	health.LastCheck = time.Now()

	if err != nil {
		metrics.HealthCheckCounter.WithLabelValues("failed").Inc()
		health.ConsecutiveFails++
		log.Warn("health check failed",
			zap.String("node", node.ID),
			zap.Int("attempt", health.ConsecutiveFails),
			zap.Int("maxFailures", h.maxFailures),
			zap.Error(err))

		if health.ConsecutiveFails >= h.maxFailures && health.Status != StatusUnhealthy {
			health.Status = StatusUnhealthy
			log.Warn("node marked unhealthy",
				zap.String("node", node.ID), zap.Int("failures", health.ConsecutiveFails))
			if h.onUnhealthy != nil {
				// Call callback without holding the lock
				go h.onUnhealthy(node)
			}
		}
		return
	}

	metrics.HealthCheckCounter.WithLabelValues("healthy").Inc()
	if health.Status == StatusUnhealthy {
		log.Info("node recovered", zap.String("node", node.ID))
	}
	health.Status = StatusHealthy
	health.ConsecutiveFails = 0
	health.LastHealthy = time.Now()
}

// defaultHealthCheck performs an HTTP GET on the node's /health endpoint.
// addr may be a full URL or host:port.
func (h *HealthMonitor) defaultHealthCheck(addr string) error {
	url := addr
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		url = fmt.Sprintf("http://%s", addr)
	}
	if !strings.HasSuffix(url, "/health") {
		url = strings.TrimRight(url, "/") + "/health"
	}

	resp, err := h.httpClient.Get(url)
	if err != nil {
		return errors.Annotate(err, "health check request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}

// GetNodeHealth returns a copy of the health record of nodeID, or nil if
// the node is not being monitored.
func (h *HealthMonitor) GetNodeHealth(nodeID string) *NodeHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()

	health, exists := h.nodes[nodeID]
	if !exists {
		return nil
	}
	cp := *health
	return &cp
}

// GetAllNodeHealth returns copies of all health records keyed by node ID.
func (h *HealthMonitor) GetAllNodeHealth() map[string]*NodeHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()

	result := make(map[string]*NodeHealth, len(h.nodes))
	for id, health := range h.nodes {
		cp := *health
		result[id] = &cp
	}
	return result
}

// IsHealthy reports whether nodeID passed its last health check.
func (h *HealthMonitor) IsHealthy(nodeID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	health, exists := h.nodes[nodeID]
	if !exists {
		return false
	}
	return health.Status == StatusHealthy
}

// SetCheckFunction overrides the HTTP health check. It must be called before Start.
func (h *HealthMonitor) SetCheckFunction(checkFunc func(addr string) error) {
	h.checkFunc = checkFunc
}
