package coordinator

import (
	"context"
	"strings"
	"sync"

	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.uber.org/zap"
	"golang.org/x/exp/slices"

	"github.com/dreamware/torua-master/internal/cluster"
)

// ErrUnknownNode is returned when a node ID is not registered.
var ErrUnknownNode = errors.New("node not registered")

// FileSystemProbe verifies that the coordinator's storage is usable.
type FileSystemProbe interface {
	Check() error
}

// Master is the coordinator's shared state: the registered region servers,
// the region registry and the shutdown latch. Scanners see it through the
// scanner.Coordinator and scanner.MetaLocator interfaces.
type Master struct {
	registry *RegionRegistry
	fs       FileSystemProbe
	shutdown *Latch
	// rootScanned is set once the root scanner has completed its initial
	// scan. Meta scanning waits for it.
	rootScanned *Latch

	mu    sync.RWMutex
	nodes map[string]cluster.NodeInfo
}

// NewMaster creates a Master over registry. fs may be nil, in which case
// filesystem checks always pass.
func NewMaster(registry *RegionRegistry, fs FileSystemProbe) *Master {
	return &Master{
		registry:    registry,
		fs:          fs,
		shutdown:    NewLatch(),
		rootScanned: NewLatch(),
		nodes:       make(map[string]cluster.NodeInfo),
	}
}

// Registry returns the region registry.
func (m *Master) Registry() *RegionRegistry { return m.registry }

// RegisterNode records a region server and the regions it announces.
//
// A node re-registering under the same ID with a new start code is a
// restarted process; the locations of its previous instance are cleared
// before the new announcement is applied.
//
// Parameters:
//   - node: The registering server (ID, address and start code)
//   - regions: Names of the regions the node is serving
//
// Returns:
//   - error: If the node is invalid or a region cannot be assigned
func (m *Master) RegisterNode(node cluster.NodeInfo, regions []string) error {
	if node.ID == "" || node.Addr == "" {
		return errors.New("node id and addr are required")
	}

	m.mu.Lock()
	prev, existed := m.nodes[node.ID]
	m.nodes[node.ID] = node
	m.mu.Unlock()

	if existed && prev.Location() != node.Location() {
		cleared := m.registry.ClearNode(prev)
		log.Info("region server restarted",
			zap.String("node", node.ID),
			zap.Stringer("previous", prev.Location()),
			zap.Stringer("current", node.Location()),
			zap.Strings("cleared", cleared))
	}

	for _, region := range regions {
		if err := m.registry.Assign(region, node); err != nil {
			return errors.Trace(err)
		}
	}
	if existed && prev.Location() == node.Location() {
		log.Debug("region server registration refreshed",
			zap.String("node", node.ID), zap.Strings("regions", regions))
		return nil
	}
	log.Info("region server registered",
		zap.String("node", node.ID),
		zap.String("addr", node.Addr),
		zap.String("startCode", node.StartCode),
		zap.Strings("regions", regions))
	return nil
}

// Nodes returns the registered region servers ordered by ID.
func (m *Master) Nodes() []cluster.NodeInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]cluster.NodeInfo, 0, len(m.nodes))
	for _, n := range m.nodes {
		out = append(out, n)
	}
	slices.SortFunc(out, func(a, b cluster.NodeInfo) int {
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// Node returns the registered node with the given ID.
func (m *Master) Node(id string) (cluster.NodeInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.nodes[id]
	return n, ok
}

// IsLive reports whether loc is the current instance of a registered server.
func (m *Master) IsLive(loc cluster.ServerLocation) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, n := range m.nodes {
		if n.Location() == loc {
			return true
		}
	}
	return false
}

// Assign assigns region to the registered node nodeID.
func (m *Master) Assign(region, nodeID string) error {
	node, ok := m.Node(nodeID)
	if !ok {
		return errors.Annotate(ErrUnknownNode, nodeID)
	}
	if err := m.registry.Assign(region, node); err != nil {
		return errors.Trace(err)
	}
	log.Info("region assigned", zap.String("region", region), zap.String("node", nodeID))
	return nil
}

// ServerDied forgets the server instance dead and every location it
// served. Scanners waiting on those locations block until they are assigned
// again. The call is ignored unless dead is still the registered instance of
// its node, so a late report about a restarted server does nothing.
func (m *Master) ServerDied(dead cluster.NodeInfo) {
	m.mu.Lock()
	node, ok := m.nodes[dead.ID]
	if !ok || node.Location() != dead.Location() {
		m.mu.Unlock()
		if ok {
			log.Info("ignoring death of a replaced server instance",
				zap.String("node", dead.ID),
				zap.Stringer("dead", dead.Location()),
				zap.Stringer("current", node.Location()))
		}
		return
	}
	delete(m.nodes, dead.ID)
	m.mu.Unlock()

	cleared := m.registry.ClearNode(node)
	log.Warn("region server declared dead",
		zap.String("node", node.ID),
		zap.Stringer("server", node.Location()),
		zap.Strings("cleared", cleared))
}

// WaitForRootLocation blocks until the root region location is known,
// shutdown is signalled, or ctx is done.
func (m *Master) WaitForRootLocation(ctx context.Context) {
	select {
	case <-m.registry.RootReady():
	case <-m.shutdown.Done():
	case <-ctx.Done():
	}
}

// RootLocation returns the current root region location, nil if unknown.
func (m *Master) RootLocation() *cluster.ServerLocation {
	return m.registry.RootLocation()
}

// RootScanComplete records that the root scanner finished its initial scan.
func (m *Master) RootScanComplete() {
	if m.rootScanned.Set() {
		log.Info("root region scanned, meta regions can be scanned")
	}
}

// WaitForMetaRegions blocks until the root region has been scanned once and
// at least one meta region is online, shutdown is signalled, or ctx is done.
func (m *Master) WaitForMetaRegions(ctx context.Context) {
	select {
	case <-m.rootScanned.Done():
	case <-m.shutdown.Done():
		return
	case <-ctx.Done():
		return
	}
	select {
	case <-m.registry.MetaReady():
	case <-m.shutdown.Done():
	case <-ctx.Done():
	}
}

// OnlineMetaRegions returns the meta regions found online by root scans.
func (m *Master) OnlineMetaRegions() []string {
	return m.registry.OnlineMetaRegions()
}

// MetaRegionLocation returns where a meta region is served, nil if it is offline.
func (m *Master) MetaRegionLocation(name string) *cluster.ServerLocation {
	return m.registry.MetaLocation(name)
}

// IsShutdown reports whether the coordinator is shutting down.
func (m *Master) IsShutdown() bool { return m.shutdown.IsSet() }

// Done is closed when the coordinator starts shutting down.
func (m *Master) Done() <-chan struct{} { return m.shutdown.Done() }

// Shutdown signals every background task to stop. It is idempotent.
func (m *Master) Shutdown() {
	if m.shutdown.Set() {
		log.Info("coordinator shutdown requested")
	}
}

// CheckFileSystem probes the coordinator's storage. If it is unusable the
// coordinator shuts down.
func (m *Master) CheckFileSystem() {
	if m.fs == nil {
		return
	}
	if err := m.fs.Check(); err != nil {
		log.Error("filesystem unavailable, shutting down", zap.Error(err))
		m.Shutdown()
	}
}
