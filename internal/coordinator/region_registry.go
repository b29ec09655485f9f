package coordinator

import (
	"strings"
	"sync"

	"github.com/pingcap/errors"
	"golang.org/x/exp/slices"

	"github.com/dreamware/torua-master/internal/catalog"
	"github.com/dreamware/torua-master/internal/cluster"
)

// ErrUnknownRegion is returned when a region has no assignment.
var ErrUnknownRegion = errors.New("region not assigned")

// RegionAssignment records which node serves a region.
//
// Assignments are announced by region servers when they register, or set by
// an operator through the coordinator's admin endpoint. The registry never
// moves a region on its own.
//
// Thread Safety:
// RegionAssignment values are copied in and out of the registry and are
// never shared.
type RegionAssignment struct {
	// Region is the full region name, e.g. "-ROOT-,,0".
	Region string `json:"region"`

	// NodeID identifies the node serving the region.
	NodeID string `json:"node_id"`

	// Location is the server instance the region was assigned to. It carries
	// the start code so a restarted node does not inherit the assignment.
	Location cluster.ServerLocation `json:"location"`
}

// UserRegion is a user region learned from a meta scan.
type UserRegion struct {
	cluster.CatalogRow
	// Meta is the meta region that listed this row.
	Meta string `json:"meta"`
	// Live reports whether the listed server was registered and live at scan time.
	Live bool `json:"live"`
}

// RegionRegistry is the coordinator's view of where catalog regions live.
//
// It holds three related tables:
//
//	┌──────────────────────────────────────────────┐
//	│               RegionRegistry                 │
//	├──────────────────────────────────────────────┤
//	│ assignments: region → node (announced)       │
//	│ onlineMeta:  meta region → server (scanned)  │
//	│ userRegions: user region → row (scanned)     │
//	├──────────────────────────────────────────────┤
//	│ rootReady:  closed while root is assigned    │
//	│ metaReady:  closed while a meta is online    │
//	└──────────────────────────────────────────────┘
//
// The root region location comes straight from its assignment. The set of
// online meta regions is rebuilt by every root scan, and user regions by
// meta scans.
//
// Concurrency Model:
//   - Read operations use RLock for parallel access
//   - Write operations use Lock for exclusive access
//   - All returned data is copied to prevent races
//   - No locks held during external calls
type RegionRegistry struct {
	assignments map[string]*RegionAssignment
	onlineMeta  map[string]cluster.ServerLocation
	userRegions map[string]UserRegion

	rootReady signal
	metaReady signal

	mu sync.RWMutex
}

// NewRegionRegistry creates an empty registry. The root location is unknown
// until a node announces the root region.
func NewRegionRegistry() *RegionRegistry {
	return &RegionRegistry{
		assignments: make(map[string]*RegionAssignment),
		onlineMeta:  make(map[string]cluster.ServerLocation),
		userRegions: make(map[string]UserRegion),
		rootReady:   newSignal(),
		metaReady:   newSignal(),
	}
}

// Assign records that node serves region, replacing any previous assignment.
//
// Assigning the root region wakes every goroutine waiting on RootReady.
//
// Parameters:
//   - region: Full region name (must be non-empty)
//   - node: The node serving it (ID and address must be non-empty)
//
// Returns:
//   - error: If the region name or node is invalid
//
// Example:
//
//	err := registry.Assign(catalog.RootRegionName, node)
func (r *RegionRegistry) Assign(region string, node cluster.NodeInfo) error {
	if strings.TrimSpace(region) == "" {
		return errors.New("region name cannot be empty")
	}
	if node.ID == "" || node.Addr == "" {
		return errors.Errorf("invalid node %q for region %s", node.ID, region)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.assignments[region] = &RegionAssignment{
		Region:   region,
		NodeID:   node.ID,
		Location: node.Location(),
	}
	if catalog.IsRootRegion(region) {
		r.rootReady.raise()
	}
	return nil
}

// Unassign removes the assignment of region, if any.
func (r *RegionRegistry) Unassign(region string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unassignLocked(region)
}

func (r *RegionRegistry) unassignLocked(region string) {
	delete(r.assignments, region)
	if catalog.IsRootRegion(region) {
		r.rootReady.lower()
	}
	if _, ok := r.onlineMeta[region]; ok {
		delete(r.onlineMeta, region)
		if len(r.onlineMeta) == 0 {
			r.metaReady.lower()
		}
	}
}

// Assignment returns a copy of the assignment for region.
func (r *RegionRegistry) Assignment(region string) (*RegionAssignment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.assignments[region]
	if !ok {
		return nil, errors.Annotate(ErrUnknownRegion, region)
	}
	cp := *a
	return &cp, nil
}

// Assignments returns copies of all assignments ordered by region name.
func (r *RegionRegistry) Assignments() []RegionAssignment {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]RegionAssignment, 0, len(r.assignments))
	for _, a := range r.assignments {
		out = append(out, *a)
	}
	slices.SortFunc(out, func(a, b RegionAssignment) int {
		return strings.Compare(a.Region, b.Region)
	})
	return out
}

// NodeRegions returns the names of the regions assigned to nodeID, sorted.
func (r *RegionRegistry) NodeRegions(nodeID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	for name, a := range r.assignments {
		if a.NodeID == nodeID {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

// RootLocation returns the server hosting the root region, nil if unknown.
func (r *RegionRegistry) RootLocation() *cluster.ServerLocation {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.assignments[catalog.RootRegionName]
	if !ok {
		return nil
	}
	loc := a.Location
	return &loc
}

// RootReady returns a channel that is closed while the root location is known.
// A channel obtained before the root was unassigned stays closed; callers
// must re-read RootLocation after receiving from it.
func (r *RegionRegistry) RootReady() <-chan struct{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rootReady.wait()
}

// MetaReady returns a channel that is closed while at least one meta region is online.
func (r *RegionRegistry) MetaReady() <-chan struct{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.metaReady.wait()
}

// ReplaceOnlineMeta installs the set of online meta regions found by a root
// scan. Regions missing from online are no longer considered online.
func (r *RegionRegistry) ReplaceOnlineMeta(online map[string]cluster.ServerLocation) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.onlineMeta = make(map[string]cluster.ServerLocation, len(online))
	for name, loc := range online {
		r.onlineMeta[name] = loc
	}
	if len(r.onlineMeta) > 0 {
		r.metaReady.raise()
	} else {
		r.metaReady.lower()
	}
}

// OnlineMetaRegions returns the names of online meta regions, sorted.
func (r *RegionRegistry) OnlineMetaRegions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.onlineMeta))
	for name := range r.onlineMeta {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// MetaLocation returns where the meta region name is served, nil if it is
// not online.
func (r *RegionRegistry) MetaLocation(name string) *cluster.ServerLocation {
	r.mu.RLock()
	defer r.mu.RUnlock()

	loc, ok := r.onlineMeta[name]
	if !ok {
		return nil
	}
	return &loc
}

// ReplaceUserRegions installs the user regions listed by one meta region,
// dropping rows that meta listed on its previous scan but no longer does.
func (r *RegionRegistry) ReplaceUserRegions(meta string, regions []UserRegion) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, ur := range r.userRegions {
		if ur.Meta == meta {
			delete(r.userRegions, name)
		}
	}
	for _, ur := range regions {
		ur.Meta = meta
		r.userRegions[ur.Region] = ur
	}
}

// UserRegions returns all known user regions ordered by name.
func (r *RegionRegistry) UserRegions() []UserRegion {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]UserRegion, 0, len(r.userRegions))
	for _, ur := range r.userRegions {
		out = append(out, ur)
	}
	slices.SortFunc(out, func(a, b UserRegion) int {
		return strings.Compare(a.Region, b.Region)
	})
	return out
}

// ClearNode forgets every location served by node: its assignments, and
// any online meta region at one of its server instances. It returns the
// names of the regions that lost their location.
func (r *RegionRegistry) ClearNode(node cluster.NodeInfo) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	locations := map[cluster.ServerLocation]bool{node.Location(): true}
	var cleared []string
	for name, a := range r.assignments {
		if a.NodeID == node.ID {
			locations[a.Location] = true
			cleared = append(cleared, name)
		}
	}
	for _, name := range cleared {
		r.unassignLocked(name)
	}
	for name, loc := range r.onlineMeta {
		if locations[loc] {
			cleared = append(cleared, name)
			r.unassignLocked(name)
		}
	}
	slices.Sort(cleared)
	return slices.Compact(cleared)
}
