package region

import (
	"sync"
	"sync/atomic"

	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.uber.org/zap"

	"github.com/dreamware/torua-master/internal/catalog"
	"github.com/dreamware/torua-master/internal/cluster"
	"github.com/dreamware/torua-master/internal/storage"
)

// State represents the serving state of a hosted region
type State string

const (
	// StateOnline means the region is serving reads and writes
	StateOnline State = "online"
	// StateClosing means the region is being closed and rejects new scans
	StateClosing State = "closing"
	// StateClosed means the region is no longer served
	StateClosed State = "closed"
)

// ErrNotServing is returned when a region that is not online is accessed.
var ErrNotServing = errors.New("region not serving")

// Region is one catalog region hosted by a region server.
// Its rows are kept in Store keyed by the name of the region each row describes.
type Region struct {
	Name  string        // Full region name, e.g. "-ROOT-,,0"
	Store storage.Store // Backend holding the rows
	Stats *Stats        // Operation statistics
	state State
	mu    sync.RWMutex // Protects state
}

// Stats tracks operational statistics for a region
type Stats struct {
	Scans   uint64 // Number of full row scans served
	Puts    uint64 // Number of row writes
	Deletes uint64 // Number of row deletes
}

// Info contains metadata about a hosted region
type Info struct {
	Name     string `json:"name"`
	State    State  `json:"state"`
	RowCount int    `json:"rows"`
	ByteSize int    `json:"bytes"`
}

// New creates an online region backed by store
func New(name string, store storage.Store) *Region {
	return &Region{
		Name:  name,
		Store: store,
		Stats: &Stats{},
		state: StateOnline,
	}
}

// PutRow validates and stores a catalog row
func (r *Region) PutRow(row cluster.CatalogRow) error {
	if err := r.checkServing(); err != nil {
		return err
	}
	if err := catalog.Validate(r.Name, row); err != nil {
		return err
	}
	data, err := catalog.EncodeRow(row)
	if err != nil {
		return err
	}
	atomic.AddUint64(&r.Stats.Puts, 1)
	return errors.Trace(r.Store.Put(row.Region, data))
}

// DeleteRow removes the row describing regionName
func (r *Region) DeleteRow(regionName string) error {
	if err := r.checkServing(); err != nil {
		return err
	}
	atomic.AddUint64(&r.Stats.Deletes, 1)
	return errors.Trace(r.Store.Delete(regionName))
}

// Rows returns every row of the region in key order.
// A stored value that cannot be decoded fails the whole scan.
func (r *Region) Rows() ([]cluster.CatalogRow, error) {
	if err := r.checkServing(); err != nil {
		return nil, err
	}
	atomic.AddUint64(&r.Stats.Scans, 1)

	keys, err := r.Store.List()
	if err != nil {
		return nil, errors.Trace(err)
	}

	rows := make([]cluster.CatalogRow, 0, len(keys))
	for _, key := range keys {
		data, err := r.Store.Get(key)
		if err == storage.ErrKeyNotFound {
			// deleted between List and Get
			continue
		}
		if err != nil {
			return nil, errors.Trace(err)
		}
		row, err := catalog.DecodeRow(data)
		if err != nil {
			return nil, errors.Annotatef(err, "row %q of %s", key, r.Name)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// GetStats returns a snapshot of the operation counters
func (r *Region) GetStats() Stats {
	return Stats{
		Scans:   atomic.LoadUint64(&r.Stats.Scans),
		Puts:    atomic.LoadUint64(&r.Stats.Puts),
		Deletes: atomic.LoadUint64(&r.Stats.Deletes),
	}
}

// Info returns metadata about the region. Row and byte counts are zero
// when the store cannot report them.
func (r *Region) Info() Info {
	storageStats, err := r.Store.Stats()
	if err != nil {
		log.Warn("read region store stats failed", zap.String("region", r.Name), zap.Error(err))
	}

	return Info{
		Name:     r.Name,
		State:    r.State(),
		RowCount: storageStats.Keys,
		ByteSize: storageStats.Bytes,
	}
}

// State returns the current serving state
func (r *Region) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// SetState updates the serving state
func (r *Region) SetState(state State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = state
}

// Close stops serving the region and releases its store
func (r *Region) Close() error {
	r.SetState(StateClosed)
	return r.Store.Close()
}

func (r *Region) checkServing() error {
	if state := r.State(); state != StateOnline {
		return errors.Annotatef(ErrNotServing, "%s is %s", r.Name, state)
	}
	return nil
}
