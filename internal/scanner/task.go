package scanner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pingcap/log"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/dreamware/torua-master/internal/cluster"
	"github.com/dreamware/torua-master/internal/metrics"
)

// State is the lifecycle state of a Task.
type State int32

const (
	StateCreated State = iota
	StateInitialScanPending
	StateSteadyState
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateInitialScanPending:
		return "initial-scan-pending"
	case StateSteadyState:
		return "steady-state"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// RegionDescriptor names one located catalog region. It is built inside
// the scan lock for a single scan attempt and never reused.
type RegionDescriptor struct {
	Location cluster.ServerLocation
	Name     string
}

// Coordinator is the scanner's view of the coordinating process.
type Coordinator interface {
	// WaitForRootLocation blocks until the root region location is known,
	// shutdown is signalled, or ctx is done.
	WaitForRootLocation(ctx context.Context)
	// RootLocation returns the current root location, nil if unknown.
	RootLocation() *cluster.ServerLocation
	// IsShutdown reports whether shutdown has been signalled.
	IsShutdown() bool
	// Done is closed when shutdown is signalled.
	Done() <-chan struct{}
	// CheckFileSystem escalates a possible filesystem problem.
	CheckFileSystem()
}

// ScanOperation scans one located region. A failure should be returned as
// a *ScanError built with IOError or OtherError.
type ScanOperation interface {
	Scan(ctx context.Context, region RegionDescriptor) error
}

// ScanFunc adapts a function to ScanOperation.
type ScanFunc func(ctx context.Context, region RegionDescriptor) error

func (f ScanFunc) Scan(ctx context.Context, region RegionDescriptor) error {
	return f(ctx, region)
}

// Target binds a Task to one class of catalog regions.
type Target interface {
	// WaitForLocation blocks until the target regions can be located,
	// shutdown is signalled, or ctx is done.
	WaitForLocation(ctx context.Context)
	// Regions returns the names of the regions to scan this iteration.
	Regions() []string
	// Location returns where name is served now, nil if unknown.
	Location(name string) *cluster.ServerLocation
}

// Config holds the per-scanner settings supplied at construction.
type Config struct {
	// Interval between two iterations.
	Interval time.Duration
	// Lock serializes scans across every scanner of the process. It must be
	// the same instance for all of them.
	Lock sync.Locker
	// OnInitialScan, if set, runs once when the initial scan completes.
	OnInitialScan func()
}

// failureHandler reacts to a failed scan and reports whether the rest of
// the iteration must be skipped.
type failureHandler func(t *Task, region RegionDescriptor, err error) (abort bool)

var failureHandlers = map[FailureKind]failureHandler{
	IOFailure: func(t *Task, region RegionDescriptor, err error) bool {
		log.Warn("scan catalog region failed",
			zap.String("scanner", t.name),
			zap.String("region", region.Name),
			zap.Stringer("server", region.Location),
			zap.Error(err))
		metrics.ScannerScanCounter.WithLabelValues(t.name, metrics.ResultIOFailure).Inc()
		// Make sure the file system is still available
		t.coord.CheckFileSystem()
		return true
	},
	OtherFailure: func(t *Task, region RegionDescriptor, err error) bool {
		log.Error("unexpected error scanning catalog region",
			zap.String("scanner", t.name),
			zap.String("region", region.Name),
			zap.Stringer("server", region.Location),
			zap.Error(err))
		metrics.ScannerScanCounter.WithLabelValues(t.name, metrics.ResultOtherFailure).Inc()
		return false
	},
}

// Task is a periodic catalog scanner. It owns the scan loop, the shared lock
// discipline, failure isolation and shutdown checks; the Target decides
// which regions are scanned and where they live.
//
// A Task never retries within an iteration. Failures are usually caused by
// a server going away, which is resolved by the time of the next rescan.
type Task struct {
	name          string
	coord         Coordinator
	target        Target
	op            ScanOperation
	lock          sync.Locker
	interval      time.Duration
	onInitialScan func()

	state               atomic.Int32
	initialScanComplete atomic.Bool
	lastScanSucceeded   atomic.Bool
	iterations          atomic.Int64
	lastScanAt          atomic.Int64 // unix nanos of the last finished iteration

	wake chan struct{}
}

// NewTask creates a scanner named name. cfg.Lock is required.
func NewTask(name string, coord Coordinator, target Target, op ScanOperation, cfg Config) *Task {
	if cfg.Lock == nil {
		log.Panic("scanner requires a shared scan lock", zap.String("scanner", name))
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	t := &Task{
		name:          name,
		coord:         coord,
		target:        target,
		op:            op,
		lock:          cfg.Lock,
		interval:      cfg.Interval,
		onInitialScan: cfg.OnInitialScan,
		wake:          make(chan struct{}, 1),
	}
	t.state.Store(int32(StateCreated))
	metrics.ScannerInitialScanGauge.WithLabelValues(name).Set(0)
	return t
}

// Name returns the scanner name.
func (t *Task) Name() string { return t.name }

// State returns the current lifecycle state.
func (t *Task) State() State { return State(t.state.Load()) }

// InitialScanComplete reports whether a scan has ever succeeded.
func (t *Task) InitialScanComplete() bool { return t.initialScanComplete.Load() }

// LastScanSucceeded reports the outcome of the most recent iteration.
func (t *Task) LastScanSucceeded() bool { return t.lastScanSucceeded.Load() }

// Wake makes a running Task start its next iteration without waiting for
// the interval. Wakes are coalesced.
func (t *Task) Wake() {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

// Run performs iterations until shutdown is signalled or ctx is done.
func (t *Task) Run(ctx context.Context) {
	t.state.CAS(int32(StateCreated), int32(StateInitialScanPending))
	log.Info("scanner started", zap.String("scanner", t.name), zap.Duration("interval", t.interval))
	defer func() {
		t.state.Store(int32(StateStopped))
		log.Info("scanner stopped", zap.String("scanner", t.name))
	}()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		if t.stopping(ctx) {
			return
		}
		t.RunOneIteration(ctx)

		select {
		case <-ctx.Done():
			return
		case <-t.coord.Done():
			return
		case <-ticker.C:
		case <-t.wake:
		}
	}
}

// RunOneIteration waits for the target to be located and scans each of its
// regions under the shared lock. It returns true only if every region was
// scanned successfully. Failures are logged and never propagated.
func (t *Task) RunOneIteration(ctx context.Context) bool {
	t.state.CAS(int32(StateCreated), int32(StateInitialScanPending))
	t.iterations.Inc()
	defer func() { t.lastScanAt.Store(time.Now().UnixNano()) }()

	t.target.WaitForLocation(ctx)
	if t.stopping(ctx) {
		metrics.ScannerScanCounter.WithLabelValues(t.name, metrics.ResultShutdown).Inc()
		t.lastScanSucceeded.Store(false)
		return false
	}

	names := t.target.Regions()
	if len(names) == 0 {
		metrics.ScannerScanCounter.WithLabelValues(t.name, metrics.ResultNoLocation).Inc()
		t.lastScanSucceeded.Store(false)
		return false
	}

	success := true
	for _, name := range names {
		if t.stopping(ctx) {
			metrics.ScannerScanCounter.WithLabelValues(t.name, metrics.ResultShutdown).Inc()
			success = false
			break
		}
		region, located, err := t.scanRegion(ctx, name)
		if !located {
			success = false
			continue
		}
		if err == nil {
			continue
		}
		success = false
		handler, ok := failureHandlers[KindOf(err)]
		if !ok {
			handler = failureHandlers[OtherFailure]
		}
		if handler(t, region, err) {
			break
		}
	}

	t.lastScanSucceeded.Store(success)
	if success && t.initialScanComplete.CAS(false, true) {
		t.state.CAS(int32(StateInitialScanPending), int32(StateSteadyState))
		metrics.ScannerInitialScanGauge.WithLabelValues(t.name).Set(1)
		log.Info("initial catalog scan complete", zap.String("scanner", t.name))
		if t.onInitialScan != nil {
			t.onInitialScan()
		}
	}
	return success
}

// scanRegion performs one scan attempt while holding the shared lock. The
// location is re-read under the lock since it may have changed while
// waiting for it.
func (t *Task) scanRegion(ctx context.Context, name string) (region RegionDescriptor, located bool, err error) {
	t.lock.Lock()
	defer t.lock.Unlock()

	loc := t.target.Location(name)
	if loc == nil {
		log.Info("catalog region not located, skipping scan",
			zap.String("scanner", t.name), zap.String("region", name))
		metrics.ScannerScanCounter.WithLabelValues(t.name, metrics.ResultNoLocation).Inc()
		return RegionDescriptor{Name: name}, false, nil
	}

	region = RegionDescriptor{Location: *loc, Name: name}
	start := time.Now()
	err = t.scan(ctx, region)
	metrics.ScannerScanDuration.WithLabelValues(t.name).Observe(time.Since(start).Seconds())
	if err == nil {
		metrics.ScannerScanCounter.WithLabelValues(t.name, metrics.ResultSuccess).Inc()
	}
	return region, true, err
}

func (t *Task) scan(ctx context.Context, region RegionDescriptor) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = OtherError(region.Name, fmt.Errorf("panic: %v", r))
		}
	}()
	return t.op.Scan(ctx, region)
}

func (t *Task) stopping(ctx context.Context) bool {
	return t.coord.IsShutdown() || ctx.Err() != nil
}

// Status is a point-in-time view of a Task.
type Status struct {
	Name                string    `json:"name"`
	State               string    `json:"state"`
	InitialScanComplete bool      `json:"initial_scan_complete"`
	LastScanSucceeded   bool      `json:"last_scan_succeeded"`
	Iterations          int64     `json:"iterations"`
	LastScanAt          time.Time `json:"last_scan_at,omitempty"`
}

// Status returns a snapshot of the Task.
func (t *Task) Status() Status {
	st := Status{
		Name:                t.name,
		State:               t.State().String(),
		InitialScanComplete: t.InitialScanComplete(),
		LastScanSucceeded:   t.LastScanSucceeded(),
		Iterations:          t.iterations.Load(),
	}
	if ns := t.lastScanAt.Load(); ns != 0 {
		st.LastScanAt = time.Unix(0, ns)
	}
	return st
}
