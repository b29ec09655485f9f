package scanner

import (
	"context"
	"io"
	"sort"
	"sync"
	"testing"

	"github.com/pingcap/log"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dreamware/torua-master/internal/cluster"
)

var testLocation = cluster.ServerLocation{Addr: "http://127.0.0.1:8081", StartCode: "sc-1"}

// fakeCoordinator is a scriptable Coordinator.
type fakeCoordinator struct {
	mu sync.Mutex
	// rootScript, if set, decides the answer of the n-th RootLocation call.
	rootScript func(call int) *cluster.ServerLocation
	rootCalls  int
	root       *cluster.ServerLocation

	// blockWait makes WaitForRootLocation block until shutdown or ctx done.
	blockWait bool
	waiting   chan struct{}

	shutdown atomic.Bool
	done     chan struct{}
	once     sync.Once

	fsChecks atomic.Int32
}

func newFakeCoordinator() *fakeCoordinator {
	loc := testLocation
	return &fakeCoordinator{
		root:    &loc,
		done:    make(chan struct{}),
		waiting: make(chan struct{}, 1),
	}
}

func (f *fakeCoordinator) WaitForRootLocation(ctx context.Context) {
	if !f.blockWait {
		return
	}
	select {
	case f.waiting <- struct{}{}:
	default:
	}
	select {
	case <-f.done:
	case <-ctx.Done():
	}
}

func (f *fakeCoordinator) RootLocation() *cluster.ServerLocation {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rootCalls++
	if f.rootScript != nil {
		return f.rootScript(f.rootCalls)
	}
	return f.root
}

func (f *fakeCoordinator) IsShutdown() bool { return f.shutdown.Load() }

func (f *fakeCoordinator) Done() <-chan struct{} { return f.done }

func (f *fakeCoordinator) CheckFileSystem() { f.fsChecks.Inc() }

func (f *fakeCoordinator) Shutdown() {
	f.once.Do(func() {
		f.shutdown.Store(true)
		close(f.done)
	})
}

// fakeMetas is a MetaLocator over a fixed map of regions.
type fakeMetas struct {
	mu      sync.Mutex
	regions map[string]*cluster.ServerLocation
}

func newFakeMetas(names ...string) *fakeMetas {
	m := &fakeMetas{regions: make(map[string]*cluster.ServerLocation)}
	for _, n := range names {
		loc := testLocation
		m.regions[n] = &loc
	}
	return m
}

func (m *fakeMetas) WaitForMetaRegions(context.Context) {}

func (m *fakeMetas) OnlineMetaRegions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.regions))
	for n, loc := range m.regions {
		if loc != nil {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names
}

func (m *fakeMetas) MetaRegionLocation(name string) *cluster.ServerLocation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.regions[name]
}

func (m *fakeMetas) drop(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.regions[name] = nil
}

// countingLock records acquisitions and whether it is currently held.
type countingLock struct {
	mu       sync.Mutex
	acquired atomic.Int32
	held     atomic.Bool
}

func (l *countingLock) Lock() {
	l.mu.Lock()
	l.acquired.Inc()
	l.held.Store(true)
}

func (l *countingLock) Unlock() {
	l.held.Store(false)
	l.mu.Unlock()
}

// recordingOp is a ScanOperation returning scripted results.
type recordingOp struct {
	mu      sync.Mutex
	scanned []RegionDescriptor
	result  func(call int, region RegionDescriptor) error
	// lock, if set, is asserted to be held during every scan.
	lock   *countingLock
	unheld atomic.Int32
}

func (o *recordingOp) Scan(_ context.Context, region RegionDescriptor) error {
	if o.lock != nil && !o.lock.held.Load() {
		o.unheld.Inc()
	}
	o.mu.Lock()
	o.scanned = append(o.scanned, region)
	call := len(o.scanned)
	o.mu.Unlock()
	if o.result == nil {
		return nil
	}
	return o.result(call, region)
}

func (o *recordingOp) calls() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.scanned)
}

func (o *recordingOp) names() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, 0, len(o.scanned))
	for _, r := range o.scanned {
		out = append(out, r.Name)
	}
	return out
}

// observeLogs swaps the global logger for one recording every entry.
func observeLogs(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	log.ReplaceGlobals(zap.New(core), &log.ZapProperties{
		Core:   core,
		Syncer: zapcore.AddSync(io.Discard),
		Level:  zap.NewAtomicLevelAt(zapcore.DebugLevel),
	})
	t.Cleanup(func() {
		lg, props, err := log.InitLogger(&log.Config{Level: "info"})
		if err == nil {
			log.ReplaceGlobals(lg, props)
		}
	})
	return logs
}
