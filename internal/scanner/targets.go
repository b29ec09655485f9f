package scanner

import (
	"context"

	"github.com/dreamware/torua-master/internal/catalog"
	"github.com/dreamware/torua-master/internal/cluster"
)

const (
	RootScannerName = "root"
	MetaScannerName = "meta"
)

// NewRootScanner returns a Task scanning the root region, located through
// the coordinator's root location tracker.
func NewRootScanner(coord Coordinator, op ScanOperation, cfg Config) *Task {
	return NewTask(RootScannerName, coord, rootTarget{coord: coord}, op, cfg)
}

type rootTarget struct {
	coord Coordinator
}

func (r rootTarget) WaitForLocation(ctx context.Context) {
	r.coord.WaitForRootLocation(ctx)
}

func (r rootTarget) Regions() []string {
	return []string{catalog.RootRegionName}
}

func (r rootTarget) Location(name string) *cluster.ServerLocation {
	if name != catalog.RootRegionName {
		return nil
	}
	return r.coord.RootLocation()
}

// MetaLocator tracks the meta regions discovered by root scans.
type MetaLocator interface {
	// WaitForMetaRegions blocks until at least one meta region is online,
	// shutdown is signalled, or ctx is done.
	WaitForMetaRegions(ctx context.Context)
	// OnlineMetaRegions returns the names of the online meta regions.
	OnlineMetaRegions() []string
	// MetaRegionLocation returns where a meta region is served, nil if it
	// is no longer online.
	MetaRegionLocation(name string) *cluster.ServerLocation
}

// NewMetaScanner returns a Task scanning every online meta region. Each
// region is scanned under its own acquisition of the shared lock.
func NewMetaScanner(coord Coordinator, metas MetaLocator, op ScanOperation, cfg Config) *Task {
	return NewTask(MetaScannerName, coord, metaTarget{metas: metas}, op, cfg)
}

type metaTarget struct {
	metas MetaLocator
}

func (m metaTarget) WaitForLocation(ctx context.Context) {
	m.metas.WaitForMetaRegions(ctx)
}

func (m metaTarget) Regions() []string {
	return m.metas.OnlineMetaRegions()
}

func (m metaTarget) Location(name string) *cluster.ServerLocation {
	return m.metas.MetaRegionLocation(name)
}
