package coordinator

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/pingcap/log"
	"go.uber.org/zap"

	"github.com/dreamware/torua-master/internal/catalog"
	"github.com/dreamware/torua-master/internal/cluster"
	"github.com/dreamware/torua-master/internal/metrics"
	"github.com/dreamware/torua-master/internal/scanner"
)

// RemoteScanOperation scans a catalog region by reading its rows from the
// region server hosting it.
//
// Root region rows decide which meta regions are online. Meta region rows
// are recorded as the user region table. Rows naming a server that is not
// live are reported as unassigned; the scan never reassigns anything.
type RemoteScanOperation struct {
	master  *Master
	timeout time.Duration
}

// NewRemoteScanOperation returns an operation whose requests are bounded by timeout.
func NewRemoteScanOperation(master *Master, timeout time.Duration) *RemoteScanOperation {
	return &RemoteScanOperation{master: master, timeout: timeout}
}

// rowCounts tallies rows of one scanned region by assignment state.
type rowCounts struct {
	assigned, unassigned, offline, invalid int
}

// Scan implements scanner.ScanOperation.
func (o *RemoteScanOperation) Scan(ctx context.Context, region scanner.RegionDescriptor) error {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	var resp cluster.RowsResponse
	if err := cluster.GetJSON(ctx, rowsURL(region), &resp); err != nil {
		var decodeErr *cluster.DecodeError
		if errors.As(err, &decodeErr) {
			return scanner.OtherError(region.Name, err)
		}
		return scanner.IOError(region.Name, err)
	}
	if resp.StartCode != region.Location.StartCode {
		return scanner.IOError(region.Name, fmt.Errorf(
			"server %s answered with start code %q", region.Location, resp.StartCode))
	}
	if resp.Region != region.Name {
		return scanner.OtherError(region.Name, fmt.Errorf(
			"server %s answered for region %q", region.Location, resp.Region))
	}

	var counts rowCounts
	switch {
	case catalog.IsRootRegion(region.Name):
		counts = o.applyRootRows(region.Name, resp.Rows)
	case catalog.IsMetaRegion(region.Name):
		counts = o.applyMetaRows(region.Name, resp.Rows)
	default:
		return scanner.OtherError(region.Name, fmt.Errorf("%s is not a catalog region", region.Name))
	}

	metrics.CatalogRowsGauge.WithLabelValues(region.Name, "assigned").Set(float64(counts.assigned))
	metrics.CatalogRowsGauge.WithLabelValues(region.Name, "unassigned").Set(float64(counts.unassigned))
	metrics.CatalogRowsGauge.WithLabelValues(region.Name, "offline").Set(float64(counts.offline))
	log.Debug("catalog region scanned",
		zap.String("region", region.Name),
		zap.Stringer("server", region.Location),
		zap.Int("assigned", counts.assigned),
		zap.Int("unassigned", counts.unassigned),
		zap.Int("offline", counts.offline))

	if counts.invalid > 0 {
		return scanner.OtherError(region.Name, fmt.Errorf("%d invalid rows", counts.invalid))
	}
	return nil
}

func (o *RemoteScanOperation) applyRootRows(parent string, rows []cluster.CatalogRow) rowCounts {
	var counts rowCounts
	online := make(map[string]cluster.ServerLocation)
	for _, row := range rows {
		if !o.valid(parent, row) {
			counts.invalid++
			continue
		}
		state, loc := o.classify(parent, row)
		switch state {
		case "assigned":
			counts.assigned++
			online[row.Region] = loc
		case "offline":
			counts.offline++
		default:
			counts.unassigned++
		}
	}
	o.master.Registry().ReplaceOnlineMeta(online)
	return counts
}

func (o *RemoteScanOperation) applyMetaRows(parent string, rows []cluster.CatalogRow) rowCounts {
	var counts rowCounts
	regions := make([]UserRegion, 0, len(rows))
	for _, row := range rows {
		if !o.valid(parent, row) {
			counts.invalid++
			continue
		}
		state, _ := o.classify(parent, row)
		switch state {
		case "assigned":
			counts.assigned++
		case "offline":
			counts.offline++
		default:
			counts.unassigned++
		}
		regions = append(regions, UserRegion{CatalogRow: row, Live: state == "assigned"})
	}
	o.master.Registry().ReplaceUserRegions(parent, regions)
	return counts
}

func (o *RemoteScanOperation) valid(parent string, row cluster.CatalogRow) bool {
	if err := catalog.Validate(parent, row); err != nil {
		log.Warn("skipping invalid catalog row",
			zap.String("parent", parent), zap.String("row", row.Region), zap.Error(err))
		return false
	}
	return true
}

// classify reports whether row is offline, served by a live server, or unassigned.
func (o *RemoteScanOperation) classify(parent string, row cluster.CatalogRow) (string, cluster.ServerLocation) {
	if row.Offline {
		return "offline", cluster.ServerLocation{}
	}
	loc := cluster.ServerLocation{Addr: row.Server, StartCode: row.StartCode}
	if catalog.Assigned(row) && o.master.IsLive(loc) {
		return "assigned", loc
	}
	log.Info("catalog row not assigned to a live server",
		zap.String("parent", parent),
		zap.String("row", row.Region),
		zap.Stringer("server", loc))
	return "unassigned", loc
}

func rowsURL(region scanner.RegionDescriptor) string {
	addr := region.Location.Addr
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		addr = "http://" + addr
	}
	return strings.TrimRight(addr, "/") + "/regions/" + url.PathEscape(region.Name) + "/rows"
}
