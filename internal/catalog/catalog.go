// Package catalog names the cluster's bookkeeping regions and defines how
// their rows are encoded and checked.
//
// The catalog has two levels. The single root region lists every meta
// region; each meta region lists a range of user regions. A coordinator
// must know where the root region lives before it can find anything else.
package catalog

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pingcap/errors"

	"github.com/dreamware/torua-master/internal/cluster"
)

const (
	// RootTableName is the table that holds the root region.
	RootTableName = "-ROOT-"
	// MetaTableName is the table whose regions are listed in the root region.
	MetaTableName = ".META."

	// RootRegionName is the well-known name of the one root region.
	RootRegionName = "-ROOT-,,0"
	// FirstMetaRegionName is the name of the meta region covering the start
	// of the keyspace.
	FirstMetaRegionName = ".META.,,1"
)

// ErrInvalidRow is returned when a catalog row fails validation.
var ErrInvalidRow = errors.New("invalid catalog row")

// RegionName builds a region name from its table, start key and id.
func RegionName(table, startKey string, id int64) string {
	return fmt.Sprintf("%s,%s,%d", table, startKey, id)
}

// TableOf returns the table part of a region name.
func TableOf(regionName string) string {
	if i := strings.Index(regionName, ","); i >= 0 {
		return regionName[:i]
	}
	return regionName
}

// IsRootRegion reports whether name is the root region.
func IsRootRegion(name string) bool {
	return name == RootRegionName
}

// IsMetaRegion reports whether name is a region of the meta table.
func IsMetaRegion(name string) bool {
	return TableOf(name) == MetaTableName
}

// IsCatalogRegion reports whether name is the root region or a meta region.
func IsCatalogRegion(name string) bool {
	return IsRootRegion(name) || IsMetaRegion(name)
}

// EncodeRow serializes a row for storage.
func EncodeRow(row cluster.CatalogRow) ([]byte, error) {
	data, err := json.Marshal(row)
	return data, errors.Trace(err)
}

// DecodeRow parses a stored row.
func DecodeRow(data []byte) (cluster.CatalogRow, error) {
	var row cluster.CatalogRow
	if err := json.Unmarshal(data, &row); err != nil {
		return row, errors.Annotate(err, "decode catalog row")
	}
	return row, nil
}

// Validate checks that row is well formed for the catalog region it was
// read from. Root rows must describe meta regions; meta rows must describe
// user regions.
func Validate(parent string, row cluster.CatalogRow) error {
	if row.Region == "" {
		return errors.Annotate(ErrInvalidRow, "empty region name")
	}
	if TableOf(row.Region) != row.Table {
		return errors.Annotatef(ErrInvalidRow, "region %s does not belong to table %q", row.Region, row.Table)
	}
	if row.EndKey != "" && row.StartKey >= row.EndKey {
		return errors.Annotatef(ErrInvalidRow, "region %s has start key %q >= end key %q", row.Region, row.StartKey, row.EndKey)
	}
	if row.Server == "" && row.StartCode != "" {
		return errors.Annotatef(ErrInvalidRow, "region %s has a start code but no server", row.Region)
	}
	switch {
	case IsRootRegion(parent):
		if row.Table != MetaTableName {
			return errors.Annotatef(ErrInvalidRow, "root region lists non-meta region %s", row.Region)
		}
	case IsMetaRegion(parent):
		if row.Table == MetaTableName || row.Table == RootTableName {
			return errors.Annotatef(ErrInvalidRow, "meta region lists catalog region %s", row.Region)
		}
	default:
		return errors.Annotatef(ErrInvalidRow, "%s is not a catalog region", parent)
	}
	return nil
}

// Assigned reports whether row names a server.
func Assigned(row cluster.CatalogRow) bool {
	return row.Server != ""
}
