// Package region implements a catalog region as hosted by a region server:
// a named, ordered set of catalog rows on top of a storage.Store.
//
// # Overview
//
// The root region ("-ROOT-,,0") holds one row per meta region. Each meta
// region (".META.,<startkey>,<id>") holds one row per user region. Rows are
// keyed by the name of the region they describe, so a full scan returns
// them in region-name order.
//
//	┌─────────────────────────────────────┐
//	│            REGION                   │
//	├─────────────────────────────────────┤
//	│  Name   "-ROOT-,,0"                 │
//	│  State  online | closing | closed   │
//	│  Store  MemoryStore | SQLiteStore   │
//	│  Stats  scans, puts, deletes        │
//	└─────────────────────────────────────┘
//
// # Row validation
//
// PutRow rejects rows that do not belong in the region: the root region only
// lists meta regions and a meta region only lists user regions. Rows read
// back by Rows are decoded but not re-validated; the coordinator's scanner
// is responsible for noticing malformed catalog content.
//
// # Serving state
//
// A region that is closing or closed returns ErrNotServing for every
// operation. The coordinator treats that answer like any other remote
// failure and waits for its next rescan.
package region
