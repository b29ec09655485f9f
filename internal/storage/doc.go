// Package storage provides the row stores behind hosted regions.
//
// # Overview
//
// A region server keeps the rows of each catalog region it hosts in a
// Store. Two implementations exist:
//
//	┌─────────────────────────────────────┐
//	│            region.Region            │
//	└─────────────────────────────────────┘
//	                 │
//	                 ▼
//	┌─────────────────────────────────────┐
//	│           Store interface           │
//	└─────────────────────────────────────┘
//	          │                 │
//	          ▼                 ▼
//	   ┌─────────────┐   ┌─────────────┐
//	   │ MemoryStore │   │ SQLiteStore │
//	   └─────────────┘   └─────────────┘
//
// MemoryStore keeps values in a map guarded by an RWMutex and is used by
// tests and ephemeral nodes. SQLiteStore keeps one table per database
// file (modernc.org/sqlite, no cgo) so a region server restarted on the
// same data directory serves the same catalog.
//
// # Contract
//
//   - Get returns ErrKeyNotFound for a missing key
//   - Put overwrites; a nil value is stored as an empty value
//   - Delete is idempotent
//   - List returns keys in ascending byte order, which is the order rows
//     are scanned in
//   - All methods are safe for concurrent use
package storage
