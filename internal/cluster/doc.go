// Package cluster holds the wire types shared by the coordinator and the
// region servers, and the small JSON-over-HTTP helpers they talk through.
//
// # Topology
//
//	          ┌───────────────┐
//	          │  Coordinator  │
//	          │  - registry   │
//	          │  - scanners   │
//	          │  - health mon │
//	          └───────┬───────┘
//	                  │
//	     ┌────────────┼────────────┐
//	     │            │            │
//	┌────▼────┐  ┌────▼────┐  ┌────▼────┐
//	│ node-1  │  │ node-2  │  │ node-3  │
//	│ -ROOT-  │  │ .META.  │  │ .META.  │
//	└─────────┘  └─────────┘  └─────────┘
//
// # Protocol
//
// Registration (POST /register on the coordinator): a region server sends its
// NodeInfo and the names of the regions it hosts. NodeInfo.StartCode changes
// every time the server process starts, so a ServerLocation names one
// process lifetime rather than an address.
//
// Catalog scans (GET /regions/{name}/rows on a region server): the
// coordinator reads every row of a root or meta region. The response carries
// the serving StartCode so the scanner can tell it reached the instance it
// expected.
//
// Health checks (GET /health on a region server).
//
// # Errors
//
// PostJSON and GetJSON return transport failures as is. A non-2xx answer is
// a *StatusError; GetJSON reports an unreadable body as a *DecodeError.
// Callers use these to tell a server they could not reach from a server that
// answered with garbage.
package cluster
