// Package coordinator holds the coordinator's view of the cluster: the
// registered region servers, where each catalog region lives, and the
// background machinery that keeps that view honest.
//
// # Overview
//
// The coordinator must know where the root region is before it can find the
// meta regions, and where the meta regions are before it can find user
// regions. Region servers announce the regions they host when they
// register. The catalog scanners then read the root and meta regions
// periodically and reconcile what they list with the servers that are
// actually alive.
//
// # Architecture
//
//	┌──────────────────────────────────────────────┐
//	│                 COORDINATOR                  │
//	├──────────────────────────────────────────────┤
//	│  Master                                      │
//	│   - registered nodes, shutdown latch         │
//	│   - root / meta location waits               │
//	│                                              │
//	│  RegionRegistry                              │
//	│   - region → server assignments              │
//	│   - online meta regions, user regions        │
//	│                                              │
//	│  HealthMonitor ──unhealthy──▶ ServerDied     │
//	│  FileSystemChecker ──failed──▶ Shutdown      │
//	│  RemoteScanOperation ◀── root/meta scanners  │
//	└──────────────────────────────────────────────┘
//
// # Failure Handling
//
// A region server that fails its health checks is declared dead and every
// location it served is cleared; scanners waiting on those locations block
// until the region is announced again. A scan that fails with an I/O error
// makes the coordinator probe its data directory. If the directory cannot
// be written the coordinator shuts down, since it can no longer record
// anything durable.
//
// # Thread Safety
//
// All exported types are safe for concurrent use. Waits select on the
// shutdown latch so they never outlive a shutdown.
package coordinator
