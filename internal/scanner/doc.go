// Package scanner implements the coordinator's periodic catalog scanners.
//
// # Overview
//
// A Task repeatedly scans one kind of catalog region. The root scanner reads
// the root region ("-ROOT-,,0"), which lists the meta regions. The meta
// scanner reads every online meta region, which list the user regions.
// Both run on their own goroutine and share one scan lock, so at most one
// catalog region is being scanned at any time.
//
//	        ┌──────────────┐   ┌──────────────┐
//	        │ root scanner │   │ meta scanner │
//	        └──────┬───────┘   └──────┬───────┘
//	               │    scan lock     │
//	               └───────┬──────────┘
//	                       ▼
//	               ScanOperation.Scan
//	                       │
//	          ┌────────────┴────────────┐
//	     IOFailure                 OtherFailure
//	  warn, CheckFileSystem        error log only
//
// # Iteration
//
// RunOneIteration waits for the target's location, then scans each region
// while holding the lock. The location is read again under the lock, and a
// fresh RegionDescriptor is built for every attempt. A scan is never retried
// within an iteration; the next tick is the retry.
//
// The first fully successful iteration completes the initial scan. The flag
// only moves from false to true, and Config.OnInitialScan runs exactly once.
// The coordinator uses that hook to let the meta scanner start.
//
// # Failures
//
// ScanOperation reports failures as *ScanError values of kind IOFailure or
// OtherFailure. An IO failure escalates to Coordinator.CheckFileSystem once
// per iteration, after the lock is released. Anything else, including a
// panic inside Scan or an unclassified error, is logged and the loop goes on.
//
// # Shutdown
//
// Shutdown is cooperative. A Task checks Coordinator.IsShutdown before
// taking the lock, and its waits also select on Coordinator.Done and the
// context. Run returns when shutdown is signalled or the context ends.
package scanner
