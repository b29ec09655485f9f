package coordinator

import (
	"os"
	"sync"
	"time"

	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/dreamware/torua-master/internal/metrics"
)

const probePattern = ".fscheck-*"

// FileSystemChecker verifies that a directory can still be written.
//
// Checks are triggered by scan failures, which can arrive in bursts; at most
// one probe runs per interval and throttled calls report the last result.
type FileSystemChecker struct {
	dir     string
	limiter *rate.Limiter

	mu      sync.Mutex
	lastErr error
}

// NewFileSystemChecker returns a checker for dir probing at most once per interval.
func NewFileSystemChecker(dir string, interval time.Duration) *FileSystemChecker {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &FileSystemChecker{
		dir:     dir,
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Check probes the directory and returns an error if it is not writable.
func (c *FileSystemChecker) Check() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.limiter.Allow() {
		metrics.FileSystemCheckCounter.WithLabelValues("throttled").Inc()
		return c.lastErr
	}

	c.lastErr = c.probe()
	if c.lastErr != nil {
		metrics.FileSystemCheckCounter.WithLabelValues("failed").Inc()
		log.Warn("filesystem probe failed", zap.String("dir", c.dir), zap.Error(c.lastErr))
		return c.lastErr
	}
	metrics.FileSystemCheckCounter.WithLabelValues("ok").Inc()
	return nil
}

func (c *FileSystemChecker) probe() error {
	f, err := os.CreateTemp(c.dir, probePattern)
	if err != nil {
		return errors.Annotatef(err, "create probe in %s", c.dir)
	}
	name := f.Name()
	defer os.Remove(name)

	if _, err := f.Write([]byte("ok")); err != nil {
		f.Close()
		return errors.Annotatef(err, "write probe %s", name)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return errors.Annotatef(err, "sync probe %s", name)
	}
	if err := f.Close(); err != nil {
		return errors.Annotatef(err, "close probe %s", name)
	}
	return errors.Annotatef(os.Remove(name), "remove probe %s", name)
}
