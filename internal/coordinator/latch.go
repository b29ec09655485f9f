package coordinator

import (
	"sync"

	"go.uber.org/atomic"
)

// Latch is a one-way flag. Once set it stays set, and its Done channel is
// closed so waiters can select on it.
type Latch struct {
	set  atomic.Bool
	once sync.Once
	done chan struct{}
}

// NewLatch returns an unset latch.
func NewLatch() *Latch {
	return &Latch{done: make(chan struct{})}
}

// Set sets the latch. It reports whether this call was the one that set it.
func (l *Latch) Set() bool {
	first := false
	l.once.Do(func() {
		l.set.Store(true)
		close(l.done)
		first = true
	})
	return first
}

// IsSet reports whether the latch has been set.
func (l *Latch) IsSet() bool { return l.set.Load() }

// Done is closed when the latch is set.
func (l *Latch) Done() <-chan struct{} { return l.done }

// signal is a resettable readiness flag. Waiters receive from the channel
// returned by wait, which is closed while the flag is up. Lowering the flag
// installs a fresh channel. Callers hold their own lock around all methods.
type signal struct {
	ch    chan struct{}
	ready bool
}

func newSignal() signal {
	return signal{ch: make(chan struct{})}
}

func (s *signal) raise() {
	if !s.ready {
		s.ready = true
		close(s.ch)
	}
}

func (s *signal) lower() {
	if s.ready {
		s.ready = false
		s.ch = make(chan struct{})
	}
}

func (s *signal) wait() <-chan struct{} { return s.ch }
