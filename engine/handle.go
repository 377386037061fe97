package engine

import (
	"errors"
	"sync"
)

// ErrHandleClosed is returned when using a released Handle.
var ErrHandleClosed = errors.New("runtime handle is closed")

// Singleton holds at most one live runtime of type T for the process.
//
// The runtime is created by the first Acquire and torn down when the last
// Handle referring to it is closed. A later Acquire creates a new one.
type Singleton[T any] struct {
	mu  sync.Mutex
	cur *shared[T]
}

type shared[T any] struct {
	owner    *Singleton[T]
	value    T
	key      string
	refs     int
	shutdown func() error
}

// Acquire returns a handle to the live runtime, creating it with create if
// there is none. key describes the configuration the runtime was created
// with; acquiring a live runtime with a different key fails.
func (s *Singleton[T]) Acquire(key string, create func() (T, func() error, error)) (*Handle[T], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cur != nil {
		if s.cur.key != key {
			return nil, errors.New("runtime already initialized with a different configuration")
		}
		s.cur.refs++
		return &Handle[T]{s: s.cur}, nil
	}

	v, shutdown, err := create()
	if err != nil {
		return nil, err
	}
	s.cur = &shared[T]{owner: s, value: v, key: key, refs: 1, shutdown: shutdown}
	return &Handle[T]{s: s.cur}, nil
}

// Live reports whether a runtime is currently initialized.
func (s *Singleton[T]) Live() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur != nil
}

// Handle is one reference to a shared runtime.
type Handle[T any] struct {
	mu sync.Mutex
	s  *shared[T]
}

// Get returns the runtime. It must not be used after Close.
func (h *Handle[T]) Get() T {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.s == nil {
		var zero T
		return zero
	}
	return h.s.value
}

// Clone returns a new reference to the same runtime.
func (h *Handle[T]) Clone() (*Handle[T], error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.s == nil {
		return nil, ErrHandleClosed
	}
	o := h.s.owner
	o.mu.Lock()
	defer o.mu.Unlock()
	h.s.refs++
	return &Handle[T]{s: h.s}, nil
}

// Close drops this reference. The runtime shuts down with the last one.
func (h *Handle[T]) Close() error {
	h.mu.Lock()
	s := h.s
	h.s = nil
	h.mu.Unlock()
	if s == nil {
		return nil
	}

	o := s.owner
	o.mu.Lock()
	s.refs--
	last := s.refs == 0
	if last && o.cur == s {
		o.cur = nil
	}
	o.mu.Unlock()

	if last && s.shutdown != nil {
		return s.shutdown()
	}
	return nil
}
