package shim

import (
	"context"
	"sync"
	"time"

	taskapi "github.com/containerd/containerd/api/types/task"
	"github.com/cpuguy83/runwasi/engine"
)

type instance struct {
	id     string
	bundle string
	stdio  engine.Stdio
	rctx   engine.RuntimeContext
	pid    uint32

	// rootfs was mounted by the shim and must be unmounted on delete.
	mounted bool

	ctx    context.Context
	cancel func()
	done   chan struct{}

	mu       sync.Mutex
	status   taskapi.Status
	exitCode uint32
	exitedAt time.Time
}

func (i *instance) getStatus() taskapi.Status {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.status
}

// start moves a created instance to running. It reports false when the
// instance was started or stopped already.
func (i *instance) start() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.status != taskapi.StatusCreated {
		return false
	}
	i.status = taskapi.StatusRunning
	return true
}

// setExited records the exit status once and wakes up waiters.
func (i *instance) setExited(code uint32) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.status == taskapi.StatusStopped {
		return false
	}
	i.status = taskapi.StatusStopped
	i.exitCode = code
	i.exitedAt = time.Now()
	i.cancel()
	close(i.done)
	return true
}

func (i *instance) exit() (uint32, time.Time) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.exitCode, i.exitedAt
}

type instanceStore struct {
	mu sync.Mutex
	ls map[string]*instance
}

func newInstanceStore() *instanceStore {
	return &instanceStore{
		ls: make(map[string]*instance),
	}
}

func (s *instanceStore) Get(id string) *instance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ls[id]
}

func (s *instanceStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ls, id)
}

// Add stores i unless the id is taken.
func (s *instanceStore) Add(id string, i *instance) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ls[id]; ok {
		return false
	}
	s.ls[id] = i
	return true
}

func (s *instanceStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ls)
}
