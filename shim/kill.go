package shim

import (
	"context"
	"fmt"
	"syscall"

	taskapi "github.com/containerd/containerd/api/types/task"
	"github.com/containerd/containerd/errdefs"
	"github.com/containerd/containerd/runtime/v2/task"
	ptypes "github.com/gogo/protobuf/types"
)

// Kill stops the task. Guests cannot handle signals, so SIGKILL and SIGTERM
// both cancel the running invocation. The engine only observes the
// cancellation when its runtime is configured to be interruptible.
func (s *Service) Kill(ctx context.Context, req *task.KillRequest) (_ *ptypes.Empty, retErr error) {
	defer func() { retErr = wrapErr(retErr, "kill") }()

	if req.ExecID != "" {
		return nil, fmt.Errorf("exec: %w", errdefs.ErrNotImplemented)
	}

	switch syscall.Signal(req.Signal) {
	case syscall.SIGKILL, syscall.SIGTERM:
	default:
		return nil, fmt.Errorf("signal %d: %w", req.Signal, errdefs.ErrNotImplemented)
	}

	i := s.instances.Get(req.ID)
	if i == nil {
		return nil, errdefs.ErrNotFound
	}

	switch i.getStatus() {
	case taskapi.StatusStopped:
		return nil, fmt.Errorf("process already finished: %w", errdefs.ErrNotFound)
	case taskapi.StatusCreated:
		// never started, there is nothing to interrupt
		s.exited(i, 128+req.Signal)
	default:
		i.cancel()
	}

	return empty, nil
}
