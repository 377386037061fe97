package shim

import (
	"context"
	"fmt"

	"github.com/containerd/containerd/errdefs"
	"github.com/containerd/containerd/runtime/v2/task"
)

func (s *Service) State(ctx context.Context, req *task.StateRequest) (*task.StateResponse, error) {
	if req.ExecID != "" {
		return nil, fmt.Errorf("exec: %w", errdefs.ErrNotImplemented)
	}

	i := s.instances.Get(req.ID)
	if i == nil {
		return nil, fmt.Errorf("state: %w", errdefs.ErrNotFound)
	}

	code, exitedAt := i.exit()
	return &task.StateResponse{
		ID:         req.ID,
		Bundle:     i.bundle,
		Stdin:      i.stdio.Stdin,
		Stdout:     i.stdio.Stdout,
		Stderr:     i.stdio.Stderr,
		Pid:        i.pid,
		Status:     i.getStatus(),
		ExitStatus: code,
		ExitedAt:   exitedAt,
	}, nil
}
