package shim

import (
	"context"
	"fmt"

	"github.com/containerd/containerd/errdefs"
	"github.com/containerd/containerd/runtime/v2/task"
)

func (s *Service) Wait(ctx context.Context, req *task.WaitRequest) (_ *task.WaitResponse, retErr error) {
	defer func() { retErr = wrapErr(retErr, "wait") }()

	if req.ExecID != "" {
		return nil, fmt.Errorf("exec: %w", errdefs.ErrNotImplemented)
	}

	i := s.instances.Get(req.ID)
	if i == nil {
		return nil, errdefs.ErrNotFound
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-i.done:
	}

	code, exitedAt := i.exit()
	return &task.WaitResponse{
		ExitStatus: code,
		ExitedAt:   exitedAt,
	}, nil
}
