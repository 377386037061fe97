package shim

import (
	"context"
	"fmt"

	eventstypes "github.com/containerd/containerd/api/events"
	"github.com/containerd/containerd/errdefs"
	"github.com/containerd/containerd/log"
	"github.com/containerd/containerd/runtime"
	"github.com/containerd/containerd/runtime/v2/task"
)

// exitCodeError is reported for guests that could not be run at all.
const exitCodeError = 1

func (s *Service) Start(ctx context.Context, req *task.StartRequest) (_ *task.StartResponse, retErr error) {
	defer func() { retErr = wrapErr(retErr, "start") }()

	if req.ExecID != "" {
		return nil, fmt.Errorf("exec: %w", errdefs.ErrNotImplemented)
	}

	i := s.instances.Get(req.ID)
	if i == nil {
		return nil, errdefs.ErrNotFound
	}

	if !i.start() {
		return nil, fmt.Errorf("task %s is %s: %w", req.ID, i.getStatus(), errdefs.ErrFailedPrecondition)
	}

	go s.run(i)

	s.publish(runtime.TaskStartEventTopic, &eventstypes.TaskStart{
		ContainerID: req.ID,
		Pid:         i.pid,
	})

	return &task.StartResponse{Pid: i.pid}, nil
}

func (s *Service) run(i *instance) {
	logger := log.G(i.ctx).WithField("id", i.id).WithField("engine", s.engine.Name())
	logger.Info("task started")

	code, err := s.engine.RunWasi(i.ctx, i.rctx, i.stdio)
	if err != nil {
		logger.WithError(err).Error("task failed")
		code = exitCodeError
	}

	s.exited(i, uint32(code))
	logger.WithField("exit_code", code).Info("task exited")
}

func (s *Service) exited(i *instance, code uint32) {
	if !i.setExited(code) {
		return
	}
	code, exitedAt := i.exit()
	s.publish(runtime.TaskExitEventTopic, &eventstypes.TaskExit{
		ContainerID: i.id,
		ID:          i.id,
		Pid:         i.pid,
		ExitStatus:  code,
		ExitedAt:    exitedAt,
	})
}
