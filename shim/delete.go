package shim

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	eventstypes "github.com/containerd/containerd/api/events"
	taskapi "github.com/containerd/containerd/api/types/task"
	"github.com/containerd/containerd/errdefs"
	"github.com/containerd/containerd/mount"
	"github.com/containerd/containerd/runtime"
	"github.com/containerd/containerd/runtime/v2/task"
	"golang.org/x/sys/unix"
)

func (s *Service) Delete(ctx context.Context, req *task.DeleteRequest) (_ *task.DeleteResponse, retErr error) {
	defer func() { retErr = wrapErr(retErr, "delete") }()

	if req.ExecID != "" {
		return nil, fmt.Errorf("exec: %w", errdefs.ErrNotImplemented)
	}

	i := s.instances.Get(req.ID)
	if i == nil {
		return nil, errdefs.ErrNotFound
	}

	switch i.getStatus() {
	case taskapi.StatusRunning, taskapi.StatusPaused, taskapi.StatusPausing:
		return nil, fmt.Errorf("%w: cannot delete running process", errdefs.ErrFailedPrecondition)
	case taskapi.StatusCreated:
		s.exited(i, 128+uint32(syscall.SIGKILL))
	}

	if i.mounted {
		if err := mount.UnmountAll(filepath.Join(i.bundle, "rootfs"), unix.MNT_DETACH); err != nil {
			return nil, fmt.Errorf("unmount bundle: %w", err)
		}
	}

	if err := os.RemoveAll(i.bundle); err != nil {
		return nil, err
	}

	s.instances.Delete(req.ID)

	code, exitedAt := i.exit()
	s.publish(runtime.TaskDeleteEventTopic, &eventstypes.TaskDelete{
		ContainerID: req.ID,
		ID:          req.ID,
		Pid:         i.pid,
		ExitStatus:  code,
		ExitedAt:    exitedAt,
	})

	return &task.DeleteResponse{
		Pid:        i.pid,
		ExitStatus: code,
		ExitedAt:   exitedAt,
	}, nil
}
