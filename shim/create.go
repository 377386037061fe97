package shim

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	eventstypes "github.com/containerd/containerd/api/events"
	taskapi "github.com/containerd/containerd/api/types/task"
	"github.com/containerd/containerd/errdefs"
	"github.com/containerd/containerd/log"
	"github.com/containerd/containerd/mount"
	"github.com/containerd/containerd/runtime"
	"github.com/containerd/containerd/runtime/v2/task"
	"github.com/cpuguy83/runwasi/engine"
	"github.com/cpuguy83/runwasi/oci"
	"golang.org/x/sys/unix"
)

func (s *Service) Create(ctx context.Context, req *task.CreateTaskRequest) (_ *task.CreateTaskResponse, retErr error) {
	if s.instances.Get(req.ID) != nil {
		return nil, fmt.Errorf("create: task %s: %w", req.ID, errdefs.ErrAlreadyExists)
	}

	defer func() {
		if retErr != nil {
			os.RemoveAll(req.Bundle)
			retErr = wrapErr(retErr, "create")
		}
	}()

	if req.Checkpoint != "" || req.ParentCheckpoint != "" {
		return nil, fmt.Errorf("checkpoint: %w", errdefs.ErrNotImplemented)
	}

	if req.Terminal {
		return nil, fmt.Errorf("terminal: %w", errdefs.ErrNotImplemented)
	}

	spec, err := oci.ReadSpec(req.Bundle)
	if err != nil {
		return nil, err
	}

	rootfs := filepath.Join(req.Bundle, "rootfs")
	if len(req.Rootfs) > 0 {
		mounts := make([]mount.Mount, 0, len(req.Rootfs))
		for _, m := range req.Rootfs {
			mounts = append(mounts, mount.Mount{
				Type:    m.Type,
				Source:  m.Source,
				Options: m.Options,
			})
		}
		if err := os.MkdirAll(rootfs, 0o711); err != nil {
			return nil, err
		}
		if err := mount.All(mounts, rootfs); err != nil {
			return nil, fmt.Errorf("mount rootfs: %w", err)
		}
		defer func() {
			if retErr != nil {
				mount.UnmountAll(rootfs, unix.MNT_DETACH)
			}
		}()
	}

	rctx, err := oci.NewRuntimeContext(spec, req.Bundle, nil)
	if err != nil {
		return nil, err
	}

	iCtx, cancel := context.WithCancel(s.ctx)
	i := &instance{
		id:     req.ID,
		bundle: req.Bundle,
		stdio: engine.Stdio{
			Stdin:  req.Stdin,
			Stdout: req.Stdout,
			Stderr: req.Stderr,
		},
		rctx:    rctx,
		pid:     uint32(os.Getpid()),
		mounted: len(req.Rootfs) > 0,
		ctx:     iCtx,
		cancel:  cancel,
		done:    make(chan struct{}),
		status:  taskapi.StatusCreated,
	}

	if !s.instances.Add(req.ID, i) {
		cancel()
		return nil, fmt.Errorf("task %s: %w", req.ID, errdefs.ErrAlreadyExists)
	}

	log.G(ctx).WithField("id", req.ID).WithField("entrypoint", rctx.String()).Info("task created")

	s.publish(runtime.TaskCreateEventTopic, &eventstypes.TaskCreate{
		ContainerID: req.ID,
		Bundle:      req.Bundle,
		Rootfs:      req.Rootfs,
		IO: &eventstypes.TaskIO{
			Stdin:  req.Stdin,
			Stdout: req.Stdout,
			Stderr: req.Stderr,
		},
		Pid: i.pid,
	})

	return &task.CreateTaskResponse{Pid: i.pid}, nil
}
