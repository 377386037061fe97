// Package shim implements the containerd task service on top of an
// engine.Engine. Tasks run as goroutines of the shim process.
package shim

import (
	"context"
	"fmt"
	"os"

	"github.com/containerd/containerd/errdefs"
	"github.com/containerd/containerd/events"
	"github.com/containerd/containerd/log"
	"github.com/containerd/containerd/pkg/shutdown"
	"github.com/containerd/containerd/runtime/v2/task"
	"github.com/containerd/ttrpc"
	"github.com/cpuguy83/runwasi/engine"
	ptypes "github.com/gogo/protobuf/types"
)

var empty = &ptypes.Empty{}

type Service struct {
	// context the service was created with, carries the namespace for
	// events published outside of a request.
	ctx             context.Context
	publisher       events.Publisher
	shutdownService shutdown.Service

	engine engine.Engine

	instances *instanceStore
}

var _ task.TaskService = &Service{}

// NewService returns a task service running tasks on eng. The service owns
// eng and closes it on shutdown.
func NewService(ctx context.Context, eng engine.Engine, publisher events.Publisher, shutdownService shutdown.Service) *Service {
	s := &Service{
		ctx:             ctx,
		publisher:       publisher,
		shutdownService: shutdownService,
		engine:          eng,
		instances:       newInstanceStore(),
	}
	shutdownService.RegisterCallback(func(context.Context) error {
		return eng.Close()
	})
	return s
}

func (s *Service) Connect(ctx context.Context, req *task.ConnectRequest) (_ *task.ConnectResponse, retErr error) {
	defer func() { retErr = wrapErr(retErr, "connect") }()

	i := s.instances.Get(req.ID)
	if i == nil {
		return nil, errdefs.ErrNotFound
	}

	return &task.ConnectResponse{
		ShimPid: uint32(os.Getpid()),
		TaskPid: i.pid,
		Version: s.engine.Name(),
	}, nil
}

func (s *Service) Shutdown(ctx context.Context, req *task.ShutdownRequest) (*ptypes.Empty, error) {
	if s.instances.Len() > 0 {
		return empty, nil
	}
	s.shutdownService.Shutdown()
	return empty, nil
}

func (s *Service) RegisterTTRPC(server *ttrpc.Server) error {
	log.G(s.ctx).WithField("engine", s.engine.Name()).Debug("registering wasm task service")
	task.RegisterTaskService(server, s)
	return nil
}

func (s *Service) publish(topic string, event events.Event) {
	if err := s.publisher.Publish(s.ctx, topic, event); err != nil {
		log.G(s.ctx).WithError(err).WithField("topic", topic).Warn("failed to publish event")
	}
}

func wrapErr(err error, op string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}
