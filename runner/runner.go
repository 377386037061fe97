// Package runner drives one guest invocation through an embedded runtime:
// load, redirect stdio, instantiate, resolve, invoke.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/containerd/containerd/log"
	"github.com/cpuguy83/runwasi/engine"
	"github.com/cpuguy83/runwasi/wasi"
	"github.com/sirupsen/logrus"
)

// Runtime is the part of an embedded runtime the runner needs.
type Runtime interface {
	Name() string
	// Load validates and compiles a module. Errors are engine.ErrLoad.
	Load(ctx context.Context, src []byte) (Module, error)
}

// PrecompiledLoader is implemented by runtimes that load the artifacts of
// Engine.Precompile.
type PrecompiledLoader interface {
	// LoadPrecompiled loads a host supplied artifact. Errors are
	// engine.ErrLoad.
	LoadPrecompiled(ctx context.Context, artifact []byte) (Module, error)
}

// ExitError is returned by Module.Instantiate when the guest exits while
// the module is being started.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("guest exited with status %d during instantiation", e.Code)
}

// Module is a loaded module owned by one invocation.
type Module interface {
	// Instantiate creates a fresh environment with WASI bound to wctx and
	// streams. Errors are engine.ErrResource, a fault in the module start
	// function is engine.ErrTrap and an exit from it is an *ExitError.
	Instantiate(ctx context.Context, wctx *wasi.Context, streams *engine.Streams) (Environment, error)
	Close(ctx context.Context) error
}

// Environment is a single-use instance of a Module.
type Environment interface {
	// Resolve finds an exported () -> () function. Errors are
	// engine.ErrLookup.
	Resolve(name string) (Function, error)
	Close(ctx context.Context) error
}

// Function is a resolved entrypoint.
type Function interface {
	// Call runs the guest. A WASI exit returns its code, a guest fault
	// returns an engine.ErrTrap error.
	Call(ctx context.Context) (int, error)
}

type Options struct {
	// InheritEnv passes the current process environment to the guest.
	InheritEnv bool
	// ApplyRlimits sets the guest rlimits on the current process.
	ApplyRlimits bool
}

// Run executes the entrypoint of rctx on rt.
func Run(ctx context.Context, rt Runtime, rctx engine.RuntimeContext, stdio engine.Stdio, opts Options) (int, error) {
	ep := rctx.Entrypoint()
	fn := ep.Func
	if fn == "" {
		fn = engine.DefaultFunc
	}
	logger := log.G(ctx).WithFields(logrus.Fields{
		"engine": rt.Name(),
		"module": ep.Name,
		"func":   fn,
	})

	logger.Info("setting up wasi")
	var envs []string
	if opts.InheritEnv {
		envs = os.Environ()
	}

	logger.Debug("building wasi context")
	wctx, err := wasi.Build(rctx, envs)
	if err != nil {
		return 0, err
	}

	mod, err := load(ctx, logger, rt, ep)
	if err != nil {
		return 0, err
	}
	defer closeLogged(ctx, logger, "module", mod.Close)

	if opts.ApplyRlimits {
		if err := wctx.ApplyRlimits(); err != nil {
			return 0, err
		}
	}

	streams, err := stdio.Redirect()
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := streams.Close(); err != nil {
			logger.WithError(err).Warn("error closing stdio")
		}
	}()

	env, err := mod.Instantiate(ctx, wctx, streams)
	if err != nil {
		return exitStatus(logger, 0, err)
	}
	defer closeLogged(ctx, logger, "environment", env.Close)

	f, err := env.Resolve(fn)
	if err != nil {
		return 0, err
	}

	logger.Debug("executing wasm function")
	code, err := f.Call(ctx)
	return exitStatus(logger, code, err)
}

func load(ctx context.Context, logger *logrus.Entry, rt Runtime, ep engine.Entrypoint) (Module, error) {
	if len(ep.Precompiled) > 0 {
		if pl, ok := rt.(PrecompiledLoader); ok {
			logger.Debug("loading precompiled module")
			mod, err := pl.LoadPrecompiled(ctx, ep.Precompiled)
			if err == nil {
				return mod, nil
			}
			logger.WithError(err).Warn("precompiled module rejected, compiling from source")
		} else {
			logger.Debug("runtime does not load precompiled modules")
		}
	}

	if ep.Source == nil {
		return nil, engine.Errorf(engine.ErrConfig, engine.StageCreated, "entrypoint has no module source")
	}
	src, err := ep.Source.Bytes()
	if err != nil {
		return nil, engine.Wrap(engine.ErrConfig, engine.StageCreated, err)
	}

	logger.Debug("loading wasm module")
	return rt.Load(ctx, src)
}

// exitStatus maps the outcome of running guest code to an exit status.
func exitStatus(logger *logrus.Entry, code int, err error) (int, error) {
	var exit *ExitError
	switch {
	case err == nil:
	case errors.As(err, &exit):
		code = exit.Code
	case errors.Is(err, engine.ErrTrap):
		logger.WithError(err).Error("execution error")
		return engine.ExitCodeTrap, nil
	default:
		return 0, err
	}
	logger.WithField("exit_code", code).Info("wasm function returned")
	return code, nil
}

func closeLogged(ctx context.Context, logger *logrus.Entry, what string, f func(context.Context) error) {
	if err := f(ctx); err != nil {
		logger.WithError(err).Warnf("error closing %s", what)
	}
}
