package wazeroengine

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"

	"github.com/cpuguy83/runwasi/engine"
	"github.com/cpuguy83/runwasi/runner"
	"github.com/cpuguy83/runwasi/wasi"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/sys"
)

func (m *module) Instantiate(ctx context.Context, wctx *wasi.Context, streams *engine.Streams) (runner.Environment, error) {
	// Anonymous so concurrent instances of one module do not collide, and
	// no start functions so that the resolved entrypoint is the only one run.
	mc := wazero.NewModuleConfig().
		WithName("").
		WithStartFunctions().
		WithArgs(wctx.Args...).
		WithStdin(streams.Stdin()).
		WithStdout(streams.Stdout()).
		WithStderr(streams.Stderr()).
		WithSysWalltime().
		WithSysNanotime().
		WithSysNanosleep().
		WithRandSource(rand.Reader)

	keys, values := wctx.EnvPairs()
	for i := range keys {
		mc = mc.WithEnv(keys[i], values[i])
	}

	if len(wctx.Preopens) > 0 {
		fs := wazero.NewFSConfig()
		for _, p := range wctx.Preopens {
			fs = fs.WithDirMount(p.HostPath, p.GuestPath)
		}
		mc = mc.WithFSConfig(fs)
	}

	mod, err := m.rt.InstantiateModule(ctx, m.compiled, mc)
	if err != nil {
		return nil, instantiateError(err)
	}
	return &environment{mod: mod}, nil
}

// instantiateError classifies failures of the start section the way Call
// classifies the entrypoint.
func instantiateError(err error) error {
	var exitErr *sys.ExitError
	if errors.As(err, &exitErr) {
		switch exitErr.ExitCode() {
		case sys.ExitCodeContextCanceled, sys.ExitCodeDeadlineExceeded:
			return engine.Wrap(engine.ErrTrap, engine.StageModuleLoaded, err)
		}
		return &runner.ExitError{Code: int(exitErr.ExitCode())}
	}
	// wazero reports guest faults as formatted errors with a wasm stack.
	if msg := err.Error(); strings.Contains(msg, "wasm error:") || strings.Contains(msg, "wasm stack trace:") {
		return engine.Wrap(engine.ErrTrap, engine.StageModuleLoaded, err)
	}
	return engine.Wrap(engine.ErrResource, engine.StageModuleLoaded, err)
}

type environment struct {
	mod api.Module
}

func (e *environment) Close(ctx context.Context) error {
	return e.mod.Close(ctx)
}

func (e *environment) Resolve(name string) (runner.Function, error) {
	fn := e.mod.ExportedFunction(name)
	if fn == nil {
		return nil, engine.Errorf(engine.ErrLookup, engine.StageEnvironmentReady, "function %q is not exported", name)
	}
	def := fn.Definition()
	if len(def.ParamTypes()) != 0 || len(def.ResultTypes()) != 0 {
		return nil, engine.Errorf(engine.ErrLookup, engine.StageEnvironmentReady,
			"function %q has signature %s, want () -> ()", name, signature(def))
	}
	return &function{fn: fn}, nil
}

func signature(def api.FunctionDefinition) string {
	names := func(ts []api.ValueType) string {
		s := make([]string, len(ts))
		for i, t := range ts {
			s[i] = api.ValueTypeName(t)
		}
		return strings.Join(s, ", ")
	}
	return fmt.Sprintf("(%s) -> (%s)", names(def.ParamTypes()), names(def.ResultTypes()))
}

type function struct {
	fn api.Function
}

func (f *function) Call(ctx context.Context) (int, error) {
	_, err := f.fn.Call(ctx)
	if err == nil {
		return 0, nil
	}

	var exitErr *sys.ExitError
	if errors.As(err, &exitErr) {
		switch exitErr.ExitCode() {
		case sys.ExitCodeContextCanceled, sys.ExitCodeDeadlineExceeded:
			// closed by the runtime because ctx is done
			return 0, engine.Wrap(engine.ErrTrap, engine.StageRunning, err)
		}
		return int(exitErr.ExitCode()), nil
	}
	return 0, engine.Wrap(engine.ErrTrap, engine.StageRunning, err)
}
