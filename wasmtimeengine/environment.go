package wasmtimeengine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bytecodealliance/wasmtime-go/v14"
	"github.com/cpuguy83/runwasi/engine"
	"github.com/cpuguy83/runwasi/runner"
	"github.com/cpuguy83/runwasi/wasi"
)

func (m *module) Instantiate(ctx context.Context, wctx *wasi.Context, streams *engine.Streams) (runner.Environment, error) {
	cfg := wasmtime.NewWasiConfig()
	cfg.SetArgv(wctx.Args)
	cfg.SetEnv(wctx.EnvPairs())

	for _, p := range wctx.Preopens {
		if err := cfg.PreopenDir(p.HostPath, p.GuestPath); err != nil {
			return nil, engine.Wrap(engine.ErrConfig, engine.StageModuleLoaded, fmt.Errorf("preopen %s: %w", p.HostPath, err))
		}
	}
	if err := bindStdio(cfg, streams.Paths()); err != nil {
		return nil, engine.Wrap(engine.ErrIO, engine.StageModuleLoaded, err)
	}

	store := wasmtime.NewStore(m.engine)
	if m.fuel > 0 {
		if err := store.AddFuel(m.fuel); err != nil {
			return nil, engine.Wrap(engine.ErrResource, engine.StageModuleLoaded, err)
		}
	}
	store.SetWasi(cfg)

	linker := wasmtime.NewLinker(m.engine)
	if err := linker.DefineWasi(); err != nil {
		return nil, engine.Wrap(engine.ErrResource, engine.StageModuleLoaded, err)
	}

	done := make(chan struct{})
	if m.interruptible {
		// Trap once the epoch moves, which only happens on cancel. The
		// watcher also covers start functions run by Instantiate.
		store.SetEpochDeadline(1)
		go func() {
			select {
			case <-ctx.Done():
				m.engine.IncrementEpoch()
			case <-done:
			}
		}()
	}

	instance, err := linker.Instantiate(store, m.module)
	if err != nil {
		close(done)
		return nil, instantiateError(err)
	}
	return &environment{store: store, instance: instance, done: done}, nil
}

// instantiateError classifies failures of start functions the way Call
// classifies the entrypoint.
func instantiateError(err error) error {
	var werr *wasmtime.Error
	if errors.As(err, &werr) {
		if code, ok := werr.ExitStatus(); ok {
			return &runner.ExitError{Code: int(code)}
		}
	}
	var trap *wasmtime.Trap
	if errors.As(err, &trap) {
		return engine.Wrap(engine.ErrTrap, engine.StageModuleLoaded, err)
	}
	return engine.Wrap(engine.ErrResource, engine.StageModuleLoaded, err)
}

// bindStdio binds every stream or returns an error, the config is only
// attached to a store afterwards so nothing is ever half bound.
func bindStdio(cfg *wasmtime.WasiConfig, paths engine.Stdio) error {
	if paths.Stdin == "" {
		cfg.InheritStdin()
	} else if err := cfg.SetStdinFile(paths.Stdin); err != nil {
		return fmt.Errorf("stdin: %w", err)
	}
	if paths.Stdout == "" {
		cfg.InheritStdout()
	} else if err := cfg.SetStdoutFile(paths.Stdout); err != nil {
		return fmt.Errorf("stdout: %w", err)
	}
	if paths.Stderr == "" {
		cfg.InheritStderr()
	} else if err := cfg.SetStderrFile(paths.Stderr); err != nil {
		return fmt.Errorf("stderr: %w", err)
	}
	return nil
}

type environment struct {
	store    *wasmtime.Store
	instance *wasmtime.Instance
	done     chan struct{}
}

func (e *environment) Close(ctx context.Context) error {
	close(e.done)
	e.instance = nil
	return nil
}

func (e *environment) Resolve(name string) (runner.Function, error) {
	ext := e.instance.GetExport(e.store, name)
	if ext == nil || ext.Func() == nil {
		return nil, engine.Errorf(engine.ErrLookup, engine.StageEnvironmentReady, "function %q is not exported", name)
	}
	fn := ext.Func()
	ty := fn.Type(e.store)
	if len(ty.Params()) != 0 || len(ty.Results()) != 0 {
		return nil, engine.Errorf(engine.ErrLookup, engine.StageEnvironmentReady,
			"function %q has signature %s, want () -> ()", name, signature(ty))
	}
	return &function{store: e.store, fn: fn}, nil
}

func signature(ty *wasmtime.FuncType) string {
	names := func(ts []*wasmtime.ValType) string {
		s := make([]string, len(ts))
		for i, t := range ts {
			s[i] = t.Kind().String()
		}
		return strings.Join(s, ", ")
	}
	return fmt.Sprintf("(%s) -> (%s)", names(ty.Params()), names(ty.Results()))
}

type function struct {
	store *wasmtime.Store
	fn    *wasmtime.Func
}

func (f *function) Call(ctx context.Context) (int, error) {
	_, err := f.fn.Call(f.store)
	if err == nil {
		return 0, nil
	}

	var werr *wasmtime.Error
	if errors.As(err, &werr) {
		if code, ok := werr.ExitStatus(); ok {
			return int(code), nil
		}
	}
	return 0, engine.Wrap(engine.ErrTrap, engine.StageRunning, err)
}
