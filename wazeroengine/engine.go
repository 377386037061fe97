// Package wazeroengine runs WASI guests on the pure Go wazero runtime.
package wazeroengine

import (
	"context"
	"fmt"

	"github.com/containerd/containerd/log"
	"github.com/cpuguy83/runwasi/config"
	"github.com/cpuguy83/runwasi/engine"
	"github.com/cpuguy83/runwasi/runner"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// Name is the engine name reported to the shim.
const Name = config.EngineWazero

var runtimes engine.Singleton[wazero.Runtime]

// Engine runs guests on the process wide wazero runtime.
type Engine struct {
	cfg config.Config
	rt  *engine.Handle[wazero.Runtime]
}

var _ engine.Engine = &Engine{}

// New returns an engine backed by the process wide runtime, creating the
// runtime on first use.
func New(ctx context.Context, cfg config.Config) (*Engine, error) {
	h, err := runtimes.Acquire(fmt.Sprintf("%+v", cfg.Wazero), func() (wazero.Runtime, func() error, error) {
		return newRuntime(ctx, cfg.Wazero)
	})
	if err != nil {
		return nil, fmt.Errorf("wazero: %w", err)
	}
	return &Engine{cfg: cfg, rt: h}, nil
}

func newRuntime(ctx context.Context, cfg config.Wazero) (wazero.Runtime, func() error, error) {
	rc := wazero.NewRuntimeConfig()
	if cfg.Interpreter {
		rc = wazero.NewRuntimeConfigInterpreter()
	}
	if cfg.MemoryLimitPages > 0 {
		rc = rc.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	rc = rc.WithCloseOnContextDone(cfg.CloseOnContextDone)

	var cache wazero.CompilationCache
	if cfg.CompilationCacheDir != "" {
		var err error
		cache, err = wazero.NewCompilationCacheWithDir(cfg.CompilationCacheDir)
		if err != nil {
			return nil, nil, fmt.Errorf("compilation cache: %w", err)
		}
		rc = rc.WithCompilationCache(cache)
	}

	rt := wazero.NewRuntimeWithConfig(ctx, rc)
	shutdown := func() error {
		ctx := context.Background()
		err := rt.Close(ctx)
		if cache != nil {
			if cerr := cache.Close(ctx); err == nil {
				err = cerr
			}
		}
		return err
	}

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		shutdown()
		return nil, nil, fmt.Errorf("instantiate wasi: %w", err)
	}

	log.G(ctx).WithField("engine", Name).Debug("runtime initialized")
	return rt, shutdown, nil
}

func (e *Engine) Name() string {
	return Name
}

// Clone returns an engine sharing the same runtime.
func (e *Engine) Clone() (*Engine, error) {
	h, err := e.rt.Clone()
	if err != nil {
		return nil, err
	}
	return &Engine{cfg: e.cfg, rt: h}, nil
}

func (e *Engine) Close() error {
	return e.rt.Close()
}

func (e *Engine) RunWasi(ctx context.Context, rctx engine.RuntimeContext, stdio engine.Stdio) (int, error) {
	rt := e.rt.Get()
	if rt == nil {
		return 0, engine.ErrHandleClosed
	}
	return runner.Run(ctx, &loader{rt: rt}, rctx, stdio, runner.Options{
		InheritEnv:   e.cfg.InheritEnv,
		ApplyRlimits: e.cfg.ApplyRlimits,
	})
}

// Precompile reports no artifacts: wazero has no portable precompiled form.
// A configured compilation cache is used internally instead.
func (e *Engine) Precompile(ctx context.Context, layers []engine.WasmLayer) ([][]byte, error) {
	log.G(ctx).WithField("engine", Name).Warn("precompilation not supported")
	return make([][]byte, len(layers)), nil
}

func (e *Engine) CanPrecompile() (string, bool) {
	return "", false
}
