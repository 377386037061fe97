// Package wasmtimeengine runs WASI guests on wasmtime and can precompile
// modules ahead of time.
package wasmtimeengine

import (
	"context"
	"fmt"

	"github.com/bytecodealliance/wasmtime-go/v14"
	"github.com/containerd/containerd/log"
	"github.com/cpuguy83/runwasi/config"
	"github.com/cpuguy83/runwasi/engine"
	"github.com/cpuguy83/runwasi/runner"
)

// Name is the engine name reported to the shim.
const Name = config.EngineWasmtime

var engines engine.Singleton[*wasmtime.Engine]

// Engine runs guests on the process wide wasmtime engine.
type Engine struct {
	cfg   config.Config
	token string
	rt    *engine.Handle[*wasmtime.Engine]
}

var _ engine.Engine = &Engine{}

// New returns an engine backed by the process wide wasmtime engine,
// creating it on first use.
func New(cfg config.Config) (*Engine, error) {
	version, known := wasmtimeVersion()
	fp := fingerprint(cfg.Wasmtime, version)
	h, err := engines.Acquire(fp, func() (*wasmtime.Engine, func() error, error) {
		return wasmtime.NewEngineWithConfig(newConfig(cfg.Wasmtime)), nil, nil
	})
	if err != nil {
		return nil, fmt.Errorf("wasmtime: %w", err)
	}
	e := &Engine{cfg: cfg, rt: h}
	if known {
		e.token = hashFingerprint(fp)
	}
	return e, nil
}

func newConfig(cfg config.Wasmtime) *wasmtime.Config {
	c := wasmtime.NewConfig()
	c.SetEpochInterruption(cfg.Interruptible)
	c.SetConsumeFuel(cfg.Fuel > 0)
	c.SetWasmSIMD(cfg.SIMD)
	c.SetDebugInfo(cfg.DebugInfo)
	c.SetCraneliftOptLevel(optLevel(cfg.OptLevel))
	return c
}

func optLevel(s string) wasmtime.OptLevel {
	switch s {
	case "none":
		return wasmtime.OptLevelNone
	case "speed_and_size":
		return wasmtime.OptLevelSpeedAndSize
	default:
		return wasmtime.OptLevelSpeed
	}
}

func (e *Engine) Name() string {
	return Name
}

// Clone returns an engine sharing the same wasmtime engine.
func (e *Engine) Clone() (*Engine, error) {
	h, err := e.rt.Clone()
	if err != nil {
		return nil, err
	}
	return &Engine{cfg: e.cfg, token: e.token, rt: h}, nil
}

func (e *Engine) Close() error {
	return e.rt.Close()
}

func (e *Engine) RunWasi(ctx context.Context, rctx engine.RuntimeContext, stdio engine.Stdio) (int, error) {
	eng := e.rt.Get()
	if eng == nil {
		return 0, engine.ErrHandleClosed
	}
	if e.cfg.Wasmtime.Interruptible {
		// The epoch is engine wide, cancelling one guest must not
		// interrupt the others.
		eng = wasmtime.NewEngineWithConfig(newConfig(e.cfg.Wasmtime))
	}
	return runner.Run(ctx, e.loader(eng), rctx, stdio, runner.Options{
		InheritEnv:   e.cfg.InheritEnv,
		ApplyRlimits: e.cfg.ApplyRlimits,
	})
}

func (e *Engine) loader(eng *wasmtime.Engine) *loader {
	return &loader{
		engine:        eng,
		token:         e.token,
		fuel:          e.cfg.Wasmtime.Fuel,
		interruptible: e.cfg.Wasmtime.Interruptible,
	}
}

// Precompile compiles every wasm module layer and returns its serialized
// form. Layers of other media types map to nil.
func (e *Engine) Precompile(ctx context.Context, layers []engine.WasmLayer) ([][]byte, error) {
	eng := e.rt.Get()
	if eng == nil {
		return nil, engine.ErrHandleClosed
	}

	out := make([][]byte, len(layers))
	if e.token == "" {
		log.G(ctx).Warn("wasmtime version is unknown, skipping precompile")
		return out, nil
	}
	for i, layer := range layers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if layer.Config.MediaType != engine.MediaTypeWasmModule || !engine.IsWasm(layer.Layer) {
			log.G(ctx).WithField("digest", layer.Config.Digest).Debug("layer is not a wasm module, skipping precompile")
			continue
		}

		m, err := wasmtime.NewModule(eng, layer.Layer)
		if err != nil {
			return nil, fmt.Errorf("precompile %s: %w", layer.Config.Digest, engine.Wrap(engine.ErrLoad, engine.StageCreated, err))
		}
		b, err := m.Serialize()
		if err != nil {
			return nil, fmt.Errorf("serialize %s: %w", layer.Config.Digest, err)
		}
		out[i] = seal(e.token, b)
	}
	return out, nil
}

// CanPrecompile returns the token of artifacts this engine can load. It
// reports false when the linked wasmtime version cannot be determined.
func (e *Engine) CanPrecompile() (string, bool) {
	return e.token, e.token != ""
}
