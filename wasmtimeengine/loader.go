package wasmtimeengine

import (
	"context"

	"github.com/bytecodealliance/wasmtime-go/v14"
	"github.com/cpuguy83/runwasi/engine"
	"github.com/cpuguy83/runwasi/runner"
)

type loader struct {
	engine        *wasmtime.Engine
	token         string
	fuel          uint64
	interruptible bool
}

var _ runner.PrecompiledLoader = &loader{}

func (l *loader) Name() string {
	return Name
}

// Load accepts a wasm binary only. Module sources come from the image, so
// native code in them is never trusted.
func (l *loader) Load(ctx context.Context, src []byte) (runner.Module, error) {
	switch {
	case engine.IsWasm(src):
	case isPrecompiled(src):
		return nil, engine.Errorf(engine.ErrLoad, engine.StageCreated, "precompiled artifacts are only accepted from the host")
	default:
		return nil, engine.Errorf(engine.ErrLoad, engine.StageCreated, "invalid magic number")
	}
	m, err := wasmtime.NewModule(l.engine, src)
	if err != nil {
		return nil, engine.Wrap(engine.ErrLoad, engine.StageCreated, err)
	}
	return &module{loader: l, module: m}, nil
}

// LoadPrecompiled deserializes an artifact from Precompile that was
// produced under the same token.
func (l *loader) LoadPrecompiled(ctx context.Context, artifact []byte) (runner.Module, error) {
	if l.token == "" {
		return nil, engine.Errorf(engine.ErrLoad, engine.StageCreated, "precompiled artifacts are not supported")
	}
	serialized, err := unseal(l.token, artifact)
	if err != nil {
		return nil, engine.Wrap(engine.ErrLoad, engine.StageCreated, err)
	}
	m, err := wasmtime.NewModuleDeserialize(l.engine, serialized)
	if err != nil {
		return nil, engine.Wrap(engine.ErrLoad, engine.StageCreated, err)
	}
	return &module{loader: l, module: m}, nil
}

type module struct {
	*loader
	module *wasmtime.Module
}

// Close drops the module; wasmtime frees it when it is collected.
func (m *module) Close(ctx context.Context) error {
	m.module = nil
	return nil
}
