package wazeroengine

import (
	"context"

	"github.com/cpuguy83/runwasi/engine"
	"github.com/cpuguy83/runwasi/runner"
	"github.com/tetratelabs/wazero"
)

type loader struct {
	rt wazero.Runtime
}

func (l *loader) Name() string {
	return Name
}

func (l *loader) Load(ctx context.Context, src []byte) (runner.Module, error) {
	if !engine.IsWasm(src) {
		return nil, engine.Errorf(engine.ErrLoad, engine.StageCreated, "invalid magic number")
	}
	compiled, err := l.rt.CompileModule(ctx, src)
	if err != nil {
		return nil, engine.Wrap(engine.ErrLoad, engine.StageCreated, err)
	}
	return &module{rt: l.rt, compiled: compiled}, nil
}

type module struct {
	rt       wazero.Runtime
	compiled wazero.CompiledModule
}

func (m *module) Close(ctx context.Context) error {
	return m.compiled.Close(ctx)
}
