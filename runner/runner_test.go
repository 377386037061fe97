package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/cpuguy83/runwasi/engine"
	"github.com/cpuguy83/runwasi/rlimit"
	"github.com/cpuguy83/runwasi/wasi"
	"github.com/stretchr/testify/require"
)

type runtimeContext struct {
	ep   engine.Entrypoint
	envs []string
}

func (r *runtimeContext) Entrypoint() engine.Entrypoint { return r.ep }
func (r *runtimeContext) Args() []string                { return nil }
func (r *runtimeContext) Envs() []string                { return r.envs }
func (r *runtimeContext) Rlimits() []rlimit.Rlimit      { return nil }
func (r *runtimeContext) Rootfs() string                { return "" }

// fakeRuntime records every lifecycle step.
type fakeRuntime struct {
	calls []string

	loadErr        error
	precompiledErr error
	instErr        error
	resolveErr     error
	callCode       int
	callErr        error

	wctx *wasi.Context
}

func (r *fakeRuntime) Name() string { return "fake" }

func (r *fakeRuntime) Load(ctx context.Context, src []byte) (Module, error) {
	r.calls = append(r.calls, "load")
	if r.loadErr != nil {
		return nil, r.loadErr
	}
	return &fakeModule{r}, nil
}

func (r *fakeRuntime) LoadPrecompiled(ctx context.Context, artifact []byte) (Module, error) {
	r.calls = append(r.calls, "load-precompiled")
	if r.precompiledErr != nil {
		return nil, r.precompiledErr
	}
	return &fakeModule{r}, nil
}

type fakeModule struct{ r *fakeRuntime }

func (m *fakeModule) Instantiate(ctx context.Context, wctx *wasi.Context, streams *engine.Streams) (Environment, error) {
	m.r.calls = append(m.r.calls, "instantiate")
	m.r.wctx = wctx
	if m.r.instErr != nil {
		return nil, m.r.instErr
	}
	return &fakeEnv{m.r}, nil
}

func (m *fakeModule) Close(ctx context.Context) error {
	m.r.calls = append(m.r.calls, "close-module")
	return nil
}

type fakeEnv struct{ r *fakeRuntime }

func (e *fakeEnv) Resolve(name string) (Function, error) {
	e.r.calls = append(e.r.calls, "resolve:"+name)
	if e.r.resolveErr != nil {
		return nil, e.r.resolveErr
	}
	return &fakeFunc{e.r}, nil
}

func (e *fakeEnv) Close(ctx context.Context) error {
	e.r.calls = append(e.r.calls, "close-env")
	return nil
}

type fakeFunc struct{ r *fakeRuntime }

func (f *fakeFunc) Call(ctx context.Context) (int, error) {
	f.r.calls = append(f.r.calls, "call")
	return f.r.callCode, f.r.callErr
}

func newContext() *runtimeContext {
	return &runtimeContext{ep: engine.Entrypoint{
		Source: engine.BytesSource("\x00asm\x01\x00\x00\x00"),
		Name:   "test",
	}}
}

func TestRunSuccess(t *testing.T) {
	rt := &fakeRuntime{}
	rctx := newContext()
	rctx.envs = []string{"FOO=bar"}

	code, err := Run(context.Background(), rt, rctx, engine.Stdio{}, Options{})
	require.NoError(t, err)
	require.Equal(t, 0, code)
	require.Equal(t, []string{"load", "instantiate", "resolve:_start", "call", "close-env", "close-module"}, rt.calls)
	require.Equal(t, []string{"FOO=bar"}, rt.wctx.Env)
}

func TestRunExitCode(t *testing.T) {
	rt := &fakeRuntime{callCode: 3}
	rctx := newContext()
	rctx.ep.Func = "main"

	code, err := Run(context.Background(), rt, rctx, engine.Stdio{}, Options{})
	require.NoError(t, err)
	require.Equal(t, 3, code)
	require.Contains(t, rt.calls, "resolve:main")
}

func TestRunTrap(t *testing.T) {
	rt := &fakeRuntime{callErr: engine.Errorf(engine.ErrTrap, engine.StageRunning, "unreachable")}

	code, err := Run(context.Background(), rt, newContext(), engine.Stdio{}, Options{})
	require.NoError(t, err)
	require.Equal(t, engine.ExitCodeTrap, code)
	require.Equal(t, []string{"load", "instantiate", "resolve:_start", "call", "close-env", "close-module"}, rt.calls)
}

func TestRunCallError(t *testing.T) {
	boom := errors.New("host failure")
	rt := &fakeRuntime{callErr: boom}

	_, err := Run(context.Background(), rt, newContext(), engine.Stdio{}, Options{})
	require.ErrorIs(t, err, boom)
	require.Contains(t, rt.calls, "close-env")
}

func TestRunStopsAtFailedStage(t *testing.T) {
	loadErr := engine.Errorf(engine.ErrLoad, engine.StageCreated, "bad magic")
	instErr := engine.Errorf(engine.ErrResource, engine.StageModuleLoaded, "out of memory")
	lookupErr := engine.Errorf(engine.ErrLookup, engine.StageEnvironmentReady, "no export")

	for _, tc := range []struct {
		name  string
		rt    *fakeRuntime
		kind  error
		calls []string
	}{
		{
			name:  "load",
			rt:    &fakeRuntime{loadErr: loadErr},
			kind:  engine.ErrLoad,
			calls: []string{"load"},
		},
		{
			name:  "instantiate",
			rt:    &fakeRuntime{instErr: instErr},
			kind:  engine.ErrResource,
			calls: []string{"load", "instantiate", "close-module"},
		},
		{
			name:  "resolve",
			rt:    &fakeRuntime{resolveErr: lookupErr},
			kind:  engine.ErrLookup,
			calls: []string{"load", "instantiate", "resolve:_start", "close-env", "close-module"},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Run(context.Background(), tc.rt, newContext(), engine.Stdio{}, Options{})
			require.ErrorIs(t, err, tc.kind)
			require.Equal(t, tc.calls, tc.rt.calls)
		})
	}
}

func TestRunStdioFailurePreventsInvocation(t *testing.T) {
	rt := &fakeRuntime{}
	stdio := engine.Stdio{Stdout: filepath.Join(t.TempDir(), "missing", "stdout")}

	_, err := Run(context.Background(), rt, newContext(), stdio, Options{})
	require.ErrorIs(t, err, engine.ErrIO)
	require.ErrorIs(t, err, os.ErrNotExist)
	require.Equal(t, []string{"load", "close-module"}, rt.calls)
}

func TestRunConfigErrors(t *testing.T) {
	rt := &fakeRuntime{}

	rctx := newContext()
	rctx.ep.Source = nil
	_, err := Run(context.Background(), rt, rctx, engine.Stdio{}, Options{})
	require.ErrorIs(t, err, engine.ErrConfig)

	rctx = newContext()
	rctx.ep.Source = engine.FileSource(filepath.Join(t.TempDir(), "missing.wasm"))
	_, err = Run(context.Background(), rt, rctx, engine.Stdio{}, Options{})
	require.ErrorIs(t, err, engine.ErrConfig)

	rctx = newContext()
	rctx.envs = []string{"BROKEN"}
	_, err = Run(context.Background(), rt, rctx, engine.Stdio{}, Options{})
	require.ErrorIs(t, err, engine.ErrConfig)

	require.Empty(t, rt.calls)
}

func TestRunInheritEnv(t *testing.T) {
	t.Setenv("RUNWASI_TEST_INHERITED", "yes")
	rt := &fakeRuntime{}

	_, err := Run(context.Background(), rt, newContext(), engine.Stdio{}, Options{InheritEnv: true})
	require.NoError(t, err)
	require.Contains(t, rt.wctx.Env, "RUNWASI_TEST_INHERITED=yes")

	_, err = Run(context.Background(), rt, newContext(), engine.Stdio{}, Options{})
	require.NoError(t, err)
	require.NotContains(t, rt.wctx.Env, "RUNWASI_TEST_INHERITED=yes")
}

func TestRunPrecompiled(t *testing.T) {
	rt := &fakeRuntime{}
	rctx := newContext()
	rctx.ep.Source = nil
	rctx.ep.Precompiled = []byte("artifact")

	code, err := Run(context.Background(), rt, rctx, engine.Stdio{}, Options{})
	require.NoError(t, err)
	require.Equal(t, 0, code)
	require.Equal(t, []string{"load-precompiled", "instantiate", "resolve:_start", "call", "close-env", "close-module"}, rt.calls)
}

func TestRunPrecompiledFallback(t *testing.T) {
	rt := &fakeRuntime{precompiledErr: engine.Errorf(engine.ErrLoad, engine.StageCreated, "incompatible")}
	rctx := newContext()
	rctx.ep.Precompiled = []byte("artifact")

	_, err := Run(context.Background(), rt, rctx, engine.Stdio{}, Options{})
	require.NoError(t, err)
	require.Equal(t, []string{"load-precompiled", "load"}, rt.calls[:2])

	// without a source there is nothing to fall back to
	rt = &fakeRuntime{precompiledErr: engine.Errorf(engine.ErrLoad, engine.StageCreated, "incompatible")}
	rctx.ep.Source = nil
	_, err = Run(context.Background(), rt, rctx, engine.Stdio{}, Options{})
	require.ErrorIs(t, err, engine.ErrConfig)
}

func TestRunPrecompiledUnsupported(t *testing.T) {
	rt := &fakeRuntime{}
	rctx := newContext()
	rctx.ep.Precompiled = []byte("artifact")

	// hide LoadPrecompiled
	_, err := Run(context.Background(), struct{ Runtime }{rt}, rctx, engine.Stdio{}, Options{})
	require.NoError(t, err)
	require.Equal(t, "load", rt.calls[0])
}

func TestRunInstantiateOutcome(t *testing.T) {
	rt := &fakeRuntime{instErr: &ExitError{Code: 5}}
	code, err := Run(context.Background(), rt, newContext(), engine.Stdio{}, Options{})
	require.NoError(t, err)
	require.Equal(t, 5, code)
	require.Equal(t, []string{"load", "instantiate", "close-module"}, rt.calls)

	rt = &fakeRuntime{instErr: engine.Errorf(engine.ErrTrap, engine.StageModuleLoaded, "unreachable")}
	code, err = Run(context.Background(), rt, newContext(), engine.Stdio{}, Options{})
	require.NoError(t, err)
	require.Equal(t, engine.ExitCodeTrap, code)
	require.Equal(t, []string{"load", "instantiate", "close-module"}, rt.calls)
}
