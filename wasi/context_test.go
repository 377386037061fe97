package wasi

import (
	"testing"

	"github.com/cpuguy83/runwasi/engine"
	"github.com/cpuguy83/runwasi/rlimit"
	"github.com/stretchr/testify/require"
)

type runtimeContext struct {
	ep      engine.Entrypoint
	args    []string
	envs    []string
	rlimits []rlimit.Rlimit
	rootfs  string
}

func (r *runtimeContext) Entrypoint() engine.Entrypoint { return r.ep }
func (r *runtimeContext) Args() []string                { return r.args }
func (r *runtimeContext) Envs() []string                { return r.envs }
func (r *runtimeContext) Rlimits() []rlimit.Rlimit      { return r.rlimits }
func (r *runtimeContext) Rootfs() string                { return r.rootfs }

func TestBuild(t *testing.T) {
	rctx := &runtimeContext{
		ep:      engine.Entrypoint{Arg0: "app.wasm", Func: "_start"},
		args:    []string{"/app.wasm#_start", "-v"},
		envs:    []string{"PATH=/bin", "FOO=container"},
		rlimits: []rlimit.Rlimit{{Type: "RLIMIT_NOFILE", Soft: 10, Hard: 20}},
		rootfs:  "/run/bundle/rootfs",
	}

	c, err := Build(rctx, []string{"FOO=host", "HOME=/root", "EMPTY="})
	require.NoError(t, err)
	require.Equal(t, []string{"app.wasm", "-v"}, c.Args)
	require.Equal(t, []string{"FOO=container", "HOME=/root", "EMPTY=", "PATH=/bin"}, c.Env)
	require.Equal(t, rctx.rlimits, c.Rlimits)
	require.Equal(t, []Preopen{{HostPath: "/run/bundle/rootfs", GuestPath: "/"}}, c.Preopens)

	keys, values := c.EnvPairs()
	require.Equal(t, []string{"FOO", "HOME", "EMPTY", "PATH"}, keys)
	require.Equal(t, []string{"container", "/root", "", "/bin"}, values)

	// the context does not alias the caller's slices
	rctx.args[1] = "changed"
	require.Equal(t, "-v", c.Args[1])
}

func TestBuildNoArgs(t *testing.T) {
	c, err := Build(&runtimeContext{ep: engine.Entrypoint{Arg0: "mod"}}, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"mod"}, c.Args)
	require.Empty(t, c.Env)
	require.Empty(t, c.Preopens)
}

func TestBuildConfigErrors(t *testing.T) {
	_, err := Build(&runtimeContext{envs: []string{"NOVALUE"}}, nil)
	require.ErrorIs(t, err, engine.ErrConfig)

	_, err = Build(&runtimeContext{}, []string{"=x"})
	require.ErrorIs(t, err, engine.ErrConfig)

	_, err = Build(&runtimeContext{rlimits: []rlimit.Rlimit{{Type: "RLIMIT_NOFILE", Soft: 2, Hard: 1}}}, nil)
	require.ErrorIs(t, err, engine.ErrConfig)
}

func TestBuildFreeFormRlimit(t *testing.T) {
	lim := rlimit.Rlimit{Type: "open files", Soft: 1024, Hard: 4096}
	c, err := Build(&runtimeContext{rlimits: []rlimit.Rlimit{lim}}, nil)
	require.NoError(t, err)
	require.Equal(t, []rlimit.Rlimit{lim}, c.Rlimits)

	require.ErrorIs(t, c.ApplyRlimits(), engine.ErrResource)
}
