package oci

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/cpuguy83/runwasi/engine"
	"github.com/cpuguy83/runwasi/rlimit"
	"github.com/opencontainers/runtime-spec/specs-go"
)

// RuntimeContext is the engine.RuntimeContext of an OCI bundle.
type RuntimeContext struct {
	spec    *specs.Spec
	rootfs  string
	rlimits []rlimit.Rlimit
	ep      engine.Entrypoint
}

var _ engine.RuntimeContext = &RuntimeContext{}

// NewRuntimeContext validates spec. The module is read from the rootfs,
// unless layers holds a wasm layer, which is then used instead.
//
// process.args[0] names the module and may select the function to call
// with a "#" suffix, e.g. "/app.wasm#main". It defaults to _start.
func NewRuntimeContext(spec *specs.Spec, bundle string, layers []engine.WasmLayer) (*RuntimeContext, error) {
	if spec.Process == nil || len(spec.Process.Args) == 0 {
		return nil, engine.Errorf(engine.ErrConfig, engine.StageCreated, "process args are required")
	}
	if spec.Process.Terminal {
		return nil, engine.Errorf(engine.ErrConfig, engine.StageCreated, "tty not supported")
	}

	rootfs, err := Rootfs(spec, bundle)
	if err != nil {
		return nil, engine.Wrap(engine.ErrConfig, engine.StageCreated, err)
	}

	rlimits, err := rlimit.FromSpec(spec.Process.Rlimits)
	if err != nil {
		return nil, engine.Wrap(engine.ErrConfig, engine.StageCreated, err)
	}

	modPath, fn := parseArg0(spec.Process.Args[0])
	if modPath == "" {
		return nil, engine.Errorf(engine.ErrConfig, engine.StageCreated, "invalid entrypoint %q", spec.Process.Args[0])
	}

	ep := engine.Entrypoint{
		Func: fn,
		Arg0: modPath,
		Name: strings.TrimSuffix(path.Base(modPath), path.Ext(modPath)),
	}
	if hasWasmLayer(layers) {
		ep.Source = engine.LayerSource(layers)
	} else {
		// joined onto the rootfs so that absolute guest paths cannot escape it
		ep.Source = engine.FileSource(filepath.Join(rootfs, filepath.Clean("/"+modPath)))
	}

	return &RuntimeContext{
		spec:    spec,
		rootfs:  rootfs,
		rlimits: rlimits,
		ep:      ep,
	}, nil
}

func parseArg0(arg0 string) (string, string) {
	mod, fn, ok := strings.Cut(arg0, "#")
	if !ok || fn == "" {
		fn = engine.DefaultFunc
	}
	return mod, fn
}

func hasWasmLayer(layers []engine.WasmLayer) bool {
	for _, l := range layers {
		if engine.IsWasmMediaType(l.Config.MediaType) {
			return true
		}
	}
	return false
}

func (c *RuntimeContext) Entrypoint() engine.Entrypoint {
	return c.ep
}

// SetPrecompiled attaches an artifact produced by the engine's Precompile.
// Only the host calls this, the bundle itself cannot supply one.
func (c *RuntimeContext) SetPrecompiled(artifact []byte) {
	c.ep.Precompiled = artifact
}

// Args are the process args with the function selector removed.
func (c *RuntimeContext) Args() []string {
	args := append([]string(nil), c.spec.Process.Args...)
	args[0] = c.ep.Arg0
	return args
}

func (c *RuntimeContext) Envs() []string {
	return c.spec.Process.Env
}

func (c *RuntimeContext) Rlimits() []rlimit.Rlimit {
	return c.rlimits
}

func (c *RuntimeContext) Rootfs() string {
	return c.rootfs
}

func (c *RuntimeContext) String() string {
	return fmt.Sprintf("%s#%s", c.ep.Arg0, c.ep.Func)
}
