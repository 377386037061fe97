// Package engine defines the contract between a container shim and an
// embedded WebAssembly runtime.
package engine

import (
	"context"
	"fmt"
	"os"

	"github.com/cpuguy83/runwasi/rlimit"
)

// ExitCodeTrap is reported when the guest faults instead of exiting.
const ExitCodeTrap = 137

// DefaultFunc is the entrypoint used when none is named.
const DefaultFunc = "_start"

// Engine runs WASI guests on one embedded runtime.
//
// Implementations share their runtime across clones and are safe for
// concurrent use. RunWasi blocks until the guest returns.
type Engine interface {
	// Name identifies the embedded runtime.
	Name() string
	// RunWasi loads and runs the entrypoint described by rctx and returns
	// the guest exit status. A guest trap is not an error, it yields
	// ExitCodeTrap.
	RunWasi(ctx context.Context, rctx RuntimeContext, stdio Stdio) (int, error)
	// Precompile returns one entry per layer, in order. A nil entry means
	// the layer has no precompiled form for this engine.
	Precompile(ctx context.Context, layers []WasmLayer) ([][]byte, error)
	// CanPrecompile returns a token identifying which precompiled
	// artifacts this engine accepts, or false if it accepts none.
	CanPrecompile() (string, bool)
	// Close releases this holder of the runtime.
	Close() error
}

// RuntimeContext is what the host knows about the guest to run.
type RuntimeContext interface {
	Entrypoint() Entrypoint
	Args() []string
	Envs() []string
	Rlimits() []rlimit.Rlimit
	// Rootfs is preopened as "/" in the guest when not empty.
	Rootfs() string
}

// Entrypoint names the module and function to invoke.
type Entrypoint struct {
	// Source is untrusted module bytes, only wasm is accepted from it.
	Source Source
	Func   string
	Arg0   string
	Name   string
	// Precompiled is an artifact from Engine.Precompile supplied by the
	// host. It is never read from the rootfs or image layers. Engines
	// that reject it fall back to Source.
	Precompiled []byte
}

// Source provides module bytes.
type Source interface {
	Bytes() ([]byte, error)
}

// BytesSource is an in-memory module.
type BytesSource []byte

func (b BytesSource) Bytes() ([]byte, error) {
	return b, nil
}

// FileSource reads the module from a path on the host.
type FileSource string

func (p FileSource) Bytes() ([]byte, error) {
	b, err := os.ReadFile(string(p))
	if err != nil {
		return nil, fmt.Errorf("read module: %w", err)
	}
	return b, nil
}

// LayerSource uses the first wasm layer of an image as the module.
type LayerSource []WasmLayer

func (l LayerSource) Bytes() ([]byte, error) {
	for _, layer := range l {
		if IsWasmMediaType(layer.Config.MediaType) {
			return layer.Layer, nil
		}
	}
	return nil, fmt.Errorf("no wasm layer in %d layers", len(l))
}
