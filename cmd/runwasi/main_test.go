package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cpuguy83/runwasi/engine"
	"github.com/cpuguy83/runwasi/internal/wasmtest"
	"github.com/stretchr/testify/require"
	cli "github.com/urfave/cli/v2"
)

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ExitErrHandler = func(*cli.Context, error) {}
	err := app.Run(append([]string{"runwasi", "--config", filepath.Join(t.TempDir(), "none.toml")}, args...))
	return out.String(), err
}

func TestInfo(t *testing.T) {
	out, err := runApp(t, "--engine", "wazero", "info")
	require.NoError(t, err)
	require.Contains(t, out, "engine: wazero")
	require.Contains(t, out, "precompile: unsupported")

	out, err = runApp(t, "--engine", "wasmtime", "info")
	require.NoError(t, err)
	require.Contains(t, out, "engine: wasmtime")

	_, err = runApp(t, "--engine", "wamr", "info")
	require.ErrorIs(t, err, engine.ErrConfig)
}

// requirePrecompile skips when the binary carries no wasmtime version,
// which is the case for test binaries built without module info.
func requirePrecompile(t *testing.T) {
	t.Helper()
	out, err := runApp(t, "--engine", "wasmtime", "info")
	require.NoError(t, err)
	if strings.Contains(out, "precompile: unsupported") {
		t.Skip("wasmtime version unknown in this build")
	}
	require.Contains(t, out, "precompile token: ")
}

func TestPrecompile(t *testing.T) {
	requirePrecompile(t)
	dir := t.TempDir()
	mod := filepath.Join(dir, "app.wasm")
	require.NoError(t, os.WriteFile(mod, wasmtest.Basic, 0o600))
	out := filepath.Join(dir, "out")

	stdout, err := runApp(t, "--engine", "wasmtime", "precompile", "--out", out, mod)
	require.NoError(t, err)

	written := strings.TrimSpace(stdout)
	require.Equal(t, out, filepath.Dir(written))
	require.True(t, strings.HasPrefix(filepath.Base(written), engine.NewWasmLayer(wasmtest.Basic).Config.Digest.Encoded()+"."))
	require.True(t, strings.HasSuffix(written, ".cwasm"))
	_, err = os.Stat(written)
	require.NoError(t, err)

	_, err = runApp(t, "--engine", "wazero", "precompile", "--out", out, mod)
	require.ErrorContains(t, err, "does not support precompilation")

	_, err = runApp(t, "--engine", "wasmtime", "precompile")
	require.Error(t, err)
}

func writeBundle(t *testing.T, module []byte, arg0 string) string {
	t.Helper()
	bundle := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(bundle, "rootfs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(bundle, "rootfs", "app.wasm"), module, 0o600))
	spec := `{"ociVersion": "1.0.2", "process": {"args": ["` + arg0 + `"], "cwd": "/"}, "root": {"path": "rootfs"}}`
	require.NoError(t, os.WriteFile(filepath.Join(bundle, "config.json"), []byte(spec), 0o600))
	return bundle
}

func TestRun(t *testing.T) {
	_, err := runApp(t, "--engine", "wazero", "run", "--bundle", writeBundle(t, wasmtest.Basic, "/app.wasm"))
	require.NoError(t, err)

	_, err = runApp(t, "--engine", "wazero", "run", "--bundle", writeBundle(t, wasmtest.Exit, "/app.wasm"))
	var exit cli.ExitCoder
	require.ErrorAs(t, err, &exit)
	require.Equal(t, 3, exit.ExitCode())

	_, err = runApp(t, "--engine", "wazero", "run", "--bundle", writeBundle(t, wasmtest.Basic, "/app.wasm#missing"))
	require.ErrorIs(t, err, engine.ErrLookup)
}

func TestRunPrecompiled(t *testing.T) {
	bundle := writeBundle(t, wasmtest.Exit, "/app.wasm")

	_, err := runApp(t, "--engine", "wazero", "run", "--bundle", bundle, "--precompiled", filepath.Join(t.TempDir(), "missing.cwasm"))
	require.ErrorContains(t, err, "error reading precompiled module")

	requirePrecompile(t)

	stdout, err := runApp(t, "--engine", "wasmtime", "precompile", "--out", t.TempDir(), filepath.Join(bundle, "rootfs", "app.wasm"))
	require.NoError(t, err)
	artifact := strings.TrimSpace(stdout)

	_, err = runApp(t, "--engine", "wasmtime", "run", "--bundle", bundle, "--precompiled", artifact)
	var exit cli.ExitCoder
	require.ErrorAs(t, err, &exit)
	require.Equal(t, 3, exit.ExitCode())

	// engines without precompilation run the module from the rootfs
	_, err = runApp(t, "--engine", "wazero", "run", "--bundle", bundle, "--precompiled", artifact)
	require.ErrorAs(t, err, &exit)
	require.Equal(t, 3, exit.ExitCode())

	// an artifact placed in the rootfs is never loaded as native code
	b, err := os.ReadFile(artifact)
	require.NoError(t, err)
	_, err = runApp(t, "--engine", "wasmtime", "run", "--bundle", writeBundle(t, b, "/app.wasm"))
	require.ErrorIs(t, err, engine.ErrLoad)
}

func TestStartNotCreated(t *testing.T) {
	_, err := runApp(t, "start", "--bundle", t.TempDir())
	require.ErrorContains(t, err, "container is not created")
}
