package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadFileMissing(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoadFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "runwasi.toml")
	require.NoError(t, os.WriteFile(p, []byte(`
engine = "wasmtime"
inherit_env = true

[wazero]
memory_limit_pages = 256

[wasmtime]
opt_level = "none"
fuel = 1000000
`), 0o600))

	cfg, err := LoadFile(p)
	require.NoError(t, err)
	require.Equal(t, EngineWasmtime, cfg.Engine)
	require.True(t, cfg.InheritEnv)
	require.Equal(t, uint32(256), cfg.Wazero.MemoryLimitPages)
	require.True(t, cfg.Wazero.CloseOnContextDone)
	require.Equal(t, "none", cfg.Wasmtime.OptLevel)
	require.Equal(t, uint64(1000000), cfg.Wasmtime.Fuel)
	require.True(t, cfg.Wasmtime.Interruptible)
}

func TestLoadFileInvalid(t *testing.T) {
	dir := t.TempDir()

	p := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(p, []byte(`engine = [`), 0o600))
	_, err := LoadFile(p)
	require.Error(t, err)

	p = filepath.Join(dir, "engine.toml")
	require.NoError(t, os.WriteFile(p, []byte(`engine = "wamr"`), 0o600))
	_, err = LoadFile(p)
	require.Error(t, err)

	p = filepath.Join(dir, "opt.toml")
	require.NoError(t, os.WriteFile(p, []byte("[wasmtime]\nopt_level = \"fast\""), 0o600))
	_, err = LoadFile(p)
	require.Error(t, err)
}

func TestLoadEnv(t *testing.T) {
	t.Setenv(EnvConfig, filepath.Join(t.TempDir(), "none.toml"))
	t.Setenv(EnvEngine, EngineWasmtime)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, EngineWasmtime, cfg.Engine)

	t.Setenv(EnvEngine, "bogus")
	_, err = Load()
	require.Error(t, err)
}
