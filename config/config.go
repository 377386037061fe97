// Package config holds the engine configuration selected at shim startup.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

const (
	// DefaultPath is read when RUNWASI_CONFIG is not set.
	DefaultPath = "/etc/containerd/runwasi.toml"

	EnvConfig = "RUNWASI_CONFIG"
	EnvEngine = "RUNWASI_ENGINE"
)

const (
	EngineWazero   = "wazero"
	EngineWasmtime = "wasmtime"
)

// Config selects and tunes the engine. It is not modified after an engine
// has been created from it.
type Config struct {
	Engine string `toml:"engine"`
	// InheritEnv passes the shim's own environment to guests, below the
	// container's environment.
	InheritEnv bool `toml:"inherit_env"`
	// ApplyRlimits sets the container rlimits on the calling process before
	// the guest runs. Only safe with one guest per process.
	ApplyRlimits bool `toml:"apply_rlimits"`

	Wazero   Wazero   `toml:"wazero"`
	Wasmtime Wasmtime `toml:"wasmtime"`
}

type Wazero struct {
	// MemoryLimitPages caps guest memory, in 64KiB pages. 0 is the runtime
	// default.
	MemoryLimitPages   uint32 `toml:"memory_limit_pages"`
	CloseOnContextDone bool   `toml:"close_on_context_done"`
	// CompilationCacheDir persists compiled code across restarts.
	CompilationCacheDir string `toml:"compilation_cache_dir"`
	Interpreter         bool   `toml:"interpreter"`
}

type Wasmtime struct {
	OptLevel      string `toml:"opt_level"`
	Interruptible bool   `toml:"interruptible"`
	// Fuel limits the instructions a guest may execute. 0 disables metering.
	Fuel      uint64 `toml:"fuel"`
	SIMD      bool   `toml:"simd"`
	DebugInfo bool   `toml:"debug_info"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		Engine: EngineWazero,
		Wazero: Wazero{
			CloseOnContextDone: true,
		},
		Wasmtime: Wasmtime{
			OptLevel:      "speed",
			Interruptible: true,
			SIMD:          true,
		},
	}
}

// Load reads the file named by RUNWASI_CONFIG, or DefaultPath, over the
// defaults. RUNWASI_ENGINE overrides the engine.
func Load() (Config, error) {
	p := os.Getenv(EnvConfig)
	if p == "" {
		p = DefaultPath
	}
	cfg, err := LoadFile(p)
	if err != nil {
		return Config{}, err
	}
	if e := os.Getenv(EnvEngine); e != "" {
		cfg.Engine = e
	}
	return cfg, cfg.Validate()
}

// LoadFile decodes path over the defaults. A missing file is not an error.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch c.Engine {
	case EngineWazero, EngineWasmtime:
	default:
		return fmt.Errorf("unknown engine %q", c.Engine)
	}
	switch c.Wasmtime.OptLevel {
	case "", "none", "speed", "speed_and_size":
	default:
		return fmt.Errorf("unknown wasmtime opt_level %q", c.Wasmtime.OptLevel)
	}
	return nil
}
