// Package engines selects the engine named by the configuration.
package engines

import (
	"context"
	"sort"

	"github.com/cpuguy83/runwasi/config"
	"github.com/cpuguy83/runwasi/engine"
	"github.com/cpuguy83/runwasi/wasmtimeengine"
	"github.com/cpuguy83/runwasi/wazeroengine"
)

var constructors = map[string]func(context.Context, config.Config) (engine.Engine, error){
	wazeroengine.Name: func(ctx context.Context, cfg config.Config) (engine.Engine, error) {
		return wazeroengine.New(ctx, cfg)
	},
	wasmtimeengine.Name: func(_ context.Context, cfg config.Config) (engine.Engine, error) {
		return wasmtimeengine.New(cfg)
	},
}

// New validates cfg and returns the engine it selects.
func New(ctx context.Context, cfg config.Config) (engine.Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, engine.Wrap(engine.ErrConfig, engine.StageCreated, err)
	}
	newEngine, ok := constructors[cfg.Engine]
	if !ok {
		return nil, engine.Errorf(engine.ErrConfig, engine.StageCreated, "unknown engine %q", cfg.Engine)
	}
	return newEngine(ctx, cfg)
}

// Names lists the available engines.
func Names() []string {
	names := make([]string, 0, len(constructors))
	for n := range constructors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
