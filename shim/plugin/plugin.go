// Package plugin registers the wasi task service as a containerd plugin to
// use with shim.RunManager.
package plugin

import (
	"github.com/containerd/containerd/log"
	"github.com/containerd/containerd/pkg/shutdown"
	"github.com/containerd/containerd/plugin"
	"github.com/containerd/containerd/runtime/v2/shim"
	"github.com/cpuguy83/runwasi/config"
	"github.com/cpuguy83/runwasi/engines"
	wasishim "github.com/cpuguy83/runwasi/shim"
)

func init() {
	plugin.Register(&plugin.Registration{
		Type: plugin.TTRPCPlugin,
		ID:   "task",
		Requires: []plugin.Type{
			plugin.EventPlugin,
			plugin.InternalPlugin,
		},
		InitFn: func(ic *plugin.InitContext) (interface{}, error) {
			pp, err := ic.GetByID(plugin.EventPlugin, "publisher")
			if err != nil {
				return nil, err
			}
			ss, err := ic.GetByID(plugin.InternalPlugin, "shutdown")
			if err != nil {
				return nil, err
			}

			cfg, err := config.Load()
			if err != nil {
				return nil, err
			}
			eng, err := engines.New(ic.Context, cfg)
			if err != nil {
				return nil, err
			}
			log.G(ic.Context).WithField("engine", eng.Name()).Info("wasi engine ready")

			return wasishim.NewService(ic.Context, eng, pp.(shim.Publisher), ss.(shutdown.Service)), nil
		},
	})
}
