// Package wasi builds the environment a guest module sees through WASI.
package wasi

import (
	"fmt"
	"strings"

	"github.com/cpuguy83/runwasi/engine"
	"github.com/cpuguy83/runwasi/rlimit"
)

// Preopen maps a host directory into the guest.
type Preopen struct {
	HostPath  string
	GuestPath string
}

// Context is the guest-visible environment for one invocation.
type Context struct {
	Args     []string
	Env      []string
	Rlimits  []rlimit.Rlimit
	Preopens []Preopen
}

// Build assembles the context for rctx. envs are KEY=VALUE pairs from the
// host, the container's own environment takes precedence over them.
func Build(rctx engine.RuntimeContext, envs []string) (*Context, error) {
	env, err := mergeEnv(envs, rctx.Envs())
	if err != nil {
		return nil, engine.Wrap(engine.ErrConfig, engine.StageCreated, err)
	}

	for _, r := range rctx.Rlimits() {
		if err := r.Validate(); err != nil {
			return nil, engine.Wrap(engine.ErrConfig, engine.StageCreated, err)
		}
	}

	args := append([]string(nil), rctx.Args()...)
	if ep := rctx.Entrypoint(); ep.Arg0 != "" {
		if len(args) == 0 {
			args = []string{ep.Arg0}
		} else {
			args[0] = ep.Arg0
		}
	}

	c := &Context{
		Args:    args,
		Env:     env,
		Rlimits: append([]rlimit.Rlimit(nil), rctx.Rlimits()...),
	}
	if root := rctx.Rootfs(); root != "" {
		c.Preopens = append(c.Preopens, Preopen{HostPath: root, GuestPath: "/"})
	}
	return c, nil
}

func mergeEnv(sets ...[]string) ([]string, error) {
	var (
		keys []string
		vals = map[string]string{}
	)
	for _, set := range sets {
		for _, e := range set {
			k, v, err := splitEnv(e)
			if err != nil {
				return nil, err
			}
			if _, ok := vals[k]; !ok {
				keys = append(keys, k)
			}
			vals[k] = v
		}
	}

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+vals[k])
	}
	return out, nil
}

func splitEnv(e string) (string, string, error) {
	env := strings.SplitN(e, "=", 2)
	if len(env) != 2 || env[0] == "" {
		return "", "", fmt.Errorf("invalid environment variable: %s", e)
	}
	return env[0], env[1], nil
}

// EnvPairs splits Env into parallel key and value slices.
func (c *Context) EnvPairs() (keys, values []string) {
	keys = make([]string, len(c.Env))
	values = make([]string, len(c.Env))
	for i, e := range c.Env {
		// validated by Build
		keys[i], values[i], _ = splitEnv(e)
	}
	return keys, values
}

// ApplyRlimits sets every rlimit on the calling process.
func (c *Context) ApplyRlimits() error {
	for _, r := range c.Rlimits {
		if err := r.Apply(); err != nil {
			return engine.Wrap(engine.ErrResource, engine.StageEnvironmentReady, err)
		}
	}
	return nil
}
