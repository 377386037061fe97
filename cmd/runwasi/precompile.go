package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/containerd/containerd/log"
	"github.com/cpuguy83/runwasi/engine"
	cli "github.com/urfave/cli/v2"
)

func addPrecompileCmd(app *cli.App) {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "precompile",
		Usage:     "compile wasm modules ahead of time for the configured engine",
		ArgsUsage: "MODULE...",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out", Usage: "directory to write artifacts to", Value: "."},
		},
		Action: runPrecompileCmd,
	})
}

// artifactName names a precompiled module by the digest of its source and
// the engine token it is valid for.
func artifactName(l engine.WasmLayer, token string) string {
	return fmt.Sprintf("%s.%s.cwasm", l.Config.Digest.Encoded(), token)
}

func runPrecompileCmd(cmd *cli.Context) error {
	if cmd.NArg() == 0 {
		return errors.New("no modules given")
	}

	eng, err := newEngine(cmd)
	if err != nil {
		return err
	}
	defer eng.Close()

	token, ok := eng.CanPrecompile()
	if !ok {
		return fmt.Errorf("engine %s does not support precompilation", eng.Name())
	}

	layers := make([]engine.WasmLayer, 0, cmd.NArg())
	for _, p := range cmd.Args().Slice() {
		b, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		layers = append(layers, engine.NewWasmLayer(b))
	}

	out, err := eng.Precompile(cmd.Context, layers)
	if err != nil {
		return err
	}

	dir := cmd.String("out")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for i, b := range out {
		src := cmd.Args().Get(i)
		if b == nil {
			log.G(cmd.Context).WithField("module", src).Warn("not precompiled")
			continue
		}
		p := filepath.Join(dir, artifactName(layers[i], token))
		if err := os.WriteFile(p, b, 0o644); err != nil {
			return err
		}
		fmt.Fprintln(cmd.App.Writer, p)
	}
	return nil
}
