package main

import (
	"fmt"
	"os"

	"github.com/cpuguy83/runwasi/config"
	"github.com/cpuguy83/runwasi/engine"
	"github.com/cpuguy83/runwasi/engines"
	"github.com/sirupsen/logrus"
	cli "github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	app := &cli.App{
		Name:        "runwasi",
		Usage:       "run wasi applications from oci bundles",
		Description: "runwasi is a mostly runc compatible-ish tool to run wasi applications for use with containerd",
		Action: func(c *cli.Context) error {
			return cli.ShowAppHelp(c)
		},
		Before: func(c *cli.Context) error {
			if c.Bool("debug") {
				logrus.SetLevel(logrus.DebugLevel)
			}
			return nil
		},
	}

	app.Flags = []cli.Flag{
		&cli.BoolFlag{Name: "debug", Usage: "enable debug mode"},
		&cli.StringFlag{Name: "config", Usage: "path to the engine configuration", EnvVars: []string{config.EnvConfig}, Value: config.DefaultPath},
		&cli.StringFlag{Name: "engine", Usage: "engine to run guests with, overrides the configuration", EnvVars: []string{config.EnvEngine}},
	}

	addCreateCmd(app)
	addStartCmd(app)
	addRunCmd(app)
	addPrecompileCmd(app)
	addInfoCmd(app)

	return app
}

func loadConfig(c *cli.Context) (config.Config, error) {
	cfg, err := config.LoadFile(c.String("config"))
	if err != nil {
		return config.Config{}, err
	}
	if e := c.String("engine"); e != "" {
		cfg.Engine = e
	}
	return cfg, nil
}

func newEngine(c *cli.Context) (engine.Engine, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	return engines.New(c.Context, cfg)
}
