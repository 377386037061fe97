package main

import (
	"fmt"
	"strings"

	"github.com/cpuguy83/runwasi/engines"
	cli "github.com/urfave/cli/v2"
)

func addInfoCmd(app *cli.App) {
	app.Commands = append(app.Commands, &cli.Command{
		Name:   "info",
		Usage:  "print the configured engine and its precompilation token",
		Action: runInfoCmd,
	})
}

func runInfoCmd(cmd *cli.Context) error {
	eng, err := newEngine(cmd)
	if err != nil {
		return err
	}
	defer eng.Close()

	w := cmd.App.Writer
	fmt.Fprintf(w, "engine: %s\n", eng.Name())
	fmt.Fprintf(w, "available: %s\n", strings.Join(engines.Names(), ", "))
	if token, ok := eng.CanPrecompile(); ok {
		fmt.Fprintf(w, "precompile token: %s\n", token)
	} else {
		fmt.Fprintln(w, "precompile: unsupported")
	}
	return nil
}
