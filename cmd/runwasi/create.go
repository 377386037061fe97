package main

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/containerd/containerd/log"
	"github.com/cpuguy83/runwasi/engine"
	"github.com/cpuguy83/runwasi/oci"
	"github.com/moby/sys/mount"
	cli "github.com/urfave/cli/v2"
	"golang.org/x/sys/unix"
)

// initPipe is the fifo the init process blocks on until the container is
// started.
const initPipe = "__init_pipe"

var bundleFlag = &cli.StringFlag{Name: "bundle", Usage: "path to the root of the bundle directory", Value: "."}

func addCreateCmd(app *cli.App) {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "create",
		Usage: "create a new container",
		Flags: []cli.Flag{
			bundleFlag,
			&cli.StringFlag{Name: "pid-file", Usage: "path to write the process id to"},
		},
		Action: runCreateCmd,
		Subcommands: []*cli.Command{
			{
				Name:   "init",
				Hidden: true,
				Action: runCreateInitCmd,
			},
		},
	})
}

func addStartCmd(app *cli.App) {
	app.Commands = append(app.Commands, &cli.Command{
		Name:   "start",
		Usage:  "start a created container",
		Flags:  []cli.Flag{bundleFlag},
		Action: runStartCmd,
	})
}

func addRunCmd(app *cli.App) {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "run",
		Usage: "create and start a container in the foreground",
		Flags: []cli.Flag{
			bundleFlag,
			&cli.StringFlag{Name: "precompiled", Usage: "path to an artifact written by precompile for the bundle's module"},
		},
		Action: func(cmd *cli.Context) error {
			return runBundle(cmd, cmd.String("bundle"))
		},
	})
}

func runCreateCmd(cmd *cli.Context) error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}

	bundle := cmd.String("bundle")

	// validate the bundle before forking so errors surface from create
	spec, err := oci.ReadSpec(bundle)
	if err != nil {
		return fmt.Errorf("error reading container spec: %w", err)
	}
	if _, err := oci.NewRuntimeContext(spec, bundle, nil); err != nil {
		return err
	}

	if err := unix.Mkfifo(filepath.Join(bundle, initPipe), 0o600); err != nil {
		return fmt.Errorf("error creating init pipe: %w", err)
	}

	createInit := exec.Command(exe, globalArgs(cmd)...)
	createInit.Args = append(createInit.Args, "create", "--bundle="+bundle, "init")
	createInit.SysProcAttr = &syscall.SysProcAttr{
		Cloneflags: syscall.CLONE_NEWNS,
	}
	createInit.Env = append(os.Environ(), "_RUNWASI_PHASE=1")

	createInit.Stdin = os.Stdin
	createInit.Stdout = os.Stdout
	createInit.Stderr = os.Stderr

	if err := createInit.Start(); err != nil {
		os.Remove(filepath.Join(bundle, initPipe))
		return fmt.Errorf("error starting init: %w", err)
	}

	if p := cmd.String("pid-file"); p != "" {
		if err := os.WriteFile(p, []byte(strconv.Itoa(createInit.Process.Pid)), 0o600); err != nil {
			createInit.Process.Kill()
			return err
		}
	}

	return createInit.Process.Release()
}

// globalArgs forwards the app flags to the init process.
func globalArgs(cmd *cli.Context) []string {
	var args []string
	for _, f := range []string{"config", "engine"} {
		if v := cmd.String(f); v != "" {
			args = append(args, "--"+f+"="+v)
		}
	}
	if cmd.Bool("debug") {
		args = append(args, "--debug")
	}
	return args
}

func runCreateInitCmd(cmd *cli.Context) error {
	// We should always be in a new mount namespace here, setup by the parent process
	// We use `rslave` here because we want mounts from the host to propagate in, but not the otherway around.
	if err := mount.MakeRSlave("/"); err != nil {
		return fmt.Errorf("error making private mount namespace: %w", err)
	}

	bundle := cmd.String("bundle")

	p := filepath.Join(bundle, initPipe)
	pipe, err := os.OpenFile(p, os.O_RDONLY, 0)
	if err != nil {
		return err
	}
	_, err = io.ReadFull(pipe, make([]byte, 1))
	pipe.Close()
	if err != nil {
		return fmt.Errorf("error waiting for start: %w", err)
	}

	return runBundle(cmd, bundle)
}

func runStartCmd(cmd *cli.Context) error {
	p := filepath.Join(cmd.String("bundle"), initPipe)
	pipe, err := os.OpenFile(p, os.O_WRONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return fmt.Errorf("container is not created: %w", err)
	}
	defer os.Remove(p)
	defer pipe.Close()

	_, err = pipe.Write([]byte{0})
	return err
}

func runBundle(cmd *cli.Context, bundle string) error {
	spec, err := oci.ReadSpec(bundle)
	if err != nil {
		return fmt.Errorf("error reading container spec: %w", err)
	}
	rctx, err := oci.NewRuntimeContext(spec, bundle, nil)
	if err != nil {
		return err
	}
	if p := cmd.String("precompiled"); p != "" {
		b, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("error reading precompiled module: %w", err)
		}
		rctx.SetPrecompiled(b)
	}

	eng, err := newEngine(cmd)
	if err != nil {
		return err
	}
	defer eng.Close()

	log.G(cmd.Context).WithField("engine", eng.Name()).WithField("entrypoint", rctx.String()).Debug("running container")

	code, err := eng.RunWasi(cmd.Context, rctx, engine.Stdio{})
	if err != nil {
		return err
	}
	if code != 0 {
		return cli.Exit("", code)
	}
	return nil
}
