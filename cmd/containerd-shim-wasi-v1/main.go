package main

import (
	"context"

	"github.com/containerd/containerd/runtime/v2/shim"
	wasishim "github.com/cpuguy83/runwasi/shim"
	_ "github.com/cpuguy83/runwasi/shim/plugin"
	"github.com/moby/sys/mount"
)

func main() {
	if err := mount.MakeRSlave("/"); err != nil {
		panic(err)
	}
	shim.RunManager(context.Background(), wasishim.NewManager("io.containerd.wasi.v1"))
}
