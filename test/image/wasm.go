// Command image is a guest for manual testing, built with
// GOOS=wasip1 GOARCH=wasm and run through the shim.
package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

func main() {
	defer fmt.Fprintln(os.Stderr, "exiting")
	if len(os.Args) == 1 {
		fmt.Println("Hello from wasm!")
		return
	}

	switch os.Args[1] {
	case "sleep":
		dur, err := time.ParseDuration(os.Args[2])
		if err != nil {
			seconds, err := strconv.Atoi(os.Args[2])
			if err != nil {
				panic(err)
			}
			dur = time.Duration(seconds) * time.Second
		}
		time.Sleep(dur)
	case "echo":
		fmt.Println(strings.Join(os.Args[2:], " "))
	case "env":
		env := os.Environ()
		sort.Strings(env)
		for _, e := range env {
			fmt.Println(e)
		}
	case "cat":
		// paths resolve inside the preopened rootfs
		for _, p := range os.Args[2:] {
			f, err := os.Open(p)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			io.Copy(os.Stdout, f)
			f.Close()
		}
	case "stdin":
		io.Copy(os.Stdout, os.Stdin)
	case "exit":
		code, err := strconv.Atoi(os.Args[2])
		if err != nil {
			panic(err)
		}
		os.Exit(code)
	case "daemon":
		for {
			fmt.Println("Hello from wasm!")
			time.Sleep(time.Second)
		}
	default:
		fmt.Fprintln(os.Stderr, "unknown command", os.Args[1])
		os.Exit(1)
	}
}
