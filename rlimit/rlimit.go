// Package rlimit describes the POSIX resource limits handed to a wasm guest.
package rlimit

import (
	"fmt"
	"strings"

	"github.com/opencontainers/runtime-spec/specs-go"
	"golang.org/x/sys/unix"
)

// Rlimit is a single resource limit. Type is a free form tag such as
// "RLIMIT_NOFILE" or "open files"; only Linux RLIMIT_* names can be applied.
type Rlimit struct {
	Type string
	Soft uint64
	Hard uint64
}

var resources = map[string]int{
	"RLIMIT_AS":         unix.RLIMIT_AS,
	"RLIMIT_CORE":       unix.RLIMIT_CORE,
	"RLIMIT_CPU":        unix.RLIMIT_CPU,
	"RLIMIT_DATA":       unix.RLIMIT_DATA,
	"RLIMIT_FSIZE":      unix.RLIMIT_FSIZE,
	"RLIMIT_LOCKS":      unix.RLIMIT_LOCKS,
	"RLIMIT_MEMLOCK":    unix.RLIMIT_MEMLOCK,
	"RLIMIT_MSGQUEUE":   unix.RLIMIT_MSGQUEUE,
	"RLIMIT_NICE":       unix.RLIMIT_NICE,
	"RLIMIT_NOFILE":     unix.RLIMIT_NOFILE,
	"RLIMIT_NPROC":      unix.RLIMIT_NPROC,
	"RLIMIT_RSS":        unix.RLIMIT_RSS,
	"RLIMIT_RTPRIO":     unix.RLIMIT_RTPRIO,
	"RLIMIT_RTTIME":     unix.RLIMIT_RTTIME,
	"RLIMIT_SIGPENDING": unix.RLIMIT_SIGPENDING,
	"RLIMIT_STACK":      unix.RLIMIT_STACK,
}

// New returns a validated Rlimit.
func New(typ string, soft, hard uint64) (Rlimit, error) {
	r := Rlimit{Type: typ, Soft: soft, Hard: hard}
	if err := r.Validate(); err != nil {
		return Rlimit{}, err
	}
	return r, nil
}

// Validate checks that soft does not exceed hard.
func (r Rlimit) Validate() error {
	if r.Soft > r.Hard {
		return fmt.Errorf("rlimit %s: soft limit %d exceeds hard limit %d", r.Type, r.Soft, r.Hard)
	}
	return nil
}

func (r Rlimit) String() string {
	return fmt.Sprintf("%s soft=%d hard=%d", r.Type, r.Soft, r.Hard)
}

// Apply sets the limit on the calling process. Types without a Linux
// resource are rejected here rather than by Validate.
// This affects every goroutine in the process, callers that run more than
// one guest per process should not use it.
func (r Rlimit) Apply() error {
	res, ok := resources[strings.ToUpper(r.Type)]
	if !ok {
		return fmt.Errorf("unknown rlimit type %q", r.Type)
	}
	lim := unix.Rlimit{Cur: r.Soft, Max: r.Hard}
	if err := unix.Prlimit(0, res, &lim, nil); err != nil {
		return fmt.Errorf("set %s: %w", r.Type, err)
	}
	return nil
}

// FromSpec converts the rlimits of an OCI process spec.
func FromSpec(ls []specs.POSIXRlimit) ([]Rlimit, error) {
	out := make([]Rlimit, 0, len(ls))
	for _, l := range ls {
		r, err := New(l.Type, l.Soft, l.Hard)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
