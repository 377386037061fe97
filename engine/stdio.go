package engine

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// Stdio names the host streams a guest's stdio is bound to. An empty path
// binds the corresponding stream of the host process.
type Stdio struct {
	Stdin  string
	Stdout string
	Stderr string
}

// Streams are the opened stdio of one invocation.
type Streams struct {
	stdin  *os.File
	stdout *os.File
	stderr *os.File

	paths Stdio
}

// Redirect opens every configured path. Either all streams are opened or
// none are: on failure anything already opened is closed again.
func (s Stdio) Redirect() (_ *Streams, retErr error) {
	streams := &Streams{paths: s}
	defer func() {
		if retErr != nil {
			streams.Close()
			retErr = Wrap(ErrIO, StageModuleLoaded, retErr)
		}
	}()

	var err error
	if streams.stdin, err = openStdio(s.Stdin); err != nil {
		return nil, fmt.Errorf("stdin: %w", err)
	}
	if streams.stdout, err = openStdio(s.Stdout); err != nil {
		return nil, fmt.Errorf("stdout: %w", err)
	}
	if streams.stderr, err = openStdio(s.Stderr); err != nil {
		return nil, fmt.Errorf("stderr: %w", err)
	}
	return streams, nil
}

// Opened read-write so that opening a fifo never blocks waiting for the
// other end.
func openStdio(p string) (*os.File, error) {
	if p == "" {
		return nil, nil
	}
	return os.OpenFile(p, os.O_RDWR, 0)
}

func (s *Streams) Stdin() io.Reader {
	if s.stdin == nil {
		return os.Stdin
	}
	return s.stdin
}

func (s *Streams) Stdout() io.Writer {
	if s.stdout == nil {
		return os.Stdout
	}
	return s.stdout
}

func (s *Streams) Stderr() io.Writer {
	if s.stderr == nil {
		return os.Stderr
	}
	return s.stderr
}

// Paths returns the paths the streams were opened from.
func (s *Streams) Paths() Stdio {
	return s.paths
}

// Close closes every opened stream.
func (s *Streams) Close() error {
	var errs []error
	for _, f := range []*os.File{s.stdin, s.stdout, s.stderr} {
		if f == nil {
			continue
		}
		if err := f.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.stdin, s.stdout, s.stderr = nil, nil, nil
	return errors.Join(errs...)
}
