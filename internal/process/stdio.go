package process

import (
	"fmt"
	"os"
	"strings"

	"github.com/dshills/luaproc/internal/resource"
)

// StdioMode selects how a child's standard stream is connected.
type StdioMode string

const (
	// Inherit shares the host's own stream with the child.
	Inherit StdioMode = "inherit"
	// Piped creates a pipe; the host end becomes a resource.
	Piped StdioMode = "piped"
	// Null connects the stream to the platform null device.
	Null StdioMode = "null"
)

// ParseStdioMode validates a mode name. The empty string means Inherit.
func ParseStdioMode(s string) (StdioMode, error) {
	switch StdioMode(strings.ToLower(s)) {
	case "", Inherit:
		return Inherit, nil
	case Piped:
		return Piped, nil
	case Null:
		return Null, nil
	default:
		return "", fmt.Errorf("%w: unknown stdio mode %q", ErrInvalidArgument, s)
	}
}

type stream int

const (
	streamStdin stream = iota
	streamStdout
	streamStderr
)

func (s stream) String() string {
	switch s {
	case streamStdin:
		return "stdin"
	case streamStdout:
		return "stdout"
	default:
		return "stderr"
	}
}

func (s stream) kind() resource.Kind {
	switch s {
	case streamStdin:
		return resource.KindChildStdin
	case streamStdout:
		return resource.KindChildStdout
	default:
		return resource.KindChildStderr
	}
}

func (s stream) hostFile() *os.File {
	switch s {
	case streamStdin:
		return os.Stdin
	case streamStdout:
		return os.Stdout
	default:
		return os.Stderr
	}
}

// endpoint is one resolved stream.
type endpoint struct {
	// child is handed to the child process.
	child *os.File
	// owned is true when the parent must close child after the spawn attempt.
	owned bool
	// host is the parent end of a pipe, nil otherwise.
	host *os.File
}

func (e endpoint) closeChild() {
	if e.owned && e.child != nil {
		_ = e.child.Close()
	}
}

func (e endpoint) closeAll() {
	e.closeChild()
	if e.host != nil {
		_ = e.host.Close()
	}
}

// resolveMode turns a mode into a concrete stream. An unknown mode is a
// programming error and panics; callers validate with ParseStdioMode.
func resolveMode(mode StdioMode, s stream) (endpoint, error) {
	switch mode {
	case "", Inherit:
		return endpoint{child: s.hostFile()}, nil

	case Piped:
		r, w, err := os.Pipe()
		if err != nil {
			return endpoint{}, fmt.Errorf("create %s pipe: %w", s, err)
		}
		if s == streamStdin {
			return endpoint{child: r, owned: true, host: w}, nil
		}
		return endpoint{child: w, owned: true, host: r}, nil

	case Null:
		flag := os.O_WRONLY
		if s == streamStdin {
			flag = os.O_RDONLY
		}
		f, err := os.OpenFile(os.DevNull, flag, 0)
		if err != nil {
			return endpoint{}, fmt.Errorf("open %s for %s: %w", os.DevNull, s, err)
		}
		return endpoint{child: f, owned: true}, nil

	default:
		panic(fmt.Sprintf("process: unknown stdio mode %q for %s", mode, s))
	}
}

// resolveRid duplicates the handle behind rid for the child. The lookup and
// the duplication happen under the table lock.
func resolveRid(table *resource.Table, rid resource.ID, s stream) (endpoint, error) {
	var dup *os.File
	err := resource.With(table, rid, func(d resource.Duplicator) error {
		f, err := d.Dup()
		if err != nil {
			return fmt.Errorf("duplicate resource %d for %s: %w", rid, s, err)
		}
		dup = f
		return nil
	})
	if err != nil {
		return endpoint{}, err
	}
	return endpoint{child: dup, owned: true}, nil
}

func resolve(table *resource.Table, rid resource.ID, mode StdioMode, s stream) (endpoint, error) {
	if rid != resource.StdinID {
		return resolveRid(table, rid, s)
	}
	return resolveMode(mode, s)
}
