//go:build !windows

package resource

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// dupFile duplicates the descriptor behind f with close-on-exec set, so the
// copy only reaches a child when it is explicitly passed as a stdio stream.
func dupFile(f *os.File) (*os.File, error) {
	rc, err := f.SyscallConn()
	if err != nil {
		return nil, fmt.Errorf("dup %s: %w", f.Name(), err)
	}

	var nfd int
	var dupErr error
	if err := rc.Control(func(fd uintptr) {
		nfd, dupErr = unix.FcntlInt(fd, unix.F_DUPFD_CLOEXEC, 0)
	}); err != nil {
		return nil, fmt.Errorf("dup %s: %w", f.Name(), err)
	}
	if dupErr != nil {
		return nil, fmt.Errorf("dup %s: %w", f.Name(), dupErr)
	}

	return os.NewFile(uintptr(nfd), f.Name()), nil
}
