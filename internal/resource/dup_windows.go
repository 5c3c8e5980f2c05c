//go:build windows

package resource

import (
	"fmt"
	"os"

	"golang.org/x/sys/windows"
)

// dupFile duplicates the handle behind f. The copy is not inheritable; the
// spawn path marks only the handles it passes as stdio.
func dupFile(f *os.File) (*os.File, error) {
	proc := windows.CurrentProcess()

	var dup windows.Handle
	err := windows.DuplicateHandle(
		proc,
		windows.Handle(f.Fd()),
		proc,
		&dup,
		0,
		false,
		windows.DUPLICATE_SAME_ACCESS,
	)
	if err != nil {
		return nil, fmt.Errorf("dup %s: %w", f.Name(), err)
	}

	return os.NewFile(uintptr(dup), f.Name()), nil
}
