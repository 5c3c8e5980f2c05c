package process

import (
	"os"

	"github.com/dshills/luaproc/internal/resource"
)

// ChildStream is the host end of a pipe connected to a child's standard
// stream. A childStdin stream is write-only, childStdout and childStderr
// streams are read-only.
type ChildStream struct {
	f    *os.File
	kind resource.Kind
}

func newChildStream(f *os.File, kind resource.Kind) *ChildStream {
	return &ChildStream{f: f, kind: kind}
}

// Kind implements resource.Resource.
func (s *ChildStream) Kind() resource.Kind {
	return s.kind
}

// Read reads from a childStdout or childStderr pipe.
func (s *ChildStream) Read(p []byte) (int, error) {
	if s.kind == resource.KindChildStdin {
		return 0, resource.ErrNotReadable
	}
	return s.f.Read(p)
}

// Write writes to a childStdin pipe.
func (s *ChildStream) Write(p []byte) (int, error) {
	if s.kind != resource.KindChildStdin {
		return 0, resource.ErrNotWritable
	}
	return s.f.Write(p)
}

// Close closes the host end. Closing childStdin delivers EOF to the child.
func (s *ChildStream) Close() error {
	return s.f.Close()
}

var (
	_ resource.Reader = (*ChildStream)(nil)
	_ resource.Writer = (*ChildStream)(nil)
)
