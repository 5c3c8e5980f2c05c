package resource

import (
	"os"
)

// Duplicator is a resource backed by an OS stream that can hand out an
// independent handle to it. Closing the duplicate does not affect the
// original and vice versa.
type Duplicator interface {
	Resource
	Dup() (*os.File, error)
}

// File is an opened file.
type File struct {
	f *os.File
}

// NewFile wraps an opened file. The File takes ownership of f.
func NewFile(f *os.File) *File {
	return &File{f: f}
}

// Kind returns KindFile.
func (r *File) Kind() Kind { return KindFile }

// Name returns the file name as passed to open.
func (r *File) Name() string { return r.f.Name() }

// Read implements io.Reader.
func (r *File) Read(p []byte) (int, error) { return r.f.Read(p) }

// Write implements io.Writer.
func (r *File) Write(p []byte) (int, error) { return r.f.Write(p) }

// Dup returns a new handle to the same open file description.
func (r *File) Dup() (*os.File, error) { return dupFile(r.f) }

// Close closes the file.
func (r *File) Close() error { return r.f.Close() }

// Stdio is one of the host's own standard streams.
//
// Closing a Stdio resource only drops the table entry; the host keeps its
// stream.
type Stdio struct {
	f    *os.File
	kind Kind
}

// NewStdin wraps the host's standard input.
func NewStdin(f *os.File) *Stdio { return &Stdio{f: f, kind: KindStdin} }

// NewStdout wraps the host's standard output.
func NewStdout(f *os.File) *Stdio { return &Stdio{f: f, kind: KindStdout} }

// NewStderr wraps the host's standard error.
func NewStderr(f *os.File) *Stdio { return &Stdio{f: f, kind: KindStderr} }

// Kind returns KindStdin, KindStdout or KindStderr.
func (s *Stdio) Kind() Kind { return s.kind }

// Read reads from standard input.
func (s *Stdio) Read(p []byte) (int, error) {
	if s.kind != KindStdin {
		return 0, ErrNotReadable
	}
	return s.f.Read(p)
}

// Write writes to standard output or standard error.
func (s *Stdio) Write(p []byte) (int, error) {
	if s.kind == KindStdin {
		return 0, ErrNotWritable
	}
	return s.f.Write(p)
}

// Dup returns a new handle to the host stream.
func (s *Stdio) Dup() (*os.File, error) { return dupFile(s.f) }

// Close is a no-op.
func (s *Stdio) Close() error { return nil }

var (
	_ Duplicator = (*File)(nil)
	_ Duplicator = (*Stdio)(nil)
	_ Reader     = (*File)(nil)
	_ Writer     = (*File)(nil)
	_ Reader     = (*Stdio)(nil)
	_ Writer     = (*Stdio)(nil)
)
