package resource

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// ID identifies a resource within one Table.
//
// ID 0 is reserved for the host's standard input. A table created without
// WithStdio never hands it out, so 0 can stand for "no resource".
type ID uint32

// Host standard streams, registered by WithStdio.
const (
	StdinID  ID = 0
	StdoutID ID = 1
	StderrID ID = 2
)

// Resource is an object that can be stored in a Table.
type Resource interface {
	// Kind returns the entry tag.
	Kind() Kind

	// Close releases the resource. It is called exactly once, when the
	// entry is removed from the table.
	Close() error
}

// Reader is a readable resource.
type Reader interface {
	Resource
	io.Reader
}

// Writer is a writable resource.
type Writer interface {
	Resource
	io.Writer
}

// Info describes a table entry.
type Info struct {
	ID   ID
	Kind Kind
}

// Table is an arena of resources addressed by ID.
//
// Table is safe for concurrent use.
type Table struct {
	mu      sync.Mutex
	entries map[ID]Resource
	next    ID
	full    bool
	closed  bool

	stdio []Resource

	// instance identifies the table in logs. IDs from two tables never mix.
	instance uuid.UUID

	// onChange is called with the entry count after every add or remove.
	onChange func(n int)
}

// TableOption configures a Table.
type TableOption func(*Table)

// WithChangeCallback sets a callback that receives the number of entries
// after each insertion or removal. It runs outside the table lock.
func WithChangeCallback(fn func(n int)) TableOption {
	return func(t *Table) {
		t.onChange = fn
	}
}

// WithStdio registers the host's standard streams as StdinID, StdoutID
// and StderrID.
func WithStdio(stdin, stdout, stderr *os.File) TableOption {
	return func(t *Table) {
		t.stdio = []Resource{NewStdin(stdin), NewStdout(stdout), NewStderr(stderr)}
	}
}

// NewTable creates a table. Without WithStdio it is empty and the first
// ID handed out is 1.
func NewTable(opts ...TableOption) *Table {
	t := &Table{
		entries:  make(map[ID]Resource),
		next:     StdinID + 1,
		instance: uuid.New(),
	}
	for _, opt := range opts {
		opt(t)
	}

	if len(t.stdio) > 0 {
		for i, r := range t.stdio {
			t.entries[StdinID+ID(i)] = r
		}
		t.next = StdinID + ID(len(t.stdio))
		t.stdio = nil
		t.changed(len(t.entries))
	}
	return t
}

// Instance returns the table's unique instance ID.
func (t *Table) Instance() uuid.UUID {
	return t.instance
}

// Add inserts a resource and returns its ID.
//
// Adding to a closed table closes the resource and returns ErrTableClosed.
// IDs are never reused; once the last one is taken Add closes the resource
// and returns ErrTableFull.
func (t *Table) Add(r Resource) (ID, error) {
	t.mu.Lock()
	if t.closed || t.full {
		err := ErrTableClosed
		if !t.closed {
			err = ErrTableFull
		}
		t.mu.Unlock()
		_ = r.Close()
		return 0, err
	}
	id := t.next
	if id == math.MaxUint32 {
		t.full = true
	} else {
		t.next++
	}
	t.entries[id] = r
	n := len(t.entries)
	t.mu.Unlock()

	t.changed(n)
	return id, nil
}

// Get returns the resource stored under id.
func (t *Table) Get(id ID) (Resource, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.entries[id]
	return r, ok
}

// Len returns the number of entries.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// List returns all entries ordered by ID.
func (t *Table) List() []Info {
	t.mu.Lock()
	infos := make([]Info, 0, len(t.entries))
	for id, r := range t.entries {
		infos = append(infos, Info{ID: id, Kind: r.Kind()})
	}
	t.mu.Unlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// Remove deletes the entry and closes its resource.
//
// The entry is gone from the table before Close runs, so no other caller can
// observe a half-closed resource. Close runs synchronously, without the lock.
func (t *Table) Remove(id ID) error {
	t.mu.Lock()
	r, ok := t.entries[id]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("remove %d: %w", id, ErrBadResource)
	}
	delete(t.entries, id)
	n := len(t.entries)
	t.mu.Unlock()

	t.changed(n)
	return r.Close()
}

// Close removes every entry, highest ID first, and rejects further inserts.
func (t *Table) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	ids := make([]ID, 0, len(t.entries))
	for id := range t.entries {
		ids = append(ids, id)
	}
	t.mu.Unlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })

	var errs []error
	for _, id := range ids {
		if err := t.Remove(id); err != nil && !errors.Is(err, ErrBadResource) {
			errs = append(errs, fmt.Errorf("close resource %d: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

func (t *Table) changed(n int) {
	if t.onChange != nil {
		t.onChange(n)
	}
}

// Get resolves id to a resource of type T.
//
// It returns ErrBadResource when the ID is unknown or the stored resource is
// not a T.
func Get[T any](t *Table, id ID) (T, error) {
	var zero T
	r, ok := t.Get(id)
	if !ok {
		return zero, fmt.Errorf("resource %d: %w", id, ErrBadResource)
	}
	v, ok := r.(T)
	if !ok {
		return zero, fmt.Errorf("resource %d (%s): %w", id, r.Kind(), ErrBadResource)
	}
	return v, nil
}

// With resolves id to a resource of type T and calls fn with it while
// holding the table lock. fn must not block and must not call back into
// the table.
func With[T any](t *Table, id ID, fn func(T) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.entries[id]
	if !ok {
		return fmt.Errorf("resource %d: %w", id, ErrBadResource)
	}
	v, ok := r.(T)
	if !ok {
		return fmt.Errorf("resource %d (%s): %w", id, r.Kind(), ErrBadResource)
	}
	return fn(v)
}
