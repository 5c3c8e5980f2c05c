// Package resource provides the table of host-visible resources.
//
// Every object a script can refer to by number (a child process, the host end
// of one of its pipes, an opened file, the host's own standard streams) lives
// in a Table under a small integer ID.
//
// # Table
//
// The Table is an arena of tagged entries:
//
//	table := resource.NewTable()
//	id, err := table.Add(resource.NewFile(f))
//
//	// Typed access, resolved under the table lock
//	file, err := resource.Get[*resource.File](table, id)
//	if errors.Is(err, resource.ErrBadResource) {
//	    // id unknown or of another kind
//	}
//
//	// Removal runs the resource's Close hook synchronously
//	_ = table.Remove(id)
//
// IDs grow monotonically inside one Table and are never reused. They carry
// no meaning across tables. ID 0 belongs to the host's standard input when
// the table is created WithStdio and is never assigned otherwise.
//
// # Duplication
//
// Resources that implement Duplicator can hand out an independent OS handle to
// the same underlying stream. Child processes receive such handles as their
// standard streams while the original resource stays usable.
//
// # Thread Safety
//
// Table is safe for concurrent use. The lock is held only for the duration of
// a single lookup, insertion or removal, never while a resource blocks.
package resource
