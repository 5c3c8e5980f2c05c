package resource

import "fmt"

// Kind tags a table entry with the category of object it holds.
type Kind int

const (
	// KindChild is a spawned child process.
	KindChild Kind = iota
	// KindChildStdin is the host end of a child's stdin pipe (write only).
	KindChildStdin
	// KindChildStdout is the host end of a child's stdout pipe (read only).
	KindChildStdout
	// KindChildStderr is the host end of a child's stderr pipe (read only).
	KindChildStderr
	// KindFile is a file opened by the host.
	KindFile
	// KindStdin is the host's own standard input.
	KindStdin
	// KindStdout is the host's own standard output.
	KindStdout
	// KindStderr is the host's own standard error.
	KindStderr
)

// String returns the tag name scripts see in resources.list().
func (k Kind) String() string {
	switch k {
	case KindChild:
		return "child"
	case KindChildStdin:
		return "childStdin"
	case KindChildStdout:
		return "childStdout"
	case KindChildStderr:
		return "childStderr"
	case KindFile:
		return "fsFile"
	case KindStdin:
		return "stdin"
	case KindStdout:
		return "stdout"
	case KindStderr:
		return "stderr"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}
