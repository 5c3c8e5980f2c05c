package process

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseStdioMode(t *testing.T) {
	tests := []struct {
		in      string
		want    StdioMode
		wantErr bool
	}{
		{"", Inherit, false},
		{"inherit", Inherit, false},
		{"PIPED", Piped, false},
		{"null", Null, false},
		{"pipe", "", true},
	}

	for _, tt := range tests {
		got, err := ParseStdioMode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseStdioMode(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("ParseStdioMode(%q) error = %v, want ErrInvalidArgument", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseStdioMode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestResolveModeUnknownPanics(t *testing.T) {
	require.Panics(t, func() {
		_, _ = resolveMode("bogus", streamStdout)
	})
}

func TestResolveModeInherit(t *testing.T) {
	for _, mode := range []StdioMode{"", Inherit} {
		ep, err := resolveMode(mode, streamStderr)
		require.NoError(t, err)
		require.Same(t, os.Stderr, ep.child)
		require.False(t, ep.owned, "host stdio must never be closed")
		require.Nil(t, ep.host)
	}
}

func TestResolveModePipedDirections(t *testing.T) {
	in, err := resolveMode(Piped, streamStdin)
	require.NoError(t, err)
	defer in.closeAll()

	// Host writes, child reads.
	_, err = in.host.Write([]byte("x"))
	require.NoError(t, err)
	buf := make([]byte, 1)
	_, err = in.child.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "x", string(buf))

	out, err := resolveMode(Piped, streamStdout)
	require.NoError(t, err)
	defer out.closeAll()

	// Child writes, host reads.
	_, err = out.child.Write([]byte("y"))
	require.NoError(t, err)
	_, err = out.host.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "y", string(buf))
}

func TestResolveModeNull(t *testing.T) {
	ep, err := resolveMode(Null, streamStdout)
	require.NoError(t, err)
	defer ep.closeAll()

	require.True(t, ep.owned)
	require.Nil(t, ep.host)
	_, err = ep.child.Write([]byte("discarded"))
	require.NoError(t, err)
}
