package api

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func evalSymlinks(t *testing.T, path string) string {
	t.Helper()
	resolved, err := filepath.EvalSymlinks(path)
	require.NoError(t, err)
	return resolved
}
