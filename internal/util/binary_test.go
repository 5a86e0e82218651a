package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeExecutable(t *testing.T, mode os.FileMode) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-binary")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), mode))
	return path
}

func TestFindBinary(t *testing.T) {
	t.Run("environment override wins over PATH", func(t *testing.T) {
		path := writeExecutable(t, 0o755)
		t.Setenv("VODARR_TEST_BINARY", path)

		// "ls" exists on PATH, but the override should win.
		found, err := FindBinary("ls", "VODARR_TEST_BINARY")
		require.NoError(t, err)
		assert.Equal(t, path, found)
	})

	t.Run("first set override of several wins", func(t *testing.T) {
		path := writeExecutable(t, 0o755)
		t.Setenv("VODARR_TEST_SECONDARY", path)

		found, err := FindBinary("ls", "VODARR_TEST_UNSET_12345", "VODARR_TEST_SECONDARY")
		require.NoError(t, err)
		assert.Equal(t, path, found)
	})

	t.Run("falls back to PATH", func(t *testing.T) {
		found, err := FindBinary("ls")
		require.NoError(t, err)
		assert.Contains(t, found, "ls")
	})

	t.Run("not found anywhere", func(t *testing.T) {
		found, err := FindBinary("definitely-nonexistent-binary-12345")
		assert.Error(t, err)
		assert.Empty(t, found)
		assert.Contains(t, err.Error(), "not found")
	})

	t.Run("ignores override pointing at missing file", func(t *testing.T) {
		t.Setenv("VODARR_TEST_BINARY", "/nonexistent/path/to/binary")

		found, err := FindBinary("ls", "VODARR_TEST_BINARY")
		require.NoError(t, err)
		assert.Contains(t, found, "ls")
	})

	t.Run("ignores override without executable bit", func(t *testing.T) {
		path := writeExecutable(t, 0o644)
		t.Setenv("VODARR_TEST_BINARY", path)

		found, err := FindBinary("ls", "VODARR_TEST_BINARY")
		require.NoError(t, err)
		assert.NotEqual(t, path, found)
	})

	t.Run("ignores override pointing at a directory", func(t *testing.T) {
		dir := t.TempDir()
		t.Setenv("VODARR_TEST_BINARY", dir)

		found, err := FindBinary("ls", "VODARR_TEST_BINARY")
		require.NoError(t, err)
		assert.NotEqual(t, dir, found)
	})
}
