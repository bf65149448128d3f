package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xrdtools/catalog/internal/hash/sha256"
)

func TestSave_SequentialNames(t *testing.T) {
	t.Parallel()

	s, err := Open(t.TempDir(), sha256.New())
	require.NoError(t, err)

	name, created, err := s.Save([]byte("<wsdl one/>"), "wsdl")
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, "0.wsdl", name)

	name, created, err = s.Save([]byte("<wsdl two/>"), "wsdl")
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, "1.wsdl", name)
}

func TestSave_DeduplicatesIdenticalBytes(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, err := Open(dir, sha256.New())
	require.NoError(t, err)

	first, created, err := s.Save([]byte("<wsdl/>"), "wsdl")
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := s.Save([]byte("<wsdl/>"), "wsdl")
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, first, second)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestOpen_RescansExistingDocuments(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "0.wsdl"), []byte("<old/>"), 0o640))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "7.json"), []byte(`{"openapi":"3.0.0"}`), 0o640))
	// Files outside the naming scheme are left alone.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o640))

	s, err := Open(dir, sha256.New())
	require.NoError(t, err)

	// Identical content resolves to the file written by the earlier run.
	name, created, err := s.Save([]byte("<old/>"), "wsdl")
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, "0.wsdl", name)

	// New content continues after the highest existing sequence number.
	name, created, err = s.Save([]byte("<new/>"), "wsdl")
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, "8.wsdl", name)
}
