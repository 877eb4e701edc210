package gitops

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestListFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "internal", "server"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git"), 0755))
	files := map[string]string{
		"README.md":                 "# readme",
		"main.go":                   "package main",
		"internal/server/server.go": "package server",
		".git/config":               "[core]",
	}
	for path, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, path), []byte(content), 0644))
	}

	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	listing, err := m.ListFiles(dir, true)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"README.md", "main.go", filepath.Join("internal", "server", "server.go")}, listing.All)
	require.ElementsMatch(t, []string{"main.go", filepath.Join("internal", "server", "server.go")}, listing.MainFiles)

	shallow, err := m.ListFiles(dir, false)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"README.md", "main.go"}, shallow.All)
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main"), 0644))

	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	content, err := m.ReadFile(dir, "main.go")
	require.NoError(t, err)
	require.Equal(t, "package main", content)

	_, err = m.ReadFile(dir, "missing.go")
	var rae *RepoAccessError
	require.True(t, errors.As(err, &rae))
	require.Equal(t, "read", rae.Op)
}

func TestCloneRepository_EmptyURL(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	_, err = m.CloneRepository(context.Background(), "")
	var rae *RepoAccessError
	require.True(t, errors.As(err, &rae))
	require.Equal(t, "clone", rae.Op)
}

func TestWorkDirName_Stable(t *testing.T) {
	a := workDirName("https://example.com/org/repo.git")
	b := workDirName("https://example.com/org/repo.git")
	c := workDirName("https://example.com/other/repo.git")
	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
}
