// Package gitops handles git repository access for the analyzer. All
// failures come back as *RepoAccessError: callers treat them as recoverable
// (network trouble, missing files), not fatal.
package gitops

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// RepoAccessError wraps a clone/list/read failure.
type RepoAccessError struct {
	Op  string
	Err error
}

func (e *RepoAccessError) Error() string {
	return fmt.Sprintf("repository access failed (%s): %v", e.Op, e.Err)
}

func (e *RepoAccessError) Unwrap() error { return e.Err }

// Source extensions considered "main files" for analysis purposes.
var mainFileExtensions = map[string]bool{
	".go": true, ".py": true, ".js": true, ".ts": true, ".tsx": true,
	".java": true, ".rb": true, ".rs": true, ".c": true, ".cc": true,
	".cpp": true, ".h": true, ".cs": true,
}

// FileListing is the result of walking a repository work tree.
type FileListing struct {
	All       []string // Every file, relative to the repo root
	MainFiles []string // The source-file subset worth analyzing
}

// Manager handles git operations under a base work directory.
type Manager struct {
	baseWorkDir string
}

// NewManager creates a git operations manager rooted at baseWorkDir.
func NewManager(baseWorkDir string) (*Manager, error) {
	if err := os.MkdirAll(baseWorkDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base work directory: %w", err)
	}
	return &Manager{baseWorkDir: baseWorkDir}, nil
}

// CloneRepository clones url into its work directory and returns the local
// path. An existing clone is reused.
func (m *Manager) CloneRepository(ctx context.Context, url string) (string, error) {
	if url == "" {
		return "", &RepoAccessError{Op: "clone", Err: fmt.Errorf("empty repository URL")}
	}

	workDir := filepath.Join(m.baseWorkDir, workDirName(url))
	if _, err := os.Stat(filepath.Join(workDir, ".git")); err == nil {
		return workDir, nil
	}

	cmd := exec.CommandContext(ctx, "git", "clone", "--depth", "1", "--single-branch", url, workDir)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", &RepoAccessError{Op: "clone",
			Err: fmt.Errorf("git clone failed: %w: %s", err, strings.TrimSpace(string(output)))}
	}
	return workDir, nil
}

// ListFiles walks the work tree and returns all files plus the main-file
// subset. recursive=false restricts the walk to the top level.
func (m *Manager) ListFiles(localPath string, recursive bool) (*FileListing, error) {
	listing := &FileListing{}
	err := filepath.WalkDir(localPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			if !recursive && path != localPath {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(localPath, path)
		if err != nil {
			return err
		}
		listing.All = append(listing.All, rel)
		if mainFileExtensions[filepath.Ext(rel)] {
			listing.MainFiles = append(listing.MainFiles, rel)
		}
		return nil
	})
	if err != nil {
		return nil, &RepoAccessError{Op: "list", Err: err}
	}
	return listing, nil
}

// ReadFile returns the contents of one file inside the work tree.
func (m *Manager) ReadFile(localPath, relPath string) (string, error) {
	data, err := os.ReadFile(filepath.Join(localPath, relPath))
	if err != nil {
		return "", &RepoAccessError{Op: "read", Err: err}
	}
	return string(data), nil
}

// workDirName derives a stable directory name from the repository URL.
func workDirName(url string) string {
	base := strings.TrimSuffix(filepath.Base(url), ".git")
	sum := sha256.Sum256([]byte(url))
	return fmt.Sprintf("%s-%s", base, hex.EncodeToString(sum[:4]))
}
