// Package walk implements the ProjectWalker: recursive enumeration of a
// project's files honoring literal ignore tokens and an optional
// .gitignore PathSpec, plus size/UTF-8-gated file reads. Adapted from
// the teacher's os.walk-based traversal in gitcore/status.go
// (ComputeWorkingTreeStatus's untracked-file walk) and gitignore.go's
// matcher, generalized from "git status" semantics to a plain project
// tree walk.
package walk

import (
	"os"
	"path/filepath"
	"sort"
	"unicode/utf8"
)

// DefaultMaxFileSize is a generous default size cap for callers that
// don't need a specific limit (matches internal/config.DefaultMaxFileSize).
const DefaultMaxFileSize = 10 * 1024 * 1024

// Walker enumerates files under a project root, honoring ignore rules,
// and reads file contents with a size cap (spec §4.1).
type Walker struct {
	ProjectRoot    string
	MaxFileSize    int64
	IgnoreTokens   map[string]struct{}
	Gitignore      *PathSpec // nil disables gitignore matching
}

// New constructs a Walker. ignoreTokens and gitignore may be nil/empty.
func New(projectRoot string, maxFileSize int64, ignoreTokens map[string]struct{}, gitignore *PathSpec) *Walker {
	return &Walker{
		ProjectRoot:  projectRoot,
		MaxFileSize:  maxFileSize,
		IgnoreTokens: ignoreTokens,
		Gitignore:    gitignore,
	}
}

// Enumerate recursively walks root (defaulting to w.ProjectRoot when
// empty) and returns the absolute paths of all files that pass the
// ignore filters. Enumeration order is unspecified (spec §4.1); callers
// needing determinism should sort the result, which Enumerate does for
// convenience even though the contract does not require it.
func (w *Walker) Enumerate(root string) ([]string, error) {
	if root == "" {
		root = w.ProjectRoot
	}

	var files []string
	err := w.walkDir(root, func(path string, isDir bool) bool {
		if isDir {
			return true
		}
		files = append(files, path)
		return true
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}

// walkDir recursively visits dir, calling visit(path, false) for every
// file that is not excluded; directories are never passed to visit, and
// visit's return value is ignored. Directory pruning happens inside
// walkDir itself based on ignore rules, mirroring ProjectWalker's
// "a directory whose final path component matches any literal ignore
// token is not descended into" contract.
func (w *Walker) walkDir(dir string, visit func(path string, isDir bool) bool) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		// Transient I/O errors degrade to "nothing here" rather than
		// aborting the whole enumeration (spec §4.1).
		return nil
	}

	for _, entry := range entries {
		name := entry.Name()
		path := filepath.Join(dir, name)

		if w.isIgnoredComponent(name) {
			continue
		}

		if entry.IsDir() {
			if w.matchesGitignore(path, true) {
				continue
			}
			if err := w.walkDir(path, visit); err != nil {
				return err
			}
			continue
		}

		if w.matchesGitignore(path, false) {
			continue
		}

		visit(path, false)
	}

	return nil
}

func (w *Walker) isIgnoredComponent(name string) bool {
	if w.IgnoreTokens == nil {
		return false
	}
	_, ignored := w.IgnoreTokens[name]
	return ignored
}

func (w *Walker) matchesGitignore(absPath string, isDir bool) bool {
	if w.Gitignore == nil {
		return false
	}
	rel, err := filepath.Rel(w.ProjectRoot, absPath)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	return w.Gitignore.Match(rel, isDir)
}

// Read returns the decoded content of path, or ("", false) if the file
// does not exist, exceeds MaxFileSize, or is not valid UTF-8. Per spec
// §4.1, a transient per-file I/O error degrades to ("", false) rather
// than propagating.
func (w *Walker) Read(path string) (string, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return "", false
	}
	if w.MaxFileSize > 0 && info.Size() > w.MaxFileSize {
		return "", false
	}

	data, err := os.ReadFile(path) //nolint:gosec // path comes from Enumerate's own walk
	if err != nil {
		return "", false
	}
	if !utf8.Valid(data) {
		return "", false
	}
	return string(data), true
}

// RelativePath converts an absolute path produced by Enumerate into a
// POSIX-style path relative to w.ProjectRoot.
func (w *Walker) RelativePath(absPath string) (string, error) {
	rel, err := filepath.Rel(w.ProjectRoot, absPath)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}
