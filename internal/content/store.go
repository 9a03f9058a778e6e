// Package content implements the content-addressed blob store: an
// immutable UTF-8 string keyed by the lowercase hex SHA-256 of its bytes,
// stored once under <base path>/files/<address> regardless of how many
// checkpoints reference it.
package content

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// filesDirName is the subdirectory of the store's base path holding blobs.
const filesDirName = "files"

// Store is a content-addressed blob store rooted at basePath/files.
type Store struct {
	dir string
}

// New returns a Store rooted at <basePath>/files, creating the directory
// if it does not already exist.
func New(basePath string) (*Store, error) {
	dir := filepath.Join(basePath, filesDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("content: creating store directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Address computes the hex SHA-256 address of content without touching
// storage; useful for callers that want to check presence before writing.
func Address(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Put computes the address of content and writes it to disk if not
// already present, returning the address. Put is idempotent: two calls
// with equal content produce the same address and exactly one file on
// disk. The write is atomic (temp file + rename), mirroring the pattern
// selfupdate.replaceBinary uses to durably materialize a file.
func (s *Store) Put(content string) (string, error) {
	addr := Address(content)
	path := filepath.Join(s.dir, addr)

	if _, err := os.Stat(path); err == nil {
		return addr, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("content: checking existing blob %s: %w", addr, err)
	}

	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("content: creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	if _, err := tmp.WriteString(content); err != nil {
		_ = tmp.Close()
		cleanup()
		return "", fmt.Errorf("content: writing blob %s: %w", addr, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", fmt.Errorf("content: closing blob %s: %w", addr, err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		cleanup()
		return "", fmt.Errorf("content: setting mode of blob %s: %w", addr, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		cleanup()
		return "", fmt.Errorf("content: committing blob %s: %w", addr, err)
	}

	return addr, nil
}

// Get returns the decoded content for address, or ("", false, nil) if
// absent. A genuine I/O error (not "file does not exist") is returned.
func (s *Store) Get(address string) (string, bool, error) {
	path := filepath.Join(s.dir, address)
	data, err := os.ReadFile(path) //nolint:gosec // address comes from Put or a stored manifest; it is not validated here
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("content: reading blob %s: %w", address, err)
	}
	return string(data), true, nil
}

// Has reports whether a blob exists for address without reading its
// content.
func (s *Store) Has(address string) bool {
	_, err := os.Stat(filepath.Join(s.dir, address))
	return err == nil
}
