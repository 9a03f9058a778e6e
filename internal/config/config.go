// Package config centralizes the settings that drive the snapshot engine:
// project root, ignore patterns, size caps, and logging. It mirrors the
// environment-variable-with-fallback pattern used throughout the gitvista
// CLI and server entry points.
package config

import (
	"log/slog"
	"os"
	"path/filepath"
)

const (
	// DefaultMaxFileSize is the byte cap applied to any single file read
	// during enumeration; files larger than this are skipped, not errored.
	DefaultMaxFileSize = 10 * 1024 * 1024

	// StoreDirName is the reserved directory codesnap owns under the
	// project root; it is always part of the default ignore set so a
	// store never snapshots itself.
	StoreDirName = ".codesnap"
)

// DefaultIgnorePatterns returns the literal path-component tokens that
// are always excluded from enumeration; a caller's IgnorePatterns are
// added to this set, not substituted for it (see EffectiveIgnorePatterns).
func DefaultIgnorePatterns() map[string]struct{} {
	return map[string]struct{}{
		".git":          {},
		StoreDirName:    {},
		"__pycache__":   {},
		".pytest_cache": {},
		"node_modules":  {},
		".venv":         {},
		"venv":          {},
		"env":           {},
		".mypy_cache":   {},
		".ruff_cache":   {},
	}
}

// Config holds the settings a Config-driven component needs. Zero values
// are filled in by Defaults, following repomanager.Config's defaults()
// pattern rather than requiring every caller to populate every field.
type Config struct {
	// ProjectRoot is the absolute path of the tree being snapshotted.
	ProjectRoot string

	// StorePath is the base path for the content and checkpoint stores.
	// Defaults to ProjectRoot/.codesnap.
	StorePath string

	// MaxFileSize caps the size of any file read during enumeration.
	MaxFileSize int64

	// IgnorePatterns are additional literal path-component tokens beyond
	// DefaultIgnorePatterns.
	IgnorePatterns map[string]struct{}

	// IncludeGitignore enables matching against <ProjectRoot>/.gitignore.
	IncludeGitignore bool

	// Logger is used by every component that logs; defaults to slog.Default().
	Logger *slog.Logger
}

// Defaults fills zero-valued fields with sensible defaults, mutating c
// in place and returning it for chaining.
func (c *Config) Defaults() *Config {
	if c.ProjectRoot == "" {
		if wd, err := os.Getwd(); err == nil {
			c.ProjectRoot = wd
		} else {
			c.ProjectRoot = "."
		}
	}
	if abs, err := filepath.Abs(c.ProjectRoot); err == nil {
		c.ProjectRoot = abs
	}
	if c.StorePath == "" {
		c.StorePath = filepath.Join(c.ProjectRoot, StoreDirName)
	}
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = DefaultMaxFileSize
	}
	if c.IgnorePatterns == nil {
		c.IgnorePatterns = map[string]struct{}{}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// EffectiveIgnorePatterns merges DefaultIgnorePatterns with the caller's
// custom IgnorePatterns.
func (c *Config) EffectiveIgnorePatterns() map[string]struct{} {
	merged := DefaultIgnorePatterns()
	for tok := range c.IgnorePatterns {
		merged[tok] = struct{}{}
	}
	return merged
}

// NewLogger builds an slog.Logger from the CODESNAP_LOG_LEVEL and
// CODESNAP_LOG_FORMAT environment variables, following the convention of
// cmd/vista/main.go's initLogger (GITVISTA_LOG_LEVEL/GITVISTA_LOG_FORMAT).
func NewLogger() *slog.Logger {
	level := slog.LevelInfo
	switch getEnv("CODESNAP_LOG_LEVEL", "info") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if getEnv("CODESNAP_LOG_FORMAT", "text") == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
