package walk

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// pattern represents a single parsed .gitignore line. Adapted from
// gitcore.ignorePattern, but matched only against paths relative to a
// single project root (spec §4.1: "optionally a gitignore-style pattern
// list loaded from <project_root>/.gitignore"), not per-directory nested
// .gitignore files as full git semantics would require.
type pattern struct {
	glob     string // the cleaned glob pattern
	negated  bool   // true if the original line starts with '!'
	dirOnly  bool   // true if the original pattern ends with '/'
	anchored bool   // true if the pattern is anchored to the root
}

// PathSpec is a compiled set of gitignore-style patterns matched against
// paths relative to a single root.
type PathSpec struct {
	patterns []pattern
}

// LoadGitignore reads <root>/.gitignore and compiles it into a PathSpec.
// Returns (nil, nil) if the file does not exist — the gitignore layer is
// optional per spec.
func LoadGitignore(root string) (*PathSpec, error) {
	path := filepath.Join(root, ".gitignore")
	f, err := os.Open(path) //nolint:gosec // path is rooted at the project directory
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer func() { _ = f.Close() }()

	ps := &PathSpec{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		pat, ok := parseLine(scanner.Text())
		if !ok {
			continue
		}
		ps.patterns = append(ps.patterns, pat)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return ps, nil
}

// Match reports whether relPath (forward-slash separated, relative to
// the root the PathSpec was loaded from) is ignored. isDir indicates
// whether relPath names a directory. A nil PathSpec matches nothing.
func (ps *PathSpec) Match(relPath string, isDir bool) bool {
	if ps == nil {
		return false
	}
	ignored := false
	for _, pat := range ps.patterns {
		if pat.dirOnly && !isDir {
			continue
		}
		if matchOne(pat, relPath) {
			ignored = !pat.negated
		}
	}
	return ignored
}

func parseLine(line string) (pattern, bool) {
	line = strings.TrimRight(line, " \t")
	if line == "" || line[0] == '#' {
		return pattern{}, false
	}

	var pat pattern
	if line[0] == '!' {
		pat.negated = true
		line = line[1:]
	}
	if strings.HasSuffix(line, "/") {
		pat.dirOnly = true
		line = strings.TrimRight(line, "/")
	}
	if strings.HasPrefix(line, "/") {
		pat.anchored = true
		line = line[1:]
	}
	if strings.Contains(line, "/") {
		remainder := strings.TrimPrefix(line, "**/")
		if strings.Contains(remainder, "/") {
			pat.anchored = true
		} else if !strings.HasPrefix(line, "**/") {
			pat.anchored = true
		}
	}

	pat.glob = line
	return pat, line != ""
}

func matchOne(pat pattern, relPath string) bool {
	if pat.anchored {
		return matchGlob(pat.glob, relPath)
	}

	base := relPath
	if idx := strings.LastIndex(relPath, "/"); idx >= 0 {
		base = relPath[idx+1:]
	}
	if matchGlob(pat.glob, base) {
		return true
	}
	return matchGlob(pat.glob, relPath)
}

// matchGlob matches a gitignore-style glob against a path, handling "**"
// to mean zero or more path components, which filepath.Match alone does
// not support.
func matchGlob(pat, name string) bool {
	if !strings.Contains(pat, "**") {
		matched, _ := filepath.Match(pat, name)
		return matched
	}

	patParts := strings.Split(pat, "/")
	nameParts := strings.Split(name, "/")
	return matchSegments(patParts, nameParts)
}

func matchSegments(patParts, nameParts []string) bool {
	pi, ni := 0, 0
	for pi < len(patParts) && ni < len(nameParts) {
		if patParts[pi] == "**" {
			pi++
			if pi >= len(patParts) {
				return true
			}
			for tryNi := ni; tryNi <= len(nameParts); tryNi++ {
				if matchSegments(patParts[pi:], nameParts[tryNi:]) {
					return true
				}
			}
			return false
		}
		matched, _ := filepath.Match(patParts[pi], nameParts[ni])
		if !matched {
			return false
		}
		pi++
		ni++
	}
	for pi < len(patParts) {
		if patParts[pi] != "**" {
			return false
		}
		pi++
	}
	return ni >= len(nameParts)
}
