package walk

import (
	"os"
	"path/filepath"
	"testing"
)

func writeGitignore(t *testing.T, root, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(root, ".gitignore"), []byte(content), 0o644); err != nil {
		t.Fatalf("writing .gitignore: %v", err)
	}
}

func TestLoadGitignoreMissingIsNil(t *testing.T) {
	root := t.TempDir()
	ps, err := LoadGitignore(root)
	if err != nil {
		t.Fatalf("LoadGitignore: %v", err)
	}
	if ps != nil {
		t.Fatalf("expected nil PathSpec for missing .gitignore, got %+v", ps)
	}
	if ps.Match("anything", false) {
		t.Fatal("nil PathSpec should never match")
	}
}

func TestGitignoreBasicPatterns(t *testing.T) {
	root := t.TempDir()
	writeGitignore(t, root, "*.log\n/build/\nsecrets.txt\n!important.log\n")

	ps, err := LoadGitignore(root)
	if err != nil {
		t.Fatalf("LoadGitignore: %v", err)
	}

	cases := []struct {
		path  string
		isDir bool
		want  bool
	}{
		{"debug.log", false, true},
		{"important.log", false, false}, // negated
		{"build", true, true},
		// PathSpec.Match only tests one path at a time; cascading a dirOnly
		// match down to the directory's contents is the walker's job (it
		// does not descend into directories that match), not PathSpec's.
		{"build/output.bin", false, false},
		{"secrets.txt", false, true},
		{"src/secrets.txt", false, true}, // non-anchored, matches basename anywhere
		{"main.go", false, false},
	}

	for _, c := range cases {
		got := ps.Match(c.path, c.isDir)
		if got != c.want {
			t.Errorf("Match(%q, dir=%v) = %v, want %v", c.path, c.isDir, got, c.want)
		}
	}
}

func TestGitignoreDoubleStar(t *testing.T) {
	root := t.TempDir()
	writeGitignore(t, root, "**/vendor/**\n")

	ps, err := LoadGitignore(root)
	if err != nil {
		t.Fatalf("LoadGitignore: %v", err)
	}

	if !ps.Match("a/vendor/b/c.go", false) {
		t.Error("expected a/vendor/b/c.go to be ignored")
	}
	if ps.Match("a/nested/c.go", false) {
		t.Error("did not expect a/nested/c.go to be ignored")
	}
}
