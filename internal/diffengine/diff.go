// Package diffengine computes line-level diffs between two pieces of
// text content, in two renderings: a unified-diff text block (spec
// §4.4, "text variant") and an annotated hunk/line structure for rich
// presentation (spec §4.4, "stylized variant"). Hunk assembly (context
// window, hunk-splitting once changes are far enough apart) is adapted
// from the teacher's hand-rolled Myers diff in gitcore/diff.go
// (buildHunks/finalizeHunk), but the line-level edit script itself
// comes from github.com/sergi/go-diff/diffmatchpatch's line-mode diff,
// the same library go-git and src-d-hercules use for this purpose.
package diffengine

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/zwldarren/codesnap/internal/config"
)

// DefaultContextLines is the number of unchanged lines kept around
// each change in both diff renderings.
const DefaultContextLines = 3

// maxDiffSize caps the content size (in bytes, per side) this engine
// will diff; larger content is reported as Truncated rather than
// attempting a diff, mirroring gitcore/diff.go's maxBlobSize guard.
// Pinned to config.DefaultMaxFileSize so that, with the default size
// cap, a file ProjectWalker.Read accepts is never too large to diff; a
// walker configured with a larger MaxFileSize can pass content that
// exceeds this cap.
const maxDiffSize = config.DefaultMaxFileSize

// LineType classifies a single line within a hunk.
type LineType string

const (
	LineContext  LineType = "context"
	LineAddition LineType = "addition"
	LineDeletion LineType = "deletion"
)

// Line is one line of a Hunk, annotated with its type and its line
// numbers on each side (0 when the line does not exist on that side).
type Line struct {
	Type    LineType
	Content string
	OldLine int
	NewLine int
}

// Hunk is a contiguous block of context/changed lines, positioned on
// both sides by the standard unified-diff (start, length) pair.
type Hunk struct {
	OldStart int
	OldLines int
	NewStart int
	NewLines int
	Lines    []Line
}

// Result holds both diff renderings for a single file comparison.
type Result struct {
	Unified   string // unified diff text, "" if there are no changes
	Hunks     []Hunk // styled/structured variant
	Truncated bool   // true if either side exceeded maxDiffSize
	Binary    bool   // true if either side looks like binary data
}

// Compute diffs oldContent against newContent and returns both
// renderings. oldPath/newPath are used only for the unified diff's
// "---"/"+++" header lines.
func Compute(oldPath, newPath, oldContent, newContent string) Result {
	if len(oldContent) > maxDiffSize || len(newContent) > maxDiffSize {
		return Result{Truncated: true}
	}
	if isBinary(oldContent) || isBinary(newContent) {
		return Result{Binary: true}
	}

	oldLines := splitLines(oldContent)
	newLines := splitLines(newContent)

	dmp := diffmatchpatch.New()
	charsOld, charsNew, lineArray := dmp.DiffLinesToChars(oldContent, newContent)
	diffs := dmp.DiffMain(charsOld, charsNew, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	edits := editsFromDiffs(diffs)
	hunks := buildHunks(oldLines, newLines, edits, DefaultContextLines)

	return Result{
		Unified: renderUnified(oldPath, newPath, hunks),
		Hunks:   hunks,
	}
}

// isBinary uses Git's own heuristic: a NUL byte anywhere in the first
// 8KB marks content as binary.
func isBinary(content string) bool {
	limit := len(content)
	if limit > 8192 {
		limit = 8192
	}
	return strings.IndexByte(content[:limit], 0) != -1
}

func splitLines(content string) []string {
	if content == "" {
		return []string{}
	}
	lines := strings.Split(content, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

type editType int

const (
	editKeep editType = iota
	editDelete
	editInsert
)

type edit struct {
	Type    editType
	OldLine int // 0-based
	NewLine int // 0-based
}

// editsFromDiffs flattens diffmatchpatch's line-granular Diff slice
// (each Diff.Text holds one or more whole lines, since DiffLinesToChars
// collapsed each line to one rune) into a per-line edit script.
func editsFromDiffs(diffs []diffmatchpatch.Diff) []edit {
	edits := make([]edit, 0)
	oldLine, newLine := 0, 0

	for _, d := range diffs {
		lines := splitLines(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			for range lines {
				edits = append(edits, edit{Type: editKeep, OldLine: oldLine, NewLine: newLine})
				oldLine++
				newLine++
			}
		case diffmatchpatch.DiffDelete:
			for range lines {
				edits = append(edits, edit{Type: editDelete, OldLine: oldLine})
				oldLine++
			}
		case diffmatchpatch.DiffInsert:
			for range lines {
				edits = append(edits, edit{Type: editInsert, NewLine: newLine})
				newLine++
			}
		}
	}

	return edits
}

// buildHunks groups an edit script into hunks, keeping `context` lines
// of unchanged content around each run of changes and splitting into a
// new hunk once two changes are separated by more than 2*context
// unchanged lines. Structurally this is gitcore/diff.go's buildHunks,
// rebased onto the edit script produced by editsFromDiffs.
func buildHunks(oldLines, newLines []string, edits []edit, context int) []Hunk {
	hunks := make([]Hunk, 0)
	if len(edits) == 0 {
		return hunks
	}

	var current *Hunk
	lastChange := -1

	flush := func(throughIdx int) {
		if current == nil {
			return
		}
		// Trailing context was already appended as the loop saw it; trim
		// it to the lines before throughIdx.
		trailing := 0
		for k := len(current.Lines) - 1; k >= 0 && current.Lines[k].Type == LineContext; k-- {
			trailing++
		}
		if extra := trailing - (throughIdx - lastChange - 1); extra > 0 {
			current.Lines = current.Lines[:len(current.Lines)-extra]
		}
		finalize(current)
		hunks = append(hunks, *current)
		current = nil
		lastChange = -1
	}

	for i, e := range edits {
		isChange := e.Type != editKeep

		if isChange && current == nil {
			current = &Hunk{Lines: make([]Line, 0)}
			start := i - context
			if start < 0 {
				start = 0
			}
			for j := start; j < i; j++ {
				if edits[j].Type == editKeep {
					current.Lines = append(current.Lines, Line{
						Type:    LineContext,
						Content: oldLines[edits[j].OldLine],
						OldLine: edits[j].OldLine + 1,
						NewLine: edits[j].NewLine + 1,
					})
				}
			}
			if len(current.Lines) > 0 {
				current.OldStart = current.Lines[0].OldLine
				current.NewStart = current.Lines[0].NewLine
			} else {
				switch e.Type {
				case editDelete:
					current.OldStart = e.OldLine + 1
					if len(newLines) > 0 {
						current.NewStart = 1
					}
				case editInsert:
					current.NewStart = e.NewLine + 1
					if len(oldLines) > 0 {
						current.OldStart = 1
					}
				}
			}
		}

		if isChange {
			lastChange = i
		}

		if current == nil {
			continue
		}

		switch e.Type {
		case editKeep:
			if lastChange >= 0 && i-lastChange > context*2 {
				flush(lastChange + context + 1)
			} else {
				current.Lines = append(current.Lines, Line{
					Type:    LineContext,
					Content: oldLines[e.OldLine],
					OldLine: e.OldLine + 1,
					NewLine: e.NewLine + 1,
				})
			}
		case editDelete:
			current.Lines = append(current.Lines, Line{
				Type:    LineDeletion,
				Content: oldLines[e.OldLine],
				OldLine: e.OldLine + 1,
			})
		case editInsert:
			current.Lines = append(current.Lines, Line{
				Type:    LineAddition,
				Content: newLines[e.NewLine],
				NewLine: e.NewLine + 1,
			})
		}
	}

	if current != nil {
		flush(lastChange + context + 1)
	}

	return hunks
}

// finalize computes a hunk's OldLines/NewLines counts from its
// accumulated Lines, and fills in OldStart/NewStart if they were never
// set (a hunk made entirely of insertions at the very start of the
// file, or entirely of deletions, etc).
func finalize(h *Hunk) {
	for _, l := range h.Lines {
		switch l.Type {
		case LineContext:
			h.OldLines++
			h.NewLines++
		case LineDeletion:
			h.OldLines++
		case LineAddition:
			h.NewLines++
		}
	}
	if h.OldStart == 0 && h.OldLines > 0 {
		h.OldStart = 1
	}
	if h.NewStart == 0 && h.NewLines > 0 {
		h.NewStart = 1
	}
}

// renderUnified formats hunks as a standard unified diff with the
// conventional "--- a" / "+++ b" header and "@@ -l,n +l,n @@" hunk
// markers. Returns "" if there are no hunks (identical content).
func renderUnified(oldPath, newPath string, hunks []Hunk) string {
	if len(hunks) == 0 {
		return ""
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "--- %s\n", oldPath)
	fmt.Fprintf(&buf, "+++ %s\n", newPath)

	for _, h := range hunks {
		fmt.Fprintf(&buf, "@@ -%d,%d +%d,%d @@\n", h.OldStart, h.OldLines, h.NewStart, h.NewLines)
		for _, l := range h.Lines {
			switch l.Type {
			case LineContext:
				fmt.Fprintf(&buf, " %s\n", l.Content)
			case LineAddition:
				fmt.Fprintf(&buf, "+%s\n", l.Content)
			case LineDeletion:
				fmt.Fprintf(&buf, "-%s\n", l.Content)
			}
		}
	}

	return buf.String()
}
