// Package checkpoint defines the checkpoint/prompt data model and the
// on-disk manifest store. Field shapes are grounded on the original
// Python source's models.py (Prompt, Checkpoint, CodeChange) and encoded
// the way the teacher encodes its own wire types in gitcore/types.go
// (plain structs with json tags, a constructor per non-trivial type, a
// small set of named string constants for enum-like fields).
package checkpoint

import (
	"strconv"
	"time"
)

// nameTruncateLimit is the number of Unicode scalar values kept from a
// prompt's content when deriving a checkpoint's display Name (spec §3,
// "Derived name").
const nameTruncateLimit = 50

// Prompt captures the free-form instruction associated with a
// non-initial checkpoint.
type Prompt struct {
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Tags      []string       `json:"tags"`
	Metadata  map[string]any `json:"metadata"`
}

// NewPrompt returns a Prompt stamped with the current time and
// initialized slice/map fields, mirroring Python's Field(default_factory=...)
// behavior for Tags/Metadata.
func NewPrompt(content string, tags []string, metadata map[string]any) Prompt {
	if tags == nil {
		tags = []string{}
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	return Prompt{
		Content:   content,
		Timestamp: time.Now(),
		Tags:      tags,
		Metadata:  metadata,
	}
}

// Checkpoint is a snapshot of the project tree at a point in time plus
// metadata (spec §3). FileSnapshots maps a relative POSIX-style path to
// a content-store blob address.
type Checkpoint struct {
	ID               int               `json:"id"`
	Description      string            `json:"description"`
	Timestamp        time.Time         `json:"timestamp"`
	Prompt           *Prompt           `json:"prompt"`
	Tags             []string          `json:"tags"`
	FileSnapshots    map[string]string `json:"file_snapshots"`
	RestoredFrom     *int              `json:"restored_from"`
	RestoreTimestamp *time.Time        `json:"restore_timestamp"`
	Metadata         map[string]any    `json:"metadata"`
}

// Name derives a display name: the first 50 Unicode scalar values of
// the prompt content (suffixed with "…" when truncated), or
// "Checkpoint <id>" when there is no prompt content.
func (c *Checkpoint) Name() string {
	if c.Prompt != nil && c.Prompt.Content != "" {
		runes := []rune(c.Prompt.Content)
		if len(runes) > nameTruncateLimit {
			return string(runes[:nameTruncateLimit]) + "…"
		}
		return string(runes)
	}
	return "Checkpoint " + strconv.Itoa(c.ID)
}

// IsInitial reports whether this checkpoint has no associated prompt.
func (c *Checkpoint) IsInitial() bool {
	return c.Prompt == nil
}

// IsRestore reports whether this checkpoint records a restore operation.
func (c *Checkpoint) IsRestore() bool {
	return c.RestoredFrom != nil
}

// ChangeType classifies a single file's change in a comparison.
type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeModified ChangeType = "modified"
	ChangeDeleted  ChangeType = "deleted"
)

// CodeChange represents a single file's diff between two sides of a
// comparison (two checkpoints, or a checkpoint and the live tree).
type CodeChange struct {
	FilePath   string     `json:"file_path"`
	ChangeType ChangeType `json:"change_type"`
	OldContent *string    `json:"old_content"`
	NewContent *string    `json:"new_content"`
	Diff       string     `json:"diff"`
}
