// Package snapshot orchestrates the checkpoint lifecycle: creating a
// checkpoint from the live project tree, comparing two checkpoints (or
// a checkpoint against the live tree), and restoring a checkpoint back
// onto the project tree. It is the Go counterpart of the original
// source's CheckpointService/ComparisonService/RestoreService trio,
// collapsed into one service the way gitcore.Repository collapses
// several concerns behind one type with a shared *slog.Logger and
// sync.RWMutex (internal/gitcore/repository.go).
package snapshot

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/zwldarren/codesnap/internal/checkpoint"
	"github.com/zwldarren/codesnap/internal/content"
	"github.com/zwldarren/codesnap/internal/diffengine"
	"github.com/zwldarren/codesnap/internal/walk"
)

// Service ties together the content store, checkpoint store, and
// project walker behind the operations spec §4.5 describes.
// Like Repository in gitcore, it holds a single RWMutex: checkpoint
// creation and restore take the write lock, reads take the read lock,
// matching the single-writer/multi-reader concurrency model (spec §4
// "Concurrency Model").
type Service struct {
	mu sync.RWMutex

	projectRoot string
	blobs       *content.Store
	checkpoints *checkpoint.Store
	walker      *walk.Walker
	logger      *slog.Logger
}

// nowFunc is indirected so tests can stub the clock; mirrors the same
// pattern used for checkpoint timestamps throughout this package.
var nowFunc = time.Now

// New constructs a Service from already-initialized stores and a
// walker; see cmd/codesnap for the wiring that builds these from
// internal/config.
func New(projectRoot string, blobs *content.Store, checkpoints *checkpoint.Store, walker *walk.Walker, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		projectRoot: projectRoot,
		blobs:       blobs,
		checkpoints: checkpoints,
		walker:      walker,
		logger:      logger,
	}
}

// CreateCheckpoint enumerates the project tree, stores a blob for
// every readable file, and persists a new checkpoint manifest (spec
// §4.5.1). description and tags may be empty/nil. prompt is nil for an
// initial or otherwise prompt-less checkpoint.
func (s *Service) CreateCheckpoint(description string, tags []string, prompt *checkpoint.Prompt) (*checkpoint.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.checkpoints.NextID()
	if err != nil {
		return nil, &CheckpointError{Op: "allocating id", Err: err}
	}

	if tags == nil {
		tags = []string{}
	}

	manifest := &checkpoint.Checkpoint{
		ID:            id,
		Description:   description,
		Timestamp:     nowFunc(),
		Prompt:        prompt,
		Tags:          tags,
		FileSnapshots: map[string]string{},
		Metadata:      map[string]any{},
	}

	files, err := s.walker.Enumerate("")
	if err != nil {
		return nil, &CheckpointError{Op: "enumerating project files", Err: err}
	}

	s.logger.Info("creating checkpoint", "id", id, "file_count", len(files))

	for _, abs := range files {
		content, ok := s.walker.Read(abs)
		if !ok {
			continue
		}
		rel, err := s.walker.RelativePath(abs)
		if err != nil {
			return nil, &CheckpointError{Op: "resolving relative path", Err: err}
		}
		addr, err := s.blobs.Put(content)
		if err != nil {
			return nil, &CheckpointError{Op: fmt.Sprintf("storing blob for %s", rel), Err: err}
		}
		manifest.FileSnapshots[rel] = addr
	}

	if err := s.checkpoints.Save(manifest); err != nil {
		return nil, &CheckpointError{Op: "saving manifest", Err: err}
	}

	s.logger.Info("checkpoint created", "id", id, "name", manifest.Name())
	return manifest, nil
}

// ListCheckpoints returns every checkpoint manifest, ordered oldest to
// newest (spec §3 invariant 4).
func (s *Service) ListCheckpoints() ([]*checkpoint.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list, err := s.checkpoints.List()
	if err != nil {
		return nil, &StorageError{Op: "listing checkpoints", Err: err}
	}
	return list, nil
}

// CompareCheckpoints diffs two checkpoints' file snapshots against
// each other and returns one CodeChange per file that differs (spec
// §4.5.2). Identical files are omitted entirely.
func (s *Service) CompareCheckpoints(id1, id2 int) ([]checkpoint.CodeChange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp1, found1, err := s.checkpoints.Load(id1)
	if err != nil {
		return nil, &ComparisonError{Op: "loading checkpoint", Err: err}
	}
	cp2, found2, err := s.checkpoints.Load(id2)
	if err != nil {
		return nil, &ComparisonError{Op: "loading checkpoint", Err: err}
	}
	if !found1 || !found2 {
		return nil, &ComparisonError{Op: fmt.Sprintf("comparing %d and %d", id1, id2), Err: ErrCheckpointNotFound}
	}

	return s.compareLoaded(cp1, cp2)
}

// compareLoaded is the unlocked core of CompareCheckpoints and
// IterateExport: both already hold s.mu when they call it, and
// sync.RWMutex read locks do not nest safely, so this must not
// re-acquire the lock itself.
func (s *Service) compareLoaded(cp1, cp2 *checkpoint.Checkpoint) ([]checkpoint.CodeChange, error) {
	paths := unionKeys(cp1.FileSnapshots, cp2.FileSnapshots)
	changes := make([]checkpoint.CodeChange, 0, len(paths))

	for _, path := range paths {
		oldHash, oldOK := cp1.FileSnapshots[path]
		newHash, newOK := cp2.FileSnapshots[path]

		var oldContent, newContent *string
		if oldOK {
			c, found, err := s.blobs.Get(oldHash)
			if err != nil {
				return nil, &ComparisonError{Op: fmt.Sprintf("loading blob for %s", path), Err: err}
			}
			if found {
				oldContent = &c
			}
		}
		if newOK {
			c, found, err := s.blobs.Get(newHash)
			if err != nil {
				return nil, &ComparisonError{Op: fmt.Sprintf("loading blob for %s", path), Err: err}
			}
			if found {
				newContent = &c
			}
		}

		change := compareContent(path, oldContent, newContent)
		if change != nil {
			changes = append(changes, *change)
		}
	}

	return changes, nil
}

// CompareWithCurrent diffs a checkpoint's file snapshots against the
// live project tree (spec §4.5.3).
func (s *Service) CompareWithCurrent(id int) ([]checkpoint.CodeChange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	target, found, err := s.checkpoints.Load(id)
	if err != nil {
		return nil, &ComparisonError{Op: "loading checkpoint", Err: err}
	}
	if !found {
		return nil, &ComparisonError{Op: fmt.Sprintf("comparing %d with current", id), Err: ErrCheckpointNotFound}
	}

	currentAbs, err := s.walker.Enumerate("")
	if err != nil {
		return nil, &ComparisonError{Op: "enumerating project files", Err: err}
	}
	currentByRel := make(map[string]string, len(currentAbs))
	for _, abs := range currentAbs {
		rel, err := s.walker.RelativePath(abs)
		if err != nil {
			return nil, &ComparisonError{Op: "resolving relative path", Err: err}
		}
		currentByRel[rel] = abs
	}

	paths := make(map[string]struct{}, len(target.FileSnapshots)+len(currentByRel))
	for p := range target.FileSnapshots {
		paths[p] = struct{}{}
	}
	for p := range currentByRel {
		paths[p] = struct{}{}
	}

	sorted := make([]string, 0, len(paths))
	for p := range paths {
		sorted = append(sorted, p)
	}
	sort.Strings(sorted)

	changes := make([]checkpoint.CodeChange, 0, len(sorted))
	for _, path := range sorted {
		var oldContent *string
		if hash, ok := target.FileSnapshots[path]; ok {
			c, found, err := s.blobs.Get(hash)
			if err != nil {
				return nil, &ComparisonError{Op: fmt.Sprintf("loading blob for %s", path), Err: err}
			}
			if found {
				oldContent = &c
			}
		}

		var newContent *string
		if abs, ok := currentByRel[path]; ok {
			if c, ok := s.walker.Read(abs); ok {
				newContent = &c
			}
		}

		change := compareContent(path, oldContent, newContent)
		if change != nil {
			changes = append(changes, *change)
		}
	}

	return changes, nil
}

// ExportEntry pairs a checkpoint with its diff against whatever
// preceded it in the export chain, for an external report renderer to
// consume (spec §4.5.5). Changes is nil for the first entry in the
// chain, for prompt-less (initial) checkpoints, and for restore
// checkpoints, none of which carry a diff of their own.
type ExportEntry struct {
	Checkpoint *checkpoint.Checkpoint
	Changes    []checkpoint.CodeChange
}

// IterateExport returns every checkpoint in ascending timestamp order.
// Each checkpoint that has a prompt and is not a restore checkpoint is
// paired with its diff against the immediately preceding non-restore
// checkpoint (spec §4.5.5). A restore
// checkpoint breaks the chain: it receives no diff, and the checkpoint
// after it compares against whatever the chain's reference was before
// the restore. Grounded on storage.py's _export_markdown, which walks
// checkpoints in the same order tracking a prev_checkpoint_id that
// only advances past non-restore checkpoints.
func (s *Service) IterateExport() ([]ExportEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list, err := s.checkpoints.List()
	if err != nil {
		return nil, &StorageError{Op: "listing checkpoints for export", Err: err}
	}

	entries := make([]ExportEntry, 0, len(list))
	var prev *checkpoint.Checkpoint
	for _, cp := range list {
		entry := ExportEntry{Checkpoint: cp}
		if cp.Prompt != nil && !cp.IsRestore() && prev != nil {
			changes, err := s.compareLoaded(prev, cp)
			if err != nil {
				return nil, err
			}
			entry.Changes = changes
		}
		if !cp.IsRestore() {
			prev = cp
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// compareContent classifies a single file's change and, when it did
// change, computes its diff. Mirrors _compare_content in the original
// source's comparison_service.py.
func compareContent(path string, oldContent, newContent *string) *checkpoint.CodeChange {
	switch {
	case oldContent != nil && newContent != nil:
		if *oldContent == *newContent {
			return nil
		}
		result := diffengine.Compute(path, path, *oldContent, *newContent)
		return &checkpoint.CodeChange{
			FilePath:   path,
			ChangeType: checkpoint.ChangeModified,
			OldContent: oldContent,
			NewContent: newContent,
			Diff:       result.Unified,
		}
	case oldContent != nil && newContent == nil:
		result := diffengine.Compute(path, path, *oldContent, "")
		return &checkpoint.CodeChange{
			FilePath:   path,
			ChangeType: checkpoint.ChangeDeleted,
			OldContent: oldContent,
			Diff:       result.Unified,
		}
	case oldContent == nil && newContent != nil:
		result := diffengine.Compute(path, path, "", *newContent)
		return &checkpoint.CodeChange{
			FilePath:   path,
			ChangeType: checkpoint.ChangeAdded,
			NewContent: newContent,
			Diff:       result.Unified,
		}
	default:
		return nil
	}
}

// RestoreCheckpoint materializes target's file snapshots onto the
// project tree, deletes any later checkpoint manifests, and deletes
// any live file not present in target (spec §4.5.4). Mirrors
// restore_service.py's restore_checkpoint: per-file delete/write
// failures are logged and skipped rather than aborting the whole
// restore, since a partial restore is more recoverable than none.
func (s *Service) RestoreCheckpoint(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	target, found, err := s.checkpoints.Load(id)
	if err != nil {
		return &RestoreError{Op: "loading checkpoint", Err: err}
	}
	if !found {
		return &RestoreError{Op: fmt.Sprintf("restoring %d", id), Err: ErrCheckpointNotFound}
	}

	all, err := s.checkpoints.List()
	if err != nil {
		return &RestoreError{Op: "listing checkpoints", Err: err}
	}
	for _, cp := range all {
		if cp.Timestamp.After(target.Timestamp) {
			if err := s.checkpoints.Delete(cp.ID); err != nil {
				s.logger.Error("failed to delete checkpoint created after the restored one", "id", cp.ID, "error", err)
				continue
			}
			s.logger.Info("deleted checkpoint created after the restored one", "id", cp.ID)
		}
	}

	currentAbs, err := s.walker.Enumerate("")
	if err != nil {
		return &RestoreError{Op: "enumerating project files", Err: err}
	}
	currentRel := make(map[string]struct{}, len(currentAbs))
	for _, abs := range currentAbs {
		rel, err := s.walker.RelativePath(abs)
		if err != nil {
			return &RestoreError{Op: "resolving relative path", Err: err}
		}
		currentRel[rel] = struct{}{}
	}

	for rel := range currentRel {
		if _, keep := target.FileSnapshots[rel]; keep {
			continue
		}
		absPath := filepath.Join(s.projectRoot, filepath.FromSlash(rel))
		if err := os.Remove(absPath); err != nil {
			if !os.IsNotExist(err) {
				s.logger.Error("failed to delete file not in checkpoint", "path", rel, "error", err)
			}
			continue
		}
		s.logger.Info("deleted file not in checkpoint", "path", rel)
	}

	for rel, hash := range target.FileSnapshots {
		absPath := filepath.Join(s.projectRoot, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
			s.logger.Error("failed to create parent directory", "path", rel, "error", err)
			continue
		}

		content, found, err := s.blobs.Get(hash)
		if err != nil {
			s.logger.Error("failed to read blob during restore", "path", rel, "error", err)
			continue
		}
		if !found {
			s.logger.Error("missing blob during restore", "path", rel, "hash", hash)
			continue
		}

		if err := os.WriteFile(absPath, []byte(content), 0o644); err != nil {
			s.logger.Error("failed to restore file", "path", rel, "error", err)
			continue
		}
		s.logger.Debug("restored file", "path", rel)
	}

	return nil
}

// unionKeys returns the sorted union of two manifests' file_snapshots
// keys.
func unionKeys(a, b map[string]string) []string {
	set := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		set[k] = struct{}{}
	}
	for k := range b {
		set[k] = struct{}{}
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
