package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// checkpointsDirName is the subdirectory of the store's base path
// holding one manifest file per checkpoint, named "<id>.json".
const checkpointsDirName = "checkpoints"

// Store persists and enumerates checkpoint manifests at
// <basePath>/checkpoints/<id>.json (spec §4.3).
type Store struct {
	dir string
}

// NewStore returns a Store rooted at <basePath>/checkpoints, creating
// the directory if it does not already exist.
func NewStore(basePath string) (*Store, error) {
	dir := filepath.Join(basePath, checkpointsDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("checkpoint: creating store directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) manifestPath(id int) string {
	return filepath.Join(s.dir, strconv.Itoa(id)+".json")
}

// Save serializes manifest to the canonical JSON format and writes it,
// atomically (temp file + rename), following the same durable-write
// pattern content.Store.Put uses. Overwrite of an existing manifest ID
// is permitted but unused by this package's own callers today.
func (s *Store) Save(manifest *Checkpoint) error {
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("checkpoint: marshaling manifest %d: %w", manifest.ID, err)
	}

	path := s.manifestPath(manifest.ID)
	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("checkpoint: creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("checkpoint: writing manifest %d: %w", manifest.ID, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("checkpoint: closing manifest %d: %w", manifest.ID, err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		cleanup()
		return fmt.Errorf("checkpoint: setting mode of manifest %d: %w", manifest.ID, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		cleanup()
		return fmt.Errorf("checkpoint: committing manifest %d: %w", manifest.ID, err)
	}

	return nil
}

// Load deserializes the manifest for id, or returns (nil, false, nil) if
// absent.
func (s *Store) Load(id int) (*Checkpoint, bool, error) {
	data, err := os.ReadFile(s.manifestPath(id)) //nolint:gosec // id is an integer, path is controlled
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("checkpoint: reading manifest %d: %w", id, err)
	}

	var manifest Checkpoint
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, false, fmt.Errorf("checkpoint: unmarshaling manifest %d: %w", id, err)
	}
	return &manifest, true, nil
}

// List loads every "<id>.json" file and returns them sorted ascending by
// Timestamp, with ID as tiebreaker (spec §3 invariant 4). Entries whose
// stem does not parse as a positive integer are ignored, mirroring
// storage.py's get_next_checkpoint_id ValueError-skip behavior.
func (s *Store) List() ([]*Checkpoint, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: listing store directory: %w", err)
	}

	var checkpoints []*Checkpoint
	for _, entry := range entries {
		id, ok := parseManifestStem(entry.Name())
		if !ok {
			continue
		}
		manifest, found, err := s.Load(id)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		checkpoints = append(checkpoints, manifest)
	}

	sort.Slice(checkpoints, func(i, j int) bool {
		ti, tj := checkpoints[i].Timestamp, checkpoints[j].Timestamp
		if ti.Equal(tj) {
			return checkpoints[i].ID < checkpoints[j].ID
		}
		return ti.Before(tj)
	})

	return checkpoints, nil
}

// NextID returns one plus the maximum integer stem among existing
// manifest files, or 1 if none exist (spec §3 invariant 3).
func (s *Store) NextID() (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("checkpoint: listing store directory: %w", err)
	}

	maxID := 0
	for _, entry := range entries {
		id, ok := parseManifestStem(entry.Name())
		if !ok {
			continue
		}
		if id > maxID {
			maxID = id
		}
	}
	return maxID + 1, nil
}

// Delete removes the manifest for id; a no-op if absent. Referenced
// blobs are NOT deleted (spec §4.3).
func (s *Store) Delete(id int) error {
	err := os.Remove(s.manifestPath(id))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("checkpoint: deleting manifest %d: %w", id, err)
	}
	return nil
}

// parseManifestStem extracts the positive integer ID from a manifest
// file name of the form "<id>.json", returning ok=false for anything
// else (non-.json files, non-integer stems, zero/negative IDs).
func parseManifestStem(name string) (int, bool) {
	if !strings.HasSuffix(name, ".json") {
		return 0, false
	}
	stem := strings.TrimSuffix(name, ".json")
	id, err := strconv.Atoi(stem)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
