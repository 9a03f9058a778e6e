package snapshot

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/zwldarren/codesnap/internal/checkpoint"
	"github.com/zwldarren/codesnap/internal/content"
	"github.com/zwldarren/codesnap/internal/walk"
)

func newTestService(t *testing.T, projectRoot string) *Service {
	t.Helper()
	storePath := t.TempDir()

	blobs, err := content.New(storePath)
	if err != nil {
		t.Fatalf("content.New: %v", err)
	}
	checkpoints, err := checkpoint.NewStore(storePath)
	if err != nil {
		t.Fatalf("checkpoint.NewStore: %v", err)
	}
	w := walk.New(projectRoot, walk.DefaultMaxFileSize, nil, nil)

	return New(projectRoot, blobs, checkpoints, w, nil)
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// Scenario A: create then diff.
func TestScenarioA_CreateThenDiff(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "hello\n")
	writeFile(t, root, "b.txt", "world\n")

	svc := newTestService(t, root)

	cp1, err := svc.CreateCheckpoint("init", nil, nil)
	if err != nil {
		t.Fatalf("CreateCheckpoint 1: %v", err)
	}
	if cp1.ID != 1 {
		t.Fatalf("cp1.ID = %d, want 1", cp1.ID)
	}

	if err := os.Remove(filepath.Join(root, "b.txt")); err != nil {
		t.Fatalf("remove b.txt: %v", err)
	}
	writeFile(t, root, "c.txt", "new\n")

	cp2, err := svc.CreateCheckpoint("", nil, nil)
	if err != nil {
		t.Fatalf("CreateCheckpoint 2: %v", err)
	}
	if cp2.ID != 2 {
		t.Fatalf("cp2.ID = %d, want 2", cp2.ID)
	}

	changes, err := svc.CompareCheckpoints(1, 2)
	if err != nil {
		t.Fatalf("CompareCheckpoints: %v", err)
	}
	if len(changes) != 2 {
		t.Fatalf("changes = %d, want 2: %+v", len(changes), changes)
	}

	byPath := map[string]checkpoint.CodeChange{}
	for _, c := range changes {
		byPath[c.FilePath] = c
	}

	del, ok := byPath["b.txt"]
	if !ok || del.ChangeType != checkpoint.ChangeDeleted || del.OldContent == nil || *del.OldContent != "world\n" {
		t.Errorf("b.txt change = %+v, want deleted with old content world\\n", del)
	}
	add, ok := byPath["c.txt"]
	if !ok || add.ChangeType != checkpoint.ChangeAdded || add.NewContent == nil || *add.NewContent != "new\n" {
		t.Errorf("c.txt change = %+v, want added with new content new\\n", add)
	}
}

// Scenario B: dedup.
func TestScenarioB_Dedup(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "x.txt", "same")
	writeFile(t, root, "y.txt", "same")

	svc := newTestService(t, root)
	cp, err := svc.CreateCheckpoint("", nil, nil)
	if err != nil {
		t.Fatalf("CreateCheckpoint: %v", err)
	}

	if cp.FileSnapshots["x.txt"] != cp.FileSnapshots["y.txt"] {
		t.Fatalf("expected equal addresses for equal content, got %q and %q",
			cp.FileSnapshots["x.txt"], cp.FileSnapshots["y.txt"])
	}
	wantAddr := content.Address("same")
	if cp.FileSnapshots["x.txt"] != wantAddr {
		t.Errorf("address = %q, want %q", cp.FileSnapshots["x.txt"], wantAddr)
	}
}

// Scenario C: restore drops descendants.
func TestScenarioC_RestoreDropsDescendants(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "v1")
	svc := newTestService(t, root)

	base := time.Now()
	defer func() { nowFunc = time.Now }()

	if _, err := svc.CreateCheckpoint("", nil, nil); err != nil {
		t.Fatalf("CreateCheckpoint 1: %v", err)
	}
	nowFunc = func() time.Time { return base.Add(1 * time.Second) }
	writeFile(t, root, "a.txt", "v2")
	if _, err := svc.CreateCheckpoint("", nil, nil); err != nil {
		t.Fatalf("CreateCheckpoint 2: %v", err)
	}
	nowFunc = func() time.Time { return base.Add(2 * time.Second) }
	writeFile(t, root, "a.txt", "v3")
	if _, err := svc.CreateCheckpoint("", nil, nil); err != nil {
		t.Fatalf("CreateCheckpoint 3: %v", err)
	}

	if err := svc.RestoreCheckpoint(1); err != nil {
		t.Fatalf("RestoreCheckpoint: %v", err)
	}

	list, err := svc.ListCheckpoints()
	if err != nil {
		t.Fatalf("ListCheckpoints: %v", err)
	}
	if len(list) != 1 || list[0].ID != 1 {
		t.Fatalf("ListCheckpoints = %+v, want only checkpoint 1", list)
	}

	got, err := os.ReadFile(filepath.Join(root, "a.txt"))
	if err != nil {
		t.Fatalf("reading a.txt: %v", err)
	}
	if string(got) != "v1" {
		t.Errorf("a.txt = %q, want v1", got)
	}
}

// Scenario D: restore deletes surplus files.
func TestScenarioD_RestoreDeletesSurplusFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "v1")
	svc := newTestService(t, root)

	if _, err := svc.CreateCheckpoint("", nil, nil); err != nil {
		t.Fatalf("CreateCheckpoint: %v", err)
	}

	writeFile(t, root, "b.txt", "surplus")

	if err := svc.RestoreCheckpoint(1); err != nil {
		t.Fatalf("RestoreCheckpoint: %v", err)
	}

	if _, err := os.Stat(filepath.Join(root, "b.txt")); !os.IsNotExist(err) {
		t.Errorf("expected b.txt to be deleted, stat err = %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "a.txt")); err != nil {
		t.Errorf("expected a.txt to remain: %v", err)
	}
}

// Scenario E: unreadable file is skipped, not fatal.
func TestScenarioE_UnreadableFileSkipped(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "good.txt", "ok")
	if err := os.WriteFile(filepath.Join(root, "bin.dat"), []byte{0xff, 0xfe, 0x00, 0x01}, 0o644); err != nil {
		t.Fatalf("write binary: %v", err)
	}

	svc := newTestService(t, root)
	cp, err := svc.CreateCheckpoint("", nil, nil)
	if err != nil {
		t.Fatalf("CreateCheckpoint: %v", err)
	}

	if len(cp.FileSnapshots) != 1 {
		t.Fatalf("FileSnapshots = %v, want only good.txt", cp.FileSnapshots)
	}
	if _, ok := cp.FileSnapshots["good.txt"]; !ok {
		t.Errorf("expected good.txt in FileSnapshots, got %v", cp.FileSnapshots)
	}
}

// Scenario F: compare-with-current after external edit.
func TestScenarioF_CompareWithCurrentAfterExternalEdit(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "v1")
	svc := newTestService(t, root)

	if _, err := svc.CreateCheckpoint("", nil, nil); err != nil {
		t.Fatalf("CreateCheckpoint: %v", err)
	}

	writeFile(t, root, "a.txt", "v2")

	changes, err := svc.CompareWithCurrent(1)
	if err != nil {
		t.Fatalf("CompareWithCurrent: %v", err)
	}
	if len(changes) != 1 {
		t.Fatalf("changes = %d, want 1: %+v", len(changes), changes)
	}
	c := changes[0]
	if c.ChangeType != checkpoint.ChangeModified {
		t.Fatalf("ChangeType = %v, want modified", c.ChangeType)
	}
	if c.OldContent == nil || *c.OldContent != "v1" {
		t.Errorf("OldContent = %v, want v1", c.OldContent)
	}
	if c.NewContent == nil || *c.NewContent != "v2" {
		t.Errorf("NewContent = %v, want v2", c.NewContent)
	}
	if c.Diff == "" {
		t.Error("expected non-empty unified diff")
	}
}

func TestCompareCheckpointsSameIDIsEmpty(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "v1")
	svc := newTestService(t, root)

	if _, err := svc.CreateCheckpoint("", nil, nil); err != nil {
		t.Fatalf("CreateCheckpoint: %v", err)
	}

	changes, err := svc.CompareCheckpoints(1, 1)
	if err != nil {
		t.Fatalf("CompareCheckpoints: %v", err)
	}
	if len(changes) != 0 {
		t.Fatalf("changes = %+v, want empty for identical checkpoint", changes)
	}
}

func TestCompareCheckpointsMissingIDFails(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "v1")
	svc := newTestService(t, root)

	if _, err := svc.CreateCheckpoint("", nil, nil); err != nil {
		t.Fatalf("CreateCheckpoint: %v", err)
	}

	if _, err := svc.CompareCheckpoints(1, 99); err == nil {
		t.Fatal("expected error comparing against a missing checkpoint")
	}
}

func TestIterateExportAfterRestoreDiffsAgainstRestoredCheckpoint(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "v1")
	svc := newTestService(t, root)

	base := time.Now()
	defer func() { nowFunc = time.Now }()

	if _, err := svc.CreateCheckpoint("init", nil, nil); err != nil {
		t.Fatalf("CreateCheckpoint 1: %v", err)
	}

	nowFunc = func() time.Time { return base.Add(1 * time.Second) }
	writeFile(t, root, "a.txt", "v2")
	p2 := checkpoint.NewPrompt("second", nil, nil)
	if _, err := svc.CreateCheckpoint("", nil, &p2); err != nil {
		t.Fatalf("CreateCheckpoint 2: %v", err)
	}

	if err := svc.RestoreCheckpoint(1); err != nil {
		t.Fatalf("RestoreCheckpoint: %v", err)
	}

	nowFunc = func() time.Time { return base.Add(2 * time.Second) }
	writeFile(t, root, "a.txt", "v3")
	p3 := checkpoint.NewPrompt("third", nil, nil)
	if _, err := svc.CreateCheckpoint("", nil, &p3); err != nil {
		t.Fatalf("CreateCheckpoint 3: %v", err)
	}

	entries, err := svc.IterateExport()
	if err != nil {
		t.Fatalf("IterateExport: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2 (descendants of checkpoint 1 were pruned by restore)", len(entries))
	}

	if entries[0].Changes != nil {
		t.Errorf("entries[0].Changes = %+v, want nil for the initial checkpoint", entries[0].Changes)
	}
	if entries[1].Checkpoint.Name() != "third" {
		t.Fatalf("entries[1] = %+v, want the post-restore checkpoint named third", entries[1].Checkpoint)
	}
	if len(entries[1].Changes) != 1 || entries[1].Changes[0].FilePath != "a.txt" {
		t.Fatalf("entries[1].Changes = %+v, want a single a.txt change against checkpoint 1", entries[1].Changes)
	}
}

func TestIDMonotonicity(t *testing.T) {
	root := t.TempDir()
	svc := newTestService(t, root)

	var lastID int
	for i := 0; i < 3; i++ {
		cp, err := svc.CreateCheckpoint("", nil, nil)
		if err != nil {
			t.Fatalf("CreateCheckpoint %d: %v", i, err)
		}
		if cp.ID <= lastID {
			t.Fatalf("ID %d did not increase past %d", cp.ID, lastID)
		}
		lastID = cp.ID
	}
}
