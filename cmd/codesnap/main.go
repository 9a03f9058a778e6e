// Package main is the entry point for the codesnap CLI: a thin,
// non-interactive flag-based dispatcher over internal/snapshot.
// Unlike cmd/vista's interactive terminal front-end, this surface is
// kept minimal by design, not by omission: the teacher's
// internal/cli.App, internal/termcolor, and internal/progress exist to
// serve an interactive git browser and are not wired here, since
// checkpoint create/list/diff/restore are one-shot, scriptable
// operations with no session state to render.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/zwldarren/codesnap/internal/checkpoint"
	"github.com/zwldarren/codesnap/internal/config"
	"github.com/zwldarren/codesnap/internal/content"
	"github.com/zwldarren/codesnap/internal/snapshot"
	"github.com/zwldarren/codesnap/internal/walk"
)

// Build-time variable set via -ldflags.
var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "create":
		runCreate(args)
	case "list":
		runList(args)
	case "diff":
		runDiff(args)
	case "restore":
		runRestore(args)
	case "version":
		fmt.Printf("codesnap %s\n", version)
	case "-help", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "codesnap: unknown command %q\n", cmd)
		printUsage()
		os.Exit(2)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `codesnap - checkpoint and diff a project tree

Usage:
  codesnap create  [-root DIR] [-gitignore] [-description TEXT] [-prompt TEXT] [-tags a,b,c]
  codesnap list    [-root DIR] [-gitignore] [-json]
  codesnap diff    [-root DIR] [-gitignore] -from ID [-to ID]
  codesnap restore [-root DIR] [-gitignore] -id ID
  codesnap version`)
}

func newService(root string, useGitignore bool) (*snapshot.Service, error) {
	cfg := (&config.Config{ProjectRoot: root, IncludeGitignore: useGitignore}).Defaults()
	logger := config.NewLogger()
	cfg.Logger = logger

	blobs, err := content.New(cfg.StorePath)
	if err != nil {
		return nil, fmt.Errorf("initializing content store: %w", err)
	}
	checkpoints, err := checkpoint.NewStore(cfg.StorePath)
	if err != nil {
		return nil, fmt.Errorf("initializing checkpoint store: %w", err)
	}

	var gitignore *walk.PathSpec
	if cfg.IncludeGitignore {
		gitignore, err = walk.LoadGitignore(cfg.ProjectRoot)
		if err != nil {
			return nil, fmt.Errorf("loading .gitignore: %w", err)
		}
	}
	w := walk.New(cfg.ProjectRoot, cfg.MaxFileSize, cfg.EffectiveIgnorePatterns(), gitignore)

	return snapshot.New(cfg.ProjectRoot, blobs, checkpoints, w, logger), nil
}

func runCreate(args []string) {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	root := fs.String("root", ".", "project root to checkpoint")
	description := fs.String("description", "", "free-form description")
	promptText := fs.String("prompt", "", "prompt content associated with this checkpoint")
	tags := fs.String("tags", "", "comma-separated tags")
	gitignore := fs.Bool("gitignore", false, "also honor <root>/.gitignore")
	_ = fs.Parse(args)

	svc, err := newService(*root, *gitignore)
	if err != nil {
		fatal(err)
	}

	var prompt *checkpoint.Prompt
	if *promptText != "" {
		p := checkpoint.NewPrompt(*promptText, splitTags(*tags), nil)
		prompt = &p
	}

	cp, err := svc.CreateCheckpoint(*description, splitTags(*tags), prompt)
	if err != nil {
		fatal(err)
	}

	fmt.Printf("created checkpoint %d: %s\n", cp.ID, cp.Name())
}

func runList(args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	root := fs.String("root", ".", "project root")
	asJSON := fs.Bool("json", false, "emit JSON")
	gitignore := fs.Bool("gitignore", false, "also honor <root>/.gitignore")
	_ = fs.Parse(args)

	svc, err := newService(*root, *gitignore)
	if err != nil {
		fatal(err)
	}

	list, err := svc.ListCheckpoints()
	if err != nil {
		fatal(err)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(list); err != nil {
			fatal(err)
		}
		return
	}

	for _, cp := range list {
		fmt.Printf("%4d  %s  %s\n", cp.ID, cp.Timestamp.Format("2006-01-02 15:04:05"), cp.Name())
	}
}

func runDiff(args []string) {
	fs := flag.NewFlagSet("diff", flag.ExitOnError)
	root := fs.String("root", ".", "project root")
	from := fs.Int("from", 0, "checkpoint id to diff from (required)")
	to := fs.Int("to", 0, "checkpoint id to diff to (0 = current project state)")
	gitignore := fs.Bool("gitignore", false, "also honor <root>/.gitignore")
	_ = fs.Parse(args)

	if *from <= 0 {
		fmt.Fprintln(os.Stderr, "codesnap diff: -from is required")
		os.Exit(2)
	}

	svc, err := newService(*root, *gitignore)
	if err != nil {
		fatal(err)
	}

	var changes []checkpoint.CodeChange
	if *to > 0 {
		changes, err = svc.CompareCheckpoints(*from, *to)
	} else {
		changes, err = svc.CompareWithCurrent(*from)
	}
	if err != nil {
		fatal(err)
	}

	for _, c := range changes {
		fmt.Printf("=== %s (%s) ===\n", c.FilePath, c.ChangeType)
		if c.Diff != "" {
			fmt.Print(c.Diff)
		}
	}
}

func runRestore(args []string) {
	fs := flag.NewFlagSet("restore", flag.ExitOnError)
	root := fs.String("root", ".", "project root")
	id := fs.Int("id", 0, "checkpoint id to restore (required)")
	gitignore := fs.Bool("gitignore", false, "also honor <root>/.gitignore")
	_ = fs.Parse(args)

	if *id <= 0 {
		fmt.Fprintln(os.Stderr, "codesnap restore: -id is required")
		os.Exit(2)
	}

	svc, err := newService(*root, *gitignore)
	if err != nil {
		fatal(err)
	}

	if err := svc.RestoreCheckpoint(*id); err != nil {
		fatal(err)
	}

	fmt.Printf("restored checkpoint %d\n", *id)
}

func splitTags(s string) []string {
	if s == "" {
		return nil
	}
	var tags []string
	for _, tag := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(tag); trimmed != "" {
			tags = append(tags, trimmed)
		}
	}
	return tags
}

func fatal(err error) {
	slog.Error("codesnap", "error", err)
	os.Exit(1)
}
