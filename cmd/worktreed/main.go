// Command worktreed is a small demo/debug harness for package worktreed: it
// scans a root directory, prints its entries (with git status, if a
// repository is found), then watches for further changes until
// interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	worktreed "github.com/example/worktreed"
	"github.com/example/worktreed/internal/fsadapter"
	"github.com/example/worktreed/internal/gitindex"
	"github.com/example/worktreed/internal/snapshot"
	"github.com/example/worktreed/settings"
)

func main() {
	root := flag.String("root", ".", "worktree root to scan")
	watch := flag.Bool("watch", true, "keep watching for filesystem changes after the initial scan")
	includeIgnored := flag.Bool("include-ignored", false, "include gitignored entries in the printed listing")
	disableGit := flag.Bool("no-git", false, "disable git repository discovery and status")
	exclude := flag.String("exclude", "", "comma-separated file_scan_exclusions glob list")
	flag.Parse()

	logger := log.New(os.Stderr, "worktreed: ", log.LstdFlags)

	events, err := fsadapter.NewRealEventSource()
	if err != nil {
		logger.Fatalf("start filesystem watcher: %v", err)
	}
	defer events.Close()

	rootAbs, err := filepath.Abs(*root)
	if err != nil {
		logger.Fatalf("resolve root %q: %v", *root, err)
	}

	s := settings.Settings{FileScanExclusions: splitCSV(*exclude)}
	h, err := worktreed.New(rootAbs, fsadapter.NewRealFS(), events, s, worktreed.Config{
		EnableGit: !*disableGit,
		Logger:    logger,
	})
	if err != nil {
		logger.Fatalf("create worktree handle: %v", err)
	}

	if err := events.Add(rootAbs); err != nil {
		logger.Printf("watch root: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := h.Start(ctx); err != nil {
		logger.Fatalf("start: %v", err)
	}

	printEntries(h, *includeIgnored)

	if !*watch {
		return
	}

	cancelUpdates := h.SubscribeEntries(func(u snapshot.Update) {
		logger.Printf("scan %d: %d entries changed, %d repos changed", u.ScanID, len(u.Entries), len(u.Repos))
	})
	defer cancelUpdates()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	_ = h.Close()
}

func printEntries(h *worktreed.Handle, includeIgnored bool) {
	for _, e := range h.Entries("", includeIgnored) {
		line := fmt.Sprintf("%-50s %-12s", string(e.Path), e.Kind)
		if ps, ok := h.StatusForFile(e.Path); ok {
			line += " " + statusLabel(ps)
		}
		fmt.Println(line)
	}
}

func statusLabel(ps gitindex.PathStatus) string {
	switch ps.Kind {
	case gitindex.KindUntracked:
		return "[untracked]"
	case gitindex.KindIgnoredByGit:
		return "[ignored]"
	case gitindex.KindUnmerged:
		return "[conflict]"
	case gitindex.KindTracked:
		return fmt.Sprintf("[index=%d worktree=%d]", ps.Tracked.Index, ps.Tracked.Worktree)
	default:
		return ""
	}
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}
