// Package ignore implements the gitignore rule composition described in
// spec §4.3: an ignore stack accumulates .gitignore layers from the
// worktree root down to any directory, and evaluates inclusion decisions
// with deeper rules (and negations) overriding shallower ones.
//
// github.com/sabhiram/go-gitignore (the teacher's library) evaluates
// negation correctly within a single .gitignore file, but its MatchesPath
// only returns a bool — it cannot tell a caller composing several files
// together whether a miss means "not mentioned" or "explicitly
// re-included". To compose multiple layers into one ordered decision that
// still lets a deeper negation override a shallower ignore rule, each
// layer's raw lines are rewritten to be relative to the stack's root
// before being handed, all together and in layer order, to a single
// compiled matcher — so the library's own last-match-wins evaluation does
// the composing.
package ignore

import (
	"strings"

	gi "github.com/sabhiram/go-gitignore"

	"github.com/example/worktreed/internal/pathkey"
)

// Layer is one directory's .gitignore contents, anchored at baseDir
// (relative to the stack's root; "" for the root .gitignore).
type Layer struct {
	BaseDir pathkey.Key
	Lines   []string // raw, already stripped of blank lines and comments
}

// Stack composes ignore layers from root to some current directory and
// answers is-ignored queries for paths at or below that directory.
type Stack struct {
	layers    []Layer
	rootLines []string // cumulative, root-relative, transformed lines
	compiled  *gi.GitIgnore
	dirty     bool
}

// Empty returns a Stack with no layers; nothing is ignored.
func Empty() *Stack {
	return &Stack{}
}

// Push returns a new Stack extending s with one more layer. s itself is
// left unmodified so callers can push a child layer while continuing to
// use the parent stack for siblings (copy-on-write, matching the
// teacher's childRules := append(append([]rule(nil), d.rules...), ...)
// pattern in internal/index/scan.go).
func (s *Stack) Push(l Layer) *Stack {
	if len(l.Lines) == 0 {
		return s
	}
	next := &Stack{
		layers:    append(append([]Layer(nil), s.layers...), l),
		rootLines: append(append([]string(nil), s.rootLines...), transformLines(l.BaseDir, l.Lines)...),
		dirty:     true,
	}
	return next
}

// IsIgnored reports whether path (relative to the stack's root) is
// ignored, given its kind. Directories are evaluated with a trailing
// marker so dir-only patterns apply.
func (s *Stack) IsIgnored(path pathkey.Key, isDir bool) bool {
	if s == nil || len(s.rootLines) == 0 {
		return false
	}
	if s.compiled == nil || s.dirty {
		s.compiled = gi.CompileIgnoreLines(s.rootLines...)
		s.dirty = false
	}
	p := string(path)
	if isDir {
		p += "/"
	}
	return s.compiled.MatchesPath(p)
}

// Layers returns the ordered (root-to-leaf) layers composing s, for
// callers that need to know which directories contributed rules (e.g. to
// decide what to invalidate when a .gitignore changes).
func (s *Stack) Layers() []Layer {
	if s == nil {
		return nil
	}
	return s.layers
}

// transformLines rewrites a directory's raw .gitignore lines so they can
// be evaluated against paths relative to the stack's root instead of
// relative to baseDir.
func transformLines(baseDir pathkey.Key, lines []string) []string {
	if baseDir == "" {
		out := make([]string, len(lines))
		copy(out, lines)
		return out
	}
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		out = append(out, transformLine(baseDir, line))
	}
	return out
}

func transformLine(baseDir pathkey.Key, line string) string {
	negated := strings.HasPrefix(line, "!")
	body := line
	if negated {
		body = line[1:]
	}
	dirOnly := strings.HasSuffix(body, "/") && body != "/"
	trimmed := strings.TrimSuffix(body, "/")

	anchored := strings.HasPrefix(trimmed, "/") || strings.Contains(strings.TrimPrefix(trimmed, "/"), "/")
	trimmed = strings.TrimPrefix(trimmed, "/")

	var rewritten string
	if anchored {
		rewritten = string(baseDir) + "/" + trimmed
	} else {
		// Non-anchored patterns match at any depth under baseDir.
		rewritten = string(baseDir) + "/**/" + trimmed
	}
	if dirOnly {
		rewritten += "/"
	}
	if negated {
		rewritten = "!" + rewritten
	}
	return rewritten
}

// ParseLines splits raw .gitignore file content into the non-blank,
// non-comment lines Layer expects, trimming trailing whitespace. Comment
// escaping ("\#") is left to the underlying matcher.
func ParseLines(content string) []string {
	var lines []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimRight(line, " \t\r")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}
