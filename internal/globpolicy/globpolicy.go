// Package globpolicy implements the configuration-level include/exclude/
// private-files glob sets from spec §4.3 and §6. These are evaluated before
// the gitignore ignore stack and are not gitignore rules themselves, but
// gitignore syntax (including "**") is a convenient superset for expressing
// them, so the same github.com/sabhiram/go-gitignore matcher the ignore
// stack uses is reused here for a flat, non-hierarchical rule set.
package globpolicy

import (
	gi "github.com/sabhiram/go-gitignore"

	"github.com/example/worktreed/internal/pathkey"
)

// Policy evaluates a single glob set (exclude, include, or private-files)
// against worktree-relative paths.
type Policy struct {
	matcher *gi.GitIgnore
}

// Compile builds a Policy from a list of glob patterns. An empty or nil
// patterns list yields a Policy that never matches.
func Compile(patterns []string) *Policy {
	if len(patterns) == 0 {
		return &Policy{}
	}
	return &Policy{matcher: gi.CompileIgnoreLines(patterns...)}
}

// Matches reports whether path matches this glob set.
func (p *Policy) Matches(path pathkey.Key, isDir bool) bool {
	if p == nil || p.matcher == nil {
		return false
	}
	s := string(path)
	if isDir {
		s += "/"
	}
	return p.matcher.MatchesPath(s)
}

// Set is the three glob sets recognized by the Settings interface (spec
// §6): file_scan_exclusions, file_scan_inclusions, private_files.
type Set struct {
	Exclude *Policy
	Include *Policy
	Private *Policy
}

// NewSet compiles a Set from raw pattern lists.
func NewSet(exclude, include, private []string) Set {
	return Set{
		Exclude: Compile(exclude),
		Include: Compile(include),
		Private: Compile(private),
	}
}

// Decision is the outcome of evaluating a path against the policy, spec
// §4.3: exclude always wins over include for visibility, but an included
// path is reported as not-ignored regardless of the gitignore ignore
// stack's verdict.
type Decision struct {
	// Visible is false when the entry matching Exclude means no Entry
	// should be created at all.
	Visible bool
	// AlwaysIncluded is true when Include matched (and Exclude did not).
	AlwaysIncluded bool
	// Private is true when the private-files policy matched.
	Private bool
}

// Evaluate applies the Set to path.
func (s Set) Evaluate(path pathkey.Key, isDir bool) Decision {
	excluded := s.Exclude.Matches(path, isDir)
	included := s.Include.Matches(path, isDir)
	private := s.Private.Matches(path, isDir)
	return Decision{
		Visible:        !excluded,
		AlwaysIncluded: included && !excluded,
		Private:        private,
	}
}
