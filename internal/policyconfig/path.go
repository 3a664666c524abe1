package policyconfig

import "strings"

// PathPattern is a filesystem path pattern as accepted by spec.md §3: may
// start with "~", may be relative, and may contain the glob metacharacters
// "*", "?", "[", "]" and the recursive token "**".
type PathPattern string

const globMetachars = "*?[]"

// ContainsGlob reports whether the pattern contains any glob metacharacter.
func (p PathPattern) ContainsGlob() bool {
	return strings.ContainsAny(string(p), globMetachars)
}

// StaticPrefix returns the substring up to (but not including) the first
// glob metacharacter, cut back to the last path separator so the result is
// always a directory path. Used by the path normalizer (§4.1) to resolve
// only the portion of a glob pattern that denotes real filesystem state.
func (p PathPattern) StaticPrefix() string {
	s := string(p)
	idx := strings.IndexAny(s, globMetachars)
	if idx < 0 {
		return s
	}
	prefix := s[:idx]
	if cut := strings.LastIndexByte(prefix, '/'); cut >= 0 {
		return prefix[:cut+1]
	}
	return ""
}

// Validate checks that the pattern is a non-empty string (§6).
func (p PathPattern) Validate() error {
	if strings.TrimSpace(string(p)) == "" {
		return errEmptyPathPattern
	}
	return nil
}

var errEmptyPathPattern = pathPatternError("path pattern must not be empty")

type pathPatternError string

func (e pathPatternError) Error() string { return string(e) }
