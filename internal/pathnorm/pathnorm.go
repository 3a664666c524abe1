// Package pathnorm resolves user-supplied path patterns to absolute paths
// for embedding into sandbox rules, enforcing the symlink-boundary rule so a
// resolution can never broaden what a rule restricts.
package pathnorm

import (
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/AgentShepherd/vsbx/internal/policyconfig"
)

// Normalize expands "~", resolves relative paths against cwd, and
// canonicalizes the result subject to the symlink-boundary rule. Glob
// patterns have only their static (non-glob) prefix canonicalized; the
// glob remainder is spliced back unchanged.
func Normalize(pattern policyconfig.PathPattern, cwd string) string {
	expanded := expandHome(string(pattern))
	expanded = norm.NFC.String(expanded)

	if !filepath.IsAbs(expanded) {
		expanded = filepath.Join(cwd, expanded)
	}

	if !pattern.ContainsGlob() {
		return resolveBounded(expanded)
	}

	staticPrefix := policyconfig.PathPattern(expanded).StaticPrefix()
	if staticPrefix == "" {
		return expanded
	}
	resolvedPrefix := resolveBounded(strings.TrimSuffix(staticPrefix, "/"))
	remainder := expanded[len(staticPrefix):]
	return resolvedPrefix + "/" + remainder
}

func expandHome(p string) string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return p
	}
	if p == "~" {
		return home
	}
	if strings.HasPrefix(p, "~/") {
		return filepath.Join(home, p[2:])
	}
	return p
}

// resolveBounded resolves original's real path and applies the
// symlink-boundary rule: the resolution is accepted only if it equals the
// original, is the macOS canonical private-prefixed form of the original,
// or is a strict descendant of one of those. Any other resolution
// (ancestor, root, unrelated tree) is rejected and original is returned
// unresolved, because accepting it would broaden the restriction's scope
// to an attacker-controlled location.
func resolveBounded(original string) string {
	resolved, err := filepath.EvalSymlinks(original)
	if err != nil {
		return original
	}
	resolved = filepath.Clean(resolved)
	original = filepath.Clean(original)

	if withinBoundary(resolved, original) {
		return resolved
	}
	return original
}

func withinBoundary(resolved, original string) bool {
	if resolved == original {
		return true
	}
	for _, canon := range privatePrefixForms(original) {
		if resolved == canon {
			return true
		}
		if isStrictDescendant(resolved, canon) {
			return true
		}
	}
	return isStrictDescendant(resolved, original)
}

// privatePrefixForms returns the macOS canonical private-prefixed
// equivalents of p (/tmp <-> /private/tmp, /var <-> /private/var).
func privatePrefixForms(p string) []string {
	var forms []string
	switch {
	case p == "/tmp" || strings.HasPrefix(p, "/tmp/"):
		forms = append(forms, "/private"+p)
	case p == "/var" || strings.HasPrefix(p, "/var/"):
		forms = append(forms, "/private"+p)
	case p == "/private/tmp" || strings.HasPrefix(p, "/private/tmp/"):
		forms = append(forms, strings.TrimPrefix(p, "/private"))
	case p == "/private/var" || strings.HasPrefix(p, "/private/var/"):
		forms = append(forms, strings.TrimPrefix(p, "/private"))
	}
	return forms
}

// isStrictDescendant reports whether child is a path strictly beneath
// parent (never equal, never an ancestor, never root, never a
// single-segment path standing in for parent itself).
func isStrictDescendant(child, parent string) bool {
	if parent == "/" || child == "/" {
		return false
	}
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return false
	}
	return true
}
