package seatbelt

import "strings"

// globToRegex converts a normalized glob path into the seatbelt `regex`
// rule body: non-glob segments are escaped for both the regex engine and
// the profile's string-literal delimiters, and the glob tokens `**/`,
// `**`, `*`, `?` are translated to their regex equivalents. Placeholder
// substitution (rather than a single-pass scan) mirrors the teacher's own
// glob-to-sandbox-regex translator, including its ordering: glob tokens
// are swapped for NUL-delimited placeholders before metacharacter
// escaping runs, so escaping never touches a token it shouldn't.
func globToRegex(glob string) string {
	const (
		doubleStarSlash = "\x00DSS\x00"
		doubleStar      = "\x00DS\x00"
		singleStar      = "\x00SS\x00"
		questionMark    = "\x00QM\x00"
	)

	pattern := glob
	pattern = strings.ReplaceAll(pattern, "**/", doubleStarSlash)
	pattern = strings.ReplaceAll(pattern, "**", doubleStar)
	pattern = strings.ReplaceAll(pattern, "*", singleStar)
	pattern = strings.ReplaceAll(pattern, "?", questionMark)

	pattern = strings.ReplaceAll(pattern, `\`, `\\`)
	pattern = strings.ReplaceAll(pattern, `"`, `\"`)
	for _, meta := range []string{".", "+", "[", "]", "(", ")", "^", "$", "|", "#"} {
		pattern = strings.ReplaceAll(pattern, meta, `\`+meta)
	}

	pattern = strings.ReplaceAll(pattern, doubleStarSlash, "(.*/)?")
	pattern = strings.ReplaceAll(pattern, doubleStar, ".*")
	pattern = strings.ReplaceAll(pattern, singleStar, "[^/]*")
	pattern = strings.ReplaceAll(pattern, questionMark, "[^/]")

	if strings.HasPrefix(pattern, "/") {
		pattern = "^" + pattern
	}
	if !strings.HasSuffix(pattern, ".*") && !strings.HasSuffix(pattern, "/)?") {
		pattern += "$"
	}
	return pattern
}
