// Package shellquote is the single trusted boundary for embedding
// arbitrary strings into the final wrapped shell command (spec.md §4.10).
package shellquote

import (
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// Token is one piece of a command being assembled into a shell string.
// Operator tokens (redirection, pipes, subshell punctuation the wrapper
// itself introduces) keep their shell meaning; Literal tokens are
// arbitrary data that must never be interpreted by the shell.
type Token struct {
	Value    string
	Operator bool
}

// Quote renders tok as a single shell-safe string.
func Quote(tok Token) string {
	if tok.Operator {
		return quoteOperator(tok.Value)
	}
	return QuoteLiteral(tok.Value)
}

// QuoteLiteral applies the tri-mode literal-quoting algorithm: empty
// becomes `''`; a token containing only whitespace, `"`, or `\` (no single
// quotes) is single-quoted verbatim; a token containing `'` is
// double-quoted with `"`, `\`, `$`, backtick, and `!` backslash-escaped;
// anything else is handed to mvdan's syntax.Quote, and per-character
// backslash escaping is used only when syntax.Quote rejects the string.
// syntax.Quote has no notion of the operator/literal distinction this
// package models, so it only ever stands in for the literal path.
func QuoteLiteral(s string) string {
	if s == "" {
		return "''"
	}
	if strings.ContainsRune(s, '\'') {
		return quoteDouble(s)
	}
	if needsSingleQuoting(s) {
		return "'" + s + "'"
	}
	if q, err := syntax.Quote(s, syntax.LangBash); err == nil {
		return q
	}
	return quotePerChar(s)
}

// needsSingleQuoting reports whether s contains whitespace, `"`, or `\`
// (and, by the caller's precondition, no `'`) — the case the spec routes
// to plain single-quoting rather than per-character escaping.
func needsSingleQuoting(s string) bool {
	return strings.ContainsAny(s, " \t\n\"\\")
}

func quoteDouble(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"', '\\', '$', '`', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('"')
	return b.String()
}

func quotePerChar(s string) string {
	var b strings.Builder
	for _, r := range s {
		if isShellMeta(r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

const shellMetaChars = " \t\n\"'$`!*?[]{}()<>|&;~#"

func isShellMeta(r rune) bool {
	return strings.ContainsRune(shellMetaChars, r)
}

// quoteOperator escapes an operator token so it keeps its shell meaning
// but has predictable precedence once spliced into the wrapped command
// (spec.md §4.10: "emitted escaped so that it retains its operator
// function but has predictable precedence").
func quoteOperator(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r == '\n' {
			b.WriteString("\\\n")
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// QuoteArgs joins literal argument tokens into a single shell-safe string.
func QuoteArgs(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = QuoteLiteral(a)
	}
	return strings.Join(quoted, " ")
}
