package violations

import "strings"

// AnnotateStderr appends a human-readable summary of any violations
// recorded for command to stderr, making sandbox-detected denials visible
// to the caller even though they are never raised as Go errors (spec.md
// §7: "Violations... are never thrown: they are persisted into the
// violation store and become visible by (a) the log-monitor subscribers
// and (b) annotate_stderr").
func AnnotateStderr(stderr string, store *Store, command string) string {
	events := store.ForCommand(command)
	if len(events) == 0 {
		return stderr
	}

	var b strings.Builder
	b.WriteString(stderr)
	if stderr != "" && !strings.HasSuffix(stderr, "\n") {
		b.WriteByte('\n')
	}
	b.WriteString("<sandbox_violations>\n")
	for _, e := range events {
		b.WriteString(e.Line)
		b.WriteByte('\n')
	}
	b.WriteString("</sandbox_violations>\n")
	return b.String()
}
