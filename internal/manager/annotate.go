package manager

import "github.com/AgentShepherd/vsbx/internal/violations"

// AnnotateStderr appends any recorded sandbox violations for command onto
// stderr, wrapped in <sandbox_violations> tags (spec.md §4.8
// annotate_stderr(command, stderr) -> stderr').
func (m *Manager) AnnotateStderr(command, stderr string) string {
	return violations.AnnotateStderr(stderr, m.violationStore, command)
}
