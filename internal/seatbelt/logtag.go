package seatbelt

import (
	"encoding/base64"

	"github.com/google/uuid"
)

// NewLogTag builds the `with message` correlation tag embedded in every
// deny rule's seatbelt directive, so violation events parsed from the
// unified log stream (internal/violations) can be matched back to the
// command that produced them (spec.md §3 SandboxViolationEvent,
// "encoded_command"; §4.2).
func NewLogTag(command string) string {
	truncated := command
	if len(truncated) > 100 {
		truncated = truncated[:100]
	}
	encoded := base64.StdEncoding.EncodeToString([]byte(truncated))
	session := uuid.New().String()
	return "CMD64_" + encoded + "_END_" + session
}
