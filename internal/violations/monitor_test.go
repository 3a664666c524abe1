package violations

import "testing"

func TestExtractViolationPathFindsFirstQuotedToken(t *testing.T) {
	line := `Sandbox: deny(1) file-write* /tmp/x "/etc/passwd" extra`
	if got := extractViolationPath(line); got != "/etc/passwd" {
		t.Errorf("extractViolationPath = %q, want %q", got, "/etc/passwd")
	}
}

func TestExtractViolationPathNoQuotesReturnsEmpty(t *testing.T) {
	if got := extractViolationPath("no quotes here"); got != "" {
		t.Errorf("extractViolationPath = %q, want empty string", got)
	}
}

func TestIsIgnoredWildcardKeyMatchesAnyCommand(t *testing.T) {
	ignore := map[string][]string{"*": {"/etc/passwd"}}
	if !isIgnored(ignore, "anything at all", "/etc/passwd") {
		t.Error("wildcard key should ignore a matching path regardless of command")
	}
	if isIgnored(ignore, "anything at all", "/etc/shadow") {
		t.Error("wildcard key should not ignore a non-matching path")
	}
}

func TestIsIgnoredCommandPatternMustBeSubstring(t *testing.T) {
	ignore := map[string][]string{"npm install": {"/tmp/npm-cache"}}
	if !isIgnored(ignore, "npm install --save foo", "/tmp/npm-cache") {
		t.Error("expected a matching command substring to suppress the violation")
	}
	if isIgnored(ignore, "yarn add foo", "/tmp/npm-cache") {
		t.Error("a non-matching command must not be suppressed")
	}
}

func TestIsIgnoredEmptyPathNeverIgnored(t *testing.T) {
	ignore := map[string][]string{"*": {""}}
	if isIgnored(ignore, "echo hi", "") {
		t.Error("an empty extracted path should never be treated as ignored")
	}
}
