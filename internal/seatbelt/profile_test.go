package seatbelt

import (
	"strings"
	"testing"

	"github.com/AgentShepherd/vsbx/internal/policyconfig"
)

func TestCompileUnrestrictedNetworkAllowsAll(t *testing.T) {
	policy := &policyconfig.PolicyConfig{}
	out := Compile(policy, "/home/user", "echo hi")
	if !strings.Contains(out, "(allow network*)") {
		t.Error("expected unrestricted network to emit (allow network*)")
	}
}

func TestCompileRestrictedNetworkOmitsAllowAll(t *testing.T) {
	policy := &policyconfig.PolicyConfig{
		Network: &policyconfig.NetworkConfig{AllowedDomains: []policyconfig.DomainPattern{"x.com"}},
	}
	out := Compile(policy, "/home/user", "curl https://x.com")
	if strings.Contains(out, "(allow network*)") {
		t.Error("restricted network policy must not emit a blanket allow")
	}
}

func TestCompileDenyReadEmitsSubpathAndUnlinkTower(t *testing.T) {
	policy := &policyconfig.PolicyConfig{
		Filesystem: &policyconfig.FilesystemConfig{
			DenyRead: []policyconfig.PathPattern{"/home/user/.ssh"},
		},
	}
	out := Compile(policy, "/home/user", "cat /home/user/.ssh/id_rsa")
	if !strings.Contains(out, `deny file-read* (subpath "/home/user/.ssh")`) {
		t.Errorf("missing deny subpath rule, got:\n%s", out)
	}
	if !strings.Contains(out, `deny file-write-unlink (subpath "/home/user/.ssh")`) {
		t.Errorf("missing unlink-tower rule for the denied path itself, got:\n%s", out)
	}
	if !strings.Contains(out, `deny file-write-unlink (subpath "/home/user")`) {
		t.Errorf("missing unlink-tower rule for an ancestor directory, got:\n%s", out)
	}
}

func TestCompilePresentFilesystemDeniesWriteByDefault(t *testing.T) {
	policy := &policyconfig.PolicyConfig{
		Filesystem: &policyconfig.FilesystemConfig{AllowWrite: []policyconfig.PathPattern{"/out"}},
	}
	out := Compile(policy, "/home/user/project", "echo hi")
	if strings.Contains(out, "(allow file-write*)\n") {
		t.Errorf("a present filesystem block must not emit a blanket (allow file-write*), got:\n%s", out)
	}
	if !strings.Contains(out, `allow file-write* (subpath "/out")`) {
		t.Errorf("expected the configured allow_write path to be writable, got:\n%s", out)
	}
}

func TestCompilePresentFilesystemAllowsHardwiredWritablePaths(t *testing.T) {
	policy := &policyconfig.PolicyConfig{
		Filesystem: &policyconfig.FilesystemConfig{},
	}
	out := Compile(policy, "/home/user/project", "echo hi")
	for _, p := range []string{"/dev/stdout", "/dev/stderr", "/dev/null", "/dev/tty", "/tmp/vsbx"} {
		want := `allow file-write* (subpath "` + p + `")`
		if !strings.Contains(out, want) {
			t.Errorf("expected hardwired writable path rule %q, got:\n%s", want, out)
		}
	}
}

func TestCompileAbsentFilesystemAllowsAllWrites(t *testing.T) {
	policy := &policyconfig.PolicyConfig{}
	out := Compile(policy, "/home/user/project", "echo hi")
	if !strings.Contains(out, "(allow file-write*)\n") {
		t.Errorf("a nil filesystem block must allow all writes, got:\n%s", out)
	}
}

func TestCompileMandatoryDenySetIncludesGitConfig(t *testing.T) {
	policy := &policyconfig.PolicyConfig{
		Filesystem: &policyconfig.FilesystemConfig{AllowWrite: nil},
	}
	out := Compile(policy, "/home/user/project", "npm install")
	if !strings.Contains(out, "/home/user/project/.git/config") {
		t.Errorf("expected .git/config in mandatory deny set when AllowGitConfig is unset, got:\n%s", out)
	}
}

func TestCompileAllowGitConfigOmitsGitConfigDeny(t *testing.T) {
	policy := &policyconfig.PolicyConfig{
		Filesystem: &policyconfig.FilesystemConfig{AllowGitConfig: true},
	}
	out := Compile(policy, "/home/user/project", "git log")
	if strings.Contains(out, `deny file-write* (subpath "/home/user/project/.git/config")`) {
		t.Errorf("AllowGitConfig should omit the .git/config deny rule, got:\n%s", out)
	}
}

func TestGlobToRegexTranslatesTokens(t *testing.T) {
	cases := map[string]string{
		"/a/**/b.log": `^/a/(.*/)?b\.log$`,
		"/a/*.log":    `^/a/[^/]*\.log$`,
		"/a/?.log":    `^/a/[^/]\.log$`,
	}
	for in, want := range cases {
		got := globToRegex(in)
		if got != want {
			t.Errorf("globToRegex(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLogTagFormat(t *testing.T) {
	tag := NewLogTag("echo hello")
	if !strings.HasPrefix(tag, "CMD64_") {
		t.Errorf("log tag should start with CMD64_, got %q", tag)
	}
	if !strings.Contains(tag, "_END_") {
		t.Errorf("log tag should contain _END_, got %q", tag)
	}
}

func TestLogTagTruncatesTo100Bytes(t *testing.T) {
	long := strings.Repeat("a", 500)
	tag := NewLogTag(long)
	// base64 of 100 bytes: ceil(100/3)*4 = 136 chars
	if len(tag) > len("CMD64_")+136+len("_END_")+36 {
		t.Errorf("log tag longer than expected for a truncated 100-byte command: %q", tag)
	}
}
