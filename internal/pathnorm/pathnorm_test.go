package pathnorm

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/AgentShepherd/vsbx/internal/policyconfig"
)

func TestResolveBoundedRejectsAncestorEscape(t *testing.T) {
	dir := t.TempDir()
	secret := filepath.Join(dir, "secret")
	if err := os.MkdirAll(secret, 0700); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(dir, "link")
	// link -> dir itself (an ancestor of "link/secret" as requested below)
	if err := os.Symlink(dir, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	requested := filepath.Join(link, "secret")
	got := resolveBounded(requested)
	if got != filepath.Clean(requested) {
		t.Errorf("resolveBounded(%q) = %q, want unresolved original (ancestor-widening resolution must be rejected)", requested, got)
	}
}

func TestResolveBoundedRejectsSiblingResolution(t *testing.T) {
	dir := t.TempDir()
	real := filepath.Join(dir, "real")
	if err := os.MkdirAll(real, 0700); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(dir, "link")
	// link -> real, a sibling of link rather than a descendant of it
	if err := os.Symlink(real, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	got := resolveBounded(link)
	sibling, err := filepath.EvalSymlinks(link)
	if err != nil {
		t.Fatal(err)
	}
	if got != filepath.Clean(link) {
		t.Errorf("resolveBounded(%q) = %q, want unresolved original (resolution to sibling %q must be rejected)", link, got, sibling)
	}
}

func TestResolveBoundedNoSymlinkIsIdentity(t *testing.T) {
	dir := t.TempDir()
	plain := filepath.Join(dir, "plain")
	if err := os.WriteFile(plain, []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}
	if got := resolveBounded(plain); got != filepath.Clean(plain) {
		t.Errorf("resolveBounded(%q) = %q, want identity", plain, got)
	}
}

func TestNormalizeSplicesGlobRemainder(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	if err := os.MkdirAll(sub, 0700); err != nil {
		t.Fatal(err)
	}

	pattern := policyconfig.PathPattern(filepath.Join(sub, "*.log"))
	got := Normalize(pattern, dir)
	want := filepath.Join(sub, "*.log")
	if got != want {
		t.Errorf("Normalize(%q) = %q, want %q", pattern, got, want)
	}
}

func TestNormalizeResolvesRelativeAgainstCwd(t *testing.T) {
	dir := t.TempDir()
	got := Normalize(policyconfig.PathPattern("rel/path"), dir)
	want := filepath.Join(dir, "rel/path")
	if got != want {
		t.Errorf("Normalize(rel) = %q, want %q", got, want)
	}
}

func TestPrivatePrefixFormsTmpAndVar(t *testing.T) {
	cases := map[string][]string{
		"/tmp/x":         {"/private/tmp/x"},
		"/var/y":         {"/private/var/y"},
		"/private/tmp/x": {"/tmp/x"},
		"/other/z":       nil,
	}
	for in, want := range cases {
		got := privatePrefixForms(in)
		if len(got) != len(want) {
			t.Errorf("privatePrefixForms(%q) = %v, want %v", in, got, want)
			continue
		}
		for i := range got {
			if got[i] != want[i] {
				t.Errorf("privatePrefixForms(%q) = %v, want %v", in, got, want)
			}
		}
	}
}
