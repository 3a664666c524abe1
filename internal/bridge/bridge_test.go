package bridge

import (
	"strings"
	"testing"
)

func TestNewEndpointSocketPathFormat(t *testing.T) {
	ep, err := NewEndpoint("/tmp", "http", 3128)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(ep.SocketPath, "/tmp/vsbx-http-") {
		t.Errorf("socket path = %q, want prefix /tmp/vsbx-http-", ep.SocketPath)
	}
	if !strings.HasSuffix(ep.SocketPath, ".sock") {
		t.Errorf("socket path = %q, want .sock suffix", ep.SocketPath)
	}
	if ep.FixedPort != 3128 {
		t.Errorf("FixedPort = %d, want 3128", ep.FixedPort)
	}
}

func TestNewEndpointUniqueSuffixes(t *testing.T) {
	a, err := NewEndpoint("/tmp", "socks", 1080)
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewEndpoint("/tmp", "socks", 1080)
	if err != nil {
		t.Fatal(err)
	}
	if a.SocketPath == b.SocketPath {
		t.Error("expected distinct socket paths across endpoints")
	}
}

func TestStopOnUnstartedEndpointIsNoop(t *testing.T) {
	ep, err := NewEndpoint("/tmp", "http", 3128)
	if err != nil {
		t.Fatal(err)
	}
	if err := ep.Stop(); err != nil {
		t.Errorf("Stop on never-started endpoint should be a no-op, got: %v", err)
	}
}
