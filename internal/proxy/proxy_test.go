package proxy

import (
	"bufio"
	"net"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/AgentShepherd/vsbx/internal/policyconfig"
)

func denyAllPolicy() *policyconfig.NetworkConfig {
	return &policyconfig.NetworkConfig{AllowedDomainsSet: true}
}

func TestHTTPProxyDeniesConnect(t *testing.T) {
	p, err := NewHTTPProxy(denyAllPolicy, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	conn, err := net.DialTimeout("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(p.Port())), 2*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	conn.Write([]byte("CONNECT example.com:443 HTTP/1.1\r\nHost: example.com:443\r\n\r\n"))
	resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 403 {
		t.Errorf("expected 403, got %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Proxy-Error") != "blocked-by-allowlist" {
		t.Errorf("expected X-Proxy-Error header, got %q", resp.Header.Get("X-Proxy-Error"))
	}
}

func TestHTTPProxyCloseIsIdempotent(t *testing.T) {
	p, err := NewHTTPProxy(denyAllPolicy, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second close should be a no-op, got: %v", err)
	}
}

func TestSOCKSProxyDeniesConnect(t *testing.T) {
	p, err := NewSOCKSProxy(denyAllPolicy, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	conn, err := net.DialTimeout("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(p.Port())), 2*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	conn.Write([]byte{socksVersion5, 1, 0x00}) // greeting: no-auth
	greet := make([]byte, 2)
	if _, err := conn.Read(greet); err != nil {
		t.Fatal(err)
	}

	req := []byte{socksVersion5, socksCmdConnect, 0x00, socksAtypDomainName}
	host := "example.com"
	req = append(req, byte(len(host)))
	req = append(req, host...)
	req = append(req, 0x01, 0xBB) // port 443
	conn.Write(req)

	reply := make([]byte, 10)
	if _, err := conn.Read(reply); err != nil {
		t.Fatal(err)
	}
	if reply[1] != socksReplyNotAllowed {
		t.Errorf("expected not-allowed reply code %d, got %d", socksReplyNotAllowed, reply[1])
	}
}

func TestSOCKSProxyCloseIsIdempotent(t *testing.T) {
	p, err := NewSOCKSProxy(denyAllPolicy, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second close should be a no-op, got: %v", err)
	}
}
