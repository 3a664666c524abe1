// Package proxy implements the two in-process filtering proxies consulted
// by sandboxed commands for outbound network access: an HTTP CONNECT /
// forward proxy, and a SOCKS5 proxy (spec.md §4.5, §4.6).
package proxy

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/AgentShepherd/vsbx/internal/logger"
	"github.com/AgentShepherd/vsbx/internal/netfilter"
	"github.com/AgentShepherd/vsbx/internal/policyconfig"
)

var log = logger.New("proxy")

const deniedBody = "Connection blocked by network allowlist"

// HTTPProxy is a TCP server that handles CONNECT tunneling and plain
// absolute-URI forward-proxy requests. It never terminates TLS: CONNECT
// tunnels are spliced blindly once allowed (spec.md §1 non-goals).
type HTTPProxy struct {
	listener net.Listener
	policy   func() *policyconfig.NetworkConfig
	ask      netfilter.AskFunc

	mu   sync.Mutex
	wg   sync.WaitGroup
	done chan struct{}
}

// NewHTTPProxy binds an ephemeral localhost listener. policy is invoked
// per-connection so the manager can swap policies via update_config
// without restarting the proxy.
func NewHTTPProxy(policy func() *policyconfig.NetworkConfig, ask netfilter.AskFunc) (*HTTPProxy, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("proxy: http listen: %w", err)
	}
	p := &HTTPProxy{listener: ln, policy: policy, ask: ask, done: make(chan struct{})}
	p.wg.Add(1)
	go p.serve()
	return p, nil
}

// Port returns the ephemeral port the proxy is listening on.
func (p *HTTPProxy) Port() int {
	return p.listener.Addr().(*net.TCPAddr).Port
}

func (p *HTTPProxy) serve() {
	defer p.wg.Done()
	for {
		conn, err := p.listener.Accept()
		if err != nil {
			select {
			case <-p.done:
				return
			default:
				log.Debug("http proxy: accept error: %v", err)
				return
			}
		}
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.handle(conn)
		}()
	}
}

func (p *HTTPProxy) handle(conn net.Conn) {
	defer conn.Close()
	reader := bufio.NewReader(conn)
	req, err := http.ReadRequest(reader)
	if err != nil {
		return
	}

	if req.Method == http.MethodConnect {
		p.handleConnect(conn, req)
		return
	}
	p.handleForward(conn, req)
}

func (p *HTTPProxy) handleConnect(conn net.Conn, req *http.Request) {
	host, portStr, err := net.SplitHostPort(req.URL.Host)
	if err != nil {
		host, portStr = req.URL.Host, "443"
	}
	port, _ := strconv.Atoi(portStr)

	if !netfilter.Allow(host, port, p.policy(), p.ask) {
		writeDenied(conn, true)
		log.Warn("http proxy: denied CONNECT to %s:%s", host, portStr)
		return
	}

	upstream, err := net.Dial("tcp", net.JoinHostPort(host, portStr))
	if err != nil {
		fmt.Fprintf(conn, "HTTP/1.1 502 Bad Gateway\r\n\r\n")
		return
	}
	defer upstream.Close()

	fmt.Fprintf(conn, "HTTP/1.1 200 Connection Established\r\n\r\n")
	splice(conn, upstream)
}

func (p *HTTPProxy) handleForward(conn net.Conn, req *http.Request) {
	host := req.URL.Hostname()
	port, err := strconv.Atoi(req.URL.Port())
	if err != nil {
		port = 80
		if req.URL.Scheme == "https" {
			port = 443
		}
	}

	if !netfilter.Allow(host, port, p.policy(), p.ask) {
		writeDenied(conn, false)
		log.Warn("http proxy: denied forward request to %s", host)
		return
	}

	outReq := req.Clone(req.Context())
	outReq.RequestURI = ""
	resp, err := http.DefaultTransport.RoundTrip(outReq)
	if err != nil {
		fmt.Fprintf(conn, "HTTP/1.1 502 Bad Gateway\r\n\r\n")
		return
	}
	defer resp.Body.Close()
	resp.Write(conn)
}

func writeDenied(conn net.Conn, isConnect bool) {
	var b strings.Builder
	b.WriteString("HTTP/1.1 403 Forbidden\r\n")
	b.WriteString("X-Proxy-Error: blocked-by-allowlist\r\n")
	fmt.Fprintf(&b, "Content-Length: %d\r\n", len(deniedBody))
	b.WriteString("Content-Type: text/plain\r\n\r\n")
	b.WriteString(deniedBody)
	io.WriteString(conn, b.String())
}

func splice(a, b net.Conn) {
	done := make(chan struct{}, 2)
	go func() { io.Copy(a, b); done <- struct{}{} }()
	go func() { io.Copy(b, a); done <- struct{}{} }()
	<-done
}

// Close stops accepting new connections and waits for in-flight ones to
// finish; server file descriptors are closed so they cannot keep the
// process alive (spec.md §3 lifecycle).
func (p *HTTPProxy) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	select {
	case <-p.done:
		return nil // already closed; swallow (spec.md §7 CleanupNoise)
	default:
		close(p.done)
	}
	err := p.listener.Close()
	p.wg.Wait()
	return err
}
