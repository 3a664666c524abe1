package proxy

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/AgentShepherd/vsbx/internal/netfilter"
	"github.com/AgentShepherd/vsbx/internal/policyconfig"
)

// SOCKS5 reply codes (RFC 1928 §6).
const (
	socksVersion5       = 0x05
	socksCmdConnect     = 0x01
	socksAtypIPv4       = 0x01
	socksAtypDomainName = 0x03
	socksAtypIPv6       = 0x04

	socksReplySucceeded     = 0x00
	socksReplyNotAllowed    = 0x02
	socksReplyCmdNotSupport = 0x07
)

// SOCKSProxy speaks unauthenticated SOCKS5 (spec.md §4.6, §6 "no auth").
type SOCKSProxy struct {
	listener net.Listener
	policy   func() *policyconfig.NetworkConfig
	ask      netfilter.AskFunc

	mu   sync.Mutex
	wg   sync.WaitGroup
	done chan struct{}
}

// NewSOCKSProxy binds an ephemeral localhost listener.
func NewSOCKSProxy(policy func() *policyconfig.NetworkConfig, ask netfilter.AskFunc) (*SOCKSProxy, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("proxy: socks listen: %w", err)
	}
	p := &SOCKSProxy{listener: ln, policy: policy, ask: ask, done: make(chan struct{})}
	p.wg.Add(1)
	go p.serve()
	return p, nil
}

// Port returns the ephemeral port the proxy is listening on.
func (p *SOCKSProxy) Port() int {
	return p.listener.Addr().(*net.TCPAddr).Port
}

func (p *SOCKSProxy) serve() {
	defer p.wg.Done()
	for {
		conn, err := p.listener.Accept()
		if err != nil {
			select {
			case <-p.done:
				return
			default:
				log.Debug("socks proxy: accept error: %v", err)
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

func (p *SOCKSProxy) handle(conn net.Conn) {
	defer conn.Close()

	if err := socksGreeting(conn); err != nil {
		return
	}

	host, port, err := socksReadRequest(conn)
	if err != nil {
		socksReply(conn, socksReplyCmdNotSupport)
		return
	}

	if !netfilter.Allow(host, port, p.policy(), p.ask) {
		socksReply(conn, socksReplyNotAllowed)
		log.Warn("socks proxy: denied connect to %s:%d", host, port)
		return
	}

	upstream, err := net.Dial("tcp", net.JoinHostPort(host, fmt.Sprint(port)))
	if err != nil {
		socksReply(conn, 0x04) // host unreachable
		return
	}
	defer upstream.Close()

	socksReply(conn, socksReplySucceeded)
	splice(conn, upstream)
}

// socksGreeting consumes the client's version-identifier/method-selection
// message and replies with "no authentication required".
func socksGreeting(conn net.Conn) error {
	header := make([]byte, 2)
	if _, err := io.ReadFull(conn, header); err != nil {
		return err
	}
	if header[0] != socksVersion5 {
		return fmt.Errorf("socks: unsupported version %d", header[0])
	}
	nMethods := int(header[1])
	methods := make([]byte, nMethods)
	if _, err := io.ReadFull(conn, methods); err != nil {
		return err
	}
	_, err := conn.Write([]byte{socksVersion5, 0x00})
	return err
}

func socksReadRequest(conn net.Conn) (host string, port int, err error) {
	hdr := make([]byte, 4)
	if _, err = io.ReadFull(conn, hdr); err != nil {
		return "", 0, err
	}
	if hdr[0] != socksVersion5 || hdr[1] != socksCmdConnect {
		return "", 0, fmt.Errorf("socks: unsupported request")
	}

	switch hdr[3] {
	case socksAtypIPv4:
		addr := make([]byte, 4)
		if _, err = io.ReadFull(conn, addr); err != nil {
			return "", 0, err
		}
		host = net.IP(addr).String()
	case socksAtypDomainName:
		lenBuf := make([]byte, 1)
		if _, err = io.ReadFull(conn, lenBuf); err != nil {
			return "", 0, err
		}
		name := make([]byte, lenBuf[0])
		if _, err = io.ReadFull(conn, name); err != nil {
			return "", 0, err
		}
		host = string(name)
	case socksAtypIPv6:
		addr := make([]byte, 16)
		if _, err = io.ReadFull(conn, addr); err != nil {
			return "", 0, err
		}
		host = net.IP(addr).String()
	default:
		return "", 0, fmt.Errorf("socks: unsupported address type %d", hdr[3])
	}

	portBuf := make([]byte, 2)
	if _, err = io.ReadFull(conn, portBuf); err != nil {
		return "", 0, err
	}
	port = int(binary.BigEndian.Uint16(portBuf))
	return host, port, nil
}

func socksReply(conn net.Conn, code byte) {
	reply := []byte{socksVersion5, code, 0x00, socksAtypIPv4, 0, 0, 0, 0, 0, 0}
	conn.Write(reply)
}

// Close stops accepting new connections and waits for in-flight ones to
// finish.
func (p *SOCKSProxy) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	select {
	case <-p.done:
		return nil
	default:
		close(p.done)
	}
	err := p.listener.Close()
	p.wg.Wait()
	return err
}
