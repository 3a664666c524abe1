// Package bridge implements the Linux network bridge: for each proxy, a
// Unix-socket listener on the host paired with a TCP relay spawned inside
// the sandboxed namespace on a fixed port, because the namespaced process
// has no direct route to the host loopback interface (spec.md §4.7).
package bridge

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/AgentShepherd/vsbx/internal/logger"
)

var log = logger.New("bridge")

const (
	readinessAttempts = 5
	readinessStepMS   = 100
	killGrace         = 5 * time.Second
)

// Endpoint is one relay pair: a Unix socket the host-side proxy listens on,
// paired with a fixed TCP port reachable from inside the namespace.
type Endpoint struct {
	SocketPath string
	FixedPort  int

	mu      sync.Mutex
	process *exec.Cmd
}

// NewEndpoint allocates a socket path under tmpdir for the given proxy
// kind ("http" or "socks") and fixed in-namespace port.
func NewEndpoint(tmpdir, kind string, fixedPort int) (*Endpoint, error) {
	suffix, err := randomHex(16)
	if err != nil {
		return nil, fmt.Errorf("bridge: generating socket suffix: %w", err)
	}
	return &Endpoint{
		SocketPath: filepath.Join(tmpdir, fmt.Sprintf("vsbx-%s-%s.sock", kind, suffix)),
		FixedPort:  fixedPort,
	}, nil
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n/2)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// Start spawns a socat relay listening on SocketPath and forwarding to
// localProxyPort on the host side. This is the host-side half of the
// bridge; the namespace-side half (TCP-LISTEN:<FixedPort> ->
// UNIX-CONNECT:<SocketPath>) is launched inside the wrapped command by
// internal/manager as part of its launch-composition shell script
// (spec.md §4.3 "Launch composition").
func (e *Endpoint) Start(localProxyPort int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	os.Remove(e.SocketPath)
	cmd := exec.Command("socat",
		fmt.Sprintf("UNIX-LISTEN:%s,fork", e.SocketPath),
		fmt.Sprintf("TCP:127.0.0.1:%d", localProxyPort),
	)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("bridge: starting socat relay for %s: %w", e.SocketPath, err)
	}
	e.process = cmd

	if err := e.awaitReady(); err != nil {
		e.killLocked()
		return err
	}
	return nil
}

// awaitReady polls for the socket file's appearance with a short backoff,
// giving up after readinessAttempts (spec.md §5 "~1.5s aggregate").
func (e *Endpoint) awaitReady() error {
	for i := 1; i <= readinessAttempts; i++ {
		if _, err := os.Stat(e.SocketPath); err == nil {
			return nil
		}
		time.Sleep(time.Duration(readinessStepMS*i) * time.Millisecond)
	}
	return fmt.Errorf("bridge: socket %s did not become ready", e.SocketPath)
}

// Stop sends SIGTERM, escalating to SIGKILL after killGrace, then unlinks
// the socket file. ESRCH (process already gone) is swallowed as cleanup
// noise (spec.md §3 lifecycle, §7 CleanupNoise).
func (e *Endpoint) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.killLocked()
}

func (e *Endpoint) killLocked() error {
	defer os.Remove(e.SocketPath)

	if e.process == nil || e.process.Process == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- e.process.Wait() }()

	if err := e.process.Process.Signal(syscall.SIGTERM); err != nil &&
		!errors.Is(err, os.ErrProcessDone) && !errors.Is(err, unix.ESRCH) {
		log.Debug("bridge: SIGTERM to relay: %v", err)
	}

	select {
	case <-done:
		return nil
	case <-time.After(killGrace):
	}

	if err := e.process.Process.Kill(); err != nil &&
		!errors.Is(err, os.ErrProcessDone) && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("bridge: SIGKILL relay: %w", err)
	}
	<-done
	return nil
}
