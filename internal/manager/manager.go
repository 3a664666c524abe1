// Package manager holds the process-wide lifecycle state machine: one-shot
// initialization of the proxies and (on Linux) their bridges, wrap() for
// producing the final shell string, and reset() for tearing everything
// down (spec.md §4.8).
package manager

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"

	"golang.org/x/sync/singleflight"

	"github.com/AgentShepherd/vsbx/internal/bridge"
	"github.com/AgentShepherd/vsbx/internal/logger"
	"github.com/AgentShepherd/vsbx/internal/policyconfig"
	"github.com/AgentShepherd/vsbx/internal/proxy"
	"github.com/AgentShepherd/vsbx/internal/types"
	"github.com/AgentShepherd/vsbx/internal/violations"
	"github.com/AgentShepherd/vsbx/internal/vsbxerr"
)

var log = logger.New("manager")

const (
	httpFixedPort  = 3128
	socksFixedPort = 1080
)

// linuxBridge bundles the two relay endpoints used on Linux when network
// is restricted (spec.md §3 ManagerContext.LinuxBridge).
type linuxBridge struct {
	http  *bridge.Endpoint
	socks *bridge.Endpoint
}

// Manager holds process-wide state: config, proxies, bridge, violation
// store, cleanup registration (spec.md §3 ManagerContext).
type Manager struct {
	mu    sync.RWMutex
	state types.ManagerState

	policy *policyconfig.PolicyConfig
	cwd    string

	httpProxy  *proxy.HTTPProxy
	socksProxy *proxy.SOCKSProxy
	bridge     *linuxBridge

	violationStore   *violations.Store
	violationMonitor *violations.Monitor

	cleanupRegistered bool
	signalCh          chan os.Signal
	initGroup         singleflight.Group
}

// New constructs a Manager in the idle state. cwd is the working
// directory used to resolve relative path patterns in wrap().
func New(cwd string) *Manager {
	return &Manager{state: types.StateIdle, cwd: cwd, violationStore: violations.NewStore(100)}
}

// Initialize is idempotent and de-duplicates concurrent callers: the
// first caller performs initialization, later concurrent callers await
// the same outcome (spec.md §5 ordering guarantee (a)).
func (m *Manager) Initialize(ctx context.Context, policy *policyconfig.PolicyConfig) error {
	_, err, _ := m.initGroup.Do("initialize", func() (any, error) {
		return nil, m.initializeOnce(ctx, policy)
	})
	return err
}

func (m *Manager) initializeOnce(ctx context.Context, policy *policyconfig.PolicyConfig) error {
	m.mu.Lock()
	if m.state == types.StateReady {
		m.mu.Unlock()
		return nil
	}
	m.state = types.StateInitializing
	m.policy = policy
	m.mu.Unlock()

	if !types.Platform(runtime.GOOS).Supported() {
		m.setState(types.StateIdle)
		return fmt.Errorf("%w: %q", vsbxerr.ErrUnsupportedPlatform, runtime.GOOS)
	}

	if err := checkDependencies(policy); err != nil {
		m.setState(types.StateIdle)
		return fmt.Errorf("manager: dependency preflight: %w", err)
	}

	httpProxy, err := proxy.NewHTTPProxy(m.networkPolicy, nil)
	if err != nil {
		m.setState(types.StateIdle)
		return fmt.Errorf("manager: starting http proxy: %w", err)
	}

	socksProxy, err := proxy.NewSOCKSProxy(m.networkPolicy, nil)
	if err != nil {
		httpProxy.Close()
		m.setState(types.StateIdle)
		return fmt.Errorf("manager: starting socks proxy: %w", err)
	}

	var lb *linuxBridge
	if runtime.GOOS == "linux" && policy.Network.Restricted() {
		lb, err = m.startLinuxBridge(httpProxy.Port(), socksProxy.Port())
		if err != nil {
			httpProxy.Close()
			socksProxy.Close()
			m.setState(types.StateIdle)
			return fmt.Errorf("%w: %v", vsbxerr.ErrBridgeStartup, err)
		}
	}

	var monitor *violations.Monitor
	if runtime.GOOS == "darwin" {
		monitor = violations.NewMonitor(m.violationStore, policy.IgnoreViolations)
		if err := monitor.Start(ctx); err != nil {
			log.Warn("manager: violation monitor failed to start: %v", err)
			monitor = nil
		}
	}

	m.mu.Lock()
	m.httpProxy = httpProxy
	m.socksProxy = socksProxy
	m.bridge = lb
	m.violationMonitor = monitor
	m.state = types.StateReady
	m.mu.Unlock()

	m.registerCleanup()
	return nil
}

func (m *Manager) startLinuxBridge(httpPort, socksPort int) (*linuxBridge, error) {
	tmpdir := os.TempDir()
	httpEP, err := bridge.NewEndpoint(tmpdir, "http", httpFixedPort)
	if err != nil {
		return nil, err
	}
	socksEP, err := bridge.NewEndpoint(tmpdir, "socks", socksFixedPort)
	if err != nil {
		return nil, err
	}
	if err := httpEP.Start(httpPort); err != nil {
		return nil, err
	}
	if err := socksEP.Start(socksPort); err != nil {
		httpEP.Stop()
		return nil, err
	}
	return &linuxBridge{http: httpEP, socks: socksEP}, nil
}

func (m *Manager) networkPolicy() *policyconfig.NetworkConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.policy == nil {
		return nil
	}
	return m.policy.Network
}

func (m *Manager) setState(s types.ManagerState) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// State returns the manager's current lifecycle state.
func (m *Manager) State() types.ManagerState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// UpdateConfig merges customConfig on top of the current policy using
// policyconfig.Merge's per-subkey precedence rule and installs the result
// (spec.md §3 "PolicyConfig is... mutated only by explicit update_config").
func (m *Manager) UpdateConfig(customConfig *policyconfig.PolicyConfig) error {
	if err := customConfig.Validate(); err != nil {
		return fmt.Errorf("%w: %v", vsbxerr.ErrInvalidConfig, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.policy = policyconfig.Merge(m.policy, customConfig)
	return nil
}

// registerCleanup installs a SIGINT/SIGTERM handler that tears the
// manager down before the process dies, so a long Wrap-ped child run that
// gets interrupted doesn't leak bridge processes or open proxy listeners.
// Idempotent: only the first call after New (or after Reset) installs the
// handler.
func (m *Manager) registerCleanup() {
	m.mu.Lock()
	if m.cleanupRegistered {
		m.mu.Unlock()
		return
	}
	m.cleanupRegistered = true
	ch := make(chan os.Signal, 1)
	m.signalCh = ch
	m.mu.Unlock()

	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		if _, ok := <-ch; !ok {
			return
		}
		if err := m.Reset(); err != nil {
			log.Warn("manager: cleanup on signal failed: %v", err)
		}
	}()
}

// stopCleanup reverses registerCleanup: it stops routing SIGINT/SIGTERM
// through the manager's channel and lets the goroutine above exit.
func (m *Manager) stopCleanup() {
	m.mu.Lock()
	ch := m.signalCh
	m.signalCh = nil
	m.mu.Unlock()
	if ch == nil {
		return
	}
	signal.Stop(ch)
	close(ch)
}
