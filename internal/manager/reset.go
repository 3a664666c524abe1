package manager

import (
	"github.com/AgentShepherd/vsbx/internal/types"
)

// Reset tears the manager back down to idle: closes both proxies, kills
// the Linux bridge if one was started, stops the violation monitor, and
// clears the installed policy (spec.md §4.8 reset()). It is idempotent —
// a second call while the first is still unwinding, or a call on an
// already-idle manager, is harmless.
func (m *Manager) Reset() error {
	m.mu.Lock()
	if m.state == types.StateIdle {
		m.mu.Unlock()
		return nil
	}
	m.state = types.StateResetting
	httpProxy := m.httpProxy
	socksProxy := m.socksProxy
	lb := m.bridge
	monitor := m.violationMonitor
	m.mu.Unlock()

	m.stopCleanup()

	if monitor != nil {
		monitor.Stop()
	}
	if lb != nil {
		lb.http.Stop()
		lb.socks.Stop()
	}
	if httpProxy != nil {
		httpProxy.Close()
	}
	if socksProxy != nil {
		socksProxy.Close()
	}

	m.mu.Lock()
	m.httpProxy = nil
	m.socksProxy = nil
	m.bridge = nil
	m.violationMonitor = nil
	m.policy = nil
	m.cleanupRegistered = false
	m.state = types.StateIdle
	m.mu.Unlock()

	return nil
}
