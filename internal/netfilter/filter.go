// Package netfilter implements the pure (host, port, policy) -> allow/deny
// decision consulted by both the HTTP CONNECT and SOCKS5 proxies
// (spec.md §4.4).
package netfilter

import (
	"github.com/AgentShepherd/vsbx/internal/policyconfig"
)

// AskFunc is an optional interactive callback consulted when no allow or
// deny rule matches. An error from the callback is treated as a deny.
type AskFunc func(host string, port int) (bool, error)

// Allow decides whether a connection to host:port may proceed. Order
// (spec.md §4.4): no policy denies; denied_domains is checked before
// allowed_domains so an explicit deny always wins; then the optional ask
// callback; otherwise deny.
func Allow(host string, port int, policy *policyconfig.NetworkConfig, ask AskFunc) bool {
	if policy == nil {
		return false
	}
	for _, d := range policy.DeniedDomains {
		if d.MatchesHost(host) {
			return false
		}
	}
	for _, d := range policy.AllowedDomains {
		if d.MatchesHost(host) {
			return true
		}
	}
	if ask != nil {
		allowed, err := ask(host, port)
		if err != nil {
			return false
		}
		return allowed
	}
	return false
}
