package netfilter

import (
	"errors"
	"testing"

	"github.com/AgentShepherd/vsbx/internal/policyconfig"
)

func policy(allowed, denied []string) *policyconfig.NetworkConfig {
	toPatterns := func(ss []string) []policyconfig.DomainPattern {
		var out []policyconfig.DomainPattern
		for _, s := range ss {
			out = append(out, policyconfig.DomainPattern(s))
		}
		return out
	}
	return &policyconfig.NetworkConfig{
		AllowedDomains: toPatterns(allowed),
		DeniedDomains:  toPatterns(denied),
	}
}

func TestAllowNoPolicyDenies(t *testing.T) {
	if Allow("x.com", 443, nil, nil) {
		t.Error("nil policy should deny")
	}
}

func TestAllowDeniedWinsOverAllowed(t *testing.T) {
	p := policy([]string{"*.x.com"}, []string{"evil.x.com"})
	if Allow("evil.x.com", 443, p, nil) {
		t.Error("denied_domains match should deny even if allowed_domains also matches")
	}
	if !Allow("ok.x.com", 443, p, nil) {
		t.Error("non-denied subdomain should be allowed")
	}
}

func TestAllowFallsThroughToAsk(t *testing.T) {
	p := policy(nil, nil)
	called := false
	ask := func(host string, port int) (bool, error) {
		called = true
		return true, nil
	}
	if !Allow("unlisted.com", 80, p, ask) {
		t.Error("expected ask callback's true answer to allow")
	}
	if !called {
		t.Error("expected ask callback to be invoked when no rule matches")
	}
}

func TestAllowAskErrorDenies(t *testing.T) {
	p := policy(nil, nil)
	ask := func(host string, port int) (bool, error) { return true, errors.New("boom") }
	if Allow("unlisted.com", 80, p, ask) {
		t.Error("ask callback error should deny")
	}
}

func TestAllowNoMatchNoAskDenies(t *testing.T) {
	p := policy(nil, nil)
	if Allow("unlisted.com", 80, p, nil) {
		t.Error("no matching rule and no ask callback should deny")
	}
}
