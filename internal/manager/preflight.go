package manager

import (
	"fmt"
	"os/exec"
	"runtime"

	"github.com/AgentShepherd/vsbx/internal/policyconfig"
	"github.com/AgentShepherd/vsbx/internal/vsbxerr"
)

// checkDependencies verifies the external binaries initialize() needs are
// on PATH before any proxy or bridge is started, so a missing dependency
// fails fast with a classifiable error instead of a confusing downstream
// exec failure (spec.md §4.8 "dependency preflight").
func checkDependencies(policy *policyconfig.PolicyConfig) error {
	grep := "rg"
	if policy.Ripgrep != nil && policy.Ripgrep.Command != "" {
		grep = policy.Ripgrep.Command
	}
	if _, err := exec.LookPath(grep); err != nil {
		return fmt.Errorf("%w: %s not found on PATH", vsbxerr.ErrMissingDependency, grep)
	}

	switch runtime.GOOS {
	case "darwin":
		if _, err := exec.LookPath("sandbox-exec"); err != nil {
			return fmt.Errorf("%w: sandbox-exec not found on PATH", vsbxerr.ErrMissingDependency)
		}
	case "linux":
		if _, err := exec.LookPath("bwrap"); err != nil {
			return fmt.Errorf("%w: bwrap not found on PATH", vsbxerr.ErrMissingDependency)
		}
		if policy.Network.Restricted() {
			if _, err := exec.LookPath("socat"); err != nil {
				return fmt.Errorf("%w: socat not found on PATH", vsbxerr.ErrMissingDependency)
			}
		}
	default:
		return fmt.Errorf("%w: %q", vsbxerr.ErrUnsupportedPlatform, runtime.GOOS)
	}

	allowAllUnixSockets := policy.Network != nil && policy.Network.AllowAllUnixSockets
	if !allowAllUnixSockets {
		switch runtime.GOARCH {
		case "amd64", "arm64":
		default:
			return fmt.Errorf("%w: architecture %q requires allow_all_unix_sockets", vsbxerr.ErrMissingDependency, runtime.GOARCH)
		}
	}

	return nil
}
