package manager

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/AgentShepherd/vsbx/internal/nsbox"
	"github.com/AgentShepherd/vsbx/internal/policyconfig"
	"github.com/AgentShepherd/vsbx/internal/seatbelt"
	"github.com/AgentShepherd/vsbx/internal/shellquote"
	"github.com/AgentShepherd/vsbx/internal/types"
	"github.com/AgentShepherd/vsbx/internal/vsbxerr"
)

const vendorSeccompDir = "/usr/local/share/vsbx"

// Wrap transforms command into a shell string that runs it inside the
// sandbox with the manager's current policy (spec.md §4.8 wrap()). shell
// is the interpreter used for the user command (e.g. "/bin/sh");
// customConfig, if non-nil, is merged on top of the manager's policy for
// this call only and does not mutate manager state (spec.md §4.8 step 1).
func (m *Manager) Wrap(command, shell string, customConfig *policyconfig.PolicyConfig) (string, error) {
	if m.State() == types.StateInitializing {
		return "", fmt.Errorf("manager: wrap called while initialization is in flight")
	}

	effective := policyconfig.Merge(m.currentPolicy(), customConfig).WithDefaults()
	if err := effective.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", vsbxerr.ErrInvalidConfig, err)
	}

	// No restrictions apply: network unrestricted and no filesystem
	// config at all. wrap(cmd) == cmd (spec.md §8 invariant, Testable
	// Scenario 3 "Linux unrestricted fast-path").
	if !effective.Network.Restricted() && effective.Filesystem == nil {
		return command, nil
	}

	switch runtime.GOOS {
	case "darwin":
		return m.wrapDarwin(&effective, command, shell)
	case "linux":
		return m.wrapLinux(&effective, command, shell)
	default:
		return "", fmt.Errorf("manager: unsupported platform %q", runtime.GOOS)
	}
}

func (m *Manager) currentPolicy() *policyconfig.PolicyConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.policy
}

func (m *Manager) wrapDarwin(policy *policyconfig.PolicyConfig, command, shell string) (string, error) {
	profile := seatbelt.Compile(policy, m.cwd, command)

	profilePath, err := writeTempProfile(profile)
	if err != nil {
		return "", fmt.Errorf("manager: writing seatbelt profile: %w", err)
	}

	return fmt.Sprintf("sandbox-exec -f %s %s -c %s",
		shellquote.QuoteLiteral(profilePath), shellquote.QuoteLiteral(shell), shellquote.QuoteLiteral(command)), nil
}

func writeTempProfile(profile string) (string, error) {
	f, err := os.CreateTemp("", "vsbx-*.sb")
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := f.WriteString(profile); err != nil {
		return "", err
	}
	return f.Name(), nil
}

// wrapLinux composes the two-stage bubblewrap launch: relays start first
// (spec.md §4.3 "network mediation is ready before the user command
// runs"), then the seccomp-applier wraps the shell-exec, applied after
// the relays have started because they still need AF_UNIX themselves.
func (m *Manager) wrapLinux(policy *policyconfig.PolicyConfig, command, shell string) (string, error) {
	var endpoints *nsbox.BridgeEndpoints
	if m.bridge != nil {
		endpoints = &nsbox.BridgeEndpoints{
			HTTPSocketPath:  m.bridge.http.SocketPath,
			SOCKSSocketPath: m.bridge.socks.SocketPath,
		}
	}

	arch := detectArch()
	args, env, err := nsbox.Build(policy, endpoints, m.cwd, arch)
	if err != nil {
		return "", fmt.Errorf("manager: building bwrap args: %w", err)
	}

	innerCmd := shellquote.QuoteLiteral(shell) + " -c " + shellquote.QuoteLiteral(command)

	allowAllUnixSockets := policy.Network != nil && policy.Network.AllowAllUnixSockets

	var artifacts *seccompLookup
	if !allowAllUnixSockets {
		a, lookupErr := nsbox.LocateSeccompArtifacts(vendorSeccompDir, arch)
		if lookupErr != nil {
			log.Warn("manager: seccomp artifacts unavailable, proceeding without seccomp: %v", lookupErr)
		} else {
			artifacts = &seccompLookup{filter: a.FilterPath, applier: a.ApplierPath}
		}
	}

	inner := innerCmd
	if artifacts != nil {
		inner = shellquote.QuoteLiteral(artifacts.applier) + " " + shellquote.QuoteLiteral(artifacts.filter) + " " + inner
	}

	if endpoints != nil {
		inner = relayScript(endpoints, socksFixedPort, httpFixedPort) + " && " + inner
	}

	bwrapLine := "bwrap " + strings.Join(quoteAll(args), " ") + " " + shellquote.QuoteLiteral(shell) + " -c " + shellquote.QuoteLiteral(inner)

	envPrefix := ""
	for _, e := range env {
		envPrefix += shellquote.QuoteLiteral(e) + " "
	}

	return envPrefix + bwrapLine, nil
}

type seccompLookup struct {
	filter  string
	applier string
}

func quoteAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = shellquote.QuoteLiteral(s)
	}
	return out
}

// relayScript builds the inner shell preamble that spawns the two
// TCP-to-UNIX relays and installs an EXIT trap to kill them, per
// spec.md §4.3's launch-composition description.
func relayScript(endpoints *nsbox.BridgeEndpoints, socksPort, httpPort int) string {
	return fmt.Sprintf(
		"socat TCP-LISTEN:%d,fork UNIX-CONNECT:%s & H=$!; "+
			"socat TCP-LISTEN:%d,fork UNIX-CONNECT:%s & S=$!; "+
			"trap 'kill $H $S 2>/dev/null' EXIT",
		httpPort, shellquote.QuoteLiteral(endpoints.HTTPSocketPath),
		socksPort, shellquote.QuoteLiteral(endpoints.SOCKSSocketPath),
	)
}

func detectArch() types.Arch {
	switch runtime.GOARCH {
	case "amd64":
		return types.ArchX64
	case "arm64":
		return types.ArchArm64
	default:
		return types.ArchOther
	}
}
