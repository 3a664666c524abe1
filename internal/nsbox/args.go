// Package nsbox builds the bubblewrap argument vector for Linux namespace
// sandboxing, including the mandatory-deny filesystem scan and the
// precompiled seccomp artifact lookup (spec.md §4.3).
package nsbox

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/AgentShepherd/vsbx/internal/pathnorm"
	"github.com/AgentShepherd/vsbx/internal/policyconfig"
	"github.com/AgentShepherd/vsbx/internal/types"
)

// noProxyHosts is the standard RFC1918 + loopback exclusion list spliced
// into NO_PROXY/no_proxy (spec.md §4.3).
const noProxyHosts = "localhost,127.0.0.1,::1,10.0.0.0/8,172.16.0.0/12,192.168.0.0/16"

// BridgeEndpoints describes the host-side Unix sockets a Linux bridge has
// bound for the two proxies, to be bind-mounted into the namespace.
type BridgeEndpoints struct {
	HTTPSocketPath  string
	SOCKSSocketPath string
}

// Build assembles the full bwrap argument vector for one wrapped command.
func Build(policy *policyconfig.PolicyConfig, bridge *BridgeEndpoints, cwd string, arch types.Arch) ([]string, []string, error) {
	args := []string{"--new-session", "--die-with-parent"}

	env := buildNetworkArgs(&args, policy.Network, bridge)

	if err := buildFilesystemArgs(&args, policy, cwd); err != nil {
		return nil, nil, err
	}

	args = append(args, "--dev", "/dev", "--unshare-pid")
	if !policy.EnableWeakerNestedSandbox {
		args = append(args, "--proc", "/proc")
	}

	return args, env, nil
}

func buildNetworkArgs(args *[]string, net *policyconfig.NetworkConfig, bridge *BridgeEndpoints) []string {
	if !net.Restricted() {
		return nil
	}
	*args = append(*args, "--unshare-net")

	if bridge == nil {
		return nil
	}
	*args = append(*args, "--bind", bridge.HTTPSocketPath, bridge.HTTPSocketPath)
	*args = append(*args, "--bind", bridge.SOCKSSocketPath, bridge.SOCKSSocketPath)

	env := []string{
		"HTTP_PROXY=http://localhost:3128",
		"HTTPS_PROXY=http://localhost:3128",
		"http_proxy=http://localhost:3128",
		"https_proxy=http://localhost:3128",
		"NO_PROXY=" + noProxyHosts,
		"no_proxy=" + noProxyHosts,
		"ALL_PROXY=socks5h://localhost:1080",
		"all_proxy=socks5h://localhost:1080",
		"FTP_PROXY=http://localhost:3128",
		"RSYNC_PROXY=localhost:3128",
		"GRPC_PROXY=http://localhost:3128",
		"DOCKER_HTTP_PROXY=http://localhost:3128",
		"DOCKER_HTTPS_PROXY=http://localhost:3128",
	}
	return env
}

func buildFilesystemArgs(args *[]string, policy *policyconfig.PolicyConfig, cwd string) error {
	fs := policy.Filesystem
	if fs == nil {
		*args = append(*args, "--bind", "/", "/")
		return nil
	}

	*args = append(*args, "--ro-bind", "/", "/")
	bindHardwiredWritablePaths(args)
	for _, pattern := range fs.AllowWrite {
		resolved := pathnorm.Normalize(pattern, cwd)
		if pattern.ContainsGlob() {
			// Linux enforces via binds, not matchers; glob patterns are
			// filtered out at this layer (spec.md §3).
			continue
		}
		if _, err := os.Stat(resolved); err == nil {
			*args = append(*args, "--bind", resolved, resolved)
		}
	}

	depth := policy.MandatoryDenySearchDepth
	if depth == 0 {
		depth = 3
	}
	dangerous, err := scanMandatoryDeny(cwd, int(depth), policy.Ripgrep)
	if err != nil {
		dangerous = literalMandatoryDenyPaths(cwd)
	}

	for _, path := range dangerous {
		if !pathIsWritable(path, fs.AllowWrite, cwd) {
			continue
		}
		if info, statErr := os.Lstat(path); statErr == nil {
			if info.IsDir() {
				*args = append(*args, "--tmpfs", path)
			} else {
				*args = append(*args, "--ro-bind", path, path)
			}
		}
	}

	for _, pattern := range fs.DenyRead {
		if pattern.ContainsGlob() {
			continue
		}
		resolved := pathnorm.Normalize(pattern, cwd)
		if isUnderDev(resolved) {
			continue
		}
		info, statErr := os.Lstat(resolved)
		if statErr != nil {
			continue
		}
		if info.IsDir() {
			*args = append(*args, "--tmpfs", resolved)
		} else {
			*args = append(*args, "--ro-bind", "/dev/null", resolved)
		}
	}

	if sshConfigDir := "/etc/ssh/ssh_config.d"; dirExists(sshConfigDir) {
		*args = append(*args, "--tmpfs", sshConfigDir)
	}

	return nil
}

// bindHardwiredWritablePaths bind-mounts the paths spec.md §6 says are
// always writable, independent of allow_write. Device nodes are bound
// only if present on this host (macOS-only ones like /dev/dtracehelper
// don't exist on Linux); the directory paths are created if missing,
// since the sandbox owns them.
func bindHardwiredWritablePaths(args *[]string) {
	for _, p := range policyconfig.HardwiredWritablePaths {
		if strings.HasPrefix(p, "/dev/") {
			if _, err := os.Lstat(p); err != nil {
				continue
			}
			*args = append(*args, "--bind", p, p)
			continue
		}
		if err := os.MkdirAll(p, 0o700); err != nil {
			continue
		}
		*args = append(*args, "--bind", p, p)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return
	}
	for _, suffix := range policyconfig.HardwiredWritableHomeSuffixes {
		p := filepath.Join(home, suffix)
		if mkErr := os.MkdirAll(p, 0o700); mkErr != nil {
			continue
		}
		*args = append(*args, "--bind", p, p)
	}
}

func pathIsWritable(path string, allowWrite []policyconfig.PathPattern, cwd string) bool {
	for _, pattern := range allowWrite {
		resolved := pathnorm.Normalize(pattern, cwd)
		if resolved == path || isWithinDir(path, resolved) {
			return true
		}
	}
	return false
}

func isWithinDir(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func isUnderDev(path string) bool {
	return path == "/dev" || strings.HasPrefix(path, "/dev/")
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
