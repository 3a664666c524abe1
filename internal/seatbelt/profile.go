// Package seatbelt compiles a PolicyConfig into a macOS seatbelt
// S-expression profile consumable by sandbox-exec (spec.md §4.2).
package seatbelt

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/AgentShepherd/vsbx/internal/pathnorm"
	"github.com/AgentShepherd/vsbx/internal/policyconfig"
)

const preamble = `(version 1)
(allow process-fork)
(allow process-exec)
(allow signal (target self))
(allow sysctl-read)
(allow mach-lookup)
(allow file-read-metadata)
(allow file-read* (subpath "/dev/null"))
(allow file-read* (subpath "/dev/urandom"))
(allow file-read* (subpath "/dev/random"))
`

// mandatoryDenyFiles are dangerous dotfiles denied for writing under cwd
// whenever a filesystem block is present, whatever allow_write says; only
// .git/config (added separately) can be released, via allow_git_config
// (spec.md §4.2 write rules).
var mandatoryDenyFiles = []string{
	".gitconfig", ".bashrc", ".zshrc", ".ripgreprc", ".mcp.json",
}

var mandatoryDenyDirs = []string{
	".vscode", ".idea", ".vsbx/commands", ".vsbx/agents", ".git/hooks",
}

// Compile produces the full seatbelt profile text for one wrapped command.
func Compile(policy *policyconfig.PolicyConfig, cwd, command string) string {
	logTag := NewLogTag(command)

	var b strings.Builder
	b.WriteString(preamble)
	b.WriteByte('\n')

	writeNetworkRules(&b, policy.Network)
	b.WriteByte('\n')
	writeReadRules(&b, policy.Filesystem, cwd, logTag)
	b.WriteByte('\n')
	writeWriteRules(&b, policy.Filesystem, cwd, logTag)

	if policy.AllowPty {
		b.WriteString("\n(allow file-read* file-write* (subpath \"/dev\"))\n")
		b.WriteString("(allow file-ioctl (subpath \"/dev\"))\n")
	}

	return b.String()
}

func writeNetworkRules(b *strings.Builder, net *policyconfig.NetworkConfig) {
	if !net.Restricted() {
		b.WriteString("(allow network*)\n")
		return
	}

	if net.AllowLocalBinding {
		b.WriteString("(allow network-bind (local ip \"localhost:*\"))\n")
		b.WriteString("(allow network-inbound (local ip \"localhost:*\"))\n")
		b.WriteString("(allow network-outbound (remote ip \"localhost:*\"))\n")
	}

	if net.AllowAllUnixSockets {
		b.WriteString(subpathAllow("network*", "/").String())
		b.WriteString(" ; unix sockets under /\n")
	} else {
		for _, sock := range net.AllowUnixSockets {
			b.WriteString(subpathAllow("network*", sock).String())
			b.WriteByte('\n')
		}
	}

	for _, port := range []uint16{net.HTTPProxyPort, net.SOCKSProxyPort} {
		if port == 0 {
			continue
		}
		local := "localhost:" + strconv.Itoa(int(port))
		fmt.Fprintf(b, "(allow network-outbound (remote ip \"%s\"))\n", local)
		fmt.Fprintf(b, "(allow network-inbound (local ip \"%s\"))\n", local)
		fmt.Fprintf(b, "(allow network-bind (local ip \"%s\"))\n", local)
	}
}

func writeReadRules(b *strings.Builder, fs *policyconfig.FilesystemConfig, cwd, logTag string) {
	b.WriteString("(allow file-read*)\n")
	if fs == nil {
		return
	}
	for _, pattern := range fs.DenyRead {
		resolved := pathnorm.Normalize(pattern, cwd)
		if pattern.ContainsGlob() {
			regex := globToRegex(resolved)
			b.WriteString(regexDeny("file-read*", regex, logTag).String())
			b.WriteByte('\n')
		} else {
			b.WriteString(subpathDeny("file-read*", resolved, logTag).String())
			b.WriteByte('\n')
		}
		writeAncestorUnlinkTower(b, resolved, logTag)
	}
}

func writeWriteRules(b *strings.Builder, fs *policyconfig.FilesystemConfig, cwd, logTag string) {
	if fs == nil {
		b.WriteString("(allow file-write*)\n")
		return
	}

	// A present filesystem block denies writes by default: only the
	// hardwired default-writable paths (§6) and allow_write patterns are
	// writable (spec.md §3 "Empty allow_write... means nothing is
	// writable besides the hardwired safe-write paths").
	writeHardwiredWritablePaths(b)

	// Always-writable tmpdir rules, both macOS forms.
	b.WriteString(subpathAllow("file-write*", "/var/folders").String())
	b.WriteByte('\n')
	b.WriteString(subpathAllow("file-write*", "/private/var/folders").String())
	b.WriteByte('\n')

	for _, pattern := range fs.AllowWrite {
		resolved := pathnorm.Normalize(pattern, cwd)
		if pattern.ContainsGlob() {
			d := directive{action: "allow", operation: "file-write*", matcher: "regex", value: globToRegex(resolved)}
			b.WriteString(d.String())
		} else {
			b.WriteString(subpathAllow("file-write*", resolved).String())
		}
		b.WriteByte('\n')
	}

	denySet := append([]policyconfig.PathPattern{}, fs.DenyWrite...)
	for _, name := range mandatoryDenyFiles {
		denySet = append(denySet, policyconfig.PathPattern(filepath.Join(cwd, name)))
	}
	for _, name := range mandatoryDenyDirs {
		denySet = append(denySet, policyconfig.PathPattern(filepath.Join(cwd, name)))
	}
	if !fs.AllowGitConfig {
		denySet = append(denySet, policyconfig.PathPattern(filepath.Join(cwd, ".git/config")))
	}

	for _, pattern := range denySet {
		resolved := pathnorm.Normalize(pattern, cwd)
		if pattern.ContainsGlob() {
			b.WriteString(regexDeny("file-write*", globToRegex(resolved), logTag).String())
		} else {
			b.WriteString(subpathDeny("file-write*", resolved, logTag).String())
		}
		b.WriteByte('\n')
		writeAncestorUnlinkTower(b, resolved, logTag)
	}
}

// writeHardwiredWritablePaths emits allow rules for the paths spec.md §6
// says are always writable, independent of any allow_write configuration.
func writeHardwiredWritablePaths(b *strings.Builder) {
	for _, p := range policyconfig.HardwiredWritablePaths {
		b.WriteString(subpathAllow("file-write*", p).String())
		b.WriteByte('\n')
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return
	}
	for _, suffix := range policyconfig.HardwiredWritableHomeSuffixes {
		b.WriteString(subpathAllow("file-write*", filepath.Join(home, suffix)).String())
		b.WriteByte('\n')
	}
}

// writeAncestorUnlinkTower denies file-write-unlink on the literal path and
// every ancestor directory up to root, defeating `mv ancestor elsewhere`
// bypasses of a read or write denial (spec.md §3, §4.2).
func writeAncestorUnlinkTower(b *strings.Builder, resolved, logTag string) {
	b.WriteString(subpathDeny("file-write-unlink", resolved, logTag).String())
	b.WriteByte('\n')
	for dir := filepath.Dir(resolved); dir != "/" && dir != "."; dir = filepath.Dir(dir) {
		b.WriteString(subpathDeny("file-write-unlink", dir, logTag).String())
		b.WriteByte('\n')
		if filepath.Dir(dir) == dir {
			break
		}
	}
}
