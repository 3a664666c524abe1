package nsbox

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/AgentShepherd/vsbx/internal/policyconfig"
)

// mandatoryDenyNames are credential-bearing file and directory names under
// cwd that are masked inside the sandbox when a filesystem block is present
// and the match lies within an allow_write path (spec.md §4.3). This is a
// different list from internal/seatbelt's write-rule mandatory set.
var mandatoryDenyNames = []string{
	".env", ".aws", ".gcloud", ".azure", ".ssh", "id_rsa", "id_ed25519",
	"id_ecdsa", ".gnupg", ".netrc", ".npmrc", ".pypirc", ".docker",
}

const (
	scanTimeout      = 10 * time.Second
	scanOutputCapMiB = 20
)

// scanMandatoryDeny enumerates dangerous files under cwd up to the given
// depth using a fast recursive search tool (ripgrep by default, or the
// user's override). A scan failure for any reason degrades to the
// caller's literal-only fallback (spec.md §5, §7 AncillaryScanFailure).
func scanMandatoryDeny(cwd string, depth int, rg *policyconfig.RipgrepConfig) ([]string, error) {
	cmdName := "rg"
	baseArgs := []string{"--files", "--hidden", "--no-ignore-vcs", "--max-depth", strconv.Itoa(depth)}
	if rg != nil && rg.Command != "" {
		cmdName = rg.Command
		baseArgs = rg.Args
	}

	ctx, cancel := context.WithTimeout(context.Background(), scanTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, cmdName, baseArgs...)
	cmd.Dir = cwd

	var out bytes.Buffer
	cmd.Stdout = &limitedWriter{w: &out, max: scanOutputCapMiB << 20}
	if err := cmd.Run(); err != nil {
		return nil, err
	}

	var matches []string
	for _, line := range strings.Split(out.String(), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		base := filepath.Base(line)
		for _, name := range mandatoryDenyNames {
			if base == name {
				matches = append(matches, filepath.Join(cwd, line))
				break
			}
		}
	}
	return append(matches, literalMandatoryDenyPaths(cwd)...), nil
}

// literalMandatoryDenyPaths is the scan-independent fallback: the
// mandatory-deny names checked directly under cwd without recursion.
func literalMandatoryDenyPaths(cwd string) []string {
	var paths []string
	for _, name := range mandatoryDenyNames {
		p := filepath.Join(cwd, name)
		if _, err := os.Lstat(p); err == nil {
			paths = append(paths, p)
		}
	}
	return paths
}

// limitedWriter caps the bytes written before returning an error, bounding
// subprocess output the way spec.md §5 requires ("20 MB output cap").
type limitedWriter struct {
	w     *bytes.Buffer
	max   int
	total int
}

func (l *limitedWriter) Write(p []byte) (int, error) {
	if l.total+len(p) > l.max {
		return 0, errOutputCapExceeded
	}
	l.total += len(p)
	return l.w.Write(p)
}

type scanError string

func (e scanError) Error() string { return string(e) }

const errOutputCapExceeded = scanError("mandatory-deny scan output exceeded cap")
