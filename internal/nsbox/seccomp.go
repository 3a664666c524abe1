package nsbox

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/AgentShepherd/vsbx/internal/types"
)

// SeccompArtifacts is the pair of precompiled, architecture-keyed files
// this module locates but never builds (spec.md §1 non-goal,
// §4.3, §6): the BPF filter blob that denies AF_UNIX sockets, and the
// applier binary that installs it via PR_SET_NO_NEW_PRIVS +
// PR_SET_SECCOMP before execvp'ing the user shell.
type SeccompArtifacts struct {
	FilterPath  string
	ApplierPath string
}

// LocateSeccompArtifacts finds the artifacts for arch under vendorDir
// (…/vendor/seccomp/<arch>/unix-block.bpf, …/apply-seccomp) and validates
// the filter blob's length invariant. A missing file or an invalid blob
// length is reported, not fatal — callers degrade to running without
// seccomp and log a warning (spec.md §4.3).
func LocateSeccompArtifacts(vendorDir string, arch types.Arch) (*SeccompArtifacts, error) {
	if !arch.Valid() {
		return nil, fmt.Errorf("nsbox: unsupported architecture %q for seccomp artifacts", arch)
	}

	dir := filepath.Join(vendorDir, "seccomp", string(arch))
	filter := filepath.Join(dir, "unix-block.bpf")
	applier := filepath.Join(dir, "apply-seccomp")

	info, err := os.Stat(filter)
	if err != nil {
		return nil, fmt.Errorf("nsbox: seccomp filter not found: %w", err)
	}
	if info.Size()%8 != 0 {
		return nil, fmt.Errorf("nsbox: seccomp filter %s has invalid length %d (must be a multiple of 8)", filter, info.Size())
	}
	if _, err := os.Stat(applier); err != nil {
		return nil, fmt.Errorf("nsbox: seccomp applier not found: %w", err)
	}

	return &SeccompArtifacts{FilterPath: filter, ApplierPath: applier}, nil
}
