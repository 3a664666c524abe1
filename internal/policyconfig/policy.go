// Package policyconfig holds the declarative policy that drives every other
// sandbox package: which hosts may be contacted, which paths may be read or
// written, and the auxiliary toggles described in spec.md §3.
package policyconfig

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// NetworkConfig is the network-policy block. A nil *NetworkConfig on
// PolicyConfig means the field is absent: the previous manager-state network
// policy applies. A non-nil NetworkConfig whose allowed_domains key was
// never set (AllowedDomainsSet false, no domains listed) does not restrict
// the network; an explicitly set allowed_domains key, even an empty one,
// is the "restrict everything not allowed" signal from spec.md §3.
type NetworkConfig struct {
	AllowedDomains      []DomainPattern `json:"allowed_domains"`
	AllowedDomainsSet   bool            `json:"-"`
	DeniedDomains       []DomainPattern `json:"denied_domains,omitempty"`
	AllowUnixSockets    []string        `json:"allow_unix_sockets,omitempty"`
	AllowAllUnixSockets bool            `json:"allow_all_unix_sockets,omitempty"`
	AllowLocalBinding   bool            `json:"allow_local_binding,omitempty"`
	HTTPProxyPort       uint16          `json:"http_proxy_port,omitempty"`
	SOCKSProxyPort      uint16          `json:"socks_proxy_port,omitempty"`
}

// UnmarshalJSON records whether "allowed_domains" was present in the source
// document, distinguishing an explicit empty list from a wholly absent key.
func (n *NetworkConfig) UnmarshalJSON(data []byte) error {
	type plain NetworkConfig
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*n = NetworkConfig(p)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	_, n.AllowedDomainsSet = raw["allowed_domains"]
	return nil
}

// Restricted reports whether this block, taken alone, restricts network
// access (an explicit allowed_domains key, even an empty one, was set, or
// at least one allowed domain is listed).
func (n *NetworkConfig) Restricted() bool {
	return n != nil && (n.AllowedDomainsSet || len(n.AllowedDomains) > 0)
}

// FilesystemConfig is the filesystem-policy block. A nil *FilesystemConfig
// on PolicyConfig means unrestricted reads and writes (spec.md §4.2/§4.3
// "default allow file-read*/file-write*"). A non-nil FilesystemConfig with
// AllowWrite == nil means nothing is writable besides the hardwired safe
// paths in spec.md §6.
type FilesystemConfig struct {
	DenyRead        []PathPattern `json:"deny_read,omitempty"`
	AllowWrite      []PathPattern `json:"allow_write"`
	DenyWrite       []PathPattern `json:"deny_write,omitempty"`
	AllowGitConfig  bool          `json:"allow_git_config,omitempty"`
}

// HardwiredWritablePaths are always writable regardless of any filesystem
// policy, including an explicit empty allow_write (spec.md §6 "Default
// writable paths always include..."). Consumed by both internal/seatbelt
// and internal/nsbox so the two backends agree on the baseline.
var HardwiredWritablePaths = []string{
	"/dev/stdout", "/dev/stderr", "/dev/null", "/dev/tty",
	"/dev/dtracehelper", "/dev/autofs_nowait",
	"/tmp/vsbx", "/private/tmp/vsbx",
}

// HardwiredWritableHomeSuffixes are default-writable paths joined against
// $HOME at use time (spec.md §6).
var HardwiredWritableHomeSuffixes = []string{
	".npm/_logs", ".vsbx/debug",
}

// RipgrepConfig overrides the fast recursive-search tool used by the
// mandatory-deny scan (§4.3, §6).
type RipgrepConfig struct {
	Command string   `json:"command" validate:"required"`
	Args    []string `json:"args,omitempty"`
}

// PolicyConfig is the authoritative, immutable-per-snapshot input described
// in spec.md §3.
type PolicyConfig struct {
	Network    *NetworkConfig    `json:"network,omitempty"`
	Filesystem *FilesystemConfig `json:"filesystem,omitempty"`

	IgnoreViolations map[string][]string `json:"ignore_violations,omitempty"`

	EnableWeakerNestedSandbox bool           `json:"enable_weaker_nested_sandbox,omitempty"`
	MandatoryDenySearchDepth  uint8          `json:"mandatory_deny_search_depth" validate:"omitempty,min=1,max=10"`
	AllowPty                  bool           `json:"allow_pty,omitempty"`
	Ripgrep                   *RipgrepConfig `json:"ripgrep,omitempty"`
}

const defaultMandatoryDenySearchDepth = 3

// WithDefaults returns a copy of p with zero-value optionals replaced by
// their documented defaults (§3: mandatory_deny_search_depth default 3).
func (p PolicyConfig) WithDefaults() PolicyConfig {
	if p.MandatoryDenySearchDepth == 0 {
		p.MandatoryDenySearchDepth = defaultMandatoryDenySearchDepth
	}
	return p
}

// Validate runs struct-tag validation plus the hand-written grammar checks
// that validator tags cannot express (DomainPattern, PathPattern).
func (p *PolicyConfig) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("invalid policy config: %w", err)
	}
	if p.Network != nil {
		for _, d := range p.Network.AllowedDomains {
			if err := d.Validate(); err != nil {
				return fmt.Errorf("invalid policy config: allowed_domains: %w", err)
			}
		}
		for _, d := range p.Network.DeniedDomains {
			if err := d.Validate(); err != nil {
				return fmt.Errorf("invalid policy config: denied_domains: %w", err)
			}
		}
	}
	if p.Filesystem != nil {
		for _, group := range [][]PathPattern{p.Filesystem.DenyRead, p.Filesystem.AllowWrite, p.Filesystem.DenyWrite} {
			for _, pp := range group {
				if err := pp.Validate(); err != nil {
					return fmt.Errorf("invalid policy config: %w", err)
				}
			}
		}
	}
	if p.Ripgrep != nil {
		if err := validate.Struct(p.Ripgrep); err != nil {
			return fmt.Errorf("invalid policy config: ripgrep: %w", err)
		}
	}
	return nil
}

// Merge applies override on top of base using the per-subkey precedence
// rule in spec.md §3: Network and Filesystem are whole-block fields — an
// override that sets the block (even to an explicitly-empty one) replaces
// the base block outright; an absent override block inherits the base
// block unchanged. Scalar/auxiliary fields follow normal override-wins
// semantics, falling back to base when the override leaves them at the
// zero value.
func Merge(base, override *PolicyConfig) *PolicyConfig {
	if base == nil {
		base = &PolicyConfig{}
	}
	if override == nil {
		copy := *base
		return &copy
	}

	merged := *base

	if override.Network != nil {
		merged.Network = override.Network
	}
	if override.Filesystem != nil {
		merged.Filesystem = override.Filesystem
	}
	if override.IgnoreViolations != nil {
		merged.IgnoreViolations = override.IgnoreViolations
	}
	if override.MandatoryDenySearchDepth != 0 {
		merged.MandatoryDenySearchDepth = override.MandatoryDenySearchDepth
	}
	if override.Ripgrep != nil {
		merged.Ripgrep = override.Ripgrep
	}
	// Booleans are OR-ed: an override can switch one on but never off, since
	// PolicyConfig does not track per-scalar presence beyond the
	// network/filesystem blocks; callers that need to clear a boolean
	// should patch the returned PolicyConfig's field directly.
	merged.EnableWeakerNestedSandbox = override.EnableWeakerNestedSandbox || base.EnableWeakerNestedSandbox
	merged.AllowPty = override.AllowPty || base.AllowPty

	return &merged
}
