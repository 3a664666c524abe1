// Package vsbxerr defines sentinel errors so callers can use
// errors.Is/errors.As instead of matching error strings. Packages that
// return one wrap it with fmt.Errorf("...: %w", ...) at the point of
// failure; ErrDeniedByPolicy is not returned anywhere, since the proxies
// answer denials on the wire.
package vsbxerr

import "errors"

var (
	// ErrUnsupportedPlatform means runtime.GOOS has no sandbox backend.
	ErrUnsupportedPlatform = errors.New("unsupported platform")

	// ErrMissingDependency means a required external tool (ripgrep,
	// sandbox-exec, bwrap, socat) was not found on PATH, or the host
	// architecture has no seccomp artifacts and allow_all_unix_sockets
	// was not set to waive the requirement.
	ErrMissingDependency = errors.New("missing required dependency")

	// ErrInvalidConfig means a PolicyConfig failed struct or grammar
	// validation.
	ErrInvalidConfig = errors.New("invalid policy configuration")

	// ErrBridgeStartup means the Linux bridge's relay processes failed
	// to start or never became ready.
	ErrBridgeStartup = errors.New("bridge startup failed")

	// ErrDeniedByPolicy means a proxy connection was refused by the
	// network filter.
	ErrDeniedByPolicy = errors.New("denied by network policy")
)
