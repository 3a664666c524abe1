// Package types defines common type-safe enums shared across the sandbox packages.
package types

// Platform identifies a supported host OS.
type Platform string

const (
	PlatformDarwin  Platform = "darwin"
	PlatformLinux   Platform = "linux"
	PlatformUnknown Platform = ""
)

// Supported returns true if the platform has a sandbox backend.
func (p Platform) Supported() bool {
	return p == PlatformDarwin || p == PlatformLinux
}

// ManagerState is the lifecycle state of the manager's state machine (§4.8).
type ManagerState string

const (
	StateIdle         ManagerState = "idle"
	StateInitializing ManagerState = "initializing"
	StateReady        ManagerState = "ready"
	StateResetting    ManagerState = "resetting"
)

// Arch identifies a CPU architecture for locating precompiled seccomp artifacts (§6).
type Arch string

const (
	ArchX64   Arch = "x64"
	ArchArm64 Arch = "arm64"
	ArchOther Arch = ""
)

// Valid reports whether the architecture has precompiled seccomp artifacts available.
func (a Arch) Valid() bool {
	return a == ArchX64 || a == ArchArm64
}
