// Package platform identifies which sandboxing backend fence runs on.
package platform

import "runtime"

// Platform identifies a supported sandboxing backend.
type Platform int

const (
	// Unsupported marks an OS fence has no sandbox compiler for.
	Unsupported Platform = iota
	// MacOS is the sandbox-exec kernel profile backend (darwin).
	MacOS
	// Linux is the bubblewrap + seccomp/Landlock backend.
	Linux
)

// String returns a human-readable platform name.
func (p Platform) String() string {
	switch p {
	case MacOS:
		return "macOS"
	case Linux:
		return "Linux"
	default:
		return "unsupported"
	}
}

// Detect returns the Platform for the current GOOS.
func Detect() Platform {
	switch runtime.GOOS {
	case "darwin":
		return MacOS
	case "linux":
		return Linux
	default:
		return Unsupported
	}
}

// IsSupported reports whether the current platform has a sandbox compiler.
func IsSupported() bool {
	return Detect() != Unsupported
}
