//go:build !linux

package sandbox

import "github.com/Use-Tusk/fence/internal/config"

// SeccompFilter is a stub for non-Linux platforms.
type SeccompFilter struct {
	debug bool
}

// NewSeccompFilter creates a stub seccomp filter. cfg is accepted for
// signature parity with the Linux implementation but unused here.
func NewSeccompFilter(debug bool, cfg *config.SeccompConfig) *SeccompFilter {
	return &SeccompFilter{debug: debug}
}

// GenerateBPFFilter returns an empty path and no error on non-Linux platforms.
func (s *SeccompFilter) GenerateBPFFilter() (string, error) {
	return "", nil
}

// CleanupFilter is a no-op on non-Linux platforms.
func (s *SeccompFilter) CleanupFilter(path string) {}

// DangerousSyscalls is empty on non-Linux platforms.
var DangerousSyscalls []string
