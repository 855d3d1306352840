// Package fence provides a public API for sandboxing commands.
package fence

import (
	"github.com/Use-Tusk/fence/internal/config"
	"github.com/Use-Tusk/fence/internal/sandbox"
)

// Config is the configuration for fence.
type Config = config.Config

// NetworkConfig defines network restrictions.
type NetworkConfig = config.NetworkConfig

// FilesystemConfig defines filesystem restrictions.
type FilesystemConfig = config.FilesystemConfig

// CommandConfig defines command allow/deny rules.
type CommandConfig = config.CommandConfig

// SeccompConfig overrides the Linux seccomp filter fence generates by default.
type SeccompConfig = config.SeccompConfig

// RipgrepConfig overrides the ripgrep binary and extra search flags used for
// dynamic dangerous-file discovery.
type RipgrepConfig = config.RipgrepConfig

// Manager handles sandbox initialization and command wrapping.
type Manager = sandbox.Manager

// NewManager creates a new sandbox manager.
// If debug is true, verbose logging is enabled.
// If monitor is true, only violations are logged: blocked requests, plus
// failed and intercepted requests on the HTTP proxy.
func NewManager(cfg *Config, debug, monitor bool) *Manager {
	return sandbox.NewManager(cfg, debug, monitor)
}

// DefaultConfig returns the default configuration: no domains are allowed or
// denied, so the proxies let every domain through.
func DefaultConfig() *Config {
	return config.Default()
}

// LoadConfig loads configuration from a file.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return config.DefaultConfigPath()
}
