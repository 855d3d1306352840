package sandbox

import (
	"fmt"
	"os"
	"sync"

	"github.com/Use-Tusk/fence/internal/config"
	"github.com/Use-Tusk/fence/internal/platform"
	"github.com/Use-Tusk/fence/internal/proxy"
	"github.com/Use-Tusk/fence/internal/violation"
)

// Manager handles sandbox initialization and command wrapping.
//
// Config updates arriving over the control channel are applied by
// UpdateConfig, which swaps the config and both proxies' filters atomically
// under mu; WrapCommand and the proxy Check() calls always see a consistent
// snapshot.
type Manager struct {
	mu            sync.RWMutex
	config        *config.Config
	httpProxy     *proxy.HTTPProxy
	socksProxy    *proxy.SOCKSProxy
	linuxBridge   *LinuxBridge
	reverseBridge *ReverseBridge
	violations    *violation.Store
	httpPort      int
	socksPort     int
	exposedPorts  []int
	debug         bool
	monitor       bool
	initialized   bool
}

// NewManager creates a new sandbox manager.
func NewManager(cfg *config.Config, debug, monitor bool) *Manager {
	return &Manager{
		config:     cfg,
		debug:      debug,
		monitor:    monitor,
		violations: violation.NewStore(),
	}
}

// SetExposedPorts sets the ports to expose for inbound connections.
func (m *Manager) SetExposedPorts(ports []int) {
	m.exposedPorts = ports
}

// Violations returns the store recording sandbox denials observed so far.
func (m *Manager) Violations() *violation.Store {
	return m.violations
}

func buildFilter(cfg *config.Config) *proxy.Filter {
	var intercept []string
	if cfg.Network.Intercept != nil {
		intercept = cfg.Network.Intercept.Domains
	}
	return proxy.NewFilter(cfg.Network.AllowedDomains, cfg.Network.DeniedDomains, intercept)
}

func mitmSocketPath(cfg *config.Config) string {
	if cfg.Network.Intercept == nil {
		return ""
	}
	return cfg.Network.Intercept.SocketPath
}

// Initialize sets up the sandbox infrastructure (proxies, etc.).
func (m *Manager) Initialize() error {
	if m.initialized {
		return nil
	}

	if !platform.IsSupported() {
		return fmt.Errorf("sandbox is not supported on platform: %s", platform.Detect())
	}

	cfg := m.GetConfig()
	filter := buildFilter(cfg)

	m.httpProxy = proxy.NewHTTPProxy(filter, mitmSocketPath(cfg), m.debug, m.monitor)
	httpPort, err := m.httpProxy.Start()
	if err != nil {
		return fmt.Errorf("failed to start HTTP proxy: %w", err)
	}
	m.httpPort = httpPort

	m.socksProxy = proxy.NewSOCKSProxy(filter, m.debug, m.monitor)
	socksPort, err := m.socksProxy.Start()
	if err != nil {
		m.httpProxy.Stop()
		return fmt.Errorf("failed to start SOCKS proxy: %w", err)
	}
	m.socksPort = socksPort

	// On Linux, set up the socat bridges
	if platform.Detect() == platform.Linux {
		bridge, err := NewLinuxBridge(m.httpPort, m.socksPort, m.debug)
		if err != nil {
			m.httpProxy.Stop()
			m.socksProxy.Stop()
			return fmt.Errorf("failed to initialize Linux bridge: %w", err)
		}
		m.linuxBridge = bridge

		// Set up reverse bridge for exposed ports (inbound connections)
		if len(m.exposedPorts) > 0 {
			reverseBridge, err := NewReverseBridge(m.exposedPorts, m.debug)
			if err != nil {
				m.linuxBridge.Cleanup()
				m.httpProxy.Stop()
				m.socksProxy.Stop()
				return fmt.Errorf("failed to initialize reverse bridge: %w", err)
			}
			m.reverseBridge = reverseBridge
		}
	}

	m.initialized = true
	m.logDebug("Sandbox manager initialized (HTTP proxy: %d, SOCKS proxy: %d)", m.httpPort, m.socksPort)
	return nil
}

// GetConfig returns the manager's current configuration snapshot.
func (m *Manager) GetConfig() *config.Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// UpdateConfig validates cfg and, if valid, atomically replaces the
// manager's configuration and the live filter installed in both proxies.
// A previously-started sandboxed process is unaffected; the new policy
// applies to subsequent WrapCommand calls and proxy connections.
func (m *Manager) UpdateConfig(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	filter := buildFilter(cfg)

	m.mu.Lock()
	m.config = cfg
	if m.httpProxy != nil {
		m.httpProxy.SetFilter(filter)
	}
	if m.socksProxy != nil {
		m.socksProxy.SetFilter(filter)
	}
	m.mu.Unlock()

	m.logDebug("Sandbox config updated")
	return nil
}

// WrapCommand wraps a command with sandbox restrictions. It returns
// CommandBlockedError if the command (or any sub-command in a pipeline or
// chain) matches the configured or default command denylist.
func (m *Manager) WrapCommand(command string) (string, error) {
	if !m.initialized {
		if err := m.Initialize(); err != nil {
			return "", err
		}
	}

	cfg := m.GetConfig()
	if err := CheckCommand(command, cfg); err != nil {
		return "", err
	}

	plat := platform.Detect()
	switch plat {
	case platform.MacOS:
		return WrapCommandMacOS(cfg, command, m.httpPort, m.socksPort, m.exposedPorts, m.debug)
	case platform.Linux:
		return WrapCommandLinux(cfg, command, m.linuxBridge, m.reverseBridge, m.debug)
	default:
		return "", fmt.Errorf("unsupported platform: %s", plat)
	}
}

// AnnotateStderr appends any violations recorded for command to stderr,
// so callers can surface sandbox denials alongside a failed command's
// own error output.
func (m *Manager) AnnotateStderr(command, stderr string) string {
	return m.violations.AnnotateStderr(command, stderr)
}

// Cleanup stops the proxies and cleans up resources.
func (m *Manager) Cleanup() {
	if m.reverseBridge != nil {
		m.reverseBridge.Cleanup()
	}
	if m.linuxBridge != nil {
		m.linuxBridge.Cleanup()
	}
	if m.httpProxy != nil {
		m.httpProxy.Stop()
	}
	if m.socksProxy != nil {
		m.socksProxy.Stop()
	}
	m.logDebug("Sandbox manager cleaned up")
}

func (m *Manager) logDebug(format string, args ...interface{}) {
	if m.debug {
		fmt.Fprintf(os.Stderr, "[fence] "+format+"\n", args...)
	}
}

// HTTPPort returns the HTTP proxy port.
func (m *Manager) HTTPPort() int {
	return m.httpPort
}

// SOCKSPort returns the SOCKS proxy port.
func (m *Manager) SOCKSPort() int {
	return m.socksPort
}
