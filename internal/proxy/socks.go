package proxy

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/things-go/go-socks5"
)

// SOCKSProxy is a SOCKS5 proxy server with domain filtering.
//
// FilterDecision.Intercept has no SOCKS5 counterpart here: there is no IPC
// endpoint to splice a raw SOCKS5 stream into, so an Intercept decision
// proceeds as a direct connection, same as Allow. Only Deny blocks.
// things-go/go-socks5 already classifies dial failures into RFC 1928 reply
// codes (host/network unreachable, connection refused), so only the
// Allow-through/Deny boundary needs a custom RuleSet.
type SOCKSProxy struct {
	server   *socks5.Server
	listener net.Listener
	mu       sync.RWMutex
	filter   *Filter
	debug    bool
	monitor  bool
	port     int
}

// NewSOCKSProxy creates a new SOCKS5 proxy with the given filter.
// If monitor is true, only blocked connections are logged.
// If debug is true, all connections are logged.
func NewSOCKSProxy(filter *Filter, debug, monitor bool) *SOCKSProxy {
	return &SOCKSProxy{
		filter:  filter,
		debug:   debug,
		monitor: monitor,
	}
}

// SetFilter installs a fresh filter for subsequent connections.
func (p *SOCKSProxy) SetFilter(filter *Filter) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.filter = filter
}

func (p *SOCKSProxy) currentFilter() *Filter {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.filter
}

// fenceRuleSet implements socks5.RuleSet for domain filtering.
type fenceRuleSet struct {
	proxy *SOCKSProxy
}

func (r *fenceRuleSet) Allow(ctx context.Context, req *socks5.Request) (context.Context, bool) {
	host := req.DestAddr.FQDN
	if host == "" {
		host = req.DestAddr.IP.String()
	}
	port := req.DestAddr.Port

	decision := r.proxy.currentFilter().Check(host, port)
	allowed := decision != Deny

	shouldLog := r.proxy.debug || (r.proxy.monitor && !allowed)
	if shouldLog {
		timestamp := time.Now().Format("15:04:05")
		if allowed {
			fmt.Fprintf(os.Stderr, "[fence:socks] %s ✓ CONNECT %s:%d ALLOWED\n", timestamp, host, port)
		} else {
			fmt.Fprintf(os.Stderr, "[fence:socks] %s ✗ CONNECT %s:%d BLOCKED (%s)\n", timestamp, host, port, decision)
		}
	}
	return ctx, allowed
}

// Start starts the SOCKS5 proxy on a random available port.
func (p *SOCKSProxy) Start() (int, error) {
	// Create listener first to get a random port
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("failed to listen: %w", err)
	}
	p.listener = listener
	p.port = listener.Addr().(*net.TCPAddr).Port

	server := socks5.NewServer(
		socks5.WithRule(&fenceRuleSet{proxy: p}),
	)
	p.server = server

	go func() {
		if err := p.server.Serve(p.listener); err != nil {
			if p.debug {
				fmt.Fprintf(os.Stderr, "[fence:socks] Server error: %v\n", err)
			}
		}
	}()

	if p.debug {
		fmt.Fprintf(os.Stderr, "[fence:socks] SOCKS5 proxy listening on localhost:%d\n", p.port)
	}
	return p.port, nil
}

// Stop stops the SOCKS5 proxy.
func (p *SOCKSProxy) Stop() error {
	if p.listener != nil {
		return p.listener.Close()
	}
	return nil
}

// Port returns the port the proxy is listening on.
func (p *SOCKSProxy) Port() int {
	return p.port
}
