package proxy

import "strings"

// FilterDecision is the outcome of evaluating a destination host against a policy.
type FilterDecision int

const (
	// Allow permits a direct connection to the destination.
	Allow FilterDecision = iota
	// Deny refuses the connection outright.
	Deny
	// Intercept routes the connection through the configured IPC endpoint.
	Intercept
)

func (d FilterDecision) String() string {
	switch d {
	case Allow:
		return "Allow"
	case Deny:
		return "Deny"
	case Intercept:
		return "Intercept"
	default:
		return "Unknown"
	}
}

// Filter is a pure, synchronous host -> FilterDecision function. It is
// immutable for its lifetime; a policy update installs a fresh Filter for
// subsequent requests rather than mutating one in place.
type Filter struct {
	deny      []string
	intercept []string
	allow     []string
}

// NewFilter builds a Filter from ordered pattern lists.
func NewFilter(allow, deny, intercept []string) *Filter {
	return &Filter{
		deny:      deny,
		intercept: intercept,
		allow:     allow,
	}
}

// Check evaluates hostname (port is accepted for call-site symmetry with
// dial addresses but does not affect the decision). Evaluation order is
// fixed: deny, then intercept, then allow-if-nonempty-else-allow.
func (f *Filter) Check(hostname string, _ int) FilterDecision {
	hostname = strings.ToLower(hostname)

	for _, pattern := range f.deny {
		if matchesPattern(hostname, pattern) {
			return Deny
		}
	}

	for _, pattern := range f.intercept {
		if matchesPattern(hostname, pattern) {
			return Intercept
		}
	}

	if len(f.allow) > 0 {
		for _, pattern := range f.allow {
			if matchesPattern(hostname, pattern) {
				return Allow
			}
		}
		return Deny
	}

	return Allow
}

// matchesPattern supports two pattern shapes: exact literal equality, or a
// left-wildcard "*.base" that matches one or more labels of subdomain but
// never the bare base itself.
func matchesPattern(hostname, pattern string) bool {
	pattern = strings.ToLower(pattern)

	if strings.HasPrefix(pattern, "*.") {
		base := pattern[2:]
		return strings.HasSuffix(hostname, "."+base) && hostname != base
	}

	return hostname == pattern
}
