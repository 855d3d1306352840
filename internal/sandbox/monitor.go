// Package sandbox provides sandboxing functionality for macOS and Linux.
package sandbox

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/Use-Tusk/fence/internal/platform"
	"github.com/Use-Tusk/fence/internal/violation"
)

// LogMonitor monitors sandbox violations via macOS log stream, correlating
// each kernel trace message back to the command that produced it via its
// CMD64_..._END_<suffix> tag and recording matches in a violation.Store.
type LogMonitor struct {
	sessionSuffix string
	store         *violation.Store
	cmd           *exec.Cmd
	cancel        context.CancelFunc
	running       bool
}

// NewLogMonitor creates a new log monitor for the given session suffix,
// recording observed violations into store. Returns nil on non-macOS
// platforms, where there is no unified log to stream.
func NewLogMonitor(sessionSuffix string, store *violation.Store) *LogMonitor {
	if platform.Detect() != platform.MacOS {
		return nil
	}
	return &LogMonitor{
		sessionSuffix: sessionSuffix,
		store:         store,
	}
}

// Start begins monitoring the macOS unified log for sandbox violations
// belonging to command, whose trace tag was embedded via ComputeLogTag.
func (m *LogMonitor) Start(command string) error {
	if m == nil {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel

	tag := ComputeLogTag(command)
	predicate := fmt.Sprintf("eventMessage CONTAINS %q", tag)

	m.cmd = exec.CommandContext(ctx, "log", "stream",
		"--predicate", predicate,
		"--style", "compact",
	)

	stdout, err := m.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	if err := m.cmd.Start(); err != nil {
		return fmt.Errorf("failed to start log stream: %w", err)
	}

	m.running = true

	go func() {
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			line := scanner.Text()
			formatted, ok := parseViolation(line)
			if !ok {
				continue
			}
			fmt.Fprintf(os.Stderr, "%s\n", formatted)
			if m.store != nil {
				m.store.Add(violation.Event{
					RawLine:   formatted,
					Command:   command,
					Tag:       tag,
					Timestamp: time.Now(),
				})
			}
		}
	}()

	// Give log stream a moment to initialize
	time.Sleep(100 * time.Millisecond)

	return nil
}

// Stop stops the log monitor.
func (m *LogMonitor) Stop() {
	if m == nil || !m.running {
		return
	}

	// Give a moment for any pending events to be processed
	time.Sleep(500 * time.Millisecond)

	if m.cancel != nil {
		m.cancel()
	}

	if m.cmd != nil && m.cmd.Process != nil {
		m.cmd.Process.Kill()
		m.cmd.Wait()
	}

	m.running = false
}

// violationPattern matches sandbox denial log entries
var violationPattern = regexp.MustCompile(`Sandbox: (\w+)\((\d+)\) deny\(\d+\) (\S+)(.*)`)

// parseViolation extracts and formats a sandbox violation from a log line.
// Returns ok=false if the line should be filtered out.
func parseViolation(line string) (string, bool) {
	// Skip header lines
	if strings.HasPrefix(line, "Filtering") || strings.HasPrefix(line, "Timestamp") {
		return "", false
	}

	// Skip duplicate report summaries
	if strings.Contains(line, "duplicate report") {
		return "", false
	}

	// Skip CMD64 marker lines (they follow the actual violation)
	if strings.HasPrefix(line, "CMD64_") {
		return "", false
	}

	matches := violationPattern.FindStringSubmatch(line)
	if matches == nil {
		return "", false
	}

	process := matches[1]
	pid := matches[2]
	operation := matches[3]
	details := strings.TrimSpace(matches[4])

	// Filter: only show network and file operations
	if !shouldShowViolation(operation) {
		return "", false
	}

	// Filter out noisy violations
	if isNoisyViolation(operation, details) {
		return "", false
	}

	timestamp := time.Now().Format("15:04:05")

	if details != "" {
		return fmt.Sprintf("[fence:logstream] %s ✗ %s %s (%s:%s)", timestamp, operation, details, process, pid), true
	}
	return fmt.Sprintf("[fence:logstream] %s ✗ %s (%s:%s)", timestamp, operation, process, pid), true
}

// shouldShowViolation returns true if this violation type should be displayed.
func shouldShowViolation(operation string) bool {
	// Show network violations
	if strings.HasPrefix(operation, "network-") {
		return true
	}

	// Show file read/write violations
	if strings.HasPrefix(operation, "file-read") ||
		strings.HasPrefix(operation, "file-write") {
		return true
	}

	// Filter out everything else (mach-lookup, file-ioctl, etc.)
	return false
}

// isNoisyViolation returns true if this violation is system noise that should be filtered.
func isNoisyViolation(operation, details string) bool {
	// Filter out TTY/terminal writes (very noisy from any process that prints output)
	if strings.HasPrefix(details, "/dev/tty") ||
		strings.HasPrefix(details, "/dev/pts") {
		return true
	}

	// Filter out mDNSResponder (system DNS resolution socket)
	if strings.Contains(details, "mDNSResponder") {
		return true
	}

	// Filter out other system sockets that are typically noise
	if strings.HasPrefix(details, "/private/var/run/syslog") {
		return true
	}

	return false
}

// GetSessionSuffix returns the session suffix used for filtering.
// This is the same suffix used in macOS sandbox-exec profiles.
func GetSessionSuffix() string {
	return sessionSuffix // defined in macos.go
}
