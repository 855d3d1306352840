//go:build linux

package sandbox

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/Use-Tusk/fence/internal/config"
)

// findDangerousFiles shells out to ripgrep to locate dangerous files and
// directories under cwd, bounded by the configured search depth. Missing
// ripgrep is not fatal: callers fall back to the static mandatory-deny
// globs already produced by GetMandatoryDenyPatterns.
func findDangerousFiles(cwd string, fsCfg config.FilesystemConfig) ([]string, error) {
	rgPath := fsCfg.RipgrepCommand()
	if _, err := exec.LookPath(rgPath); err != nil {
		return nil, fmt.Errorf("ripgrep not found at %q: %w", rgPath, err)
	}

	args := []string{
		"--files",
		"--hidden",
		"--max-depth", strconv.Itoa(fsCfg.SearchDepth()),
	}

	for _, f := range DangerousFiles {
		args = append(args, "--iglob", "**/"+f)
	}
	for _, d := range DangerousDirectories {
		args = append(args, "--iglob", "**/"+d+"/**")
	}
	args = append(args, "-g", "!**/node_modules/**")
	args = append(args, fsCfg.RipgrepArgs()...)
	args = append(args, cwd)

	cmd := exec.Command(rgPath, args...) //nolint:gosec // args constructed from trusted config
	out, err := cmd.Output()
	if err != nil {
		// ripgrep exits 1 when no files match; that's not an error for us.
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
			return nil, nil
		}
		return nil, fmt.Errorf("ripgrep search failed: %w", err)
	}

	var files []string
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}
