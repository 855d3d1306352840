package sandbox

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ContainsGlobChars reports whether a path pattern contains glob characters.
func ContainsGlobChars(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[]")
}

// RemoveTrailingGlobSuffix removes a trailing /** from a path pattern.
func RemoveTrailingGlobSuffix(pattern string) string {
	return strings.TrimSuffix(pattern, "/**")
}

// NormalizePath normalizes a path pattern for sandbox configuration: it
// expands a leading "~", resolves relative paths against the current
// working directory, and resolves symlinks for non-glob paths so mount
// and deny rules apply to the real filesystem target rather than a link.
func NormalizePath(pathPattern string) string {
	home, _ := os.UserHomeDir()
	cwd, _ := os.Getwd()

	normalized := pathPattern

	switch {
	case pathPattern == "~":
		normalized = home
	case strings.HasPrefix(pathPattern, "~/"):
		normalized = filepath.Join(home, pathPattern[2:])
	case strings.HasPrefix(pathPattern, "./"), strings.HasPrefix(pathPattern, "../"):
		normalized, _ = filepath.Abs(filepath.Join(cwd, pathPattern))
	case !filepath.IsAbs(pathPattern) && !ContainsGlobChars(pathPattern):
		normalized, _ = filepath.Abs(filepath.Join(cwd, pathPattern))
	}

	if !ContainsGlobChars(normalized) {
		if resolved, err := filepath.EvalSymlinks(normalized); err == nil {
			return resolved
		}
	}

	return normalized
}

// privateNetworkRanges lists hosts/CIDRs that must always bypass the fence
// proxies: the proxies themselves listen on localhost, and private-network
// traffic has no business round-tripping through a sandboxed process's own
// egress controls.
var privateNetworkRanges = []string{
	"localhost",
	"127.0.0.1",
	"::1",
	"*.local",
	".local",
	"169.254.0.0/16",
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
}

// GenerateProxyEnvVars builds the environment variables a sandboxed command
// needs to route its outbound traffic through the fence proxies. FENCE_SESSION
// carries the same session suffix embedded in sandbox log tags (see
// ComputeLogTag), so anything shelling out from inside the sandbox can
// correlate its own logging with the violations fence observed for this run.
func GenerateProxyEnvVars(httpPort, socksPort int) []string {
	envVars := []string{
		"FENCE_SANDBOX=1",
		"FENCE_SESSION=" + GetSessionSuffix(),
		"TMPDIR=/tmp/fence",
	}

	if httpPort == 0 && socksPort == 0 {
		return envVars
	}

	noProxy := strings.Join(privateNetworkRanges, ",")
	envVars = append(envVars,
		"NO_PROXY="+noProxy,
		"no_proxy="+noProxy,
	)

	if httpPort > 0 {
		proxyURL := "http://localhost:" + strconv.Itoa(httpPort)
		envVars = append(envVars,
			"HTTP_PROXY="+proxyURL,
			"HTTPS_PROXY="+proxyURL,
			"http_proxy="+proxyURL,
			"https_proxy="+proxyURL,
		)
	}

	if socksPort > 0 {
		socksURL := "socks5h://localhost:" + strconv.Itoa(socksPort)
		envVars = append(envVars,
			"ALL_PROXY="+socksURL,
			"all_proxy="+socksURL,
			"FTP_PROXY="+socksURL,
			"ftp_proxy="+socksURL,
			// Route git's SSH transport through the SOCKS proxy too.
			"GIT_SSH_COMMAND=ssh -o ProxyCommand='nc -X 5 -x localhost:"+strconv.Itoa(socksPort)+" %h %p'",
		)
	}

	return envVars
}

// sandboxedCommandMaxLen bounds the command text embedded in a log tag;
// kernel trace predicates get unwieldy past this.
const sandboxedCommandMaxLen = 100

// EncodeSandboxedCommand base64-encodes a command (truncated to
// sandboxedCommandMaxLen) for embedding in a sandbox log tag.
func EncodeSandboxedCommand(command string) string {
	if len(command) > sandboxedCommandMaxLen {
		command = command[:sandboxedCommandMaxLen]
	}
	return base64.StdEncoding.EncodeToString([]byte(command))
}

// DecodeSandboxedCommand reverses EncodeSandboxedCommand.
func DecodeSandboxedCommand(encoded string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
