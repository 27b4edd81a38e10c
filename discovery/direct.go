package discovery

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/sanchxt/yoop-sub002/yerr"
)

// DefaultTransferPort is used when ParseDirectAddress is given a bare
// host with no port.
const DefaultTransferPort = 47852

// ParseDirectAddress parses a user-supplied host address for the
// discovery-free "connect by IP" path (spec §1 "direct connect to a
// known IP"): plain IPv4/hostname, "host:port", "[ipv6]", or
// "[ipv6]:port", defaulting the port to DefaultTransferPort when
// omitted. This mirrors parse_host_address from the original
// implementation's connection module.
func ParseDirectAddress(input string) (string, error) {
	in := strings.TrimSpace(input)
	if in == "" {
		return "", yerr.New(yerr.KindInvalidPath, "direct address must not be empty")
	}

	if strings.HasPrefix(in, "[") {
		closeIdx := strings.Index(in, "]")
		if closeIdx < 0 {
			return "", yerr.WithFields(yerr.KindInvalidPath, "unterminated IPv6 literal",
				map[string]any{"input": input})
		}
		host := in[1:closeIdx]
		if net.ParseIP(host) == nil {
			return "", yerr.WithFields(yerr.KindInvalidPath, "invalid IPv6 address",
				map[string]any{"input": input})
		}
		rest := in[closeIdx+1:]
		if rest == "" {
			return net.JoinHostPort(host, strconv.Itoa(DefaultTransferPort)), nil
		}
		if !strings.HasPrefix(rest, ":") {
			return "", yerr.WithFields(yerr.KindInvalidPath, "expected ':port' after IPv6 literal",
				map[string]any{"input": input})
		}
		port, err := parsePort(rest[1:], input)
		if err != nil {
			return "", err
		}
		return net.JoinHostPort(host, port), nil
	}

	host, portStr, err := net.SplitHostPort(in)
	if err != nil {
		// No ":" found (or a bare IPv6 without brackets, which we
		// reject): treat the whole input as a bare host and default
		// the port.
		if net.ParseIP(in) != nil && strings.Contains(in, ":") {
			return "", yerr.WithFields(yerr.KindInvalidPath, "IPv6 address must be bracketed, e.g. [::1]:47852",
				map[string]any{"input": input})
		}
		return net.JoinHostPort(in, strconv.Itoa(DefaultTransferPort)), nil
	}
	port, err := parsePort(portStr, input)
	if err != nil {
		return "", err
	}
	return net.JoinHostPort(host, port), nil
}

func parsePort(s, original string) (string, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 || n > 65535 {
		return "", yerr.WithFields(yerr.KindInvalidPath, fmt.Sprintf("invalid port %q", s),
			map[string]any{"input": original})
	}
	return s, nil
}
