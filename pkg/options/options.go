// Package options holds the flag-backed configuration structs shared by the
// station binaries.
package options

import (
	"fmt"
	"net"
	"strconv"

	"github.com/spf13/pflag"
)

// IOptions is implemented by every options struct in this package.
type IOptions interface {
	// Validate validates all the required options.
	Validate() []error

	// AddFlags adds flags to the specified FlagSet object.
	AddFlags(fs *pflag.FlagSet, prefixes ...string)
}

// ValidateAddress takes an address as "host:port" and checks that the port is
// a valid TCP port. An empty host binds every interface.
func ValidateAddress(addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("%q is not a valid address: %w", addr, err)
	}
	if host != "" && net.ParseIP(host) == nil && !isHostname(host) {
		return fmt.Errorf("%q is not a valid host", host)
	}
	p, err := strconv.Atoi(port)
	if err != nil || p < 0 || p > 65535 {
		return fmt.Errorf("%q is not a valid port", port)
	}
	return nil
}

func isHostname(h string) bool {
	if len(h) > 253 {
		return false
	}
	for _, r := range h {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
		default:
			return false
		}
	}
	return true
}
