package cmd

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
)

// serveOptions are the parsed serve command options.
type serveOptions struct {
	addr   string
	memory bool
}

// parseServeArgs parses the serve command arguments, supporting:
//   - paperchat serve :8080             (positional)
//   - paperchat serve --addr :8080      (flag)
//   - paperchat serve --memory          (in-memory store, no database)
func parseServeArgs(args []string, defaultAddr string) (serveOptions, error) {
	serveFlags := flag.NewFlagSet("serve", flag.ContinueOnError)
	serveFlags.SetOutput(os.Stderr)

	addr := serveFlags.String("addr", defaultAddr, "Server address (host:port)")
	memory := serveFlags.Bool("memory", false, "Use the in-memory conversation store")

	// Check for positional argument first (paperchat serve :8080)
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		*addr = args[0]
		args = args[1:]
	}

	if err := serveFlags.Parse(args); err != nil {
		return serveOptions{}, fmt.Errorf("parsing serve flags: %w", err)
	}

	if err := validateAddr(*addr); err != nil {
		return serveOptions{}, fmt.Errorf("invalid address %q: %w", *addr, err)
	}

	return serveOptions{addr: *addr, memory: *memory}, nil
}

// validateAddr validates the server address format.
func validateAddr(addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("must be in host:port format: %w", err)
	}

	if host != "" && host != "localhost" {
		if ip := net.ParseIP(host); ip == nil {
			if strings.ContainsAny(host, " \t\n") {
				return fmt.Errorf("invalid host: %s", host)
			}
		}
	}

	if port == "" {
		return fmt.Errorf("port is required")
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("port must be numeric: %w", err)
	}
	if portNum < 0 || portNum > 65535 {
		return fmt.Errorf("port must be 0-65535 (0 = auto-assign), got %d", portNum)
	}

	return nil
}
