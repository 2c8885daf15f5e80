package cli

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/warrenhq/warren/internal/versionutil"
)

func printUsage() {
	fmt.Println(`warren - self-hosted HTTP tunnel

Expose a local HTTP server on a public subdomain through your own relay.

Usage:
  warren relay                           Start the relay server
  warren agent --port 3000               Tunnel local port 3000
  warren agent --subdomain myapp --port 3000
                                         Tunnel with a preferred subdomain
  warren version                         Print version
  warren help                            Show this help

Quick Start:
  1. warren relay --domain example.com --secrets KEY   # on the server
  2. warren agent --server https://example.com --api-key KEY --port 3000

Environment Variables:
  WARREN_LISTEN           Relay listen address (default: 127.0.0.1:8080)
  WARREN_SECRETS          Comma-separated shared secrets (relay, required)
  WARREN_DOMAIN           Public base domain (relay, required)
  WARREN_MAX_TUNNELS      Maximum concurrent tunnels (default: 10)
  WARREN_SERVER           Relay base URL (agent, required)
  WARREN_API_KEY          Shared secret (agent, required)
  WARREN_SUBDOMAIN        Preferred public subdomain (agent, optional)
  WARREN_LOCAL_HOST       Local origin host (default: localhost)
  WARREN_PORT             Local origin port (agent, required)
  WARREN_LOG_LEVEL        Log level: debug|info|warn|error (default: info)
  WARREN_PPROF_LISTEN     Optional pprof debug listener (e.g. 127.0.0.1:6060)`)
}

// Version is set at build time via -ldflags.
var Version = "dev"

func init() {
	if Version == "dev" {
		if desc, err := exec.Command("git", "describe", "--tags", "--always").Output(); err == nil {
			if v := strings.TrimSpace(string(desc)); v != "" {
				Version = v + "-dev"
			}
		}
	}
	Version = versionutil.Normalize(Version)
}

func printVersion() {
	fmt.Println("warren", Version)
}
