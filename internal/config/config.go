// Package config resolves relay and agent configuration from environment
// variables and command-line flags. The runtime packages consume the
// resolved records and never read the environment themselves.
package config

import (
	"errors"
	"flag"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/warrenhq/warren/internal/netutil"
)

// RelayConfig is the immutable startup configuration of the relay.
type RelayConfig struct {
	Listen            string
	Secrets           []string
	BaseDomain        string
	MaxTunnels        int
	LogLevel          string
	RequestTimeout    time.Duration
	HeartbeatInterval time.Duration
	MaxBodyBytes      int64
}

// AgentConfig is the immutable startup configuration of the agent.
type AgentConfig struct {
	ServerURL string
	APIKey    string
	Subdomain string
	LocalHost string
	LocalPort int
	LogLevel  string
}

const (
	DefaultListen            = "127.0.0.1:8080"
	DefaultMaxTunnels        = 10
	DefaultRequestTimeout    = 30 * time.Second
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultMaxBodyBytes      = int64(10 << 20)
	DefaultLocalHost         = "localhost"
)

// ParseRelayFlags resolves the relay configuration from WARREN_* variables
// overridden by flags.
func ParseRelayFlags(args []string) (RelayConfig, error) {
	cfg := RelayConfig{
		Listen:            envOrDefault("WARREN_LISTEN", DefaultListen),
		BaseDomain:        envOrDefault("WARREN_DOMAIN", ""),
		MaxTunnels:        envIntOrDefault("WARREN_MAX_TUNNELS", DefaultMaxTunnels),
		LogLevel:          envOrDefault("WARREN_LOG_LEVEL", "info"),
		RequestTimeout:    envDurationOrDefault("WARREN_REQUEST_TIMEOUT", DefaultRequestTimeout),
		HeartbeatInterval: envDurationOrDefault("WARREN_HEARTBEAT_INTERVAL", DefaultHeartbeatInterval),
		MaxBodyBytes:      envInt64OrDefault("WARREN_MAX_BODY_BYTES", DefaultMaxBodyBytes),
	}
	secretsCSV := envOrDefault("WARREN_SECRETS", "")

	fs := flag.NewFlagSet("relay", flag.ContinueOnError)
	fs.StringVar(&cfg.Listen, "listen", cfg.Listen, "Listen address (host:port); plain HTTP behind the fronting proxy")
	fs.StringVar(&secretsCSV, "secrets", secretsCSV, "Comma-separated shared secrets accepted from agents")
	fs.StringVar(&cfg.BaseDomain, "domain", cfg.BaseDomain, "Public base domain, e.g. example.com")
	fs.IntVar(&cfg.MaxTunnels, "max-tunnels", cfg.MaxTunnels, "Maximum concurrent tunnels")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug|info|warn|error")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	cfg.BaseDomain = normalizeDomainHost(cfg.BaseDomain)
	if cfg.BaseDomain == "" {
		return cfg, errors.New("missing --domain or WARREN_DOMAIN")
	}
	cfg.Secrets = SplitSecrets(secretsCSV)
	if len(cfg.Secrets) == 0 {
		return cfg, errors.New("missing --secrets or WARREN_SECRETS (at least one shared secret is required)")
	}
	if err := validateListen(cfg.Listen); err != nil {
		return cfg, err
	}
	if cfg.MaxTunnels <= 0 {
		return cfg, errors.New("max tunnels must be > 0")
	}
	if cfg.RequestTimeout <= 0 {
		return cfg, errors.New("request timeout must be > 0")
	}
	if cfg.HeartbeatInterval <= 0 {
		return cfg, errors.New("heartbeat interval must be > 0")
	}
	if cfg.MaxBodyBytes <= 0 {
		return cfg, errors.New("max body bytes must be > 0")
	}

	return cfg, nil
}

// ParseAgentFlags resolves the agent configuration from WARREN_* variables
// overridden by flags.
func ParseAgentFlags(args []string) (AgentConfig, error) {
	cfg := AgentConfig{
		ServerURL: envOrDefault("WARREN_SERVER", ""),
		APIKey:    envOrDefault("WARREN_API_KEY", ""),
		Subdomain: envOrDefault("WARREN_SUBDOMAIN", ""),
		LocalHost: envOrDefault("WARREN_LOCAL_HOST", DefaultLocalHost),
		LocalPort: envIntOrDefault("WARREN_PORT", 0),
		LogLevel:  envOrDefault("WARREN_LOG_LEVEL", "info"),
	}

	fs := flag.NewFlagSet("agent", flag.ContinueOnError)
	fs.StringVar(&cfg.ServerURL, "server", cfg.ServerURL, "Relay base URL (e.g. https://example.com)")
	fs.StringVar(&cfg.APIKey, "api-key", cfg.APIKey, "Shared secret presented to the relay")
	fs.StringVar(&cfg.Subdomain, "subdomain", cfg.Subdomain, "Requested public subdomain (optional)")
	fs.StringVar(&cfg.LocalHost, "local-host", cfg.LocalHost, "Local origin host")
	fs.IntVar(&cfg.LocalPort, "port", cfg.LocalPort, "Local origin HTTP port")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	cfg.ServerURL = strings.TrimSpace(cfg.ServerURL)
	if cfg.ServerURL == "" {
		return cfg, errors.New("missing --server or WARREN_SERVER")
	}
	if cfg.APIKey == "" {
		return cfg, errors.New("missing --api-key or WARREN_API_KEY")
	}
	if cfg.LocalPort == 0 {
		return cfg, errors.New("missing --port or WARREN_PORT")
	}
	if cfg.LocalPort <= 0 || cfg.LocalPort > 65535 {
		return cfg, errors.New("local port must be between 1 and 65535")
	}
	cfg.Subdomain = strings.ToLower(strings.TrimSpace(cfg.Subdomain))
	if cfg.LocalHost == "" {
		cfg.LocalHost = DefaultLocalHost
	}

	return cfg, nil
}

// SplitSecrets parses a comma-separated secret list, trimming whitespace
// and dropping empty entries.
func SplitSecrets(csv string) []string {
	var out []string
	for _, s := range strings.Split(csv, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func validateListen(addr string) error {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return errors.New("listen address must be host:port")
	}
	n, err := strconv.Atoi(port)
	if err != nil || n <= 0 || n > 65535 {
		return errors.New("listen port must be between 1 and 65535")
	}
	return nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envInt64OrDefault(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envDurationOrDefault(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func normalizeDomainHost(v string) string {
	v = strings.TrimSpace(strings.ToLower(v))
	v = strings.TrimPrefix(v, "https://")
	v = strings.TrimPrefix(v, "http://")
	if idx := strings.Index(v, "/"); idx >= 0 {
		v = v[:idx]
	}
	return netutil.NormalizeHost(v)
}
