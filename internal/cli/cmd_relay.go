package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/warrenhq/warren/internal/config"
	"github.com/warrenhq/warren/internal/debughttp"
	ilog "github.com/warrenhq/warren/internal/log"
	"github.com/warrenhq/warren/internal/relay"
)

func runRelay(ctx context.Context, args []string) int {
	cfg, err := config.ParseRelayFlags(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, "relay config error:", err)
		return 1
	}
	logger := ilog.New(cfg.LogLevel)
	logger.Info("starting relay", "version", Version, "listen", cfg.Listen, "domain", cfg.BaseDomain)

	if err := debughttp.Start(ctx, strings.TrimSpace(os.Getenv("WARREN_PPROF_LISTEN")), logger); err != nil {
		fmt.Fprintln(os.Stderr, "relay error:", err)
		return 1
	}

	s, err := relay.New(cfg, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "relay config error:", err)
		return 1
	}
	if err := s.Run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "relay error:", err)
		return 1
	}
	return 0
}
