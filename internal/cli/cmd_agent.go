package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/warrenhq/warren/internal/agent"
	"github.com/warrenhq/warren/internal/config"
	"github.com/warrenhq/warren/internal/debughttp"
	ilog "github.com/warrenhq/warren/internal/log"
)

func runAgent(ctx context.Context, args []string) int {
	cfg, err := config.ParseAgentFlags(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, "agent config error:", err)
		return 1
	}
	logger := ilog.New(cfg.LogLevel)

	if err := debughttp.Start(ctx, strings.TrimSpace(os.Getenv("WARREN_PPROF_LISTEN")), logger); err != nil {
		fmt.Fprintln(os.Stderr, "agent error:", err)
		return 1
	}

	tun, err := agent.Dial(cfg, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "agent error:", err)
		return 1
	}
	fmt.Println("tunnel url:", tun.URL())

	// The tunnel logs its own transport lifecycle; the loop here surfaces
	// application-level errors and decides the exit code.
	for {
		select {
		case <-ctx.Done():
			_ = tun.Close()
			for range tun.Events() {
			}
			return 0
		case ev, ok := <-tun.Events():
			if !ok {
				fmt.Fprintln(os.Stderr, "agent error: tunnel closed")
				return 1
			}
			if ev.Kind == agent.KindError && ev.Err != nil {
				logger.Error("tunnel error", "error", ev.Err)
			}
		}
	}
}
