package cli

import "testing"

func clearWarrenEnv(t *testing.T) {
	t.Helper()

	for _, name := range []string{
		"WARREN_LISTEN", "WARREN_SECRETS", "WARREN_DOMAIN", "WARREN_MAX_TUNNELS",
		"WARREN_SERVER", "WARREN_API_KEY", "WARREN_SUBDOMAIN", "WARREN_PORT",
		"WARREN_LOCAL_HOST", "WARREN_LOG_LEVEL", "WARREN_PPROF_LISTEN",
	} {
		t.Setenv(name, "")
	}
}

func TestRunDispatch(t *testing.T) {
	clearWarrenEnv(t)

	cases := map[string]struct {
		args []string
		want int
	}{
		"no_args":         {nil, 1},
		"unknown":         {[]string{"frobnicate"}, 1},
		"help":            {[]string{"help"}, 0},
		"help_flag":       {[]string{"--help"}, 0},
		"version":         {[]string{"version"}, 0},
		"version_flag":    {[]string{"-v"}, 0},
		"relay_no_config": {[]string{"relay"}, 1},
		"agent_no_config": {[]string{"agent"}, 1},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if got := Run(tc.args); got != tc.want {
				t.Fatalf("Run(%v): expected exit %d, got %d", tc.args, tc.want, got)
			}
		})
	}
}

func TestRunRelayRejectsBadFlags(t *testing.T) {
	clearWarrenEnv(t)

	if got := Run([]string{"relay", "--max-tunnels", "0", "--domain", "example.com", "--secrets", "k"}); got != 1 {
		t.Fatalf("expected exit 1 for zero tunnel cap, got %d", got)
	}
}

func TestRunAgentRejectsBadPort(t *testing.T) {
	clearWarrenEnv(t)

	if got := Run([]string{"agent", "--server", "https://example.com", "--api-key", "k", "--port", "0"}); got != 1 {
		t.Fatalf("expected exit 1 for missing port, got %d", got)
	}
}
