package netutil

import "testing"

func TestNormalizeHost(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"Example.COM:443":        "example.com",
		" example.com. ":         "example.com",
		"[2001:db8::1]:8443":     "2001:db8::1",
		"2001:db8::1":            "2001:db8::1",
		"localhost:10443":        "localhost",
		"myapp.TUNNEL.test:8080": "myapp.tunnel.test",
	}

	for in, want := range tests {
		if got := NormalizeHost(in); got != want {
			t.Fatalf("NormalizeHost(%q): got %q, want %q", in, got, want)
		}
	}
}

func TestSplitSubdomain(t *testing.T) {
	t.Parallel()

	base := "tunnel.test.local"
	cases := []struct {
		name    string
		host    string
		wantSub string
		wantOK  bool
	}{
		{"simple", "myapp.tunnel.test.local", "myapp", true},
		{"nested", "a.b.tunnel.test.local", "a.b", true},
		{"base_itself", "tunnel.test.local", "", false},
		{"empty_host", "", "", false},
		{"unrelated", "example.com", "", false},
		{"suffix_of_label", "xtunnel.test.local", "", false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			sub, ok := SplitSubdomain(tc.host, base)
			if sub != tc.wantSub || ok != tc.wantOK {
				t.Fatalf("SplitSubdomain(%q, %q): got (%q, %v), want (%q, %v)",
					tc.host, base, sub, ok, tc.wantSub, tc.wantOK)
			}
		})
	}
}
