package domain

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestValidLabel(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		label string
		want  bool
	}{
		{"simple", "myapp", true},
		{"digits", "app42", true},
		{"interior_hyphen", "my-app", true},
		{"min_length", "abc", true},
		{"max_length", strings.Repeat("a", 63), true},
		{"too_short", "ab", false},
		{"too_long", strings.Repeat("a", 64), false},
		{"leading_hyphen", "-app", false},
		{"trailing_hyphen", "app-", false},
		{"uppercase", "MyApp", false},
		{"underscore", "my_app", false},
		{"dot", "my.app", false},
		{"empty", "", false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := ValidLabel(tc.label); got != tc.want {
				t.Fatalf("ValidLabel(%q): got %v, want %v", tc.label, got, tc.want)
			}
		})
	}
}

func TestErrorResponseOmitsEmptyFields(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(ErrorResponse{Error: "tunnel not found"})
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	if _, ok := m["subdomain"]; ok {
		t.Fatal("expected subdomain to be omitted when empty")
	}
	if _, ok := m["limit"]; ok {
		t.Fatal("expected limit to be omitted when zero")
	}
}

func TestHealthStatusJSONKeys(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(HealthStatus{Status: "ok", Tunnels: 2, MaxTunnels: 10})
	if err != nil {
		t.Fatal(err)
	}
	want := `{"status":"ok","tunnels":2,"maxTunnels":10}`
	if string(data) != want {
		t.Fatalf("got %s, want %s", data, want)
	}
}
