// Package domain defines the core data types and rules shared across the
// warren relay, agent, and tunnel protocol layers.
package domain

// Subdomain label bounds, per DNS label syntax.
const (
	LabelMinLen = 3
	LabelMaxLen = 63
)

// MintedLabelLen is the length of relay-generated tunnel ids.
const MintedLabelLen = 8

// ValidLabel reports whether s is acceptable as a tunnel subdomain:
// 3..63 characters, lowercase ASCII letters, digits, and hyphens, with
// an alphanumeric first and last character.
func ValidLabel(s string) bool {
	if len(s) < LabelMinLen || len(s) > LabelMaxLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == '-':
			if i == 0 || i == len(s)-1 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// ErrorResponse is the JSON body the relay writes for structured errors
// on its public surface.
type ErrorResponse struct {
	Error     string `json:"error"`
	Subdomain string `json:"subdomain,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

// HealthStatus is the JSON body of the relay's health endpoint.
type HealthStatus struct {
	Status     string `json:"status"`
	Tunnels    int    `json:"tunnels"`
	MaxTunnels int    `json:"maxTunnels"`
}
