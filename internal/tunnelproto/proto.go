// Package tunnelproto defines the JSON wire protocol exchanged between the
// warren relay and its agents over a WebSocket control channel.
package tunnelproto

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Frame types identify the payload carried by a [Frame].
const (
	TypeAssigned = "tunnel-assigned"
	TypeRequest  = "tunnel-request"
	TypeResponse = "tunnel-response"
	TypeError    = "tunnel-error"
	TypePing     = "ping"
	TypePong     = "pong"
)

// TunnelPath is the fixed upgrade path for the control channel.
const TunnelPath = "/tunnel"

// Handshake metadata travels in request headers on the upgrade.
const (
	HeaderAPIKey    = "x-api-key"
	HeaderSubdomain = "x-subdomain"
)

// Frame is the top-level envelope exchanged on the control channel.
// Exactly one payload field is populated, selected by Type.
type Frame struct {
	Type      string         `json:"type"`
	Subdomain string         `json:"subdomain,omitempty"`
	URL       string         `json:"url,omitempty"`
	Request   *RequestFrame  `json:"request,omitempty"`
	Response  *ResponseFrame `json:"response,omitempty"`
	Message   string         `json:"message,omitempty"`
}

// RequestFrame is one public HTTP request forwarded to the agent. Path
// carries the full request target including any query string. Body is
// base64 of the raw bytes, or null when the request had no body.
type RequestFrame struct {
	ID      string            `json:"id"`
	Method  string            `json:"method"`
	Path    string            `json:"path"`
	Headers map[string]string `json:"headers"`
	Body    *string           `json:"body"`
}

// ResponseFrame is the agent's reply to a forwarded [RequestFrame].
type ResponseFrame struct {
	ID      string            `json:"id"`
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers"`
	Body    *string           `json:"body"`
}

// FromRelay reports whether frames of type t originate at the relay.
func FromRelay(t string) bool {
	switch t {
	case TypeAssigned, TypeRequest, TypeError, TypePing:
		return true
	}
	return false
}

// FromAgent reports whether frames of type t originate at the agent.
func FromAgent(t string) bool {
	return t == TypeResponse || t == TypePong
}

// ParseFrame decodes one frame from raw channel bytes. An error means the
// frame must be discarded; the channel itself stays usable.
func ParseFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("malformed frame: %w", err)
	}
	switch f.Type {
	case TypeAssigned, TypeError, TypePing, TypePong:
	case TypeRequest:
		if f.Request == nil {
			return Frame{}, fmt.Errorf("frame %s: missing request payload", f.Type)
		}
	case TypeResponse:
		if f.Response == nil {
			return Frame{}, fmt.Errorf("frame %s: missing response payload", f.Type)
		}
	default:
		return Frame{}, fmt.Errorf("unknown frame type %q", f.Type)
	}
	return f, nil
}

// EncodeBody base64-encodes a byte slice for JSON transport. Empty input
// yields nil, which marshals to an explicit null marker.
func EncodeBody(b []byte) *string {
	if len(b) == 0 {
		return nil
	}
	s := base64.StdEncoding.EncodeToString(b)
	return &s
}

// DecodeBody decodes a transported body. A null marker yields nil bytes.
func DecodeBody(s *string) ([]byte, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	return base64.StdEncoding.DecodeString(*s)
}

// FlattenHeader collapses an HTTP header map into the wire representation,
// joining multi-valued headers with ", ".
func FlattenHeader(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vals := range h {
		out[k] = strings.Join(vals, ", ")
	}
	return out
}
