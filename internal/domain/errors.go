package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for well-known failure conditions that cross package
// boundaries.  Callers should use [errors.Is] to match these.
var (
	// ErrUnauthorized indicates a missing or unknown shared secret.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrTunnelLimitReached is returned when the relay is at its
	// configured maximum of concurrent tunnels.
	ErrTunnelLimitReached = errors.New("max tunnel limit reached")

	// ErrSubdomainInUse indicates the requested subdomain is already taken.
	ErrSubdomainInUse = errors.New("subdomain already in use")

	// ErrInvalidSubdomain means a label does not satisfy subdomain syntax.
	ErrInvalidSubdomain = errors.New("invalid subdomain")

	// ErrTunnelNotFound means no live tunnel is registered for a subdomain.
	ErrTunnelNotFound = errors.New("tunnel not found")

	// ErrTunnelOffline means the tunnel's control channel is gone.
	ErrTunnelOffline = errors.New("tunnel offline")

	// ErrUpstreamTimeout means the agent did not answer within the
	// per-request deadline.
	ErrUpstreamTimeout = errors.New("upstream timeout")

	// ErrServerShutdown is reported for work drained during relay shutdown.
	ErrServerShutdown = errors.New("server shutting down")

	// ErrAgentClosed is returned for operations on an agent tunnel after
	// Close was called.
	ErrAgentClosed = errors.New("agent closed")

	// ErrReconnectExhausted means the agent gave up re-establishing the
	// control channel after its final backoff attempt.
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")

	// ErrBadHandshake indicates the relay refused the control-channel
	// upgrade.
	ErrBadHandshake = errors.New("control channel handshake failed")
)

// TunnelError wraps an underlying error with tunnel context.
type TunnelError struct {
	TunnelID string
	Op       string
	Err      error
}

func (e *TunnelError) Error() string {
	if e.TunnelID != "" {
		return fmt.Sprintf("tunnel %s: %s: %v", e.TunnelID, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TunnelError) Unwrap() error {
	return e.Err
}
