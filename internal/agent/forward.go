package agent

import (
	"bytes"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/jpillora/sizestr"

	"github.com/warrenhq/warren/internal/domain"
	"github.com/warrenhq/warren/internal/tunnelproto"
)

// forward handles one tunnelled request in its own goroutine and sends the
// response frame through the writer that delivered the request. A writer
// bound to a connection that died mid-flight fails the write; by then the
// relay has timed the request out on its side, so the result is dropped.
func (t *Tunnel) forward(writer *tunnelproto.FrameWriter, req *tunnelproto.RequestFrame) {
	defer t.forwardWG.Done()

	start := t.clock.Now()
	resp, bodyLen := t.roundTrip(req)

	if err := writer.WriteFrame(tunnelproto.Frame{Type: tunnelproto.TypeResponse, Response: resp}); err != nil {
		t.log.Warn("dropping response for dead channel", "id", req.ID, "err", err)
		return
	}

	t.log.Info("proxied request",
		"method", req.Method,
		"path", req.Path,
		"status", resp.Status,
		"duration", t.clock.Since(start),
		"size", sizestr.ToString(int64(bodyLen)),
	)
	t.emit(Event{Kind: KindRequest, Method: req.Method, Path: req.Path, Status: resp.Status})
}

// roundTrip replays a tunnelled request against the local origin and
// converts the outcome into a response frame. Any failure to reach or
// read the origin becomes a 502 frame so the public caller always gets
// an answer.
func (t *Tunnel) roundTrip(req *tunnelproto.RequestFrame) (*tunnelproto.ResponseFrame, int) {
	body, err := tunnelproto.DecodeBody(req.Body)
	if err != nil {
		return errorResponse(req.ID, "undecodable request body"), 0
	}

	// Close does not cancel in-flight local calls; they run to completion
	// under the client timeout and their results are dropped if the
	// channel is gone by then.
	target := "http://" + net.JoinHostPort(t.cfg.LocalHost, strconv.Itoa(t.cfg.LocalPort)) + req.Path
	localReq, err := http.NewRequest(req.Method, target, bytes.NewReader(body))
	if err != nil {
		return errorResponse(req.ID, "invalid request"), 0
	}
	for k, v := range req.Headers {
		if skipForwardHeader(k) {
			continue
		}
		localReq.Header.Set(k, v)
	}

	resp, err := t.local.Do(localReq)
	if err != nil {
		t.log.Warn("local server unreachable", "err", err)
		return errorResponse(req.ID, "local server unavailable"), 0
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxLocalResponseBytes+1))
	if err != nil {
		return errorResponse(req.ID, "failed to read local response"), 0
	}
	if int64(len(respBody)) > maxLocalResponseBytes {
		return errorResponse(req.ID, "local response too large"), 0
	}

	return &tunnelproto.ResponseFrame{
		ID:      req.ID,
		Status:  resp.StatusCode,
		Headers: tunnelproto.FlattenHeader(resp.Header),
		Body:    tunnelproto.EncodeBody(respBody),
	}, len(respBody)
}

// skipForwardHeader filters connection-scoped headers that must not be
// replayed to the local origin. Host is set from the target URL instead.
func skipForwardHeader(name string) bool {
	return strings.EqualFold(name, "Host") ||
		strings.EqualFold(name, "Connection") ||
		strings.EqualFold(name, "Upgrade")
}

// errorResponse builds the 502 frame used whenever the local origin
// cannot produce a real response.
func errorResponse(id, msg string) *tunnelproto.ResponseFrame {
	body, _ := json.Marshal(domain.ErrorResponse{Error: msg})
	return &tunnelproto.ResponseFrame{
		ID:      id,
		Status:  http.StatusBadGateway,
		Headers: map[string]string{"Content-Type": "application/json; charset=utf-8"},
		Body:    tunnelproto.EncodeBody(body),
	}
}
