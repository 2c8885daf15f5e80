package agent

// EventKind classifies entries on the tunnel event stream.
type EventKind string

const (
	// KindRequest reports one proxied request after its response frame
	// was handed back to the relay.
	KindRequest EventKind = "request"

	// KindError reports an error notice from the relay or a terminal
	// failure of the tunnel itself.
	KindError EventKind = "error"
)

// Event is one observable occurrence on a running tunnel. Consumers
// receive them from [Tunnel.Events].
type Event struct {
	Kind EventKind

	// Method, Path, and Status describe the proxied request when Kind
	// is KindRequest.
	Method string
	Path   string
	Status int

	// Err carries the failure when Kind is KindError.
	Err error
}
