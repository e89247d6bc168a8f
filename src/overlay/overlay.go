// Package overlay defines the boundary with the external peer-to-peer
// publish/subscribe transport, which provides discovery, routing and secure
// channels. The node only ever consumes this interface; the overlay's mesh
// maintenance is not implemented here.
package overlay

// EventType enumerates the inbound overlay events.
type EventType int

const (
	// Message is an opaque payload received on a subscribed topic.
	Message EventType = iota

	// PeerDiscovered reports a peer found by the overlay's discovery
	// mechanism.
	PeerDiscovered

	// PeerExpired reports a discovered peer that has gone silent.
	PeerExpired

	// ConnectionEstablished reports a new transport-level connection to a
	// peer. A peer may hold several simultaneous connections.
	ConnectionEstablished

	// ConnectionClosed reports a closed connection, along with the number of
	// connections remaining to that peer.
	ConnectionClosed

	// Listening reports a local address the overlay is reachable on.
	Listening
)

// String implements the fmt.Stringer interface.
func (t EventType) String() string {
	switch t {
	case Message:
		return "Message"
	case PeerDiscovered:
		return "PeerDiscovered"
	case PeerExpired:
		return "PeerExpired"
	case ConnectionEstablished:
		return "ConnectionEstablished"
	case ConnectionClosed:
		return "ConnectionClosed"
	case Listening:
		return "Listening"
	default:
		return "Unknown"
	}
}

// Event is a single inbound overlay event. Only the fields relevant to the
// Type are set.
type Event struct {
	Type      EventType
	PeerID    string
	Addr      string
	Remaining int
	Payload   []byte
}

// Overlay is the external publish/subscribe collaborator. Publication is
// best-effort multicast: delivery is not guaranteed and duplicates are
// expected. Implementations must make Dial idempotent with respect to
// already-connected addresses, and must never block on the Events channel;
// the consumer owns the handle exclusively for Publish and Dial.
type Overlay interface {
	Subscribe(topic string) error
	Publish(topic string, payload []byte) error
	Dial(addr string) error
	Events() <-chan Event
	LocalAddr() string
	Close() error
}
