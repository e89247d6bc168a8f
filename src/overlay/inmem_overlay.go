package overlay

import (
	"fmt"
	"sync"
)

// InmemNetwork routes messages between InmemOverlay instances in the same
// process. It allows the node to be tested, or a whole cluster to be
// simulated, without going over a network.
type InmemNetwork struct {
	sync.RWMutex
	nodes map[string]*InmemOverlay
}

// NewInmemNetwork ...
func NewInmemNetwork() *InmemNetwork {
	return &InmemNetwork{
		nodes: make(map[string]*InmemOverlay),
	}
}

// NewOverlay creates and registers a new member of the network. The addr must
// be unique within the network.
func (n *InmemNetwork) NewOverlay(peerID string, addr string) *InmemOverlay {
	over := &InmemOverlay{
		peerID:  peerID,
		addr:    addr,
		network: n,
		topics:  make(map[string]bool),
		conns:   make(map[string]bool),
		eventCh: make(chan Event, 64),
	}

	n.Lock()
	n.nodes[addr] = over
	n.Unlock()

	over.deliver(Event{Type: Listening, Addr: addr})

	return over
}

func (n *InmemNetwork) lookup(addr string) (*InmemOverlay, bool) {
	n.RLock()
	defer n.RUnlock()

	over, ok := n.nodes[addr]

	return over, ok
}

func (n *InmemNetwork) remove(addr string) {
	n.Lock()
	defer n.Unlock()

	delete(n.nodes, addr)
}

// broadcast delivers the payload to every other member subscribed to the
// topic. The sender does not hear its own messages, which matches the
// behaviour of gossip meshes; deduplication is the consumer's problem either
// way.
func (n *InmemNetwork) broadcast(from *InmemOverlay, topic string, payload []byte) {
	n.RLock()
	targets := []*InmemOverlay{}
	for _, over := range n.nodes {
		if over != from {
			targets = append(targets, over)
		}
	}
	n.RUnlock()

	for _, over := range targets {
		if over.subscribed(topic) {
			over.deliver(Event{Type: Message, PeerID: from.peerID, Payload: payload})
		}
	}
}

// InmemOverlay implements the Overlay interface over an InmemNetwork.
type InmemOverlay struct {
	sync.RWMutex
	peerID  string
	addr    string
	network *InmemNetwork
	topics  map[string]bool
	conns   map[string]bool
	eventCh chan Event
	closed  bool
}

// Subscribe implements the Overlay interface.
func (o *InmemOverlay) Subscribe(topic string) error {
	o.Lock()
	defer o.Unlock()

	o.topics[topic] = true

	return nil
}

// Publish implements the Overlay interface.
func (o *InmemOverlay) Publish(topic string, payload []byte) error {
	o.RLock()
	closed := o.closed
	o.RUnlock()

	if closed {
		return fmt.Errorf("overlay is closed")
	}

	o.network.broadcast(o, topic, payload)

	return nil
}

// Dial implements the Overlay interface. Dialing an already-connected
// address is a no-op.
func (o *InmemOverlay) Dial(addr string) error {
	target, ok := o.network.lookup(addr)
	if !ok {
		return fmt.Errorf("no overlay member at %s", addr)
	}

	o.Lock()
	if o.conns[addr] {
		o.Unlock()
		return nil
	}
	o.conns[addr] = true
	o.Unlock()

	target.Lock()
	target.conns[o.addr] = true
	target.Unlock()

	o.deliver(Event{Type: ConnectionEstablished, PeerID: target.peerID, Addr: addr})
	target.deliver(Event{Type: ConnectionEstablished, PeerID: o.peerID, Addr: o.addr})

	return nil
}

// Disconnect tears down the connection to addr, if any, and notifies both
// ends.
func (o *InmemOverlay) Disconnect(addr string) {
	target, ok := o.network.lookup(addr)
	if !ok {
		return
	}

	o.Lock()
	connected := o.conns[addr]
	delete(o.conns, addr)
	o.Unlock()

	if !connected {
		return
	}

	target.Lock()
	delete(target.conns, o.addr)
	target.Unlock()

	o.deliver(Event{Type: ConnectionClosed, PeerID: target.peerID, Remaining: 0})
	target.deliver(Event{Type: ConnectionClosed, PeerID: o.peerID, Remaining: 0})
}

// Events implements the Overlay interface.
func (o *InmemOverlay) Events() <-chan Event {
	return o.eventCh
}

// LocalAddr implements the Overlay interface.
func (o *InmemOverlay) LocalAddr() string {
	return o.addr
}

// Close implements the Overlay interface.
func (o *InmemOverlay) Close() error {
	o.Lock()
	if o.closed {
		o.Unlock()
		return nil
	}
	o.closed = true
	conns := []string{}
	for addr := range o.conns {
		conns = append(conns, addr)
	}
	o.Unlock()

	for _, addr := range conns {
		o.Disconnect(addr)
	}

	o.network.remove(o.addr)

	return nil
}

func (o *InmemOverlay) subscribed(topic string) bool {
	o.RLock()
	defer o.RUnlock()

	return o.topics[topic]
}

// deliver queues an event without ever blocking the producer.
func (o *InmemOverlay) deliver(e Event) {
	o.RLock()
	closed := o.closed
	o.RUnlock()

	if closed {
		return
	}

	select {
	case o.eventCh <- e:
	default:
	}
}
