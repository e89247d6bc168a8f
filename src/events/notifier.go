package events

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// SubscriberBufferSize bounds each subscriber's queue. A subscriber that
// falls this far behind starts losing events; a session recovers state
// through its init snapshot, never through replay.
const SubscriberBufferSize = 100

// Subscription is one subscriber's handle on the Notifier.
type Subscription struct {
	id int
	ch chan Event
}

// Events returns the receive channel. It is closed by Unsubscribe.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Notifier broadcasts events to a dynamic set of subscribers. Delivery is
// best-effort: a slow or disconnected subscriber never blocks a publisher.
type Notifier struct {
	sync.Mutex
	subs    map[int]*Subscription
	nextID  int
	dropped int
	logger  *logrus.Entry
}

// NewNotifier ...
func NewNotifier(logger *logrus.Entry) *Notifier {
	return &Notifier{
		subs:   make(map[int]*Subscription),
		logger: logger,
	}
}

// Subscribe registers a new subscriber.
func (n *Notifier) Subscribe() *Subscription {
	n.Lock()
	defer n.Unlock()

	sub := &Subscription{
		id: n.nextID,
		ch: make(chan Event, SubscriberBufferSize),
	}
	n.nextID++
	n.subs[sub.id] = sub

	return sub
}

// Unsubscribe releases the subscription and closes its channel. Calling it
// more than once is safe.
func (n *Notifier) Unsubscribe(sub *Subscription) {
	n.Lock()
	defer n.Unlock()

	if _, ok := n.subs[sub.id]; !ok {
		return
	}

	delete(n.subs, sub.id)
	close(sub.ch)
}

// Broadcast queues the event to every subscriber without ever blocking.
// Subscribers with a full buffer miss the event.
func (n *Notifier) Broadcast(e Event) {
	n.Lock()
	defer n.Unlock()

	for _, sub := range n.subs {
		select {
		case sub.ch <- e:
		default:
			n.dropped++
			n.logger.WithFields(logrus.Fields{
				"subscriber": sub.id,
				"type":       e.Type,
			}).Debug("Subscriber lagging, dropping event")
		}
	}
}

// Len returns the number of active subscribers.
func (n *Notifier) Len() int {
	n.Lock()
	defer n.Unlock()

	return len(n.subs)
}
