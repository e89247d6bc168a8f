// Package mqtt implements the Overlay interface on top of one or more MQTT
// brokers. Brokers play the role of rendezvous points: every node publishes
// and subscribes on the shared topic, and peer presence is derived from the
// heartbeat markers carried on that topic.
package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/zetanetwork/zeta/src/overlay"
)

// Default configuration values.
const (
	DefaultConnectTimeout    = 10 * time.Second
	DefaultHeartbeatInterval = 10 * time.Second
	DefaultPresenceTimeout   = 30 * time.Second
)

// Config holds the configuration of an MQTT overlay.
type Config struct {
	// PeerID is the local peer id, stamped on outgoing heartbeats.
	PeerID string

	// Addr is the best-known local address, used only for self-dial
	// filtering by the consumer. It may be empty.
	Addr string

	// Username and Password authenticate with the brokers. Leave empty if
	// not required.
	Username string
	Password string

	// HeartbeatInterval is the period of presence announcements.
	HeartbeatInterval time.Duration

	// PresenceTimeout is how long a peer may stay silent before it is
	// reported expired.
	PresenceTimeout time.Duration

	// ConnectTimeout bounds the initial connection to a broker.
	ConnectTimeout time.Duration

	Logger *logrus.Entry
}

// Overlay implements overlay.Overlay over MQTT brokers. Dial targets are
// broker addresses; dialing an address that already has a client is a no-op,
// which makes the periodic redial loop of the consumer safe.
type Overlay struct {
	sync.RWMutex
	cfg     Config
	clients map[string]paho.Client
	topics  map[string]bool
	seen    map[string]time.Time
	eventCh chan overlay.Event

	shutdownCh chan struct{}
	closeOnce  sync.Once

	logger *logrus.Entry
}

// New creates an MQTT overlay and starts its presence loop. No broker is
// contacted until Dial is called.
func New(cfg Config) *Overlay {
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.PresenceTimeout == 0 {
		cfg.PresenceTimeout = DefaultPresenceTimeout
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.NewEntry(logrus.New())
	}

	o := &Overlay{
		cfg:        cfg,
		clients:    make(map[string]paho.Client),
		topics:     make(map[string]bool),
		seen:       make(map[string]time.Time),
		eventCh:    make(chan overlay.Event, 64),
		shutdownCh: make(chan struct{}),
		logger:     cfg.Logger.WithField("prefix", "mqtt"),
	}

	go o.run()

	return o
}

// Subscribe implements the Overlay interface. The subscription is replayed
// on every broker client, present and future.
func (o *Overlay) Subscribe(topic string) error {
	o.Lock()
	o.topics[topic] = true
	clients := o.connectedClients()
	o.Unlock()

	for _, client := range clients {
		client.Subscribe(topic, 0, o.handleMessage)
	}

	return nil
}

// Publish implements the Overlay interface. The payload goes out through
// every connected broker; duplicate delivery to peers reachable through
// several brokers is expected and harmless.
func (o *Overlay) Publish(topic string, payload []byte) error {
	o.RLock()
	clients := o.connectedClients()
	o.RUnlock()

	if len(clients) == 0 {
		return fmt.Errorf("no connected brokers")
	}

	var lastErr error
	published := 0

	for _, client := range clients {
		token := client.Publish(topic, 0, false, payload)
		if !token.WaitTimeout(o.cfg.ConnectTimeout) {
			lastErr = fmt.Errorf("timeout publishing to broker")
			continue
		}
		if err := token.Error(); err != nil {
			lastErr = err
			continue
		}
		published++
	}

	if published == 0 {
		return lastErr
	}

	return nil
}

// Dial implements the Overlay interface. It lazily creates a client for the
// broker at addr. Once created, a client reconnects on its own; re-dialing
// it is a no-op.
func (o *Overlay) Dial(addr string) error {
	o.Lock()
	if _, ok := o.clients[addr]; ok {
		o.Unlock()
		return nil
	}
	o.Unlock()

	opts := paho.NewClientOptions().
		AddBroker(addr).
		SetClientID(o.clientID(addr)).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(2 * time.Minute).
		SetKeepAlive(60 * time.Second).
		SetCleanSession(true).
		SetOrderMatters(false).
		SetOnConnectHandler(o.onConnected).
		SetConnectionLostHandler(o.onConnectionLost)

	if o.cfg.Username != "" {
		opts.SetUsername(o.cfg.Username)
	}
	if o.cfg.Password != "" {
		opts.SetPassword(o.cfg.Password)
	}

	client := paho.NewClient(opts)

	token := client.Connect()
	if !token.WaitTimeout(o.cfg.ConnectTimeout) {
		return fmt.Errorf("timeout connecting to broker %s", addr)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connecting to broker %s: %s", addr, err)
	}

	o.Lock()
	o.clients[addr] = client
	o.Unlock()

	o.logger.WithField("broker", addr).Debug("Connected to broker")

	return nil
}

// Events implements the Overlay interface.
func (o *Overlay) Events() <-chan overlay.Event {
	return o.eventCh
}

// LocalAddr implements the Overlay interface.
func (o *Overlay) LocalAddr() string {
	return o.cfg.Addr
}

// Close implements the Overlay interface.
func (o *Overlay) Close() error {
	o.closeOnce.Do(func() {
		close(o.shutdownCh)

		o.Lock()
		clients := o.clients
		o.clients = make(map[string]paho.Client)
		o.Unlock()

		for _, client := range clients {
			client.Disconnect(250)
		}
	})

	return nil
}

func (o *Overlay) clientID(addr string) string {
	id := o.cfg.PeerID
	if len(id) > 16 {
		id = id[len(id)-16:]
	}
	return "zeta-" + id
}

// connectedClients must be called with at least a read lock held.
func (o *Overlay) connectedClients() []paho.Client {
	clients := []paho.Client{}
	for _, client := range o.clients {
		if client.IsConnected() {
			clients = append(clients, client)
		}
	}
	return clients
}

func (o *Overlay) onConnected(client paho.Client) {
	o.RLock()
	topics := []string{}
	for topic := range o.topics {
		topics = append(topics, topic)
	}
	o.RUnlock()

	for _, topic := range topics {
		client.Subscribe(topic, 0, o.handleMessage)
	}
}

func (o *Overlay) onConnectionLost(client paho.Client, err error) {
	o.logger.WithError(err).Debug("Broker connection lost")
}

// handleMessage forwards the raw payload to the consumer and, when it is a
// heartbeat from another peer, refreshes that peer's presence.
func (o *Overlay) handleMessage(client paho.Client, message paho.Message) {
	payload := message.Payload()

	env := new(overlay.Envelope)
	if err := env.Unmarshal(payload); err == nil &&
		env.Kind == overlay.KindHeartbeat &&
		env.PeerID != "" &&
		env.PeerID != o.cfg.PeerID {
		o.touch(env.PeerID)
	}

	o.deliver(overlay.Event{Type: overlay.Message, Payload: payload})
}

// touch records a heartbeat and announces the peer the first time it is
// heard.
func (o *Overlay) touch(peerID string) {
	o.Lock()
	_, known := o.seen[peerID]
	o.seen[peerID] = time.Now()
	o.Unlock()

	if !known {
		o.deliver(overlay.Event{Type: overlay.PeerDiscovered, PeerID: peerID})
	}
}

// run publishes heartbeats and expires silent peers until Close.
func (o *Overlay) run() {
	ticker := time.NewTicker(o.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			o.publishHeartbeats()
			o.reapExpired()
		case <-o.shutdownCh:
			return
		}
	}
}

func (o *Overlay) publishHeartbeats() {
	o.RLock()
	topics := []string{}
	for topic := range o.topics {
		topics = append(topics, topic)
	}
	o.RUnlock()

	env := overlay.NewHeartbeatEnvelope(o.cfg.PeerID)
	data, err := env.Marshal()
	if err != nil {
		o.logger.WithError(err).Error("Encoding heartbeat")
		return
	}

	for _, topic := range topics {
		if err := o.Publish(topic, data); err != nil {
			o.logger.WithError(err).Debug("Publishing heartbeat")
		}
	}
}

func (o *Overlay) reapExpired() {
	now := time.Now()

	o.Lock()
	expired := []string{}
	for peerID, last := range o.seen {
		if now.Sub(last) > o.cfg.PresenceTimeout {
			delete(o.seen, peerID)
			expired = append(expired, peerID)
		}
	}
	o.Unlock()

	for _, peerID := range expired {
		o.logger.WithField("peer", peerID).Debug("Peer expired")
		o.deliver(overlay.Event{Type: overlay.PeerExpired, PeerID: peerID})
	}
}

// deliver queues an event without ever blocking a broker callback.
func (o *Overlay) deliver(e overlay.Event) {
	select {
	case o.eventCh <- e:
	default:
	}
}
