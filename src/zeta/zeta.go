// Package zeta assembles a complete node out of its components: identity
// key, feed store, peer directory, change notifier, overlay, router and HTTP
// service.
package zeta

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/zetanetwork/zeta/src/config"
	"github.com/zetanetwork/zeta/src/events"
	"github.com/zetanetwork/zeta/src/feed"
	"github.com/zetanetwork/zeta/src/keys"
	"github.com/zetanetwork/zeta/src/node"
	"github.com/zetanetwork/zeta/src/overlay"
	"github.com/zetanetwork/zeta/src/overlay/mqtt"
	"github.com/zetanetwork/zeta/src/peers"
	"github.com/zetanetwork/zeta/src/service"
)

// Zeta is a feed-sharing node.
type Zeta struct {
	Config   *config.Config
	ID       string
	Store    feed.Store
	Peers    *peers.Directory
	Notifier *events.Notifier
	Overlay  overlay.Overlay
	Node     *node.Node
	Service  *service.Service

	bootstrapAddrs []string
}

// NewZeta ...
func NewZeta(config *config.Config) *Zeta {
	engine := &Zeta{
		Config: config,
	}

	return engine
}

// initKey loads the private key from the datadir, or creates one on first
// run. The hexadecimal public key becomes the node's peer id.
func (z *Zeta) initKey() error {
	if z.Config.Key == nil {
		keyfile := keys.NewSimpleKeyfile(z.Config.Keyfile())

		privKey, err := keyfile.ReadKey()

		if err != nil {
			z.Config.Logger().Warn("Cannot read private key from file", err)

			privKey, err = Keygen(z.Config.Keyfile())

			if err != nil {
				z.Config.Logger().Error("Cannot generate a new private key", err)

				return err
			}

			z.Config.Logger().Info("Created a new key: ", keys.PublicKeyHex(&privKey.PublicKey))
		}

		z.Config.Key = privKey
	}

	z.ID = keys.PublicKeyHex(&z.Config.Key.PublicKey)

	if z.Config.Moniker == "" {
		z.Config.Moniker = fmt.Sprintf("Peer-%s", node.ShortID(z.ID))
	}

	return nil
}

// initBootstrap reads the rendezvous addresses from bootstrap.json in the
// datadir. When the file is absent, the configured default broker is used.
func (z *Zeta) initBootstrap() error {
	bootstrap := peers.NewJSONBootstrap(z.Config.DataDir)

	addrs, err := bootstrap.Addrs()

	if err != nil {
		return err
	}

	if len(addrs) == 0 {
		addrs = []string{z.Config.Broker}
	}

	z.bootstrapAddrs = addrs

	return nil
}

func (z *Zeta) initNotifier() error {
	z.Notifier = events.NewNotifier(z.Config.Logger())

	return nil
}

// initStore creates the feed store and wires its change notifications into
// the notifier.
func (z *Zeta) initStore() error {
	if !z.Config.Store {
		z.Store = feed.NewInmemStore(z.Config.CacheSize)

		z.Config.Logger().Debug("created new in-mem store")
	} else {
		var err error

		z.Config.Logger().WithField("path", z.Config.DatabaseDir).Debug("Attempting to load or create database")

		z.Store, err = feed.NewBadgerStore(z.Config.CacheSize, z.Config.DatabaseDir, z.Config.Logger())

		if err != nil {
			return err
		}

		if z.Store.NeedBootstrap() {
			z.Config.Logger().Debug("loaded badger store from existing database")
		} else {
			z.Config.Logger().Debug("created new badger store from fresh database")
		}
	}

	z.Store.SetNotify(func(post *feed.Post) {
		z.Notifier.Broadcast(events.Event{
			Type: events.NewPost,
			Post: post,
		})
	})

	return nil
}

// initDirectory creates the peer directory and wires its join/leave edges
// into the notifier.
func (z *Zeta) initDirectory() error {
	z.Peers = peers.NewDirectory()

	z.Peers.SetHandlers(
		func(peer *peers.Peer) {
			z.Notifier.Broadcast(events.Event{
				Type:   events.PeerJoined,
				PeerID: peer.ID,
			})
		},
		func(peer *peers.Peer) {
			z.Notifier.Broadcast(events.Event{
				Type:   events.PeerLeft,
				PeerID: peer.ID,
			})
		},
	)

	return nil
}

// initOverlay installs the overlay from the config, or creates the MQTT
// overlay.
func (z *Zeta) initOverlay() error {
	if z.Config.Overlay != nil {
		z.Overlay = z.Config.Overlay

		return nil
	}

	z.Overlay = mqtt.New(mqtt.Config{
		PeerID:            z.ID,
		HeartbeatInterval: z.Config.HeartbeatInterval,
		PresenceTimeout:   z.Config.PresenceTimeout,
		Logger:            z.Config.Logger(),
	})

	return nil
}

func (z *Zeta) initNode() error {
	nodeConfig := node.NewConfig(
		z.Config.Topic,
		z.Config.ReconnectInterval,
		z.Config.RawLogger(),
	)

	z.Node = node.NewNode(
		nodeConfig,
		z.ID,
		z.Config.Moniker,
		z.Store,
		z.Peers,
		z.Overlay,
		z.bootstrapAddrs,
	)

	if err := z.Node.Init(); err != nil {
		return fmt.Errorf("failed to initialize node: %s", err)
	}

	return nil
}

func (z *Zeta) initService() error {
	if !z.Config.NoService {
		z.Service = service.NewService(z.Config.ServiceAddr, z.Node, z.Notifier, z.Config.Logger())
	}

	return nil
}

// Init runs the initialization pipeline. The order matters: the notifier
// must exist before the stores that feed it, and the overlay before the node
// that owns it.
func (z *Zeta) Init() error {
	if err := z.initKey(); err != nil {
		return err
	}

	if err := z.initBootstrap(); err != nil {
		return err
	}

	if err := z.initNotifier(); err != nil {
		return err
	}

	if err := z.initStore(); err != nil {
		return err
	}

	if err := z.initDirectory(); err != nil {
		return err
	}

	if err := z.initOverlay(); err != nil {
		return err
	}

	if err := z.initNode(); err != nil {
		return err
	}

	if err := z.initService(); err != nil {
		return err
	}

	return nil
}

// Run starts the service and the node's main loop. This is a blocking call.
func (z *Zeta) Run() {
	if z.Service != nil {
		go z.Service.Serve()
	}

	z.Node.Run()
}

// Keygen generates a new key-pair and saves it in keyfile. It refuses to
// overwrite an existing key.
func Keygen(keyfile string) (*ecdsa.PrivateKey, error) {
	simpleKeyfile := keys.NewSimpleKeyfile(keyfile)

	_, err := simpleKeyfile.ReadKey()

	if err == nil {
		return nil, fmt.Errorf("another key already lives under %s", keyfile)
	}

	privKey, err := keys.GenerateECDSAKey()

	if err != nil {
		return nil, err
	}

	if err := simpleKeyfile.WriteKey(privKey); err != nil {
		return nil, err
	}

	return privKey, nil
}
