package node

import (
	"os"
	"os/signal"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/zetanetwork/zeta/src/feed"
	"github.com/zetanetwork/zeta/src/overlay"
	"github.com/zetanetwork/zeta/src/peers"
)

//Node defines a zeta node
type Node struct {
	conf   *Config
	logger *logrus.Entry

	id      string
	moniker string

	feed feed.Store
	dir  *peers.Directory

	over  overlay.Overlay
	netCh <-chan overlay.Event

	submitCh chan *feed.Post

	sigintCh   chan os.Signal
	shutdownCh chan struct{}
	shutdown   sync.Once

	controlTimer *ControlTimer
	reconnect    *Reconnector

	start         time.Time
	publishErrors int64
}

//NewNode is a factory method that returns a Node instance
func NewNode(conf *Config,
	id string,
	moniker string,
	store feed.Store,
	dir *peers.Directory,
	over overlay.Overlay,
	bootstrapAddrs []string,
) *Node {
	//Prepare sigintCh to relay SIGINT system calls
	sigintCh := make(chan os.Signal, 1)
	signal.Notify(sigintCh, os.Interrupt, syscall.SIGINT)

	logger := conf.Logger.WithField("this_id", ShortID(id))

	node := Node{
		conf:         conf,
		logger:       logger,
		id:           id,
		moniker:      moniker,
		feed:         store,
		dir:          dir,
		over:         over,
		netCh:        over.Events(),
		submitCh:     make(chan *feed.Post, 64),
		sigintCh:     sigintCh,
		shutdownCh:   make(chan struct{}),
		controlTimer: NewReconnectTimer(),
		reconnect:    NewReconnector(over, bootstrapAddrs, id, logger),
	}

	return &node
}

//Init subscribes to the shared topic. It must be called before Run.
func (n *Node) Init() error {
	n.logger.WithField("topic", n.conf.Topic).Debug("Subscribing")

	return n.over.Subscribe(n.conf.Topic)
}

//RunAsync calls Run as a separate thread
func (n *Node) RunAsync() {
	go n.Run()
}

//Run invokes the main loop of the node. The loop multiplexes the three event
//sources - overlay traffic, local submissions and the reconnection timer -
//and only returns on Shutdown.
func (n *Node) Run() {
	go n.controlTimer.Run(n.conf.ReconnectInterval)

	n.start = time.Now()

	//Connect to the rendezvous addresses without waiting a full interval.
	n.reconnect.EnsureConnections()

	for {
		select {
		case e := <-n.netCh:
			n.processOverlayEvent(e)
		case post := <-n.submitCh:
			n.publishPost(post)
		case <-n.controlTimer.tickCh:
			n.reconnect.EnsureConnections()
			n.controlTimer.resetCh <- n.conf.ReconnectInterval
		case <-n.sigintCh:
			n.logger.Debug("Reacting to SIGINT - Shutdown")
			n.Shutdown()
			return
		case <-n.shutdownCh:
			return
		}
	}
}

//processOverlayEvent applies one inbound overlay event to the local state.
func (n *Node) processOverlayEvent(e overlay.Event) {
	switch e.Type {
	case overlay.Message:
		n.processMessage(e.Payload)
	case overlay.PeerDiscovered:
		n.logger.WithFields(logrus.Fields{
			"peer": ShortID(e.PeerID),
			"addr": e.Addr,
		}).Debug("Peer discovered")
		n.dir.Upsert(peers.NewPeer(e.PeerID, e.Addr))
	case overlay.PeerExpired:
		n.logger.WithField("peer", ShortID(e.PeerID)).Debug("Peer expired")
		n.dir.Remove(e.PeerID)
	case overlay.ConnectionEstablished:
		n.logger.WithField("peer", ShortID(e.PeerID)).Debug("Connection established")
		n.dir.Upsert(peers.NewPeer(e.PeerID, e.Addr))
	case overlay.ConnectionClosed:
		//A peer can hold several transport-level connections; only the last
		//one closing makes it leave the directory.
		if e.Remaining == 0 {
			n.logger.WithField("peer", ShortID(e.PeerID)).Debug("Connection closed")
			n.dir.Remove(e.PeerID)
		}
	case overlay.Listening:
		n.logger.WithField("addr", e.Addr).Info("Listening")
		n.reconnect.SetLocalAddr(e.Addr)
	}
}

//processMessage decodes one payload from the shared topic. Anything that
//does not decode to a known kind is foreign traffic and is dropped.
func (n *Node) processMessage(payload []byte) {
	env := new(overlay.Envelope)

	if err := env.Unmarshal(payload); err != nil {
		n.logger.WithError(err).Debug("Dropping undecodable payload")
		return
	}

	switch env.Kind {
	case overlay.KindPost:
		post := env.Post
		if n.feed.Add(&post) {
			n.logger.WithFields(logrus.Fields{
				"id":     post.ID,
				"author": post.AuthorName,
			}).Debug("New post")
		}
	case overlay.KindHeartbeat:
		//presence is handled by the overlay
	default:
		n.logger.WithField("kind", env.Kind).Debug("Dropping unknown payload kind")
	}
}

//publishPost publishes a locally created post and stores it. A failed
//publish never keeps the post out of the local feed: the author must always
//see their own posts, even when the mesh is momentarily empty.
func (n *Node) publishPost(post *feed.Post) {
	env := overlay.NewPostEnvelope(post)

	data, err := env.Marshal()
	if err != nil {
		n.logger.WithError(err).Error("Encoding post")
	} else if err := n.over.Publish(n.conf.Topic, data); err != nil {
		atomic.AddInt64(&n.publishErrors, 1)
		n.logger.WithError(err).Error("Publishing post")
	} else {
		n.logger.WithField("id", post.ID).Debug("Published post")
	}

	n.feed.Add(post)
}

//Submit queues a locally created post for publication and storage.
func (n *Node) Submit(post *feed.Post) {
	select {
	case n.submitCh <- post:
	case <-n.shutdownCh:
	}
}

//SubmitPost creates a post authored by this node and submits it. It is the
//synchronous query surface used by the HTTP API.
func (n *Node) SubmitPost(content, authorName string) *feed.Post {
	if authorName == "" {
		authorName = n.moniker
	}

	post := feed.NewPost(n.id, authorName, content)

	n.Submit(post)

	return post
}

//Shutdown shuts down the node
func (n *Node) Shutdown() {
	n.shutdown.Do(func() {
		n.logger.Debug("Shutdown")

		close(n.shutdownCh)

		n.controlTimer.Shutdown()

		//the overlay should only be closed once the loop has no more reason
		//to use it
		n.over.Close()

		if err := n.feed.Close(); err != nil {
			n.logger.WithError(err).Error("Closing feed store")
		}
	})
}

//ID returns the local peer id
func (n *Node) ID() string {
	return n.id
}

//Moniker returns the friendly name of this node
func (n *Node) Moniker() string {
	return n.moniker
}

//Directory returns the peer directory
func (n *Node) Directory() *peers.Directory {
	return n.dir
}

//GetPeers returns the currently connected peers
func (n *Node) GetPeers() []*peers.Peer {
	return n.dir.List()
}

//GetPosts returns a snapshot of the feed, newest first
func (n *Node) GetPosts() []*feed.Post {
	return n.feed.Snapshot()
}

//GetStats returns stats
func (n *Node) GetStats() map[string]string {
	timeElapsed := time.Since(n.start)

	s := map[string]string{
		"id":             ShortID(n.id),
		"moniker":        n.moniker,
		"topic":          n.conf.Topic,
		"num_peers":      strconv.Itoa(n.dir.Len()),
		"num_posts":      strconv.Itoa(n.feed.Len()),
		"publish_errors": strconv.FormatInt(atomic.LoadInt64(&n.publishErrors), 10),
		"dial_attempts":  strconv.FormatInt(n.reconnect.Dials(), 10),
		"dial_errors":    strconv.FormatInt(n.reconnect.DialErrors(), 10),
		"uptime":         timeElapsed.String(),
	}

	return s
}

//ShortID compresses a peer id for logging. Public-key peer ids are long.
func ShortID(id string) string {
	if len(id) <= 10 {
		return id
	}
	return id[:10]
}
