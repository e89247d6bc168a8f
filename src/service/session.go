package service

import (
	"encoding/json"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"github.com/zetanetwork/zeta/src/events"
	"github.com/zetanetwork/zeta/src/feed"
	"github.com/zetanetwork/zeta/src/node"
	"github.com/zetanetwork/zeta/src/peers"
)

// initFrame is the one-time snapshot sent to a session when it opens. It is
// never broadcast; late joiners recover state through it, not through
// replay.
type initFrame struct {
	Type   string        `json:"type"`
	PeerID string        `json:"peer_id"`
	Peers  []*peers.Peer `json:"peers"`
	Posts  []*feed.Post  `json:"posts"`
}

// inboundFrame is a client command. Only the fields relevant to the Type are
// set; id and timestamp are optional on post frames.
type inboundFrame struct {
	Type       string `json:"type"`
	ID         string `json:"id"`
	Content    string `json:"content"`
	AuthorName string `json:"author_name"`
	Timestamp  int64  `json:"timestamp"`
}

// session bridges one websocket client and the node. It appears in the peer
// directory under a synthetic browser peer id for as long as it lives.
type session struct {
	peerID   string
	conn     *websocket.Conn
	node     *node.Node
	notifier *events.Notifier
	sub      *events.Subscription

	// sendCh carries session-local replies; broadcast events arrive on the
	// subscription. A single goroutine owns conn for writing.
	sendCh   chan events.Event
	readDone chan struct{}

	logger *logrus.Entry
}

func newSession(conn *websocket.Conn, n *node.Node, notifier *events.Notifier, logger *logrus.Entry) *session {
	peerID := peers.BrowserPrefix + strings.ToLower(ulid.Make().String())

	return &session{
		peerID:   peerID,
		conn:     conn,
		node:     n,
		notifier: notifier,
		sendCh:   make(chan events.Event, 8),
		readDone: make(chan struct{}),
		logger:   logger.WithField("session", peerID),
	}
}

// run drives the session until the client disconnects or a write fails.
func (s *session) run() {
	s.logger.Debug("Session open")

	s.node.Directory().Upsert(peers.NewBrowserPeer(s.peerID, "Browser"))
	s.sub = s.notifier.Subscribe()

	defer s.teardown()

	init := initFrame{
		Type:   events.Init,
		PeerID: s.peerID,
		Peers:  s.node.GetPeers(),
		Posts:  s.node.GetPosts(),
	}

	if err := s.conn.WriteJSON(init); err != nil {
		s.logger.WithError(err).Debug("Writing init frame")
		return
	}

	go s.readPump()

	s.writeLoop()
}

// teardown removes every trace of the session: the synthetic peer leaves the
// directory, which announces peer_left to the remaining sessions.
func (s *session) teardown() {
	s.conn.Close()
	s.notifier.Unsubscribe(s.sub)
	s.node.Directory().Remove(s.peerID)

	s.logger.Debug("Session closed")
}

// writeLoop forwards notifier events and session-local replies to the
// client. Any write failure ends the session.
func (s *session) writeLoop() {
	for {
		select {
		case e, ok := <-s.sub.Events():
			if !ok {
				return
			}
			if err := s.conn.WriteJSON(e); err != nil {
				s.logger.WithError(err).Debug("Writing event")
				return
			}
		case e := <-s.sendCh:
			if err := s.conn.WriteJSON(e); err != nil {
				s.logger.WithError(err).Debug("Writing reply")
				return
			}
		case <-s.readDone:
			return
		}
	}
}

// readPump services inbound client frames until the connection drops.
func (s *session) readPump() {
	defer close(s.readDone)

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.logger.WithError(err).Debug("Session read")
			return
		}

		s.handleFrame(data)
	}
}

// handleFrame parses one client command. Malformed or unrecognized frames
// are ignored, never fatal.
func (s *session) handleFrame(data []byte) {
	var frame inboundFrame

	if err := json.Unmarshal(data, &frame); err != nil {
		s.logger.WithError(err).Warn("Ignoring malformed client frame")
		return
	}

	switch frame.Type {
	case "post":
		if frame.Content == "" || frame.AuthorName == "" {
			return
		}

		post := feed.NewPost(s.peerID, frame.AuthorName, frame.Content)
		if frame.ID != "" {
			post.ID = frame.ID
		}
		if frame.Timestamp != 0 {
			post.Timestamp = frame.Timestamp
		}

		s.node.Submit(post)

		s.logger.WithField("id", post.ID).Debug("Post submitted")
	case "ping":
		select {
		case s.sendCh <- events.Event{Type: events.Pong}:
		default:
		}
	default:
		s.logger.WithField("type", frame.Type).Debug("Ignoring unknown frame type")
	}
}
