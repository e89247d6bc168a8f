// Package service exposes the node's state to local clients: a small JSON
// API for synchronous queries, and a websocket endpoint over which browser
// sessions receive live change notifications and submit posts.
package service

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/zetanetwork/zeta/src/events"
	"github.com/zetanetwork/zeta/src/feed"
	"github.com/zetanetwork/zeta/src/node"
	"github.com/zetanetwork/zeta/src/peers"
)

// Service ...
type Service struct {
	sync.Mutex

	bindAddress string
	node        *node.Node
	notifier    *events.Notifier
	mux         *http.ServeMux
	upgrader    websocket.Upgrader
	logger      *logrus.Entry
}

// NewService ...
func NewService(bindAddress string, n *node.Node, notifier *events.Notifier, logger *logrus.Entry) *Service {
	service := Service{
		bindAddress: bindAddress,
		node:        n,
		notifier:    notifier,
		mux:         http.NewServeMux(),
		upgrader: websocket.Upgrader{
			// Browser clients connect from any origin, like the REST API.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
	}

	service.registerHandlers()

	return &service
}

func (s *Service) registerHandlers() {
	s.logger.Debug("Registering Zeta API handlers")
	s.mux.HandleFunc("/api/network", s.makeHandler(s.GetNetwork))
	s.mux.HandleFunc("/api/post", s.makeHandler(s.CreatePost))
	s.mux.HandleFunc("/stats", s.makeHandler(s.GetStats))
	s.mux.HandleFunc("/ws", s.ServeWS)
}

func (s *Service) makeHandler(fn func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.Lock()
		defer s.Unlock()

		// enable CORS
		w.Header().Set("Access-Control-Allow-Origin", "*")

		fn(w, r)
	}
}

// Handler returns the http.Handler serving the API. It is useful when the
// service is mounted on an existing server.
func (s *Service) Handler() http.Handler {
	return s.mux
}

// Serve calls ListenAndServe. This is a blocking call.
func (s *Service) Serve() {
	s.logger.WithField("bind_address", s.bindAddress).Debug("Serving Zeta API")

	err := http.ListenAndServe(s.bindAddress, s.mux)
	if err != nil {
		s.logger.Error(err)
	}
}

// networkInfo is the response of the /api/network endpoint.
type networkInfo struct {
	LocalPeerID string        `json:"local_peer_id"`
	LocalName   string        `json:"local_name"`
	Peers       []*peers.Peer `json:"peers"`
	Posts       []*feed.Post  `json:"posts"`
}

// postRequest is the body of the /api/post endpoint.
type postRequest struct {
	Content    string `json:"content"`
	AuthorName string `json:"author_name"`
}

// GetNetwork returns the local identity together with a snapshot of the peer
// directory and the feed.
func (s *Service) GetNetwork(w http.ResponseWriter, r *http.Request) {
	info := networkInfo{
		LocalPeerID: s.node.ID(),
		LocalName:   s.node.Moniker(),
		Peers:       s.node.GetPeers(),
		Posts:       s.node.GetPosts(),
	}

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(info)
}

// CreatePost submits a post authored by this node and returns it.
func (s *Service) CreatePost(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)

		return
	}

	var req postRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.logger.WithError(err).Error("Parsing post request")

		http.Error(w, err.Error(), http.StatusBadRequest)

		return
	}

	post := s.node.SubmitPost(req.Content, req.AuthorName)

	s.logger.WithFields(logrus.Fields{
		"id":     post.ID,
		"author": post.AuthorName,
	}).Debug("Post created via REST")

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(post)
}

// GetStats ...
func (s *Service) GetStats(w http.ResponseWriter, r *http.Request) {
	stats := s.node.GetStats()

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(stats)
}

// ServeWS upgrades the connection and hands it to a session bridge. The
// handler returns only when the session ends.
func (s *Service) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Error("Upgrading websocket connection")

		return
	}

	newSession(conn, s.node, s.notifier, s.logger).run()
}
