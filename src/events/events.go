// Package events implements the change notifications that fan out from the
// feed store and the peer directory to connected client sessions.
package events

import (
	"github.com/zetanetwork/zeta/src/feed"
)

// Event types. They double as the "type" field of outbound client frames.
const (
	PeerJoined = "peer_joined"
	PeerLeft   = "peer_left"
	NewPost    = "new_post"
	Init       = "init"
	Pong       = "pong"
)

// Event is a single change notification. Events are values: each subscriber
// gets its own copy and must not mutate shared payloads. Init frames are
// built per-session from store snapshots and are never broadcast; they only
// share the type namespace.
type Event struct {
	Type   string     `json:"type"`
	PeerID string     `json:"peer_id,omitempty"`
	Post   *feed.Post `json:"post,omitempty"`
}
