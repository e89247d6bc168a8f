package overlay

import (
	"bytes"

	"github.com/ugorji/go/codec"

	"github.com/zetanetwork/zeta/src/feed"
)

// Message kinds carried on the shared topic.
const (
	KindPost      = "post"
	KindHeartbeat = "heartbeat"
)

// Envelope is the wire payload exchanged on the shared topic: a tagged union
// of a post, with the post fields inlined next to the kind tag, or a
// heartbeat marker. Foreign traffic on the topic is expected; anything that
// does not decode to a known kind is dropped by the consumer.
type Envelope struct {
	Kind string `json:"kind"`
	feed.Post
	PeerID string `json:"peer_id,omitempty"`
}

// NewPostEnvelope wraps a post for publication.
func NewPostEnvelope(post *feed.Post) *Envelope {
	return &Envelope{
		Kind: KindPost,
		Post: *post,
	}
}

// NewHeartbeatEnvelope creates a presence marker for the given peer.
func NewHeartbeatEnvelope(peerID string) *Envelope {
	return &Envelope{
		Kind:   KindHeartbeat,
		PeerID: peerID,
	}
}

// Marshal - json encoding of Envelope
func (e *Envelope) Marshal() ([]byte, error) {
	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)

	if err := enc.Encode(e); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// Unmarshal ...
func (e *Envelope) Unmarshal(data []byte) error {
	b := bytes.NewBuffer(data)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	dec := codec.NewDecoder(b, jh)

	return dec.Decode(e)
}
