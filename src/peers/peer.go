package peers

// BrowserPrefix is the reserved id namespace for local browser sessions.
// Synthetic peers in this namespace are never dialed.
const BrowserPrefix = "browser-"

// Peer represents a directory-tracked endpoint.
type Peer struct {
	ID      string `json:"peer_id"`
	NetAddr string `json:"address"`
	Moniker string `json:"name,omitempty"`
	Browser bool   `json:"is_browser"`
}

// NewPeer creates a remote overlay peer.
func NewPeer(id, netAddr string) *Peer {
	return &Peer{
		ID:      id,
		NetAddr: netAddr,
	}
}

// NewBrowserPeer creates a synthetic peer for a local browser session.
func NewBrowserPeer(id, moniker string) *Peer {
	return &Peer{
		ID:      id,
		NetAddr: "websocket",
		Moniker: moniker,
		Browser: true,
	}
}

// ByID implements sort.Interface for []*Peer based on the ID field.
type ByID []*Peer

func (a ByID) Len() int           { return len(a) }
func (a ByID) Swap(i, j int)      { a[i], a[j] = a[j], a[i] }
func (a ByID) Less(i, j int) bool { return a[i].ID < a[j].ID }
