package peers

import (
	"sort"
	"sync"
)

// Directory is the liveness view of the network: peer id to metadata for
// every peer currently considered connected. Join and leave announcements are
// edge-triggered; the handlers run inside the critical section so that they
// fire in the same order as the transitions they describe.
type Directory struct {
	sync.RWMutex
	byID map[string]*Peer

	onJoin  func(*Peer)
	onLeave func(*Peer)
}

// NewDirectory creates an empty Directory.
func NewDirectory() *Directory {
	return &Directory{
		byID: make(map[string]*Peer),
	}
}

// SetHandlers registers the join/leave callbacks. It must be called before
// the Directory is used concurrently.
func (d *Directory) SetHandlers(onJoin, onLeave func(*Peer)) {
	d.Lock()
	defer d.Unlock()

	d.onJoin = onJoin
	d.onLeave = onLeave
}

// Upsert inserts or overwrites the peer. The join handler fires only when the
// id was previously absent; overwriting a present peer is last-write-wins on
// metadata and stays silent.
func (d *Directory) Upsert(peer *Peer) {
	d.Lock()
	defer d.Unlock()

	_, present := d.byID[peer.ID]
	d.byID[peer.ID] = peer

	if !present && d.onJoin != nil {
		d.onJoin(peer)
	}
}

// Remove deletes the peer with the given id. Removing an absent id is a
// silent no-op; the leave handler fires only when something was removed.
func (d *Directory) Remove(id string) {
	d.Lock()
	defer d.Unlock()

	peer, present := d.byID[id]
	if !present {
		return
	}

	delete(d.byID, id)

	if d.onLeave != nil {
		d.onLeave(peer)
	}
}

// Get returns the peer with the given id.
func (d *Directory) Get(id string) (*Peer, bool) {
	d.RLock()
	defer d.RUnlock()

	peer, ok := d.byID[id]

	return peer, ok
}

// List returns a sorted copy of the directory.
func (d *Directory) List() []*Peer {
	d.RLock()
	defer d.RUnlock()

	res := []*Peer{}

	for _, peer := range d.byID {
		res = append(res, peer)
	}

	sort.Sort(ByID(res))

	return res
}

// Len returns the number of connected peers.
func (d *Directory) Len() int {
	d.RLock()
	defer d.RUnlock()

	return len(d.byID)
}
