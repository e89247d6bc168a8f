package node

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/zetanetwork/zeta/src/feed"
	"github.com/zetanetwork/zeta/src/overlay"
	"github.com/zetanetwork/zeta/src/peers"
)

// fakeOverlay is a scriptable Overlay for exercising the router without a
// network.
type fakeOverlay struct {
	sync.Mutex
	localAddr  string
	publishErr error
	dialErr    error
	dials      []string
	eventCh    chan overlay.Event
}

func newFakeOverlay(localAddr string) *fakeOverlay {
	return &fakeOverlay{
		localAddr: localAddr,
		eventCh:   make(chan overlay.Event, 64),
	}
}

func (o *fakeOverlay) Subscribe(topic string) error { return nil }

func (o *fakeOverlay) Publish(topic string, payload []byte) error {
	o.Lock()
	defer o.Unlock()

	return o.publishErr
}

func (o *fakeOverlay) Dial(addr string) error {
	o.Lock()
	defer o.Unlock()

	o.dials = append(o.dials, addr)

	return o.dialErr
}

func (o *fakeOverlay) Events() <-chan overlay.Event { return o.eventCh }

func (o *fakeOverlay) LocalAddr() string { return o.localAddr }

func (o *fakeOverlay) Close() error { return nil }

func (o *fakeOverlay) dialed() []string {
	o.Lock()
	defer o.Unlock()

	res := make([]string, len(o.dials))
	copy(res, o.dials)

	return res
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("timeout waiting for %s", what)
}

func TestPublishFailureDoesNotLosePost(t *testing.T) {
	over := newFakeOverlay("")
	over.publishErr = fmt.Errorf("no connected brokers")

	store := feed.NewInmemStore(10)
	dir := peers.NewDirectory()

	n := NewNode(TestConfig(t), "idA", "NodeA", store, dir, over, nil)

	if err := n.Init(); err != nil {
		t.Fatal(err)
	}

	n.RunAsync()
	defer n.Shutdown()

	post := n.SubmitPost("hello", "")

	if post.AuthorName != "NodeA" {
		t.Fatalf("author name = %s, expected the moniker", post.AuthorName)
	}

	if post.Author != "idA" {
		t.Fatalf("author = %s, expected idA", post.Author)
	}

	// The author must always see their own post, even with no mesh.
	waitFor(t, time.Second, "post in local feed", func() bool {
		return store.Len() == 1
	})

	if stats := n.GetStats(); stats["publish_errors"] != "1" {
		t.Fatalf("publish_errors = %s, expected 1", stats["publish_errors"])
	}
}

func TestOverlayEventsDriveDirectory(t *testing.T) {
	over := newFakeOverlay("addrA")

	store := feed.NewInmemStore(10)
	dir := peers.NewDirectory()

	n := NewNode(TestConfig(t), "idA", "NodeA", store, dir, over, nil)

	if err := n.Init(); err != nil {
		t.Fatal(err)
	}

	n.RunAsync()
	defer n.Shutdown()

	over.eventCh <- overlay.Event{Type: overlay.PeerDiscovered, PeerID: "idB", Addr: "addrB"}

	waitFor(t, time.Second, "idB to join", func() bool {
		_, ok := dir.Get("idB")
		return ok
	})

	// Closing one of several connections does not make the peer leave.
	over.eventCh <- overlay.Event{Type: overlay.ConnectionClosed, PeerID: "idB", Remaining: 1}
	over.eventCh <- overlay.Event{Type: overlay.ConnectionEstablished, PeerID: "idC", Addr: "addrC"}

	waitFor(t, time.Second, "idC to join", func() bool {
		_, ok := dir.Get("idC")
		return ok
	})

	if _, ok := dir.Get("idB"); !ok {
		t.Fatal("idB left the directory on a non-final ConnectionClosed")
	}

	over.eventCh <- overlay.Event{Type: overlay.ConnectionClosed, PeerID: "idC", Remaining: 0}

	waitFor(t, time.Second, "idC to leave", func() bool {
		_, ok := dir.Get("idC")
		return !ok
	})

	over.eventCh <- overlay.Event{Type: overlay.PeerExpired, PeerID: "idB"}

	waitFor(t, time.Second, "idB to expire", func() bool {
		return dir.Len() == 0
	})
}

func TestForeignPayloadIgnored(t *testing.T) {
	over := newFakeOverlay("")

	store := feed.NewInmemStore(10)
	dir := peers.NewDirectory()

	n := NewNode(TestConfig(t), "idA", "NodeA", store, dir, over, nil)

	if err := n.Init(); err != nil {
		t.Fatal(err)
	}

	n.RunAsync()
	defer n.Shutdown()

	over.eventCh <- overlay.Event{Type: overlay.Message, Payload: []byte("not json at all")}
	over.eventCh <- overlay.Event{Type: overlay.Message, Payload: []byte(`{"kind":"telemetry"}`)}

	post := feed.NewPost("idB", "Bob", "still works")
	data, err := overlay.NewPostEnvelope(post).Marshal()
	if err != nil {
		t.Fatal(err)
	}

	over.eventCh <- overlay.Event{Type: overlay.Message, Payload: data}

	waitFor(t, time.Second, "valid post to land", func() bool {
		return store.Len() == 1
	})

	if snap := store.Snapshot(); snap[0].ID != post.ID {
		t.Fatalf("stored post = %s, expected %s", snap[0].ID, post.ID)
	}
}

func TestNodesGossip(t *testing.T) {
	network := overlay.NewInmemNetwork()

	overA := network.NewOverlay("idA", "addrA")
	overB := network.NewOverlay("idB", "addrB")

	storeA := feed.NewInmemStore(100)
	storeB := feed.NewInmemStore(100)

	dirA := peers.NewDirectory()
	dirB := peers.NewDirectory()

	// A's bootstrap list contains its own address, which must be filtered.
	nodeA := NewNode(TestConfig(t), "idA", "NodeA", storeA, dirA, overA, []string{"addrB", "addrA"})
	nodeB := NewNode(TestConfig(t), "idB", "NodeB", storeB, dirB, overB, nil)

	for _, n := range []*Node{nodeA, nodeB} {
		if err := n.Init(); err != nil {
			t.Fatal(err)
		}
		n.RunAsync()
		defer n.Shutdown()
	}

	waitFor(t, time.Second, "directories to converge", func() bool {
		_, okA := dirA.Get("idB")
		_, okB := dirB.Get("idA")
		return okA && okB
	})

	postA := nodeA.SubmitPost("first", "")

	waitFor(t, time.Second, "first post to reach B", func() bool {
		return storeB.Len() == 1
	})

	postB := nodeB.SubmitPost("second", "")

	waitFor(t, time.Second, "second post to reach both", func() bool {
		return storeA.Len() == 2 && storeB.Len() == 2
	})

	// Both feeds agree on content and order, newest first.
	for _, store := range []feed.Store{storeA, storeB} {
		snap := store.Snapshot()
		if snap[0].ID != postB.ID || snap[1].ID != postA.ID {
			t.Fatalf("feed order = [%s %s], expected [%s %s]",
				snap[0].ID, snap[1].ID, postB.ID, postA.ID)
		}
	}

	// Re-delivering a known post is a no-op everywhere.
	nodeA.Submit(postA)

	postC := nodeA.SubmitPost("third", "")

	waitFor(t, time.Second, "third post to reach B", func() bool {
		snap := storeB.Snapshot()
		return len(snap) > 0 && snap[0].ID == postC.ID
	})

	if storeA.Len() != 3 || storeB.Len() != 3 {
		t.Fatalf("feed sizes = %d/%d, expected 3/3", storeA.Len(), storeB.Len())
	}
}
