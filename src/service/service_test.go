package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zetanetwork/zeta/src/common"
	"github.com/zetanetwork/zeta/src/events"
	"github.com/zetanetwork/zeta/src/feed"
	"github.com/zetanetwork/zeta/src/node"
	"github.com/zetanetwork/zeta/src/overlay"
	"github.com/zetanetwork/zeta/src/peers"
)

// wsFrame covers every outbound frame shape for decoding in tests.
type wsFrame struct {
	Type   string        `json:"type"`
	PeerID string        `json:"peer_id"`
	Post   *feed.Post    `json:"post"`
	Peers  []*peers.Peer `json:"peers"`
	Posts  []*feed.Post  `json:"posts"`
}

type testFixture struct {
	node     *node.Node
	store    *feed.InmemStore
	dir      *peers.Directory
	notifier *events.Notifier
	server   *httptest.Server
}

func newTestFixture(t *testing.T) *testFixture {
	store := feed.NewInmemStore(100)
	dir := peers.NewDirectory()
	notifier := events.NewNotifier(common.NewTestEntry(t))

	// Same wiring as the engine: store and directory changes fan out.
	store.SetNotify(func(post *feed.Post) {
		notifier.Broadcast(events.Event{Type: events.NewPost, Post: post})
	})
	dir.SetHandlers(
		func(p *peers.Peer) {
			notifier.Broadcast(events.Event{Type: events.PeerJoined, PeerID: p.ID})
		},
		func(p *peers.Peer) {
			notifier.Broadcast(events.Event{Type: events.PeerLeft, PeerID: p.ID})
		},
	)

	over := overlay.NewInmemNetwork().NewOverlay("idA", "addrA")

	n := node.NewNode(node.TestConfig(t), "idA", "NodeA", store, dir, over, nil)

	if err := n.Init(); err != nil {
		t.Fatal(err)
	}

	n.RunAsync()

	svc := NewService("127.0.0.1:0", n, notifier, common.NewTestEntry(t))
	server := httptest.NewServer(svc.Handler())

	t.Cleanup(func() {
		server.Close()
		n.Shutdown()
	})

	return &testFixture{
		node:     n,
		store:    store,
		dir:      dir,
		notifier: notifier,
		server:   server,
	}
}

func (f *testFixture) wsURL() string {
	return "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws"
}

func (f *testFixture) dialWS(t *testing.T) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial(f.wsURL(), nil)
	if err != nil {
		t.Fatalf("dialing websocket: %v", err)
	}

	t.Cleanup(func() { conn.Close() })

	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) wsFrame {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var frame wsFrame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("reading frame: %v", err)
	}

	return frame
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

func TestGetNetwork(t *testing.T) {
	f := newTestFixture(t)

	f.store.Add(feed.NewPost("idB", "Bob", "hello"))
	f.dir.Upsert(peers.NewPeer("idB", "addrB"))

	resp, err := http.Get(f.server.URL + "/api/network")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, expected 200", resp.StatusCode)
	}

	var info struct {
		LocalPeerID string        `json:"local_peer_id"`
		LocalName   string        `json:"local_name"`
		Peers       []*peers.Peer `json:"peers"`
		Posts       []*feed.Post  `json:"posts"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		t.Fatal(err)
	}

	if info.LocalPeerID != "idA" || info.LocalName != "NodeA" {
		t.Fatalf("local identity = %s/%s, expected idA/NodeA", info.LocalPeerID, info.LocalName)
	}

	if len(info.Peers) != 1 || info.Peers[0].ID != "idB" {
		t.Fatalf("peers = %v, expected [idB]", info.Peers)
	}

	if len(info.Posts) != 1 || info.Posts[0].Content != "hello" {
		t.Fatalf("posts = %v, expected one post", info.Posts)
	}
}

func TestCreatePost(t *testing.T) {
	f := newTestFixture(t)

	body := bytes.NewBufferString(`{"content":"hello world","author_name":"Zed"}`)

	resp, err := http.Post(f.server.URL+"/api/post", "application/json", body)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, expected 200", resp.StatusCode)
	}

	var post feed.Post
	if err := json.NewDecoder(resp.Body).Decode(&post); err != nil {
		t.Fatal(err)
	}

	if post.Content != "hello world" || post.AuthorName != "Zed" || post.Author != "idA" {
		t.Fatalf("unexpected post: %+v", post)
	}

	waitFor(t, time.Second, "post in feed", func() bool {
		return f.store.Len() == 1
	})
}

func TestCreatePostErrors(t *testing.T) {
	f := newTestFixture(t)

	resp, err := http.Get(f.server.URL + "/api/post")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, expected 405", resp.StatusCode)
	}

	resp, err = http.Post(f.server.URL+"/api/post", "application/json", bytes.NewBufferString("{"))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, expected 400", resp.StatusCode)
	}
}

func TestGetStats(t *testing.T) {
	f := newTestFixture(t)

	resp, err := http.Get(f.server.URL + "/stats")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var stats map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatal(err)
	}

	if stats["moniker"] != "NodeA" {
		t.Fatalf("stats moniker = %s, expected NodeA", stats["moniker"])
	}

	if _, ok := stats["num_posts"]; !ok {
		t.Fatal("stats missing num_posts")
	}
}

func TestSessionInit(t *testing.T) {
	f := newTestFixture(t)

	posts := []*feed.Post{}
	for i := 0; i < 3; i++ {
		post := feed.NewPost("idB", "Bob", fmt.Sprintf("post %d", i))
		posts = append(posts, post)
		f.store.Add(post)
	}

	f.dir.Upsert(peers.NewPeer("idB", "addrB"))
	f.dir.Upsert(peers.NewPeer("idC", "addrC"))

	conn := f.dialWS(t)

	init := readFrame(t, conn)

	if init.Type != events.Init {
		t.Fatalf("first frame type = %s, expected init", init.Type)
	}

	if !strings.HasPrefix(init.PeerID, peers.BrowserPrefix) {
		t.Fatalf("session peer id = %s, expected %s prefix", init.PeerID, peers.BrowserPrefix)
	}

	// The snapshot contains the two remote peers plus the session itself.
	if len(init.Peers) != 3 {
		t.Fatalf("init contains %d peers, expected 3", len(init.Peers))
	}

	found := false
	for _, p := range init.Peers {
		if p.ID == init.PeerID {
			found = p.Browser
		}
	}
	if !found {
		t.Fatal("init peers do not include the session's own browser peer")
	}

	if len(init.Posts) != 3 {
		t.Fatalf("init contains %d posts, expected 3", len(init.Posts))
	}

	// Newest first.
	for i, want := range []*feed.Post{posts[2], posts[1], posts[0]} {
		if init.Posts[i].ID != want.ID {
			t.Fatalf("init.Posts[%d] = %s, expected %s", i, init.Posts[i].ID, want.ID)
		}
	}

	// History arrives only through the snapshot; nothing is replayed.
	conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("received a replayed event after init")
	}
}

func TestSessionPingPong(t *testing.T) {
	f := newTestFixture(t)

	conn := f.dialWS(t)

	readFrame(t, conn) // init

	if err := conn.WriteJSON(map[string]string{"type": "ping"}); err != nil {
		t.Fatal(err)
	}

	if frame := readFrame(t, conn); frame.Type != events.Pong {
		t.Fatalf("frame type = %s, expected pong", frame.Type)
	}
}

func TestSessionPostAndLeave(t *testing.T) {
	f := newTestFixture(t)

	conn1 := f.dialWS(t)
	readFrame(t, conn1) // init

	conn2 := f.dialWS(t)
	init2 := readFrame(t, conn2)

	// Session 1 is announced the arrival of session 2.
	joined := readFrame(t, conn1)
	if joined.Type != events.PeerJoined || joined.PeerID != init2.PeerID {
		t.Fatalf("expected peer_joined for %s, got %+v", init2.PeerID, joined)
	}

	// A post submitted by session 2 reaches both sessions.
	post := map[string]string{"type": "post", "content": "hi all", "author_name": "Web"}
	if err := conn2.WriteJSON(post); err != nil {
		t.Fatal(err)
	}

	for _, conn := range []*websocket.Conn{conn1, conn2} {
		frame := readFrame(t, conn)
		if frame.Type != events.NewPost {
			t.Fatalf("frame type = %s, expected new_post", frame.Type)
		}
		if frame.Post.Content != "hi all" || frame.Post.AuthorName != "Web" {
			t.Fatalf("unexpected post: %+v", frame.Post)
		}
		if frame.Post.Author != init2.PeerID {
			t.Fatalf("post author = %s, expected %s", frame.Post.Author, init2.PeerID)
		}
	}

	// Malformed and unknown frames are ignored without killing the session.
	if err := conn2.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatal(err)
	}
	if err := conn2.WriteJSON(map[string]string{"type": "selfdestruct"}); err != nil {
		t.Fatal(err)
	}

	// Closing session 2 announces its departure to session 1.
	conn2.Close()

	left := readFrame(t, conn1)
	if left.Type != events.PeerLeft || left.PeerID != init2.PeerID {
		t.Fatalf("expected peer_left for %s, got %+v", init2.PeerID, left)
	}

	waitFor(t, time.Second, "browser peer removal", func() bool {
		_, ok := f.dir.Get(init2.PeerID)
		return !ok
	})
}
