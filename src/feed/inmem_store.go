package feed

import (
	"sync"
)

// InmemStore keeps the feed in memory. It is safe for concurrent use; the
// duplicate check and the insert happen atomically, which is what guarantees
// at-most-once insertion when the same post arrives from two sources (local
// echo and overlay gossip).
type InmemStore struct {
	sync.RWMutex
	cacheSize int
	posts     []*Post
	byID      map[string]*Post
	notify    func(*Post)
}

// NewInmemStore creates an InmemStore that holds at most cacheSize posts.
func NewInmemStore(cacheSize int) *InmemStore {
	return &InmemStore{
		cacheSize: cacheSize,
		posts:     []*Post{},
		byID:      make(map[string]*Post),
	}
}

// SetNotify implements the Store interface.
func (s *InmemStore) SetNotify(fn func(*Post)) {
	s.Lock()
	defer s.Unlock()

	s.notify = fn
}

// Add implements the Store interface. The notify callback runs inside the
// critical section so that notifications are delivered in insertion order.
func (s *InmemStore) Add(post *Post) bool {
	s.Lock()
	defer s.Unlock()

	if _, ok := s.byID[post.ID]; ok {
		return false
	}

	s.posts = append([]*Post{post}, s.posts...)
	s.byID[post.ID] = post

	for len(s.posts) > s.cacheSize {
		oldest := s.posts[len(s.posts)-1]
		delete(s.byID, oldest.ID)
		s.posts = s.posts[:len(s.posts)-1]
	}

	if s.notify != nil {
		s.notify(post)
	}

	return true
}

// Snapshot implements the Store interface.
func (s *InmemStore) Snapshot() []*Post {
	s.RLock()
	defer s.RUnlock()

	res := make([]*Post, len(s.posts))
	copy(res, s.posts)

	return res
}

// Len implements the Store interface.
func (s *InmemStore) Len() int {
	s.RLock()
	defer s.RUnlock()

	return len(s.posts)
}

// NeedBootstrap implements the Store interface.
func (s *InmemStore) NeedBootstrap() bool {
	return false
}

// Close implements the Store interface.
func (s *InmemStore) Close() error {
	return nil
}
