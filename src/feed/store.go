package feed

// Store is the interface for feed storage. The feed is an append-mostly,
// bounded, deduplicated collection of posts; insertion order is authoritative
// for display, newest first.
type Store interface {
	// Add inserts the post at the front of the feed. It returns false, and
	// does nothing, if a post with the same ID is already stored. When the
	// feed exceeds its cache size, the oldest posts are evicted.
	Add(post *Post) bool

	// Snapshot returns a read-consistent copy of the feed, newest first.
	Snapshot() []*Post

	// SetNotify registers a callback invoked exactly once for every accepted
	// Add, in add order. It must be set before the store is used
	// concurrently.
	SetNotify(fn func(*Post))

	Len() int
	NeedBootstrap() bool
	Close() error
}
