package feed

import (
	"encoding/binary"
	"sync"

	"github.com/dgraph-io/badger"
	"github.com/sirupsen/logrus"
)

const postPrefix = "post"

// BadgerStore persists every accepted post in an append-only Badger log,
// keyed by insertion sequence, while an underlying InmemStore provides the
// bounded working set served to sessions. On restart, the newest cacheSize
// posts are replayed into memory, oldest first, so the in-memory order
// matches the original arrival order.
type BadgerStore struct {
	inmemStore *InmemStore
	db         *badger.DB
	path       string

	seqLock       sync.Mutex
	seq           uint64
	needBootstrap bool

	logger *logrus.Entry
}

// NewBadgerStore opens, or creates, a Badger database at path and replays any
// existing posts into a fresh InmemStore.
func NewBadgerStore(cacheSize int, path string, logger *logrus.Entry) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	opts = opts.WithSyncWrites(false)
	opts = opts.WithLogger(nil)

	handle, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	store := &BadgerStore{
		inmemStore: NewInmemStore(cacheSize),
		db:         handle,
		path:       path,
		logger:     logger,
	}

	if err := store.replay(cacheSize); err != nil {
		handle.Close()
		return nil, err
	}

	return store, nil
}

func postKey(seq uint64) []byte {
	key := make([]byte, len(postPrefix)+8)
	copy(key, postPrefix)
	binary.BigEndian.PutUint64(key[len(postPrefix):], seq)
	return key
}

// replay loads the persisted log and re-inserts the newest max posts into the
// in-memory store. It also positions the sequence counter after the last
// written entry.
func (s *BadgerStore) replay(max int) error {
	var loaded []*Post

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(postPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()

			key := item.Key()
			seq := binary.BigEndian.Uint64(key[len(postPrefix):])
			if seq >= s.seq {
				s.seq = seq + 1
			}

			err := item.Value(func(val []byte) error {
				post := new(Post)
				if err := post.Unmarshal(val); err != nil {
					return err
				}
				loaded = append(loaded, post)
				return nil
			})
			if err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return err
	}

	if len(loaded) > max {
		loaded = loaded[len(loaded)-max:]
	}

	// Oldest first, so the in-memory feed ends up newest first.
	for _, post := range loaded {
		s.inmemStore.Add(post)
	}

	s.needBootstrap = len(loaded) > 0

	return nil
}

// SetNotify implements the Store interface.
func (s *BadgerStore) SetNotify(fn func(*Post)) {
	s.inmemStore.SetNotify(fn)
}

// Add implements the Store interface. A failed database write does not undo
// the in-memory insert; the feed favours availability over durability.
func (s *BadgerStore) Add(post *Post) bool {
	if !s.inmemStore.Add(post) {
		return false
	}

	s.seqLock.Lock()
	seq := s.seq
	s.seq++
	s.seqLock.Unlock()

	data, err := post.Marshal()
	if err != nil {
		s.logger.WithError(err).Error("Encoding post for storage")
		return true
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(postKey(seq), data)
	})
	if err != nil {
		s.logger.WithError(err).WithField("id", post.ID).Error("Persisting post")
	}

	return true
}

// Snapshot implements the Store interface.
func (s *BadgerStore) Snapshot() []*Post {
	return s.inmemStore.Snapshot()
}

// Len implements the Store interface.
func (s *BadgerStore) Len() int {
	return s.inmemStore.Len()
}

// NeedBootstrap implements the Store interface. It returns true if the store
// was loaded from an existing database.
func (s *BadgerStore) NeedBootstrap() bool {
	return s.needBootstrap
}

// Close implements the Store interface.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
