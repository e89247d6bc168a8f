package feed

import (
	"bytes"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/ugorji/go/codec"
)

// Post is a single feed entry. A Post is immutable once created; its ID is
// globally unique and is the sole basis for deduplication across the network.
type Post struct {
	ID         string `json:"id"`
	Author     string `json:"author"`
	AuthorName string `json:"author_name"`
	Content    string `json:"content"`
	Timestamp  int64  `json:"timestamp"`
}

// NewPost creates a Post with a fresh ULID and the current unix timestamp.
func NewPost(author, authorName, content string) *Post {
	return &Post{
		ID:         ulid.Make().String(),
		Author:     author,
		AuthorName: authorName,
		Content:    content,
		Timestamp:  time.Now().Unix(),
	}
}

// Marshal - json encoding of Post
func (p *Post) Marshal() ([]byte, error) {
	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)

	if err := enc.Encode(p); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// Unmarshal ...
func (p *Post) Unmarshal(data []byte) error {
	b := bytes.NewBuffer(data)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	dec := codec.NewDecoder(b, jh)

	return dec.Decode(p)
}
