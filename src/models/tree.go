package models

import (
	"time"
)

/*
An immutable, ordered snapshot of a topic's reply tree. Nothing hands out
references into the snapshot: Replies returns a fresh copy on every call, so
callers may modify the result freely.
*/
type CachedTree struct {
	TopicID int
	Version uint64
	BuiltAt time.Time

	replies []Reply
}

// Takes ownership of replies. The caller must not modify the slice afterward.
func NewCachedTree(topicID int, version uint64, replies []Reply) *CachedTree {
	return &CachedTree{
		TopicID: topicID,
		Version: version,
		BuiltAt: time.Now(),
		replies: replies,
	}
}

func (t *CachedTree) Replies() []Reply {
	result := CloneReplies(t.replies)
	if result == nil {
		result = []Reply{}
	}
	return result
}

func (t *CachedTree) Len() int {
	return len(t.replies)
}
