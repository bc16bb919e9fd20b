package models

import (
	"time"
)

// Replies nested deeper than this are rejected. Top-level replies have depth 0.
const MaxDepth = 5

// Content shown in place of a soft-deleted reply.
const TombstoneContent = "[deleted]"

type DeletionKind string

const (
	DeletionNone DeletionKind = "none"
	DeletionSoft DeletionKind = "soft"
	DeletionHard DeletionKind = "hard"
)

type Reply struct {
	ID int `db:"id" json:"id"`

	TopicID  int  `db:"topic_id" json:"topic_id"`
	ParentID *int `db:"parent_id" json:"parent_id"`
	AuthorID int  `db:"author_id" json:"author_id"`

	Content string `db:"content" json:"content"`

	Depth    int    `db:"depth" json:"depth"`
	SortPath string `db:"sort_path" json:"-"`

	IsDeleted    bool         `db:"is_deleted" json:"is_deleted"`
	DeletionKind DeletionKind `db:"deletion_kind" json:"deletion_kind"`
	IsSolution   bool         `db:"is_solution" json:"is_solution"`
	VoteCount    int          `db:"vote_count" json:"vote_count"`

	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	EditedAt  *time.Time `db:"edited_at" json:"edited_at"`
}

// Returns a deep copy, so the result shares nothing with the receiver.
func (r *Reply) Clone() Reply {
	c := *r
	if r.ParentID != nil {
		id := *r.ParentID
		c.ParentID = &id
	}
	if r.EditedAt != nil {
		at := *r.EditedAt
		c.EditedAt = &at
	}
	return c
}

func CloneReplies(replies []Reply) []Reply {
	if replies == nil {
		return nil
	}
	result := make([]Reply, len(replies))
	for i := range replies {
		result[i] = replies[i].Clone()
	}
	return result
}
