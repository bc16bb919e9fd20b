package models

import (
	"time"
)

type TopicStatus string

const (
	TopicStatusOpen     TopicStatus = "open"
	TopicStatusLocked   TopicStatus = "locked"
	TopicStatusArchived TopicStatus = "archived"
)

func (s TopicStatus) Valid() bool {
	switch s {
	case TopicStatusOpen, TopicStatusLocked, TopicStatusArchived:
		return true
	}
	return false
}

type Topic struct {
	ID int `db:"id" json:"id"`

	CategoryID int `db:"category_id" json:"category_id"`
	AuthorID   int `db:"author_id" json:"author_id"`

	Title          string      `db:"title" json:"title"`
	Status         TopicStatus `db:"status" json:"status"`
	Pinned         bool        `db:"pinned" json:"pinned"`
	SolutionID     *int        `db:"solution_reply_id" json:"solution_reply_id"`
	ReplyCount     int         `db:"reply_count" json:"reply_count"`
	CreatedAt      time.Time   `db:"created_at" json:"created_at"`
	LastActivityAt time.Time   `db:"last_activity_at" json:"last_activity_at"`
}

func (t *Topic) Clone() Topic {
	c := *t
	if t.SolutionID != nil {
		id := *t.SolutionID
		c.SolutionID = &id
	}
	return c
}
