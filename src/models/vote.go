package models

import (
	"fmt"
	"time"
)

type VoteType int

const (
	VoteDown VoteType = -1
	VoteUp   VoteType = 1
)

func (t VoteType) Valid() bool {
	return t == VoteUp || t == VoteDown
}

// The amount the vote contributes to a reply's count.
func (t VoteType) Value() int {
	return int(t)
}

func (t VoteType) String() string {
	switch t {
	case VoteUp:
		return "up"
	case VoteDown:
		return "down"
	}
	return fmt.Sprintf("VoteType(%d)", int(t))
}

func ParseVoteType(s string) (VoteType, error) {
	switch s {
	case "up":
		return VoteUp, nil
	case "down":
		return VoteDown, nil
	}
	return 0, fmt.Errorf("%w: unknown vote type %q", ErrInvalidArgument, s)
}

type Vote struct {
	ReplyID   int       `db:"reply_id"`
	UserID    int       `db:"user_id"`
	Type      VoteType  `db:"value"`
	CreatedAt time.Time `db:"created_at"`
}

// A reply whose stored count no longer matches the sum of its votes.
type VoteDrift struct {
	ReplyID int `db:"reply_id"`
	TopicID int `db:"topic_id"`
	Stored  int `db:"stored"`
	Actual  int `db:"actual"`
}
