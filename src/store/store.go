/*
Package store persists topics, replies and votes. Every mutation happens inside
Atomically, which commits all of its writes or none of them.

Two implementations exist: Memory, used by tests and single-process
development setups, and Postgres, used in production.
*/
package store

import (
	"context"

	"git.handmade.network/hmn/discuss/src/models"
)

// Read access to persisted rows. Lookups of missing rows return an error
// matching models.ErrNotFound.
type Reader interface {
	GetTopic(ctx context.Context, topicID int) (models.Topic, error)
	GetReply(ctx context.Context, replyID int) (models.Reply, error)

	// All replies of the topic, in no particular order.
	ListReplies(ctx context.Context, topicID int) ([]models.Reply, error)

	// Returns nil if the user has not voted on the reply.
	GetVote(ctx context.Context, replyID, userID int) (*models.Vote, error)
	// The sum of all vote values on the reply.
	SumVotes(ctx context.Context, replyID int) (int, error)
}

/*
A transaction. Reads inside a Tx see the transaction's own writes. In the
Postgres store, rows read through a Tx stay locked until the transaction ends.
*/
type Tx interface {
	Reader

	NextTopicID(ctx context.Context) (int, error)
	InsertTopic(ctx context.Context, topic models.Topic) error
	UpdateTopic(ctx context.Context, topic models.Topic) error

	// Reserves an id for a reply about to be inserted. Sort paths embed the
	// reply's own id, so it must be known before the row exists.
	NextReplyID(ctx context.Context) (int, error)
	InsertReply(ctx context.Context, reply models.Reply) error
	UpdateReply(ctx context.Context, reply models.Reply) error
	DeleteReply(ctx context.Context, replyID int) error

	PutVote(ctx context.Context, vote models.Vote) error
	DeleteVote(ctx context.Context, replyID, userID int) error
	DeleteVotesForReply(ctx context.Context, replyID int) error

	// Adds delta to the stored vote count and returns the new count.
	AddVoteCount(ctx context.Context, replyID, delta int) (int, error)
	SetVoteCount(ctx context.Context, replyID, count int) error
}

type Store interface {
	Reader

	// Runs fn in a transaction. If fn returns an error or panics, nothing
	// it wrote is kept.
	Atomically(ctx context.Context, fn func(tx Tx) error) error

	// Replies whose stored vote count disagrees with their votes, at most limit.
	DriftedReplies(ctx context.Context, limit int) ([]models.VoteDrift, error)
}
