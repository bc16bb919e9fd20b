/*
Package votes keeps each reply's vote count equal to the sum of its votes.

A user has at most one vote per reply. Voting the same way twice removes the
vote, and voting the other way replaces it. The count is updated in the same
transaction as the vote rows, and the per-(reply, user) lock keeps concurrent
double-clicks from the same user from racing each other inside one process.
*/
package votes

import (
	"context"
	"fmt"
	"time"

	"git.handmade.network/hmn/discuss/src/locks"
	"git.handmade.network/hmn/discuss/src/models"
	"git.handmade.network/hmn/discuss/src/oops"
	"git.handmade.network/hmn/discuss/src/store"
)

type lockKey struct {
	ReplyID int
	UserID  int
}

type Aggregator struct {
	store store.Store
	locks *locks.Keyed[lockKey]
	now   func() time.Time
}

func NewAggregator(s store.Store) *Aggregator {
	return &Aggregator{
		store: s,
		locks: locks.NewKeyed[lockKey](),
		now:   time.Now,
	}
}

type Result struct {
	TopicID int
	Count   int
}

func (a *Aggregator) ApplyVote(ctx context.Context, replyID, userID int, voteType models.VoteType) (Result, error) {
	if !voteType.Valid() {
		return Result{}, fmt.Errorf("%w: vote type %d", models.ErrInvalidArgument, int(voteType))
	}

	reply, err := a.store.GetReply(ctx, replyID)
	if err != nil {
		return Result{}, err
	}
	if reply.AuthorID == userID {
		return Result{}, models.ErrSelfVote
	}
	if reply.IsDeleted {
		return Result{}, fmt.Errorf("reply %d: %w", replyID, models.ErrReplyDeleted)
	}

	unlock, err := a.locks.Lock(ctx, lockKey{replyID, userID})
	if err != nil {
		return Result{}, err
	}
	defer unlock()

	var result Result
	err = a.store.Atomically(ctx, func(tx store.Tx) error {
		// Reading the reply inside the transaction locks it in Postgres,
		// which serializes votes across processes too.
		reply, err := tx.GetReply(ctx, replyID)
		if err != nil {
			return err
		}
		if reply.IsDeleted {
			return fmt.Errorf("reply %d: %w", replyID, models.ErrReplyDeleted)
		}

		existing, err := tx.GetVote(ctx, replyID, userID)
		if err != nil {
			return err
		}

		var delta int
		switch {
		case existing == nil:
			delta = voteType.Value()
			err = tx.PutVote(ctx, models.Vote{ReplyID: replyID, UserID: userID, Type: voteType, CreatedAt: a.now()})
		case existing.Type == voteType:
			delta = -voteType.Value()
			err = tx.DeleteVote(ctx, replyID, userID)
		default:
			delta = voteType.Value() - existing.Type.Value()
			err = tx.PutVote(ctx, models.Vote{ReplyID: replyID, UserID: userID, Type: voteType, CreatedAt: a.now()})
		}
		if err != nil {
			return err
		}

		count, err := tx.AddVoteCount(ctx, replyID, delta)
		if err != nil {
			return err
		}
		result = Result{TopicID: reply.TopicID, Count: count}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return result, nil
}

// Sums the reply's votes without touching the stored count.
func (a *Aggregator) Recount(ctx context.Context, replyID int) (int, error) {
	if _, err := a.store.GetReply(ctx, replyID); err != nil {
		return 0, err
	}
	return a.store.SumVotes(ctx, replyID)
}

/*
Overwrites the stored count with the sum of the votes. The returned drift
holds both values; Stored == Actual means nothing had to change.
*/
func (a *Aggregator) Reconcile(ctx context.Context, replyID int) (models.VoteDrift, error) {
	var drift models.VoteDrift
	err := a.store.Atomically(ctx, func(tx store.Tx) error {
		reply, err := tx.GetReply(ctx, replyID)
		if err != nil {
			return err
		}
		actual, err := tx.SumVotes(ctx, replyID)
		if err != nil {
			return err
		}
		drift = models.VoteDrift{
			ReplyID: replyID,
			TopicID: reply.TopicID,
			Stored:  reply.VoteCount,
			Actual:  actual,
		}
		if actual == reply.VoteCount {
			return nil
		}
		if err := tx.SetVoteCount(ctx, replyID, actual); err != nil {
			return oops.New(err, "failed to reconcile reply %d", replyID)
		}
		return nil
	})
	return drift, err
}
