/*
Package deletion implements soft and hard deletion of replies.

A soft-deleted reply stays where it is in the tree with its content replaced by
a tombstone. A hard-deleted reply is removed; its direct children move up to
its parent and everything below it keeps its shape, one level shallower.
*/
package deletion

import (
	"context"
	"errors"
	"fmt"

	"git.handmade.network/hmn/discuss/src/models"
	"git.handmade.network/hmn/discuss/src/moderation"
	"git.handmade.network/hmn/discuss/src/oops"
	"git.handmade.network/hmn/discuss/src/replytree"
	"git.handmade.network/hmn/discuss/src/store"
	"git.handmade.network/hmn/discuss/src/utils"
)

type Reparenter struct {
	store store.Store
}

func NewReparenter(s store.Store) *Reparenter {
	return &Reparenter{store: s}
}

type Result struct {
	TopicID int
	ReplyID int

	// False when the reply was already in the requested state.
	Changed bool
	// Set when the reply had been marked as the topic's solution.
	ClearedSolution bool
	// Direct children that were moved to the removed reply's parent.
	Reparented []int
}

// Soft-deletes the reply. Deleting an already soft-deleted reply changes
// nothing and is not an error. Rows marked as hard-deleted are refused with
// models.ErrAlreadyHardDeleted.
func (r *Reparenter) SoftDelete(ctx context.Context, replyID int) (Result, error) {
	var res Result
	err := r.store.Atomically(ctx, func(tx store.Tx) error {
		reply, err := tx.GetReply(ctx, replyID)
		if err != nil {
			return err
		}
		res = Result{TopicID: reply.TopicID, ReplyID: replyID}
		err = moderation.CanTransitionReply(moderation.DeletionState(&reply), models.DeletionSoft)
		if errors.Is(err, models.ErrAlreadySoftDeleted) {
			return nil
		} else if err != nil {
			return fmt.Errorf("reply %d: %w", replyID, err)
		}

		if reply.IsSolution {
			if err := clearSolution(ctx, tx, reply.TopicID, replyID); err != nil {
				return err
			}
			res.ClearedSolution = true
		}

		reply.IsDeleted = true
		reply.DeletionKind = models.DeletionSoft
		reply.Content = models.TombstoneContent
		reply.IsSolution = false
		if err := tx.UpdateReply(ctx, reply); err != nil {
			return err
		}
		res.Changed = true
		return nil
	})
	return res, err
}

type HardDeleteOptions struct {
	// Refuse with models.ErrForbidden unless the reply is already
	// soft-deleted. Used when the author, not a moderator, purges a reply.
	RequireSoftDeleted bool
}

/*
Removes the reply and reparents its children, all in one transaction. Each
descendant's sort path loses the removed reply's segment and its depth drops by
one, so descendants keep their order relative to each other. The reply's votes
are removed with it, and the topic's reply count goes down by one.
*/
func (r *Reparenter) HardDelete(ctx context.Context, replyID int, opts HardDeleteOptions) (Result, error) {
	var res Result
	err := r.store.Atomically(ctx, func(tx store.Tx) error {
		removed, err := tx.GetReply(ctx, replyID)
		if err != nil {
			return err
		}
		state := moderation.DeletionState(&removed)
		if err := moderation.CanTransitionReply(state, models.DeletionHard); err != nil {
			return fmt.Errorf("reply %d: %w", replyID, err)
		}
		if opts.RequireSoftDeleted && state != models.DeletionSoft {
			return fmt.Errorf("%w: reply %d must be deleted before it can be purged", models.ErrForbidden, replyID)
		}
		res = Result{TopicID: removed.TopicID, ReplyID: replyID, Changed: true}

		topic, err := tx.GetTopic(ctx, removed.TopicID)
		if err != nil {
			return err
		}
		replies, err := tx.ListReplies(ctx, removed.TopicID)
		if err != nil {
			return err
		}

		newParentPath := ""
		if removed.ParentID != nil {
			parent, ok := findReply(replies, *removed.ParentID)
			if !ok {
				return fmt.Errorf("%w: reply %d has missing parent %d", models.ErrStructuralInconsistency, replyID, *removed.ParentID)
			}
			newParentPath = parent.SortPath
		}

		for _, reply := range replies {
			if !replytree.IsDescendant(reply.SortPath, removed.SortPath) {
				continue
			}
			reply.SortPath = replytree.RebasePath(reply.SortPath, removed.SortPath, newParentPath)
			reply.Depth--
			if reply.ParentID != nil && *reply.ParentID == replyID {
				reply.ParentID = utils.ClonePtr(removed.ParentID)
				res.Reparented = append(res.Reparented, reply.ID)
			}
			if err := tx.UpdateReply(ctx, reply); err != nil {
				return oops.New(err, "failed to reparent reply %d", reply.ID)
			}
		}

		if err := tx.DeleteVotesForReply(ctx, replyID); err != nil {
			return err
		}
		if err := tx.DeleteReply(ctx, replyID); err != nil {
			return err
		}

		if topic.SolutionID != nil && *topic.SolutionID == replyID {
			topic.SolutionID = nil
			res.ClearedSolution = true
		}
		if topic.ReplyCount > 0 {
			topic.ReplyCount--
		}
		return tx.UpdateTopic(ctx, topic)
	})
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

func clearSolution(ctx context.Context, tx store.Tx, topicID, replyID int) error {
	topic, err := tx.GetTopic(ctx, topicID)
	if err != nil {
		return err
	}
	if topic.SolutionID != nil && *topic.SolutionID == replyID {
		topic.SolutionID = nil
		return tx.UpdateTopic(ctx, topic)
	}
	return nil
}

func findReply(replies []models.Reply, id int) (models.Reply, bool) {
	for _, reply := range replies {
		if reply.ID == id {
			return reply, true
		}
	}
	return models.Reply{}, false
}
