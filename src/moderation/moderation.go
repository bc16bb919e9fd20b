package moderation

import (
	"context"
	"fmt"

	"git.handmade.network/hmn/discuss/src/models"
	"git.handmade.network/hmn/discuss/src/store"
	"git.handmade.network/hmn/discuss/src/utils"
)

type Machine struct {
	store store.Store
}

func NewMachine(s store.Store) *Machine {
	return &Machine{store: s}
}

// Whether the call changed anything. Repeating a moderation action is not an
// error.
type Result struct {
	Changed bool
}

func (m *Machine) SetLock(ctx context.Context, topicID int, locked bool) (Result, error) {
	var res Result
	err := m.store.Atomically(ctx, func(tx store.Tx) error {
		topic, err := tx.GetTopic(ctx, topicID)
		if err != nil {
			return err
		}
		next, changed, err := NextLockStatus(topic.Status, locked)
		if err != nil || !changed {
			return err
		}
		topic.Status = next
		res.Changed = true
		return tx.UpdateTopic(ctx, topic)
	})
	return res, err
}

// Pinning is independent of the lock status.
func (m *Machine) SetPin(ctx context.Context, topicID int, pinned bool) (Result, error) {
	var res Result
	err := m.store.Atomically(ctx, func(tx store.Tx) error {
		topic, err := tx.GetTopic(ctx, topicID)
		if err != nil {
			return err
		}
		if topic.Pinned == pinned {
			return nil
		}
		topic.Pinned = pinned
		res.Changed = true
		return tx.UpdateTopic(ctx, topic)
	})
	return res, err
}

/*
Marks the reply as the topic's solution. Any other reply carrying the mark
loses it in the same transaction, whatever the topic row says, and the result
is checked to contain exactly one solution before it commits.
*/
func (m *Machine) MarkSolution(ctx context.Context, topicID, replyID int) (Result, error) {
	var res Result
	err := m.store.Atomically(ctx, func(tx store.Tx) error {
		topic, err := tx.GetTopic(ctx, topicID)
		if err != nil {
			return err
		}
		if topic.Status == models.TopicStatusArchived {
			return fmt.Errorf("%w: topic is archived", models.ErrInvalidTransition)
		}
		target, err := tx.GetReply(ctx, replyID)
		if err != nil {
			return err
		}
		if target.TopicID != topicID {
			return fmt.Errorf("reply %d in topic %d: %w", replyID, topicID, models.ErrNotFound)
		}
		if target.IsDeleted {
			return fmt.Errorf("reply %d: %w", replyID, models.ErrReplyDeleted)
		}

		replies, err := tx.ListReplies(ctx, topicID)
		if err != nil {
			return err
		}
		for _, reply := range replies {
			if reply.IsSolution && reply.ID != replyID {
				reply.IsSolution = false
				if err := tx.UpdateReply(ctx, reply); err != nil {
					return err
				}
				res.Changed = true
			}
		}

		if !target.IsSolution {
			target.IsSolution = true
			if err := tx.UpdateReply(ctx, target); err != nil {
				return err
			}
			res.Changed = true
		}
		if !utils.PtrEqual(topic.SolutionID, &replyID) {
			topic.SolutionID = utils.P(replyID)
			if err := tx.UpdateTopic(ctx, topic); err != nil {
				return err
			}
			res.Changed = true
		}

		return verifySingleSolution(ctx, tx, topicID, replyID)
	})
	return res, err
}

func (m *Machine) UnmarkSolution(ctx context.Context, topicID int) (Result, error) {
	var res Result
	err := m.store.Atomically(ctx, func(tx store.Tx) error {
		topic, err := tx.GetTopic(ctx, topicID)
		if err != nil {
			return err
		}
		if topic.Status == models.TopicStatusArchived {
			return fmt.Errorf("%w: topic is archived", models.ErrInvalidTransition)
		}

		replies, err := tx.ListReplies(ctx, topicID)
		if err != nil {
			return err
		}
		for _, reply := range replies {
			if reply.IsSolution {
				reply.IsSolution = false
				if err := tx.UpdateReply(ctx, reply); err != nil {
					return err
				}
				res.Changed = true
			}
		}
		if topic.SolutionID != nil {
			topic.SolutionID = nil
			if err := tx.UpdateTopic(ctx, topic); err != nil {
				return err
			}
			res.Changed = true
		}
		return nil
	})
	return res, err
}

func verifySingleSolution(ctx context.Context, tx store.Tx, topicID, replyID int) error {
	replies, err := tx.ListReplies(ctx, topicID)
	if err != nil {
		return err
	}
	var marked []int
	for _, reply := range replies {
		if reply.IsSolution {
			marked = append(marked, reply.ID)
		}
	}
	if len(marked) != 1 || marked[0] != replyID {
		return fmt.Errorf("%w: topic %d has solutions %v", models.ErrDuplicateSolution, topicID, marked)
	}
	return nil
}
