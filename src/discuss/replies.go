package discuss

import (
	"context"
	"fmt"
	"time"

	"git.handmade.network/hmn/discuss/src/deletion"
	"git.handmade.network/hmn/discuss/src/models"
	"git.handmade.network/hmn/discuss/src/replytree"
	"git.handmade.network/hmn/discuss/src/store"
	"git.handmade.network/hmn/discuss/src/utils"
)

/*
Posts a reply to the topic, under parentID if it is not nil. Replies deeper
than models.MaxDepth are refused with models.ErrDepthExceeded, and nothing is
written when that happens.
*/
func (s *Service) CreateReply(ctx context.Context, topicID int, parentID *int, authorID int, content string) (models.Reply, error) {
	if err := validateContent(content); err != nil {
		return models.Reply{}, err
	}

	topic, err := s.store.GetTopic(ctx, topicID)
	if err != nil {
		return models.Reply{}, err
	}
	if err := s.require(ctx, authorID, models.ActionReply, topicID); err != nil {
		return models.Reply{}, err
	}
	if err := s.checkCategory(ctx, topic.CategoryID); err != nil {
		return models.Reply{}, err
	}

	unlock, err := s.lockTopic(ctx, topicID)
	if err != nil {
		return models.Reply{}, err
	}
	defer unlock()

	var reply models.Reply
	err = s.store.Atomically(ctx, func(tx store.Tx) error {
		var err error
		reply, err = insertReply(ctx, tx, topicID, parentID, authorID, content, s.now())
		return err
	})
	if err != nil {
		return models.Reply{}, err
	}

	s.afterCommit(ctx, MutationCreate, topicID)
	return reply, nil
}

func (s *Service) checkCategory(ctx context.Context, categoryID int) error {
	status, err := s.categories.CategoryStatus(ctx, categoryID)
	if err != nil {
		return err
	}
	if !status.AcceptsReplies() {
		return fmt.Errorf("%w: category %d is %s", models.ErrTopicLocked, categoryID, status)
	}
	return nil
}

// Inserts a reply and bumps the topic's counters. The topic must be open.
func insertReply(ctx context.Context, tx store.Tx, topicID int, parentID *int, authorID int, content string, now time.Time) (models.Reply, error) {
	topic, err := tx.GetTopic(ctx, topicID)
	if err != nil {
		return models.Reply{}, err
	}
	if topic.Status != models.TopicStatusOpen {
		return models.Reply{}, fmt.Errorf("%w: topic %d is %s", models.ErrTopicLocked, topicID, topic.Status)
	}

	depth := 0
	parentPath := ""
	if parentID != nil {
		parent, err := tx.GetReply(ctx, *parentID)
		if err != nil {
			return models.Reply{}, err
		}
		if parent.TopicID != topicID {
			return models.Reply{}, fmt.Errorf("parent reply %d in topic %d: %w", *parentID, topicID, models.ErrNotFound)
		}
		if parent.IsDeleted {
			return models.Reply{}, fmt.Errorf("parent reply %d: %w", *parentID, models.ErrReplyDeleted)
		}
		depth = parent.Depth + 1
		parentPath = parent.SortPath
	}
	if depth > models.MaxDepth {
		return models.Reply{}, fmt.Errorf("%w: a reply to reply %d would be at depth %d", models.ErrDepthExceeded, *parentID, depth)
	}

	id, err := tx.NextReplyID(ctx)
	if err != nil {
		return models.Reply{}, err
	}
	reply := models.Reply{
		ID:           id,
		TopicID:      topicID,
		ParentID:     utils.ClonePtr(parentID),
		AuthorID:     authorID,
		Content:      content,
		Depth:        depth,
		SortPath:     replytree.ChildPath(parentPath, id),
		DeletionKind: models.DeletionNone,
		CreatedAt:    now,
	}
	if err := tx.InsertReply(ctx, reply); err != nil {
		return models.Reply{}, err
	}

	topic.ReplyCount++
	topic.LastActivityAt = now
	if err := tx.UpdateTopic(ctx, topic); err != nil {
		return models.Reply{}, err
	}
	return reply, nil
}

/*
Replaces a reply's content. Authors may edit their own replies while the topic
is open; moderators may edit any reply unless the topic is archived.
*/
func (s *Service) EditReply(ctx context.Context, replyID, actorID int, content string) (models.Reply, error) {
	if err := validateContent(content); err != nil {
		return models.Reply{}, err
	}

	reply, err := s.store.GetReply(ctx, replyID)
	if err != nil {
		return models.Reply{}, err
	}
	topic, err := s.store.GetTopic(ctx, reply.TopicID)
	if err != nil {
		return models.Reply{}, err
	}

	if topic.Status == models.TopicStatusArchived {
		return models.Reply{}, fmt.Errorf("%w: topic %d is archived", models.ErrTopicLocked, topic.ID)
	}
	if err := s.requireOwnership(ctx, reply.AuthorID, actorID, topic.ID); err != nil {
		return models.Reply{}, err
	}
	if reply.AuthorID != actorID || topic.Status != models.TopicStatusOpen {
		if err := s.require(ctx, actorID, models.ActionModerate, topic.ID); err != nil {
			if reply.AuthorID == actorID {
				return models.Reply{}, fmt.Errorf("%w: topic %d is %s", models.ErrTopicLocked, topic.ID, topic.Status)
			}
			return models.Reply{}, err
		}
	}

	unlock, err := s.lockTopic(ctx, topic.ID)
	if err != nil {
		return models.Reply{}, err
	}
	defer unlock()

	err = s.store.Atomically(ctx, func(tx store.Tx) error {
		var err error
		reply, err = tx.GetReply(ctx, replyID)
		if err != nil {
			return err
		}
		if reply.IsDeleted {
			return fmt.Errorf("reply %d: %w", replyID, models.ErrReplyDeleted)
		}
		reply.Content = content
		reply.EditedAt = utils.P(s.now())
		return tx.UpdateReply(ctx, reply)
	})
	if err != nil {
		return models.Reply{}, err
	}

	s.afterCommit(ctx, MutationEdit, topic.ID)
	return reply, nil
}

// Soft-deletes a reply. Deleting it again is not an error.
func (s *Service) SoftDeleteReply(ctx context.Context, replyID, actorID int) error {
	reply, err := s.store.GetReply(ctx, replyID)
	if err != nil {
		return err
	}
	if reply.AuthorID == actorID {
		err = s.requireOwnership(ctx, reply.AuthorID, actorID, reply.TopicID)
	} else {
		err = s.require(ctx, actorID, models.ActionModerate, reply.TopicID)
	}
	if err != nil {
		return err
	}

	unlock, err := s.lockTopic(ctx, reply.TopicID)
	if err != nil {
		return err
	}
	defer unlock()

	res, err := s.deletion.SoftDelete(ctx, replyID)
	if err != nil {
		return err
	}
	if res.Changed {
		s.afterCommit(ctx, MutationSoftDelete, res.TopicID)
	}
	return nil
}

/*
Permanently removes a reply, moving its children up to its parent. Moderators
may do this to any reply. Authors may purge their own replies once they have
soft-deleted them.
*/
func (s *Service) HardDeleteReply(ctx context.Context, replyID, actorID int) error {
	reply, err := s.store.GetReply(ctx, replyID)
	if err != nil {
		return err
	}

	var opts deletion.HardDeleteOptions
	ok, err := s.can(ctx, actorID, models.ActionHardDelete, reply.TopicID)
	if err != nil {
		return err
	}
	if !ok {
		if reply.AuthorID != actorID {
			return fmt.Errorf("%w: user %d may not purge reply %d", models.ErrForbidden, actorID, replyID)
		}
		if err := s.requireOwnership(ctx, reply.AuthorID, actorID, reply.TopicID); err != nil {
			return err
		}
		opts.RequireSoftDeleted = true
	}

	unlock, err := s.lockTopic(ctx, reply.TopicID)
	if err != nil {
		return err
	}
	defer unlock()

	res, err := s.deletion.HardDelete(ctx, replyID, opts)
	if err != nil {
		return err
	}
	s.afterCommit(ctx, MutationHardDelete, res.TopicID)
	return nil
}

/*
Applies a vote and returns the reply's new count. Votes are still accepted on
locked topics. They do not take the topic lock; the vote aggregator serializes
them per reply and user.
*/
func (s *Service) VoteReply(ctx context.Context, replyID, userID int, voteType models.VoteType) (int, error) {
	reply, err := s.store.GetReply(ctx, replyID)
	if err != nil {
		return 0, err
	}
	if err := s.require(ctx, userID, models.ActionVote, reply.TopicID); err != nil {
		return 0, err
	}

	res, err := s.votes.ApplyVote(ctx, replyID, userID, voteType)
	if err != nil {
		return 0, err
	}
	s.afterCommit(ctx, MutationVote, res.TopicID)
	return res.Count, nil
}
