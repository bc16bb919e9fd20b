package discuss

import (
	"context"
	"fmt"
	"strings"

	"git.handmade.network/hmn/discuss/src/models"
	"git.handmade.network/hmn/discuss/src/store"
)

/*
Starts a new open topic. A non-empty content becomes the topic's first
top-level reply, written in the same transaction.
*/
func (s *Service) CreateTopic(ctx context.Context, categoryID, authorID int, title, content string) (models.Topic, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return models.Topic{}, fmt.Errorf("%w: title is empty", models.ErrInvalidArgument)
	}
	if content != "" {
		if err := validateContent(content); err != nil {
			return models.Topic{}, err
		}
	}

	if err := s.require(ctx, authorID, models.ActionReply, 0); err != nil {
		return models.Topic{}, err
	}
	if err := s.checkCategory(ctx, categoryID); err != nil {
		return models.Topic{}, err
	}

	var topic models.Topic
	err := s.store.Atomically(ctx, func(tx store.Tx) error {
		id, err := tx.NextTopicID(ctx)
		if err != nil {
			return err
		}
		now := s.now()
		topic = models.Topic{
			ID:             id,
			CategoryID:     categoryID,
			AuthorID:       authorID,
			Title:          title,
			Status:         models.TopicStatusOpen,
			CreatedAt:      now,
			LastActivityAt: now,
		}
		if err := tx.InsertTopic(ctx, topic); err != nil {
			return err
		}

		if content != "" {
			if _, err := insertReply(ctx, tx, id, nil, authorID, content, now); err != nil {
				return err
			}
			topic, err = tx.GetTopic(ctx, id)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return models.Topic{}, err
	}

	s.afterCommit(ctx, MutationCreate, topic.ID)
	return topic, nil
}

// The topic's author may pick its solution; anyone else needs
// models.ActionMarkSolution.
func (s *Service) requireSolutionRights(ctx context.Context, topicID, actorID int) error {
	topic, err := s.store.GetTopic(ctx, topicID)
	if err != nil {
		return err
	}
	if topic.AuthorID == actorID {
		return s.requireOwnership(ctx, topic.AuthorID, actorID, topicID)
	}
	return s.require(ctx, actorID, models.ActionMarkSolution, topicID)
}

// Marks the reply as the topic's solution, replacing any previous one.
func (s *Service) MarkSolution(ctx context.Context, topicID, replyID, actorID int) error {
	if err := s.requireSolutionRights(ctx, topicID, actorID); err != nil {
		return err
	}

	unlock, err := s.lockTopic(ctx, topicID)
	if err != nil {
		return err
	}
	defer unlock()

	res, err := s.moderation.MarkSolution(ctx, topicID, replyID)
	if err != nil {
		return err
	}
	if res.Changed {
		s.afterCommit(ctx, MutationSolution, topicID)
	}
	return nil
}

func (s *Service) UnmarkSolution(ctx context.Context, topicID, actorID int) error {
	if err := s.requireSolutionRights(ctx, topicID, actorID); err != nil {
		return err
	}

	unlock, err := s.lockTopic(ctx, topicID)
	if err != nil {
		return err
	}
	defer unlock()

	res, err := s.moderation.UnmarkSolution(ctx, topicID)
	if err != nil {
		return err
	}
	if res.Changed {
		s.afterCommit(ctx, MutationSolution, topicID)
	}
	return nil
}

func (s *Service) SetTopicLock(ctx context.Context, topicID, actorID int, locked bool) error {
	if _, err := s.store.GetTopic(ctx, topicID); err != nil {
		return err
	}
	if err := s.require(ctx, actorID, models.ActionLock, topicID); err != nil {
		return err
	}

	unlock, err := s.lockTopic(ctx, topicID)
	if err != nil {
		return err
	}
	defer unlock()

	res, err := s.moderation.SetLock(ctx, topicID, locked)
	if err != nil {
		return err
	}
	if res.Changed {
		s.afterCommit(ctx, MutationLock, topicID)
	}
	return nil
}

func (s *Service) SetTopicPin(ctx context.Context, topicID, actorID int, pinned bool) error {
	if _, err := s.store.GetTopic(ctx, topicID); err != nil {
		return err
	}
	if err := s.require(ctx, actorID, models.ActionPin, topicID); err != nil {
		return err
	}

	unlock, err := s.lockTopic(ctx, topicID)
	if err != nil {
		return err
	}
	defer unlock()

	res, err := s.moderation.SetPin(ctx, topicID, pinned)
	if err != nil {
		return err
	}
	if res.Changed {
		s.afterCommit(ctx, MutationPin, topicID)
	}
	return nil
}
