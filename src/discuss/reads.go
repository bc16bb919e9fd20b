package discuss

import (
	"context"
	"sort"

	"git.handmade.network/hmn/discuss/src/identity"
	"git.handmade.network/hmn/discuss/src/logging"
	"git.handmade.network/hmn/discuss/src/models"
)

func (s *Service) cachedTree(ctx context.Context, topicID int) (*models.CachedTree, error) {
	return s.cache.GetOrBuild(ctx, topicID, func(ctx context.Context) ([]models.Reply, error) {
		// Unknown topics must not end up cached as empty trees.
		if _, err := s.store.GetTopic(ctx, topicID); err != nil {
			return nil, err
		}
		return s.tree.BuildTopic(ctx, topicID)
	})
}

// The topic's replies in display order: depth-first, siblings oldest first.
func (s *Service) GetTree(ctx context.Context, topicID int) ([]models.Reply, error) {
	tree, err := s.cachedTree(ctx, topicID)
	if err != nil {
		return nil, err
	}
	return tree.Replies(), nil
}

// A topic with its reply tree and everything needed to display it.
type Thread struct {
	Topic   models.Topic          `json:"topic"`
	Replies []models.Reply        `json:"replies"`
	Authors map[int]models.Author `json:"authors"`
	Version uint64                `json:"version"`
}

/*
Fetches the topic, its tree and its authors. Authors that cannot be resolved
show up as unknown users; a failing identity lookup is logged and degrades the
same way instead of failing the whole read.
*/
func (s *Service) GetThread(ctx context.Context, topicID int) (Thread, error) {
	topic, err := s.store.GetTopic(ctx, topicID)
	if err != nil {
		return Thread{}, err
	}
	tree, err := s.cachedTree(ctx, topicID)
	if err != nil {
		return Thread{}, err
	}
	replies := tree.Replies()

	ids := authorIDs(topic, replies)
	authors, err := s.identity.ResolveAuthors(ctx, ids)
	if err != nil {
		logging.ExtractLogger(ctx).Warn().Err(err).Int("topic", topicID).Msg("failed to resolve authors")
		authors = nil
	}
	resolved := make(map[int]models.Author, len(ids))
	for _, id := range ids {
		if author, ok := authors[id]; ok {
			resolved[id] = author
		} else {
			resolved[id] = identity.UnknownAuthor(id)
		}
	}

	return Thread{
		Topic:   topic,
		Replies: replies,
		Authors: resolved,
		Version: tree.Version,
	}, nil
}

func authorIDs(topic models.Topic, replies []models.Reply) []int {
	seen := map[int]bool{topic.AuthorID: true}
	ids := []int{topic.AuthorID}
	for _, r := range replies {
		if !seen[r.AuthorID] {
			seen[r.AuthorID] = true
			ids = append(ids, r.AuthorID)
		}
	}
	sort.Ints(ids)
	return ids
}

// Sums a reply's votes without changing anything.
func (s *Service) Recount(ctx context.Context, replyID int) (int, error) {
	return s.votes.Recount(ctx, replyID)
}

// Resets a reply's stored vote count to the sum of its votes.
func (s *Service) ReconcileVotes(ctx context.Context, replyID int) (models.VoteDrift, error) {
	drift, err := s.votes.Reconcile(ctx, replyID)
	if err != nil {
		return models.VoteDrift{}, err
	}
	if drift.Stored != drift.Actual {
		s.afterCommit(ctx, MutationReconcile, drift.TopicID)
	}
	return drift, nil
}
