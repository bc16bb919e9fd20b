package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"git.handmade.network/hmn/discuss/src/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedTopic(t *testing.T, s *Memory) (models.Topic, models.Reply) {
	t.Helper()
	ctx := context.Background()
	var topic models.Topic
	var reply models.Reply
	err := s.Atomically(ctx, func(tx Tx) error {
		id, err := tx.NextTopicID(ctx)
		require.Nil(t, err)
		topic = models.Topic{ID: id, CategoryID: 1, AuthorID: 10, Title: "Sort paths", Status: models.TopicStatusOpen, CreatedAt: time.Now()}
		require.Nil(t, tx.InsertTopic(ctx, topic))

		replyID, err := tx.NextReplyID(ctx)
		require.Nil(t, err)
		reply = models.Reply{ID: replyID, TopicID: id, AuthorID: 11, Content: "first", SortPath: "0000000001", DeletionKind: models.DeletionNone}
		return tx.InsertReply(ctx, reply)
	})
	require.Nil(t, err)
	return topic, reply
}

func TestMemoryAtomically(t *testing.T) {
	ctx := context.Background()

	t.Run("commits", func(t *testing.T) {
		s := NewMemory()
		topic, reply := seedTopic(t, s)

		got, err := s.GetReply(ctx, reply.ID)
		require.Nil(t, err)
		assert.Equal(t, "first", got.Content)

		replies, err := s.ListReplies(ctx, topic.ID)
		require.Nil(t, err)
		assert.Len(t, replies, 1)
	})
	t.Run("rolls back on error", func(t *testing.T) {
		s := NewMemory()
		_, reply := seedTopic(t, s)

		boom := errors.New("boom")
		err := s.Atomically(ctx, func(tx Tx) error {
			reply.Content = "changed"
			require.Nil(t, tx.UpdateReply(ctx, reply))

			inTx, err := tx.GetReply(ctx, reply.ID)
			require.Nil(t, err)
			assert.Equal(t, "changed", inTx.Content, "a transaction sees its own writes")

			outside, err := s.GetReply(ctx, reply.ID)
			require.Nil(t, err)
			assert.Equal(t, "first", outside.Content, "others do not")
			return boom
		})
		assert.ErrorIs(t, err, boom)

		got, err := s.GetReply(ctx, reply.ID)
		require.Nil(t, err)
		assert.Equal(t, "first", got.Content)
	})
	t.Run("rolls back on panic", func(t *testing.T) {
		s := NewMemory()
		_, reply := seedTopic(t, s)

		err := s.Atomically(ctx, func(tx Tx) error {
			require.Nil(t, tx.DeleteReply(ctx, reply.ID))
			panic("halfway")
		})
		assert.ErrorContains(t, err, "halfway")

		_, err = s.GetReply(ctx, reply.ID)
		assert.Nil(t, err)
	})
	t.Run("canceled context", func(t *testing.T) {
		s := NewMemory()
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		called := false
		err := s.Atomically(cctx, func(tx Tx) error {
			called = true
			return nil
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, called)
	})
}

func TestMemoryReadsAreCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	topic, reply := seedTopic(t, s)

	err := s.Atomically(ctx, func(tx Tx) error {
		child := models.Reply{ID: 50, TopicID: topic.ID, ParentID: &reply.ID, Depth: 1, SortPath: "0000000001.0000000050"}
		return tx.InsertReply(ctx, child)
	})
	require.Nil(t, err)

	got, err := s.GetReply(ctx, 50)
	require.Nil(t, err)
	*got.ParentID = 999

	again, err := s.GetReply(ctx, 50)
	require.Nil(t, err)
	assert.Equal(t, reply.ID, *again.ParentID)
}

func TestMemoryNotFound(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	_, err := s.GetTopic(ctx, 1)
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = s.GetReply(ctx, 1)
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = s.ListReplies(ctx, 1)
	assert.ErrorIs(t, err, models.ErrNotFound)

	err = s.Atomically(ctx, func(tx Tx) error {
		return tx.InsertReply(ctx, models.Reply{ID: 1, TopicID: 404})
	})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestMemoryVotes(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	_, reply := seedTopic(t, s)

	err := s.Atomically(ctx, func(tx Tx) error {
		require.Nil(t, tx.PutVote(ctx, models.Vote{ReplyID: reply.ID, UserID: 1, Type: models.VoteUp}))
		require.Nil(t, tx.PutVote(ctx, models.Vote{ReplyID: reply.ID, UserID: 2, Type: models.VoteUp}))
		require.Nil(t, tx.PutVote(ctx, models.Vote{ReplyID: reply.ID, UserID: 2, Type: models.VoteDown}))
		_, err := tx.AddVoteCount(ctx, reply.ID, 5)
		return err
	})
	require.Nil(t, err)

	sum, err := s.SumVotes(ctx, reply.ID)
	require.Nil(t, err)
	assert.Equal(t, 0, sum)

	vote, err := s.GetVote(ctx, reply.ID, 2)
	require.Nil(t, err)
	if assert.NotNil(t, vote) {
		assert.Equal(t, models.VoteDown, vote.Type)
	}

	t.Run("drift", func(t *testing.T) {
		drifts, err := s.DriftedReplies(ctx, 10)
		require.Nil(t, err)
		assert.Equal(t, []models.VoteDrift{{ReplyID: reply.ID, TopicID: reply.TopicID, Stored: 5, Actual: 0}}, drifts)
	})
	t.Run("delete votes for reply", func(t *testing.T) {
		err := s.Atomically(ctx, func(tx Tx) error {
			return tx.DeleteVotesForReply(ctx, reply.ID)
		})
		require.Nil(t, err)
		vote, err := s.GetVote(ctx, reply.ID, 1)
		require.Nil(t, err)
		assert.Nil(t, vote)
	})
}
