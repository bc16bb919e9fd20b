package deletion

import (
	"context"
	"testing"

	"git.handmade.network/hmn/discuss/src/models"
	"git.handmade.network/hmn/discuss/src/replytree"
	"git.handmade.network/hmn/discuss/src/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Inserts replies given as id -> parent id (0 for top level), in id order.
func seed(t *testing.T, parents map[int]int, maxID int) *store.Memory {
	t.Helper()
	ctx := context.Background()
	s := store.NewMemory()
	err := s.Atomically(ctx, func(tx store.Tx) error {
		require.Nil(t, tx.InsertTopic(ctx, models.Topic{ID: 1, Status: models.TopicStatusOpen, ReplyCount: len(parents)}))
		inserted := map[int]models.Reply{}
		for id := 1; id <= maxID; id++ {
			parentID, ok := parents[id]
			if !ok {
				continue
			}
			r := models.Reply{ID: id, TopicID: 1, AuthorID: 100 + id, Content: "body", DeletionKind: models.DeletionNone}
			if parentID == 0 {
				r.SortPath = replytree.ChildPath("", id)
			} else {
				parent := inserted[parentID]
				pid := parentID
				r.ParentID = &pid
				r.Depth = parent.Depth + 1
				r.SortPath = replytree.ChildPath(parent.SortPath, id)
			}
			require.Nil(t, tx.InsertReply(ctx, r))
			inserted[id] = r
		}
		return nil
	})
	require.Nil(t, err)
	return s
}

func tree(t *testing.T, s *store.Memory) []models.Reply {
	t.Helper()
	built, err := replytree.Builder{Store: s}.BuildTopic(context.Background(), 1)
	require.Nil(t, err, "tree must stay consistent")
	return built
}

func order(replies []models.Reply) []int {
	var ids []int
	for _, r := range replies {
		ids = append(ids, r.ID)
	}
	return ids
}

func TestHardDeleteReparents(t *testing.T) {
	ctx := context.Background()

	t.Run("interior reply", func(t *testing.T) {
		// R(1) -> A(2) -> C(4); R(1) -> B(3)
		s := seed(t, map[int]int{1: 0, 2: 1, 3: 1, 4: 2}, 4)
		r := NewReparenter(s)

		res, err := r.HardDelete(ctx, 2, HardDeleteOptions{})
		require.Nil(t, err)
		assert.Equal(t, []int{4}, res.Reparented)

		c, err := s.GetReply(ctx, 4)
		require.Nil(t, err)
		require.NotNil(t, c.ParentID)
		assert.Equal(t, 1, *c.ParentID)
		assert.Equal(t, 1, c.Depth)

		b, err := s.GetReply(ctx, 3)
		require.Nil(t, err)
		assert.Equal(t, 1, b.Depth)
		assert.Equal(t, 1, *b.ParentID)

		_, err = s.GetReply(ctx, 2)
		assert.ErrorIs(t, err, models.ErrNotFound)

		assert.Equal(t, []int{1, 3, 4}, order(tree(t, s)))

		topic, err := s.GetTopic(ctx, 1)
		require.Nil(t, err)
		assert.Equal(t, 3, topic.ReplyCount)
	})
	t.Run("deeper descendants keep their parent", func(t *testing.T) {
		// 1 -> 2 -> 3 -> 4 -> 5, and 2 -> 6
		s := seed(t, map[int]int{1: 0, 2: 1, 3: 2, 4: 3, 5: 4, 6: 2}, 6)
		r := NewReparenter(s)

		res, err := r.HardDelete(ctx, 2, HardDeleteOptions{})
		require.Nil(t, err)
		assert.ElementsMatch(t, []int{3, 6}, res.Reparented)

		built := tree(t, s)
		assert.Equal(t, []int{1, 3, 4, 5, 6}, order(built))

		wantParents := map[int]int{3: 1, 4: 3, 5: 4, 6: 1}
		wantDepths := map[int]int{1: 0, 3: 1, 4: 2, 5: 3, 6: 1}
		for _, reply := range built {
			assert.Equal(t, wantDepths[reply.ID], reply.Depth, "depth of %d", reply.ID)
			if want, ok := wantParents[reply.ID]; ok {
				assert.Equal(t, want, *reply.ParentID, "parent of %d", reply.ID)
			}
		}
	})
	t.Run("top-level reply promotes children", func(t *testing.T) {
		s := seed(t, map[int]int{1: 0, 2: 1, 3: 2, 4: 0}, 4)
		r := NewReparenter(s)

		_, err := r.HardDelete(ctx, 1, HardDeleteOptions{})
		require.Nil(t, err)

		built := tree(t, s)
		assert.Equal(t, []int{2, 3, 4}, order(built))
		assert.Nil(t, built[0].ParentID)
		assert.Equal(t, 0, built[0].Depth)
		assert.Equal(t, replytree.PadID(2), built[0].SortPath)
		assert.Equal(t, 1, built[1].Depth)
	})
	t.Run("votes and solution go with the reply", func(t *testing.T) {
		s := seed(t, map[int]int{1: 0, 2: 1}, 2)
		require.Nil(t, s.Atomically(ctx, func(tx store.Tx) error {
			require.Nil(t, tx.PutVote(ctx, models.Vote{ReplyID: 2, UserID: 9, Type: models.VoteUp}))
			reply, err := tx.GetReply(ctx, 2)
			require.Nil(t, err)
			reply.IsSolution = true
			require.Nil(t, tx.UpdateReply(ctx, reply))
			topic, err := tx.GetTopic(ctx, 1)
			require.Nil(t, err)
			topic.SolutionID = &reply.ID
			return tx.UpdateTopic(ctx, topic)
		}))

		res, err := NewReparenter(s).HardDelete(ctx, 2, HardDeleteOptions{})
		require.Nil(t, err)
		assert.True(t, res.ClearedSolution)

		topic, err := s.GetTopic(ctx, 1)
		require.Nil(t, err)
		assert.Nil(t, topic.SolutionID)

		vote, err := s.GetVote(ctx, 2, 9)
		require.Nil(t, err)
		assert.Nil(t, vote)
	})
	t.Run("two-step purge", func(t *testing.T) {
		s := seed(t, map[int]int{1: 0}, 1)
		r := NewReparenter(s)

		_, err := r.HardDelete(ctx, 1, HardDeleteOptions{RequireSoftDeleted: true})
		assert.ErrorIs(t, err, models.ErrForbidden)
		_, err = s.GetReply(ctx, 1)
		assert.Nil(t, err, "nothing is removed on refusal")

		_, err = r.SoftDelete(ctx, 1)
		require.Nil(t, err)
		_, err = r.HardDelete(ctx, 1, HardDeleteOptions{RequireSoftDeleted: true})
		assert.Nil(t, err)

		_, err = r.HardDelete(ctx, 1, HardDeleteOptions{})
		assert.ErrorIs(t, err, models.ErrNotFound)
	})
}

func TestSoftDelete(t *testing.T) {
	ctx := context.Background()
	s := seed(t, map[int]int{1: 0, 2: 1}, 2)
	r := NewReparenter(s)

	res, err := r.SoftDelete(ctx, 1)
	require.Nil(t, err)
	assert.True(t, res.Changed)
	after, err := s.GetReply(ctx, 1)
	require.Nil(t, err)

	t.Run("keeps the reply in place", func(t *testing.T) {
		assert.True(t, after.IsDeleted)
		assert.Equal(t, models.DeletionSoft, after.DeletionKind)
		assert.Equal(t, models.TombstoneContent, after.Content)
		assert.Equal(t, []int{1, 2}, order(tree(t, s)))

		child, err := s.GetReply(ctx, 2)
		require.Nil(t, err)
		assert.Equal(t, 1, *child.ParentID)
	})
	t.Run("is idempotent", func(t *testing.T) {
		res, err := r.SoftDelete(ctx, 1)
		require.Nil(t, err)
		assert.False(t, res.Changed)

		again, err := s.GetReply(ctx, 1)
		require.Nil(t, err)
		assert.Equal(t, after, again)
	})
	t.Run("clears the solution", func(t *testing.T) {
		require.Nil(t, s.Atomically(ctx, func(tx store.Tx) error {
			reply, err := tx.GetReply(ctx, 2)
			require.Nil(t, err)
			reply.IsSolution = true
			require.Nil(t, tx.UpdateReply(ctx, reply))
			topic, err := tx.GetTopic(ctx, 1)
			require.Nil(t, err)
			topic.SolutionID = &reply.ID
			return tx.UpdateTopic(ctx, topic)
		}))

		res, err := r.SoftDelete(ctx, 2)
		require.Nil(t, err)
		assert.True(t, res.ClearedSolution)

		topic, err := s.GetTopic(ctx, 1)
		require.Nil(t, err)
		assert.Nil(t, topic.SolutionID)
		reply, err := s.GetReply(ctx, 2)
		require.Nil(t, err)
		assert.False(t, reply.IsSolution)
	})
}

func TestDeletionOnlyMovesForward(t *testing.T) {
	ctx := context.Background()
	s := seed(t, map[int]int{1: 0, 2: 0}, 2)
	r := NewReparenter(s)

	mark := func(id int, kind models.DeletionKind) {
		require.Nil(t, s.Atomically(ctx, func(tx store.Tx) error {
			reply, err := tx.GetReply(ctx, id)
			require.Nil(t, err)
			reply.IsDeleted = true
			reply.DeletionKind = kind
			return tx.UpdateReply(ctx, reply)
		}))
	}

	t.Run("a row left marked hard cannot be deleted again", func(t *testing.T) {
		mark(1, models.DeletionHard)

		_, err := r.SoftDelete(ctx, 1)
		assert.ErrorIs(t, err, models.ErrAlreadyHardDeleted)
		_, err = r.HardDelete(ctx, 1, HardDeleteOptions{})
		assert.ErrorIs(t, err, models.ErrAlreadyHardDeleted)

		reply, err := s.GetReply(ctx, 1)
		require.Nil(t, err, "nothing is removed on refusal")
		assert.Equal(t, models.DeletionHard, reply.DeletionKind)
	})
	t.Run("a deleted row without a kind counts as soft", func(t *testing.T) {
		mark(2, "")

		res, err := r.SoftDelete(ctx, 2)
		require.Nil(t, err)
		assert.False(t, res.Changed)

		_, err = r.HardDelete(ctx, 2, HardDeleteOptions{RequireSoftDeleted: true})
		assert.Nil(t, err)
	})
}
