package replytree

import (
	"context"
	"testing"

	"git.handmade.network/hmn/discuss/src/models"
	"git.handmade.network/hmn/discuss/src/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reply(id int, parent *models.Reply) models.Reply {
	r := models.Reply{ID: id, TopicID: 1, SortPath: ChildPath("", id)}
	if parent != nil {
		pid := parent.ID
		r.ParentID = &pid
		r.Depth = parent.Depth + 1
		r.SortPath = ChildPath(parent.SortPath, id)
	}
	return r
}

func ids(replies []models.Reply) []int {
	result := make([]int, len(replies))
	for i, r := range replies {
		result[i] = r.ID
	}
	return result
}

func TestSortPaths(t *testing.T) {
	assert.Equal(t, "0000000042", PadID(42))
	assert.Equal(t, "0000000001.0000000012", ChildPath("0000000001", 12))

	assert.True(t, IsDescendant("0000000001.0000000002.0000000004", "0000000001.0000000002"))
	assert.False(t, IsDescendant("0000000001.0000000020", "0000000001.0000000002"))
	assert.False(t, IsDescendant("0000000001.0000000002", "0000000001.0000000002"))

	t.Run("rebase", func(t *testing.T) {
		assert.Equal(t,
			"0000000001.0000000004",
			RebasePath("0000000001.0000000002.0000000004", "0000000001.0000000002", "0000000001"),
		)
		assert.Equal(t,
			"0000000004.0000000009",
			RebasePath("0000000002.0000000004.0000000009", "0000000002", ""),
		)
	})
	t.Run("padding keeps numeric order", func(t *testing.T) {
		assert.Less(t, ChildPath("", 9), ChildPath("", 10))
		assert.Less(t, ChildPath(PadID(1), 99), ChildPath(PadID(1), 100))
	})
}

func TestBuild(t *testing.T) {
	t.Run("pre-order with creation order among siblings", func(t *testing.T) {
		r1 := reply(1, nil)
		r2 := reply(2, &r1)
		r3 := reply(3, nil)
		r4 := reply(4, &r2)
		r5 := reply(5, &r1)
		r10 := reply(10, &r3)

		built, err := Build(1, []models.Reply{r10, r5, r4, r3, r2, r1})
		require.Nil(t, err)
		assert.Equal(t, []int{1, 2, 4, 5, 3, 10}, ids(built))
	})
	t.Run("ordering is stable across builds", func(t *testing.T) {
		r1 := reply(1, nil)
		r2 := reply(2, &r1)
		r3 := reply(3, &r1)
		rows := []models.Reply{r3, r1, r2}

		first, err := Build(1, rows)
		require.Nil(t, err)
		second, err := Build(1, []models.Reply{r2, r3, r1})
		require.Nil(t, err)
		assert.Equal(t, ids(first), ids(second))
	})
	t.Run("does not modify its input", func(t *testing.T) {
		r1 := reply(1, nil)
		r2 := reply(2, &r1)
		rows := []models.Reply{r2, r1}

		built, err := Build(1, rows)
		require.Nil(t, err)
		*built[1].ParentID = 77
		assert.Equal(t, 2, rows[0].ID)
		assert.Equal(t, 1, *rows[0].ParentID)
	})
	t.Run("empty topic", func(t *testing.T) {
		built, err := Build(1, nil)
		assert.Nil(t, err)
		assert.Len(t, built, 0)
	})
}

func TestBuildRejectsInconsistentRows(t *testing.T) {
	r1 := reply(1, nil)
	r2 := reply(2, &r1)

	cases := map[string]func() []models.Reply{
		"wrong topic": func() []models.Reply {
			other := reply(3, nil)
			other.TopicID = 2
			return []models.Reply{r1, other}
		},
		"missing parent": func() []models.Reply {
			return []models.Reply{r2}
		},
		"parent newer than child": func() []models.Reply {
			r5 := reply(5, nil)
			bad := reply(4, &r5)
			return []models.Reply{r5, bad}
		},
		"depth disagrees with parent": func() []models.Reply {
			bad := r2.Clone()
			bad.Depth = 3
			return []models.Reply{r1, bad}
		},
		"depth beyond limit": func() []models.Reply {
			rows := []models.Reply{r1}
			parent := r1
			for id := 2; id <= models.MaxDepth+2; id++ {
				child := reply(id, &parent)
				rows = append(rows, child)
				parent = child
			}
			return rows
		},
		"sort path disagrees with parent": func() []models.Reply {
			bad := r2.Clone()
			bad.SortPath = ChildPath("", 2)
			return []models.Reply{r1, bad}
		},
		"top-level reply with depth": func() []models.Reply {
			bad := reply(3, nil)
			bad.Depth = 1
			return []models.Reply{bad}
		},
		"duplicate id": func() []models.Reply {
			return []models.Reply{r1, r1}
		},
	}

	for name, rows := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Build(1, rows())
			assert.ErrorIs(t, err, models.ErrStructuralInconsistency)
		})
	}
}

func TestBuilder(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	r1 := reply(1, nil)
	r2 := reply(2, &r1)
	r3 := reply(3, nil)
	err := s.Atomically(ctx, func(tx store.Tx) error {
		require.Nil(t, tx.InsertTopic(ctx, models.Topic{ID: 1, Status: models.TopicStatusOpen}))
		for _, r := range []models.Reply{r3, r2, r1} {
			require.Nil(t, tx.InsertReply(ctx, r))
		}
		return nil
	})
	require.Nil(t, err)

	built, err := Builder{Store: s}.BuildTopic(ctx, 1)
	require.Nil(t, err)
	assert.Equal(t, []int{1, 2, 3}, ids(built))

	_, err = Builder{Store: s}.BuildTopic(ctx, 2)
	assert.ErrorIs(t, err, models.ErrNotFound)
}
