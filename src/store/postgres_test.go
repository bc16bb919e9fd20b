package store_test

import (
	"context"
	"fmt"
	"os"
	"sort"
	"testing"
	"time"

	"git.handmade.network/hmn/discuss/src/deletion"
	"git.handmade.network/hmn/discuss/src/migration/migrations"
	"git.handmade.network/hmn/discuss/src/migration/types"
	"git.handmade.network/hmn/discuss/src/models"
	"git.handmade.network/hmn/discuss/src/replytree"
	"git.handmade.network/hmn/discuss/src/store"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

/*
Connects to the database named by DISCUSS_TEST_POSTGRES, a connection string,
and migrates a fresh schema that is dropped when the test ends. Returns the
store and the id of a category to post in.
*/
func newTestPostgres(t *testing.T) (*store.Postgres, int) {
	t.Helper()
	dsn := os.Getenv("DISCUSS_TEST_POSTGRES")
	if dsn == "" {
		t.Skip("DISCUSS_TEST_POSTGRES not set")
	}
	ctx := context.Background()
	schema := fmt.Sprintf("discuss_test_%d", time.Now().UnixNano())

	admin, err := pgx.Connect(ctx, dsn)
	require.Nil(t, err)
	_, err = admin.Exec(ctx, "CREATE SCHEMA "+schema)
	require.Nil(t, err)
	t.Cleanup(func() {
		_, err := admin.Exec(context.Background(), "DROP SCHEMA "+schema+" CASCADE")
		assert.Nil(t, err)
		admin.Close(context.Background())
	})

	cfg, err := pgxpool.ParseConfig(dsn)
	require.Nil(t, err)
	cfg.ConnConfig.RuntimeParams["search_path"] = schema
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	require.Nil(t, err)
	t.Cleanup(pool.Close)

	versions := make([]types.MigrationVersion, 0, len(migrations.All))
	for v := range migrations.All {
		versions = append(versions, v)
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i].Before(versions[j]) })

	tx, err := pool.Begin(ctx)
	require.Nil(t, err)
	for _, v := range versions {
		require.Nil(t, migrations.All[v].Up(ctx, tx), "migration %s", v)
	}
	require.Nil(t, tx.Commit(ctx))

	var categoryID int
	require.Nil(t, pool.QueryRow(ctx, `INSERT INTO discuss_category (name) VALUES ('Help') RETURNING id`).Scan(&categoryID))

	return store.NewPostgres(pool), categoryID
}

func insertTopic(t *testing.T, pg *store.Postgres, categoryID int) models.Topic {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	var topic models.Topic
	err := pg.Atomically(ctx, func(tx store.Tx) error {
		id, err := tx.NextTopicID(ctx)
		if err != nil {
			return err
		}
		topic = models.Topic{
			ID:             id,
			CategoryID:     categoryID,
			AuthorID:       1,
			Title:          "Linker errors",
			Status:         models.TopicStatusOpen,
			CreatedAt:      now,
			LastActivityAt: now,
		}
		return tx.InsertTopic(ctx, topic)
	})
	require.Nil(t, err)
	return topic
}

func insertReply(t *testing.T, pg *store.Postgres, topicID int, parent *models.Reply) models.Reply {
	t.Helper()
	ctx := context.Background()
	var reply models.Reply
	err := pg.Atomically(ctx, func(tx store.Tx) error {
		id, err := tx.NextReplyID(ctx)
		if err != nil {
			return err
		}
		reply = models.Reply{
			ID:           id,
			TopicID:      topicID,
			AuthorID:     2,
			Content:      "Check the library order.",
			SortPath:     replytree.PadID(id),
			DeletionKind: models.DeletionNone,
			CreatedAt:    time.Now().UTC().Truncate(time.Microsecond),
		}
		if parent != nil {
			reply.ParentID = &parent.ID
			reply.Depth = parent.Depth + 1
			reply.SortPath = replytree.ChildPath(parent.SortPath, id)
		}
		if err := tx.InsertReply(ctx, reply); err != nil {
			return err
		}
		topic, err := tx.GetTopic(ctx, topicID)
		if err != nil {
			return err
		}
		topic.ReplyCount++
		return tx.UpdateTopic(ctx, topic)
	})
	require.Nil(t, err)
	return reply
}

func TestPostgresRowLocks(t *testing.T) {
	pg, categoryID := newTestPostgres(t)
	ctx := context.Background()
	topic := insertTopic(t, pg, categoryID)

	locked := make(chan struct{})
	release := make(chan struct{})
	firstDone := make(chan error, 1)
	go func() {
		firstDone <- pg.Atomically(ctx, func(tx store.Tx) error {
			topic, err := tx.GetTopic(ctx, topic.ID)
			if err != nil {
				return err
			}
			close(locked)
			<-release
			topic.ReplyCount++
			return tx.UpdateTopic(ctx, topic)
		})
	}()
	select {
	case <-locked:
	case err := <-firstDone:
		t.Fatalf("first transaction ended early: %v", err)
	}

	secondRead := make(chan int, 1)
	secondDone := make(chan error, 1)
	go func() {
		secondDone <- pg.Atomically(ctx, func(tx store.Tx) error {
			topic, err := tx.GetTopic(ctx, topic.ID)
			if err != nil {
				return err
			}
			secondRead <- topic.ReplyCount
			topic.ReplyCount++
			return tx.UpdateTopic(ctx, topic)
		})
	}()

	select {
	case <-secondRead:
		t.Fatal("second transaction read a topic that was locked")
	case <-time.After(200 * time.Millisecond):
	}

	close(release)
	require.Nil(t, <-firstDone)
	assert.Equal(t, 1, <-secondRead, "second transaction sees the first one's write")
	require.Nil(t, <-secondDone)

	stored, err := pg.GetTopic(ctx, topic.ID)
	require.Nil(t, err)
	assert.Equal(t, 2, stored.ReplyCount, "no increment was lost")
}

func TestPostgresHardDeleteSolution(t *testing.T) {
	pg, categoryID := newTestPostgres(t)
	ctx := context.Background()
	topic := insertTopic(t, pg, categoryID)
	parent := insertReply(t, pg, topic.ID, nil)
	child := insertReply(t, pg, topic.ID, &parent)
	other := insertReply(t, pg, topic.ID, nil)

	setSolution := func(t *testing.T, reply models.Reply) {
		t.Helper()
		err := pg.Atomically(ctx, func(tx store.Tx) error {
			topic, err := tx.GetTopic(ctx, topic.ID)
			if err != nil {
				return err
			}
			topic.SolutionID = &reply.ID
			return tx.UpdateTopic(ctx, topic)
		})
		require.Nil(t, err)
	}

	t.Run("solution must be cleared before commit", func(t *testing.T) {
		setSolution(t, other)
		err := pg.Atomically(ctx, func(tx store.Tx) error {
			return tx.DeleteReply(ctx, other.ID)
		})
		assert.NotNil(t, err, "commit should fail the deferred foreign key")

		_, err = pg.GetReply(ctx, other.ID)
		assert.Nil(t, err, "the delete was rolled back")
	})

	t.Run("hard delete clears it in the same transaction", func(t *testing.T) {
		setSolution(t, parent)

		res, err := deletion.NewReparenter(pg).HardDelete(ctx, parent.ID, deletion.HardDeleteOptions{})
		require.Nil(t, err)
		assert.True(t, res.ClearedSolution)
		assert.Equal(t, []int{child.ID}, res.Reparented)

		stored, err := pg.GetTopic(ctx, topic.ID)
		require.Nil(t, err)
		assert.Nil(t, stored.SolutionID)
		assert.Equal(t, 2, stored.ReplyCount)

		_, err = pg.GetReply(ctx, parent.ID)
		assert.ErrorIs(t, err, models.ErrNotFound)

		moved, err := pg.GetReply(ctx, child.ID)
		require.Nil(t, err)
		assert.Nil(t, moved.ParentID)
		assert.Equal(t, 0, moved.Depth)
		assert.Equal(t, replytree.PadID(child.ID), moved.SortPath)
	})
}
