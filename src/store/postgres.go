package store

import (
	"context"
	"errors"
	"fmt"

	"git.handmade.network/hmn/discuss/src/db"
	"git.handmade.network/hmn/discuss/src/models"
	"git.handmade.network/hmn/discuss/src/oops"
	"git.handmade.network/hmn/discuss/src/utils"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

/*
The production store. Every transaction locks the rows it reads with FOR
UPDATE, so several processes sharing one database still apply mutations to a
topic or reply one at a time.
*/
type Postgres struct {
	pool *pgxpool.Pool
	pgReader
}

var _ Store = (*Postgres)(nil)

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{
		pool:     pool,
		pgReader: pgReader{conn: pool},
	}
}

func (p *Postgres) Atomically(ctx context.Context, fn func(tx Tx) error) (err error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return oops.New(err, "failed to start transaction")
	}
	defer tx.Rollback(ctx)
	defer utils.RecoverPanicAsError(&err)

	if err := fn(&pgTx{pgReader: pgReader{conn: tx, lock: true}, tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return oops.New(err, "failed to commit transaction")
	}
	return nil
}

func (p *Postgres) DriftedReplies(ctx context.Context, limit int) ([]models.VoteDrift, error) {
	drifts, err := db.QueryScalar[models.VoteDrift](ctx, p.pool,
		`
		---- Find drifted vote counts
		SELECT
			r.id AS reply_id,
			r.topic_id AS topic_id,
			r.vote_count AS stored,
			COALESCE(SUM(v.value), 0)::int AS actual
		FROM
			discuss_reply AS r
			LEFT JOIN discuss_vote AS v ON v.reply_id = r.id
		GROUP BY r.id
		HAVING r.vote_count <> COALESCE(SUM(v.value), 0)
		ORDER BY r.id
		LIMIT $1
		`,
		limit,
	)
	if err != nil {
		return nil, oops.New(err, "failed to find drifted vote counts")
	}
	return drifts, nil
}

type pgReader struct {
	conn db.ConnOrTx
	lock bool // take row locks on everything read
}

func (r pgReader) forUpdate() string {
	if r.lock {
		return "FOR UPDATE"
	}
	return ""
}

func (r pgReader) GetTopic(ctx context.Context, topicID int) (models.Topic, error) {
	topic, err := db.QueryOne[models.Topic](ctx, r.conn,
		`
		---- Fetch topic
		SELECT $columns
		FROM discuss_topic
		WHERE id = $1
		`+r.forUpdate(),
		topicID,
	)
	if errors.Is(err, db.NotFound) {
		return models.Topic{}, fmt.Errorf("topic %d: %w", topicID, models.ErrNotFound)
	} else if err != nil {
		return models.Topic{}, oops.New(err, "failed to fetch topic %d", topicID)
	}
	return *topic, nil
}

func (r pgReader) GetReply(ctx context.Context, replyID int) (models.Reply, error) {
	reply, err := db.QueryOne[models.Reply](ctx, r.conn,
		`
		---- Fetch reply
		SELECT $columns
		FROM discuss_reply
		WHERE id = $1
		`+r.forUpdate(),
		replyID,
	)
	if errors.Is(err, db.NotFound) {
		return models.Reply{}, fmt.Errorf("reply %d: %w", replyID, models.ErrNotFound)
	} else if err != nil {
		return models.Reply{}, oops.New(err, "failed to fetch reply %d", replyID)
	}
	return *reply, nil
}

func (r pgReader) ListReplies(ctx context.Context, topicID int) ([]models.Reply, error) {
	if _, err := r.GetTopic(ctx, topicID); err != nil {
		return nil, err
	}
	replies, err := db.QueryScalar[models.Reply](ctx, r.conn,
		`
		---- Fetch replies
		SELECT $columns
		FROM discuss_reply
		WHERE topic_id = $1
		ORDER BY id
		`+r.forUpdate(),
		topicID,
	)
	if err != nil {
		return nil, oops.New(err, "failed to fetch replies for topic %d", topicID)
	}
	return replies, nil
}

func (r pgReader) GetVote(ctx context.Context, replyID, userID int) (*models.Vote, error) {
	vote, err := db.QueryOne[models.Vote](ctx, r.conn,
		`
		---- Fetch vote
		SELECT $columns
		FROM discuss_vote
		WHERE reply_id = $1 AND user_id = $2
		`+r.forUpdate(),
		replyID, userID,
	)
	if errors.Is(err, db.NotFound) {
		return nil, nil
	} else if err != nil {
		return nil, oops.New(err, "failed to fetch vote")
	}
	return vote, nil
}

func (r pgReader) SumVotes(ctx context.Context, replyID int) (int, error) {
	sum, err := db.QueryOneScalar[int](ctx, r.conn,
		`
		---- Sum votes
		SELECT COALESCE(SUM(value), 0)::int
		FROM discuss_vote
		WHERE reply_id = $1
		`,
		replyID,
	)
	if err != nil {
		return 0, oops.New(err, "failed to sum votes for reply %d", replyID)
	}
	return sum, nil
}

type pgTx struct {
	pgReader
	tx pgx.Tx
}

var _ Tx = (*pgTx)(nil)

func (t *pgTx) NextTopicID(ctx context.Context) (int, error) {
	id, err := db.QueryOneScalar[int](ctx, t.tx, `SELECT nextval('discuss_topic_id_seq')::int`)
	if err != nil {
		return 0, oops.New(err, "failed to reserve topic id")
	}
	return id, nil
}

func (t *pgTx) InsertTopic(ctx context.Context, topic models.Topic) error {
	_, err := t.tx.Exec(ctx,
		`
		---- Insert topic
		INSERT INTO discuss_topic (id, category_id, author_id, title, status, pinned, solution_reply_id, reply_count, created_at, last_activity_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`,
		topic.ID, topic.CategoryID, topic.AuthorID, topic.Title, topic.Status, topic.Pinned,
		topic.SolutionID, topic.ReplyCount, topic.CreatedAt, topic.LastActivityAt,
	)
	if err != nil {
		return oops.New(err, "failed to insert topic")
	}
	return nil
}

func (t *pgTx) UpdateTopic(ctx context.Context, topic models.Topic) error {
	tag, err := t.tx.Exec(ctx,
		`
		---- Update topic
		UPDATE discuss_topic
		SET
			title = $2,
			status = $3,
			pinned = $4,
			solution_reply_id = $5,
			reply_count = $6,
			last_activity_at = $7
		WHERE id = $1
		`,
		topic.ID, topic.Title, topic.Status, topic.Pinned, topic.SolutionID, topic.ReplyCount, topic.LastActivityAt,
	)
	if err != nil {
		return oops.New(err, "failed to update topic %d", topic.ID)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("topic %d: %w", topic.ID, models.ErrNotFound)
	}
	return nil
}

func (t *pgTx) NextReplyID(ctx context.Context) (int, error) {
	id, err := db.QueryOneScalar[int](ctx, t.tx, `SELECT nextval('discuss_reply_id_seq')::int`)
	if err != nil {
		return 0, oops.New(err, "failed to reserve reply id")
	}
	return id, nil
}

func (t *pgTx) InsertReply(ctx context.Context, reply models.Reply) error {
	_, err := t.tx.Exec(ctx,
		`
		---- Insert reply
		INSERT INTO discuss_reply (id, topic_id, parent_id, author_id, content, depth, sort_path, is_deleted, deletion_kind, is_solution, vote_count, created_at, edited_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		`,
		reply.ID, reply.TopicID, reply.ParentID, reply.AuthorID, reply.Content, reply.Depth, reply.SortPath,
		reply.IsDeleted, reply.DeletionKind, reply.IsSolution, reply.VoteCount, reply.CreatedAt, reply.EditedAt,
	)
	if err != nil {
		return oops.New(err, "failed to insert reply")
	}
	return nil
}

func (t *pgTx) UpdateReply(ctx context.Context, reply models.Reply) error {
	tag, err := t.tx.Exec(ctx,
		`
		---- Update reply
		UPDATE discuss_reply
		SET
			parent_id = $2,
			content = $3,
			depth = $4,
			sort_path = $5,
			is_deleted = $6,
			deletion_kind = $7,
			is_solution = $8,
			vote_count = $9,
			edited_at = $10
		WHERE id = $1
		`,
		reply.ID, reply.ParentID, reply.Content, reply.Depth, reply.SortPath, reply.IsDeleted,
		reply.DeletionKind, reply.IsSolution, reply.VoteCount, reply.EditedAt,
	)
	if err != nil {
		return oops.New(err, "failed to update reply %d", reply.ID)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("reply %d: %w", reply.ID, models.ErrNotFound)
	}
	return nil
}

func (t *pgTx) DeleteReply(ctx context.Context, replyID int) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM discuss_reply WHERE id = $1`, replyID)
	if err != nil {
		return oops.New(err, "failed to delete reply %d", replyID)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("reply %d: %w", replyID, models.ErrNotFound)
	}
	return nil
}

func (t *pgTx) PutVote(ctx context.Context, vote models.Vote) error {
	_, err := t.tx.Exec(ctx,
		`
		---- Put vote
		INSERT INTO discuss_vote (reply_id, user_id, value, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (reply_id, user_id) DO UPDATE
			SET value = EXCLUDED.value, created_at = EXCLUDED.created_at
		`,
		vote.ReplyID, vote.UserID, int(vote.Type), vote.CreatedAt,
	)
	if err != nil {
		return oops.New(err, "failed to store vote")
	}
	return nil
}

func (t *pgTx) DeleteVote(ctx context.Context, replyID, userID int) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM discuss_vote WHERE reply_id = $1 AND user_id = $2`, replyID, userID)
	if err != nil {
		return oops.New(err, "failed to delete vote")
	}
	return nil
}

func (t *pgTx) DeleteVotesForReply(ctx context.Context, replyID int) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM discuss_vote WHERE reply_id = $1`, replyID)
	if err != nil {
		return oops.New(err, "failed to delete votes for reply %d", replyID)
	}
	return nil
}

func (t *pgTx) AddVoteCount(ctx context.Context, replyID, delta int) (int, error) {
	count, err := db.QueryOneScalar[int](ctx, t.tx,
		`
		---- Add to vote count
		UPDATE discuss_reply
		SET vote_count = vote_count + $2
		WHERE id = $1
		RETURNING vote_count
		`,
		replyID, delta,
	)
	if errors.Is(err, db.NotFound) {
		return 0, fmt.Errorf("reply %d: %w", replyID, models.ErrNotFound)
	} else if err != nil {
		return 0, oops.New(err, "failed to update vote count")
	}
	return count, nil
}

func (t *pgTx) SetVoteCount(ctx context.Context, replyID, count int) error {
	tag, err := t.tx.Exec(ctx, `UPDATE discuss_reply SET vote_count = $2 WHERE id = $1`, replyID, count)
	if err != nil {
		return oops.New(err, "failed to set vote count")
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("reply %d: %w", replyID, models.ErrNotFound)
	}
	return nil
}
