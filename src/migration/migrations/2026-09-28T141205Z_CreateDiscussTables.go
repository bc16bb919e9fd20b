package migrations

import (
	"context"
	"time"

	"git.handmade.network/hmn/discuss/src/migration/types"
	"github.com/jackc/pgx/v5"
)

func init() {
	registerMigration(CreateDiscussTables{})
}

type CreateDiscussTables struct{}

func (m CreateDiscussTables) Version() types.MigrationVersion {
	return types.MigrationVersion(time.Date(2026, 9, 28, 14, 12, 5, 0, time.UTC))
}

func (m CreateDiscussTables) Name() string {
	return "CreateDiscussTables"
}

func (m CreateDiscussTables) Description() string {
	return "Creates categories, users, topics, replies and votes"
}

func (m CreateDiscussTables) Up(ctx context.Context, tx pgx.Tx) error {
	_, err := tx.Exec(ctx, `
		CREATE TABLE discuss_category (
			id SERIAL PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			status VARCHAR(16) NOT NULL DEFAULT 'open'
				CHECK (status IN ('open', 'locked', 'archived'))
		);

		CREATE TABLE discuss_user (
			id SERIAL PRIMARY KEY,
			username VARCHAR(150) NOT NULL UNIQUE,
			display_name VARCHAR(255) NOT NULL DEFAULT '',
			role VARCHAR(16) NOT NULL DEFAULT 'member'
				CHECK (role IN ('member', 'moderator', 'admin', 'banned'))
		);

		CREATE SEQUENCE discuss_topic_id_seq;
		CREATE TABLE discuss_topic (
			id INT PRIMARY KEY DEFAULT nextval('discuss_topic_id_seq'),
			category_id INT NOT NULL REFERENCES discuss_category (id),
			author_id INT NOT NULL,
			title VARCHAR(255) NOT NULL,
			status VARCHAR(16) NOT NULL DEFAULT 'open'
				CHECK (status IN ('open', 'locked', 'archived')),
			pinned BOOLEAN NOT NULL DEFAULT FALSE,
			solution_reply_id INT,
			reply_count INT NOT NULL DEFAULT 0,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL,
			last_activity_at TIMESTAMP WITH TIME ZONE NOT NULL
		);
		ALTER SEQUENCE discuss_topic_id_seq OWNED BY discuss_topic.id;

		CREATE SEQUENCE discuss_reply_id_seq;
		CREATE TABLE discuss_reply (
			id INT PRIMARY KEY DEFAULT nextval('discuss_reply_id_seq'),
			topic_id INT NOT NULL REFERENCES discuss_topic (id) ON DELETE CASCADE,
			parent_id INT REFERENCES discuss_reply (id),
			author_id INT NOT NULL,
			content TEXT NOT NULL,
			depth INT NOT NULL CHECK (depth BETWEEN 0 AND 5),
			sort_path VARCHAR(80) NOT NULL,
			is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
			deletion_kind VARCHAR(8) NOT NULL DEFAULT 'none',
			is_solution BOOLEAN NOT NULL DEFAULT FALSE,
			vote_count INT NOT NULL DEFAULT 0,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL,
			edited_at TIMESTAMP WITH TIME ZONE,
			CHECK (parent_id IS NULL OR parent_id < id)
		);
		ALTER SEQUENCE discuss_reply_id_seq OWNED BY discuss_reply.id;
		CREATE INDEX discuss_reply_topic ON discuss_reply (topic_id);

		-- The solution is cleared after its reply is removed, in the same transaction.
		ALTER TABLE discuss_topic
			ADD CONSTRAINT discuss_topic_solution_fkey
			FOREIGN KEY (solution_reply_id) REFERENCES discuss_reply (id)
			DEFERRABLE INITIALLY DEFERRED;

		CREATE TABLE discuss_vote (
			reply_id INT NOT NULL REFERENCES discuss_reply (id) ON DELETE CASCADE,
			user_id INT NOT NULL,
			value SMALLINT NOT NULL CHECK (value IN (-1, 1)),
			created_at TIMESTAMP WITH TIME ZONE NOT NULL,
			PRIMARY KEY (reply_id, user_id)
		);
	`)
	return err
}

func (m CreateDiscussTables) Down(ctx context.Context, tx pgx.Tx) error {
	_, err := tx.Exec(ctx, `
		DROP TABLE discuss_vote;
		ALTER TABLE discuss_topic DROP CONSTRAINT discuss_topic_solution_fkey;
		DROP TABLE discuss_reply;
		DROP TABLE discuss_topic;
		DROP TABLE discuss_user;
		DROP TABLE discuss_category;
	`)
	return err
}
