package migrations

import (
	"context"
	"time"

	"git.handmade.network/hmn/discuss/src/migration/types"
	"github.com/jackc/pgx/v5"
)

func init() {
	registerMigration(AddLookupIndexes{})
}

type AddLookupIndexes struct{}

func (m AddLookupIndexes) Version() types.MigrationVersion {
	return types.MigrationVersion(time.Date(2026, 10, 9, 17, 3, 12, 0, time.UTC))
}

func (m AddLookupIndexes) Name() string {
	return "AddLookupIndexes"
}

func (m AddLookupIndexes) Description() string {
	return "Index votes by user and replies by parent"
}

func (m AddLookupIndexes) Up(ctx context.Context, tx pgx.Tx) error {
	_, err := tx.Exec(ctx, `
		CREATE INDEX discuss_vote_user ON discuss_vote (user_id);
		CREATE INDEX discuss_reply_parent ON discuss_reply (parent_id);
	`)
	return err
}

func (m AddLookupIndexes) Down(ctx context.Context, tx pgx.Tx) error {
	_, err := tx.Exec(ctx, `
		DROP INDEX discuss_reply_parent;
		DROP INDEX discuss_vote_user;
	`)
	return err
}
