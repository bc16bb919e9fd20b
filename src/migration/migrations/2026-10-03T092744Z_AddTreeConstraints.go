package migrations

import (
	"context"
	"time"

	"git.handmade.network/hmn/discuss/src/migration/types"
	"github.com/jackc/pgx/v5"
)

func init() {
	registerMigration(AddTreeConstraints{})
}

type AddTreeConstraints struct{}

func (m AddTreeConstraints) Version() types.MigrationVersion {
	return types.MigrationVersion(time.Date(2026, 10, 3, 9, 27, 44, 0, time.UTC))
}

func (m AddTreeConstraints) Name() string {
	return "AddTreeConstraints"
}

func (m AddTreeConstraints) Description() string {
	return "Enforce one solution per topic and unique sort paths"
}

func (m AddTreeConstraints) Up(ctx context.Context, tx pgx.Tx) error {
	_, err := tx.Exec(ctx, `
		CREATE UNIQUE INDEX discuss_reply_one_solution
			ON discuss_reply (topic_id)
			WHERE is_solution;

		ALTER TABLE discuss_reply
			ADD CONSTRAINT discuss_reply_sort_path_unique UNIQUE (topic_id, sort_path);

		ALTER TABLE discuss_reply
			ADD CONSTRAINT discuss_reply_deletion_kind
			CHECK (deletion_kind IN ('none', 'soft', 'hard'));
	`)
	return err
}

func (m AddTreeConstraints) Down(ctx context.Context, tx pgx.Tx) error {
	_, err := tx.Exec(ctx, `
		ALTER TABLE discuss_reply DROP CONSTRAINT discuss_reply_deletion_kind;
		ALTER TABLE discuss_reply DROP CONSTRAINT discuss_reply_sort_path_unique;
		DROP INDEX discuss_reply_one_solution;
	`)
	return err
}
