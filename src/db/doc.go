/*
This package contains lowish-level APIs for making queries to the discussion
database. It streamlines mapping query results to Go types while still letting
you write arbitrary SQL.

Query syntax

Arguments use the usual pgx placeholders ($1, $2, ...). To use a slice in a
query, pass it as a Postgres array and use ANY instead of IN:

	ids, err := db.QueryScalar[int](ctx, conn,
		`
		SELECT id
		FROM discuss_reply
		WHERE topic_id = ANY($1)
		`,
		[]int{1, 2, 3},
	)

To query multiple columns at once, use a struct with `db:"column_name"` tags and
the special $columns placeholder:

	type Reply struct {
		ID       int    `db:"id"`
		SortPath string `db:"sort_path"`
	}
	replies, err := db.Query[Reply](ctx, conn, `SELECT $columns FROM discuss_reply`)
	// Resulting query:
	// SELECT id, sort_path FROM discuss_reply

When a JOIN makes column names ambiguous, include the table alias in the
placeholder like $columns{r}:

	replies, err := db.Query[Reply](ctx, conn, `
		SELECT $columns{r}
		FROM
			discuss_reply AS r
			JOIN discuss_topic AS t ON t.id = r.topic_id
		WHERE t.category_id = $1
	`, categoryID)
	// Resulting query:
	// SELECT r.id, r.sort_path FROM ...

Results are mapped by column name, so every selected column must have a
matching field. Struct fields without a matching column are left at their zero
value.

Naming queries

Starting a query with a line like "---- Fetch replies" names it in request perf
data.
*/
package db
