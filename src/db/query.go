package db

import (
	"context"
	"errors"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
)

/*
A general error to be used when no results are found. This is the error returned
by QueryOne, and can generally be used by other database helpers that fetch a single
result but find nothing.
*/
var NotFound = errors.New("not found")

/*
Performs a SQL query and returns a slice of all the result rows. The query is just plain SQL, but make sure to read the package documentation for details. You must explicitly provide the type argument - this is how it knows what Go type to map the results to, and it cannot be inferred.

Any SQL query may be performed, including INSERT and UPDATE - as long as it returns a result set, you can use this. If the query does not return a result set, or you simply do not care about the result set, call Exec directly on your pgx connection.

This function always returns pointers to the values. This is convenient for structs, but for other types, you may wish to use QueryScalar.
*/
func Query[T any](
	ctx context.Context,
	conn ConnOrTx,
	query string,
	args ...any,
) ([]*T, error) {
	rows, err := queryRows[T](ctx, conn, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, rowToAddr[T]())
}

/*
Identical to Query, but returns only the first result row. If there are no
rows in the result set, returns NotFound.
*/
func QueryOne[T any](
	ctx context.Context,
	conn ConnOrTx,
	query string,
	args ...any,
) (*T, error) {
	rows, err := queryRows[T](ctx, conn, query, args...)
	if err != nil {
		return nil, err
	}
	result, err := pgx.CollectOneRow(rows, rowToAddr[T]())
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, NotFound
	}
	return result, err
}

/*
Identical to Query, but returns concrete values instead of pointers. More convenient
for primitive types.
*/
func QueryScalar[T any](
	ctx context.Context,
	conn ConnOrTx,
	query string,
	args ...any,
) ([]T, error) {
	rows, err := queryRows[T](ctx, conn, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, rowTo[T]())
}

/*
Identical to QueryScalar, but returns only the first result value. If there are
no rows in the result set, returns NotFound.
*/
func QueryOneScalar[T any](
	ctx context.Context,
	conn ConnOrTx,
	query string,
	args ...any,
) (T, error) {
	rows, err := queryRows[T](ctx, conn, query, args...)
	if err != nil {
		var zero T
		return zero, err
	}
	result, err := pgx.CollectOneRow(rows, rowTo[T]())
	if errors.Is(err, pgx.ErrNoRows) {
		var zero T
		return zero, NotFound
	}
	return result, err
}

func queryRows[T any](ctx context.Context, conn ConnOrTx, query string, args ...any) (pgx.Rows, error) {
	var destExample T
	compiled := compileQuery(query, reflect.TypeOf(destExample))
	return conn.Query(ctx, compiled, args...)
}

func rowTo[T any]() pgx.RowToFunc[T] {
	var destExample T
	if isStructDest(reflect.TypeOf(destExample)) {
		return pgx.RowToStructByNameLax[T]
	}
	return pgx.RowTo[T]
}

func rowToAddr[T any]() pgx.RowToFunc[*T] {
	var destExample T
	if isStructDest(reflect.TypeOf(destExample)) {
		return pgx.RowToAddrOfStructByNameLax[T]
	}
	return pgx.RowToAddrOf[T]
}

var timeType = reflect.TypeOf(time.Time{})

// Structs are mapped column-by-name using their `db` tags. time.Time is a
// struct too, but pgx scans it directly.
func isStructDest(t reflect.Type) bool {
	return t != nil && t.Kind() == reflect.Struct && t != timeType
}

var reColumnsPlaceholder = regexp.MustCompile(`\$columns({(.*?)})?`)

var compiledQueries sync.Map // map[compiledQueryKey]string

type compiledQueryKey struct {
	query    string
	destType reflect.Type
}

/*
Expands the $columns placeholder into the column names of the destination
struct. $columns{r} qualifies each column with the table alias r.
*/
func compileQuery(query string, destType reflect.Type) string {
	if !strings.Contains(query, "$columns") {
		return query
	}

	key := compiledQueryKey{query: query, destType: destType}
	if cached, ok := compiledQueries.Load(key); ok {
		return cached.(string)
	}

	if !isStructDest(destType) {
		panic("$columns can only be used when querying into a struct")
	}

	names := columnNames(destType)
	compiled := reColumnsPlaceholder.ReplaceAllStringFunc(query, func(match string) string {
		prefix := reColumnsPlaceholder.FindStringSubmatch(match)[2]
		if prefix == "" {
			return strings.Join(names, ", ")
		}
		qualified := make([]string, len(names))
		for i, name := range names {
			qualified[i] = prefix + "." + name
		}
		return strings.Join(qualified, ", ")
	})

	compiledQueries.Store(key, compiled)
	return compiled
}

// Collects the `db` tag of every exported field, descending into untagged
// embedded structs the way pgx does when it maps columns by name.
func columnNames(t reflect.Type) []string {
	var names []string
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag, hasTag := field.Tag.Lookup("db")
		if tag == "-" {
			continue
		}
		if field.Anonymous && !hasTag {
			ft := field.Type
			if ft.Kind() == reflect.Ptr {
				ft = ft.Elem()
			}
			if ft.Kind() == reflect.Struct {
				names = append(names, columnNames(ft)...)
				continue
			}
		}
		if !field.IsExported() || !hasTag {
			continue
		}
		name, _, _ := strings.Cut(tag, ",")
		names = append(names, name)
	}
	return names
}
