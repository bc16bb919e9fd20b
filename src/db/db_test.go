package db

import (
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type testReply struct {
	ID       int       `db:"id"`
	ParentID *int      `db:"parent_id"`
	SortPath string    `db:"sort_path"`
	Created  time.Time `db:"created_at"`

	Children []testReply `db:"-"`
	NoTag    int
}

type testAudited struct {
	Actor int `db:"actor_id"`
}

type testEmbedding struct {
	testAudited
	Note string `db:"note"`
}

func TestCompileQuery(t *testing.T) {
	t.Run("no placeholder", func(t *testing.T) {
		q := "SELECT count(*) FROM discuss_reply"
		assert.Equal(t, q, compileQuery(q, reflect.TypeOf(0)))
	})
	t.Run("columns", func(t *testing.T) {
		assert.Equal(t,
			"SELECT id, parent_id, sort_path, created_at FROM discuss_reply",
			compileQuery("SELECT $columns FROM discuss_reply", reflect.TypeOf(testReply{})),
		)
	})
	t.Run("prefixed columns", func(t *testing.T) {
		assert.Equal(t,
			"SELECT r.id, r.parent_id, r.sort_path, r.created_at FROM discuss_reply AS r",
			compileQuery("SELECT $columns{r} FROM discuss_reply AS r", reflect.TypeOf(testReply{})),
		)
	})
	t.Run("embedded struct", func(t *testing.T) {
		assert.Equal(t,
			"SELECT actor_id, note FROM audit",
			compileQuery("SELECT $columns FROM audit", reflect.TypeOf(testEmbedding{})),
		)
	})
	t.Run("scalar destination", func(t *testing.T) {
		assert.Panics(t, func() {
			compileQuery("SELECT $columns FROM discuss_reply", reflect.TypeOf(0))
		})
	})
}

func TestGetQueryName(t *testing.T) {
	name, ok := GetQueryName("\n---- Fetch replies\nSELECT 1")
	assert.True(t, ok)
	assert.Equal(t, "Fetch replies", name)

	_, ok = GetQueryName("SELECT 1")
	assert.False(t, ok)
}
