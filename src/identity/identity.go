/*
Package identity looks up display metadata for reply and topic authors.

None of this data takes part in any of the engine's guarantees, so it may be
served slightly stale from a cache.
*/
package identity

import (
	"context"
	"sync"

	"git.handmade.network/hmn/discuss/src/db"
	"git.handmade.network/hmn/discuss/src/models"
	"git.handmade.network/hmn/discuss/src/oops"
)

// Ids that do not belong to any user are left out of the result.
type Resolver interface {
	ResolveAuthors(ctx context.Context, ids []int) (map[int]models.Author, error)
}

type Postgres struct {
	Conn db.ConnOrTx
}

func (p Postgres) ResolveAuthors(ctx context.Context, ids []int) (map[int]models.Author, error) {
	result := make(map[int]models.Author, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	users, err := db.Query[models.User](ctx, p.Conn,
		`
		---- Resolve authors
		SELECT $columns
		FROM discuss_user
		WHERE id = ANY($1)
		`,
		ids,
	)
	if err != nil {
		return nil, oops.New(err, "failed to fetch authors")
	}
	for _, u := range users {
		result[u.ID] = u.Author()
	}
	return result, nil
}

func (p Postgres) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	id, err := db.QueryOneScalar[int](ctx, p.Conn,
		`
		---- Create user
		INSERT INTO discuss_user (username, display_name, role)
		VALUES ($1, $2, $3)
		RETURNING id
		`,
		user.Username, user.DisplayName, user.Role,
	)
	if err != nil {
		return models.User{}, oops.New(err, "failed to create user %s", user.Username)
	}
	user.ID = id
	return user, nil
}

// An in-memory user table for tests and local development.
type Static struct {
	mu    sync.RWMutex
	users map[int]models.User
}

func NewStatic(users ...models.User) *Static {
	s := &Static{users: make(map[int]models.User, len(users))}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

func (s *Static) Add(user models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = user
}

func (s *Static) ResolveAuthors(ctx context.Context, ids []int) (map[int]models.Author, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make(map[int]models.Author, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			result[id] = u.Author()
		}
	}
	return result, nil
}

// Fallback metadata for authors that no longer exist.
func UnknownAuthor(id int) models.Author {
	return models.Author{ID: id, Name: "Unknown user"}
}
