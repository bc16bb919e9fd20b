package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"git.handmade.network/hmn/discuss/src/db"
	"git.handmade.network/hmn/discuss/src/models"
	"git.handmade.network/hmn/discuss/src/oops"
)

// Reads roles from the discuss_user table.
type PostgresRoles struct {
	Conn db.ConnOrTx
}

func (p PostgresRoles) UserRole(ctx context.Context, userID int) (models.Role, error) {
	role, err := db.QueryOneScalar[models.Role](ctx, p.Conn,
		`
		---- Fetch user role
		SELECT role
		FROM discuss_user
		WHERE id = $1
		`,
		userID,
	)
	if errors.Is(err, db.NotFound) {
		return "", fmt.Errorf("user %d: %w", userID, models.ErrNotFound)
	} else if err != nil {
		return "", oops.New(err, "failed to fetch role of user %d", userID)
	}
	return role, nil
}

// An in-memory role table, for tests and local development.
type StaticRoles struct {
	mu    sync.RWMutex
	roles map[int]models.Role
}

func NewStaticRoles(roles map[int]models.Role) *StaticRoles {
	s := &StaticRoles{roles: make(map[int]models.Role, len(roles))}
	for id, role := range roles {
		s.roles[id] = role
	}
	return s
}

func (s *StaticRoles) Set(userID int, role models.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles[userID] = role
}

func (s *StaticRoles) UserRole(ctx context.Context, userID int) (models.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	role, ok := s.roles[userID]
	if !ok {
		return "", fmt.Errorf("user %d: %w", userID, models.ErrNotFound)
	}
	return role, nil
}
