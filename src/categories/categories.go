// Package categories reports whether a category currently accepts replies.
package categories

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"git.handmade.network/hmn/discuss/src/db"
	"git.handmade.network/hmn/discuss/src/models"
	"git.handmade.network/hmn/discuss/src/oops"
)

type Postgres struct {
	Conn db.ConnOrTx
}

func (p Postgres) CategoryStatus(ctx context.Context, categoryID int) (models.CategoryStatus, error) {
	status, err := db.QueryOneScalar[models.CategoryStatus](ctx, p.Conn,
		`
		---- Fetch category status
		SELECT status
		FROM discuss_category
		WHERE id = $1
		`,
		categoryID,
	)
	if errors.Is(err, db.NotFound) {
		return "", fmt.Errorf("category %d: %w", categoryID, models.ErrNotFound)
	} else if err != nil {
		return "", oops.New(err, "failed to fetch status of category %d", categoryID)
	}
	return status, nil
}

func (p Postgres) Create(ctx context.Context, name string, status models.CategoryStatus) (models.Category, error) {
	id, err := db.QueryOneScalar[int](ctx, p.Conn,
		`
		---- Create category
		INSERT INTO discuss_category (name, status)
		VALUES ($1, $2)
		RETURNING id
		`,
		name, status,
	)
	if err != nil {
		return models.Category{}, oops.New(err, "failed to create category")
	}
	return models.Category{ID: id, Name: name, Status: status}, nil
}

// In-memory categories for tests and local development. Categories that were
// never added are reported as open.
type Static struct {
	mu       sync.RWMutex
	statuses map[int]models.CategoryStatus
}

func NewStatic() *Static {
	return &Static{statuses: make(map[int]models.CategoryStatus)}
}

func (s *Static) Set(categoryID int, status models.CategoryStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[categoryID] = status
}

func (s *Static) CategoryStatus(ctx context.Context, categoryID int) (models.CategoryStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if status, ok := s.statuses[categoryID]; ok {
		return status, nil
	}
	return models.CategoryStatusOpen, nil
}
