package models

type CategoryStatus string

const (
	CategoryStatusOpen     CategoryStatus = "open"
	CategoryStatusLocked   CategoryStatus = "locked"
	CategoryStatusArchived CategoryStatus = "archived"
)

// Whether new replies may be posted in the category.
func (s CategoryStatus) AcceptsReplies() bool {
	return s == CategoryStatusOpen
}

type Category struct {
	ID     int            `db:"id" json:"id"`
	Name   string         `db:"name" json:"name"`
	Status CategoryStatus `db:"status" json:"status"`
}
