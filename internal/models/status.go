package models

import "time"

// StatusGroup buckets statuses for board-style UI grouping.
type StatusGroup struct {
	ID        string    `db:"id" json:"id"`
	Code      string    `db:"code" json:"code"`
	Name      string    `db:"name" json:"name"`
	SortOrder int       `db:"sort_order" json:"sortOrder"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// Status is workflow reference data. Deactivating a status never
// invalidates requests that already reference it.
type Status struct {
	ID        string    `db:"id" json:"id"`
	Code      string    `db:"code" json:"code"`
	Name      string    `db:"name" json:"name"`
	GroupID   *string   `db:"group_id" json:"groupId,omitempty"`
	Color     string    `db:"color" json:"color"`
	SortOrder int       `db:"sort_order" json:"sortOrder"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}
