package models

import (
	"time"

	"github.com/lib/pq"
)

// Well-known permission codes gating workflow actions and admin operations.
const (
	PermRequestsSubmit     = "Requests.Submit"
	PermRequestsReview     = "Requests.Review"
	PermRequestsApprove    = "Requests.Approve"
	PermRequestsWork       = "Requests.Work"
	PermRequestsClose      = "Requests.Close"
	PermWorkflowAdmin      = "Workflow.Admin"
	PermSyncRun            = "Sync.Run"
	PermCatalogRead        = "Catalog.Read"
	PermCatalogWrite       = "Catalog.Write"
)

// User represents an application user stored in the users table.
type User struct {
	ID           string         `db:"id" json:"id"`
	Login        string         `db:"login" json:"login"`
	PasswordHash string         `db:"password_hash" json:"-"`
	FullName     string         `db:"full_name" json:"fullName"`
	Permissions  pq.StringArray `db:"permissions" json:"permissions"`
	Active       bool           `db:"active" json:"active"`
	LastLogin    *time.Time     `db:"last_login" json:"lastLogin,omitempty"`
	CreatedAt    time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updatedAt"`
}

// PermissionSet is a lookup-friendly view of permission codes.
type PermissionSet map[string]struct{}

// NewPermissionSet builds a set from a list of codes.
func NewPermissionSet(codes []string) PermissionSet {
	set := make(PermissionSet, len(codes))
	for _, code := range codes {
		set[code] = struct{}{}
	}
	return set
}

// Has reports whether the set contains the permission code.
func (s PermissionSet) Has(code string) bool {
	_, ok := s[code]
	return ok
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
