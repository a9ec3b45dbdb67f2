package dto

import (
	"time"

	"github.com/Paashik/MyIS-sub004/internal/models"
)

// CreateRequestRequest payload for registering a new request.
type CreateRequestRequest struct {
	TypeCode    string     `json:"typeCode"`
	Subject     string     `json:"subject"`
	Description string     `json:"description"`
	OrgUnitID   *string    `json:"orgUnitId,omitempty"`
	AssigneeID  *string    `json:"assigneeId,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
}

// UpdateRequestRequest edits request fields without touching status.
type UpdateRequestRequest struct {
	Subject     *string    `json:"subject,omitempty"`
	Description *string    `json:"description,omitempty"`
	OrgUnitID   *string    `json:"orgUnitId,omitempty"`
	AssigneeID  *string    `json:"assigneeId,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
}

// ApplyActionRequest performs one workflow action against a request.
type ApplyActionRequest struct {
	ActionCode string `json:"actionCode"`
	Comment    string `json:"comment"`
	// RowVersion echoes the version the client read; a stale value yields a
	// concurrency conflict instead of a silent overwrite.
	RowVersion int64 `json:"rowVersion"`
}

// AddCommentRequest appends a comment-only history entry.
type AddCommentRequest struct {
	Comment string `json:"comment"`
}

// AvailableAction is one legal next action for the current actor.
type AvailableAction struct {
	ActionCode string `json:"actionCode"`
	ToStatusID string `json:"toStatusId"`
}

// RequestDetail combines the request with its history and the actions the
// current actor may take.
type RequestDetail struct {
	Request          models.Request               `json:"request"`
	History          []models.RequestHistoryEntry `json:"history"`
	AvailableActions []AvailableAction            `json:"availableActions"`
}

// RequestQuery mirrors supported listing filters.
type RequestQuery struct {
	TypeCode   string
	StatusID   string
	AssigneeID string
	Search     string
	Page       int
	PageSize   int
}
