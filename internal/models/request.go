package models

import "time"

// Well-known workflow action codes seeded for the default request types.
// These are plain table data, not hardcoded transitions: the engine resolves
// any action code against the transition table for the request's type.
const (
	ActionSubmit      = "Submit"
	ActionStartReview = "StartReview"
	ActionApprove     = "Approve"
	ActionReject      = "Reject"
	ActionStartWork   = "StartWork"
	ActionComplete    = "Complete"
	ActionClose       = "Close"
)

// Request is a tracked unit of work moving through a configurable workflow.
// The current status is only ever set through a valid transition (or at
// creation); requests are never physically deleted.
type Request struct {
	ID          string     `db:"id" json:"id"`
	TypeCode    string     `db:"type_code" json:"typeCode"`
	StatusID    string     `db:"status_id" json:"statusId"`
	Subject     string     `db:"subject" json:"subject"`
	Description string     `db:"description" json:"description"`
	OrgUnitID   *string    `db:"org_unit_id" json:"orgUnitId,omitempty"`
	AssigneeID  *string    `db:"assignee_id" json:"assigneeId,omitempty"`
	DueDate     *time.Time `db:"due_date" json:"dueDate,omitempty"`
	CreatedBy   string     `db:"created_by" json:"createdBy"`
	CreatedAt   time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updatedAt"`

	// RowVersion guards optimistic concurrency: Save fails with a
	// concurrency conflict when the stored version differs.
	RowVersion int64 `db:"row_version" json:"rowVersion"`
}

// RequestHistoryEntry is an immutable append-only record of a workflow
// action or a comment-only addition. Entries are owned by their request
// and are never mutated or deleted.
type RequestHistoryEntry struct {
	ID         string    `db:"id" json:"id"`
	RequestID  string    `db:"request_id" json:"requestId"`
	ActionCode *string   `db:"action_code" json:"actionCode,omitempty"`
	ActorID    string    `db:"actor_id" json:"actorId"`
	StatusID   string    `db:"status_id" json:"statusId"`
	Comment    *string   `db:"comment" json:"comment,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}

// RequestFilter constrains request listing queries.
type RequestFilter struct {
	TypeCode   string
	StatusID   string
	AssigneeID string
	CreatedBy  string
	Search     string
	Page       int
	PageSize   int
}
