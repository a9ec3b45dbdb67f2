package models

import "time"

// WorkflowTransition is one allowed (type, from-status, action) → to-status
// mapping. RequiredPermission nil means no permission is needed. At most one
// enabled transition exists per (type, from-status, action) triple.
type WorkflowTransition struct {
	ID                 string    `db:"id" json:"id"`
	TypeCode           string    `db:"type_code" json:"typeCode"`
	FromStatusID       string    `db:"from_status_id" json:"fromStatusId"`
	ActionCode         string    `db:"action_code" json:"actionCode"`
	ToStatusID         string    `db:"to_status_id" json:"toStatusId"`
	RequiredPermission *string   `db:"required_permission" json:"requiredPermission,omitempty"`
	Enabled            bool      `db:"enabled" json:"enabled"`
	CreatedAt          time.Time `db:"created_at" json:"createdAt"`
}

// TransitionKey identifies a transition row inside a loaded set.
type TransitionKey struct {
	FromStatusID string
	ActionCode   string
}

// TransitionSet is an immutable snapshot of all enabled transitions for one
// request type, loaded wholesale and replaced atomically. Readers never see
// a partially applied set.
type TransitionSet struct {
	TypeCode string
	rows     map[TransitionKey]WorkflowTransition
	ordered  []WorkflowTransition
}

// NewTransitionSet builds a snapshot from enabled rows; disabled rows are
// kept out of the lookup map so they behave as absent.
func NewTransitionSet(typeCode string, transitions []WorkflowTransition) *TransitionSet {
	set := &TransitionSet{
		TypeCode: typeCode,
		rows:     make(map[TransitionKey]WorkflowTransition, len(transitions)),
		ordered:  make([]WorkflowTransition, 0, len(transitions)),
	}
	for _, tr := range transitions {
		set.ordered = append(set.ordered, tr)
		if !tr.Enabled {
			continue
		}
		set.rows[TransitionKey{FromStatusID: tr.FromStatusID, ActionCode: tr.ActionCode}] = tr
	}
	return set
}

// Lookup returns the enabled transition for the given from-status and action.
func (s *TransitionSet) Lookup(fromStatusID, actionCode string) (WorkflowTransition, bool) {
	if s == nil {
		return WorkflowTransition{}, false
	}
	tr, ok := s.rows[TransitionKey{FromStatusID: fromStatusID, ActionCode: actionCode}]
	return tr, ok
}

// From returns all enabled transitions leaving the given status.
func (s *TransitionSet) From(fromStatusID string) []WorkflowTransition {
	if s == nil {
		return nil
	}
	result := make([]WorkflowTransition, 0, 4)
	for _, tr := range s.ordered {
		if tr.Enabled && tr.FromStatusID == fromStatusID {
			result = append(result, tr)
		}
	}
	return result
}

// All returns every row in the snapshot, including disabled ones.
func (s *TransitionSet) All() []WorkflowTransition {
	if s == nil {
		return nil
	}
	return s.ordered
}
